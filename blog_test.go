package kblog

import (
	"testing"
	"time"
)

func TestBlogLocation(t *testing.T) {
	blog := &Blog{}
	if got := blog.Location(); got != time.UTC {
		t.Errorf("Location() = %v, want UTC", got)
	}

	tokyo := time.FixedZone("JST", 9*60*60)
	blog = &Blog{TimeZone: tokyo}
	if got := blog.Location(); got != tokyo {
		t.Errorf("Location() = %v, want %v", got, tokyo)
	}
}

func TestBlogUserAgent(t *testing.T) {
	tests := []struct {
		name string
		blog Blog
		want string
	}{
		{"未設定", Blog{}, "kblog/1.0"},
		{"アプリ名のみ", Blog{AppName: "myblog"}, "myblog"},
		{"アプリ名とバージョン", Blog{AppName: "myblog", AppVersion: "2.1"}, "myblog/2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.blog.UserAgent(); got != tt.want {
				t.Errorf("UserAgent() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPostStatusString(t *testing.T) {
	tests := []struct {
		status PostStatus
		want   string
	}{
		{PostNew, "new"},
		{PostFetched, "fetched"},
		{PostCreated, "created"},
		{PostModified, "modified"},
		{PostRemoved, "removed"},
		{PostError, "error"},
		{PostStatus(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("PostStatus(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestCommentStatusString(t *testing.T) {
	tests := []struct {
		status CommentStatus
		want   string
	}{
		{CommentNew, "new"},
		{CommentFetched, "fetched"},
		{CommentCreated, "created"},
		{CommentRemoved, "removed"},
		{CommentError, "error"},
		{CommentStatus(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("CommentStatus(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestMediaStatusString(t *testing.T) {
	tests := []struct {
		status MediaStatus
		want   string
	}{
		{MediaNew, "new"},
		{MediaCreated, "created"},
		{MediaError, "error"},
		{MediaStatus(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("MediaStatus(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestErrorKindString(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{TransportFault, "transport_fault"},
		{ParsingError, "parsing_error"},
		{AuthenticationError, "authentication_error"},
		{NotSupported, "not_supported"},
		{Other, "other"},
		{ErrorKind(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("ErrorKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestPostSetError(t *testing.T) {
	post := &Post{
		Title: "朝の散歩",
		Categories: []Category{
			{Name: "日記"},
			{Name: "散歩"},
		},
		Status: PostCreated,
	}
	post.SetError("サーバーが拒否しました")

	if post.Status != PostError {
		t.Errorf("Status = %v, want %v", post.Status, PostError)
	}
	if post.Error != "サーバーが拒否しました" {
		t.Errorf("Error = %q が期待値と一致しません", post.Error)
	}
	// 先頭がプライマリカテゴリ
	if post.Categories[0].Name != "日記" {
		t.Errorf("Categories[0].Name = %q, want %q", post.Categories[0].Name, "日記")
	}
}
