package blogger1

import (
	"regexp"
	"strings"

	"github.com/zero804/kblog"
	"github.com/zero804/kblog/xmlrpc"
)

// titlePattern は本文に埋め込まれたタイトルを検出する。
// Blogger 1.0はタイトルフィールドを持たないため、本文の先頭に
// <title>...</title>として埋め込む慣習がある。
var titlePattern = regexp.MustCompile(`(?s)<title>(.*?)</title>`)

// embedTitle は投稿のタイトルを本文に埋め込んだ送信用文字列を返す。
// タイトルが空の場合は本文をそのまま返す。
func embedTitle(post *kblog.Post) string {
	if post.Title == "" {
		return post.Content
	}
	return "<title>" + post.Title + "</title>" + post.Content
}

// splitTitle は本文からタイトルの埋め込みを分離する。
func splitTitle(content string) (title, body string) {
	m := titlePattern.FindStringSubmatchIndex(content)
	if m == nil {
		return "", content
	}
	title = content[m[2]:m[3]]
	body = strings.TrimPrefix(content[:m[0]]+content[m[1]:], "\n")
	return title, body
}

// readPostFromStruct はサーバーのレスポンスマップから投稿を構成する。
// postがnilの場合のみfalseを返す。個々のフィールドの欠落や型不一致は
// 既存値を維持することで許容する（全か無かではなく部分的成功を優先する）。
func readPostFromStruct(post *kblog.Post, v xmlrpc.Value) bool {
	if post == nil {
		return false
	}

	if dt, ok := v.Field("dateCreated"); ok {
		if t, ok := dt.AsTime(); ok && !t.IsZero() {
			post.CreationDateTime = t
		}
	}
	if dt, ok := v.Field("lastModified"); ok {
		if t, ok := dt.AsTime(); ok && !t.IsZero() {
			post.ModificationDateTime = t
		}
	}

	// 投稿IDは無条件に代入する（空の場合も含む）。整数のIDも受け付ける
	post.PostID = v.FieldIDText("postid")

	title, body := splitTitle(v.FieldText("content"))
	if title != "" {
		post.Title = title
	}
	post.Content = body

	return true
}

// readUserInfoFromStruct はblogger.getUserInfoのレスポンスを読み取る。
// 欠落フィールドは空文字列となる。
func readUserInfoFromStruct(v xmlrpc.Value) kblog.UserInfo {
	return kblog.UserInfo{
		Nickname:  v.FieldText("nickname"),
		UserID:    v.FieldIDText("userid"),
		Email:     v.FieldText("email"),
		FirstName: v.FieldText("firstname"),
		LastName:  v.FieldText("lastname"),
		URL:       v.FieldText("url"),
	}
}
