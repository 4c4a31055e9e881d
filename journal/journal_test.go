package journal

import (
	"testing"
	"time"

	"github.com/zero804/kblog"
)

func TestFromPostPreservesJournalID(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	modified := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)
	post := &kblog.Post{
		JournalID: "uid-123",
		Title:     "朝の散歩",
		Content:   "公園まで歩いた。",
		Categories: []kblog.Category{
			{Name: "日記"},
			{Name: "散歩"},
		},
		CreationDateTime:     created,
		ModificationDateTime: modified,
	}

	entry := FromPost(post)
	if entry.UID != "uid-123" {
		t.Errorf("UID = %q, want %q", entry.UID, "uid-123")
	}
	if entry.Summary != "朝の散歩" {
		t.Errorf("Summary = %q, want %q", entry.Summary, "朝の散歩")
	}
	if entry.Description != "公園まで歩いた。" {
		t.Errorf("Description = %q が期待値と一致しません", entry.Description)
	}
	if len(entry.Categories) != 2 || entry.Categories[0] != "日記" {
		t.Errorf("Categories = %v が期待値と一致しません", entry.Categories)
	}
	if !entry.DtStart.Equal(created) {
		t.Errorf("DtStart = %v, want %v", entry.DtStart, created)
	}
	if !entry.LastModified.Equal(modified) {
		t.Errorf("LastModified = %v, want %v", entry.LastModified, modified)
	}
}

func TestFromPostGeneratesUID(t *testing.T) {
	entry := FromPost(&kblog.Post{Title: "無題"})
	if entry.UID == "" {
		t.Error("JournalIDのない投稿でUIDが採番されていません")
	}
	// 採番は投稿ごとに一意である
	other := FromPost(&kblog.Post{Title: "無題"})
	if entry.UID == other.UID {
		t.Errorf("UIDが重複しています: %q", entry.UID)
	}
}

func TestToPost(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	entry := Entry{
		UID:         "uid-123",
		Summary:     "朝の散歩",
		Description: "公園まで歩いた。",
		Categories:  []string{"日記", "  ", "散歩"},
		DtStart:     start,
	}

	post := ToPost(entry)
	if post.JournalID != "uid-123" {
		t.Errorf("JournalID = %q, want %q", post.JournalID, "uid-123")
	}
	if post.Status != kblog.PostNew {
		t.Errorf("Status = %v, want %v", post.Status, kblog.PostNew)
	}
	if post.Title != "朝の散歩" {
		t.Errorf("Title = %q, want %q", post.Title, "朝の散歩")
	}
	// 空白のみのカテゴリ名は除外される
	if len(post.Categories) != 2 {
		t.Fatalf("カテゴリ数 = %d, want 2", len(post.Categories))
	}
	if post.Categories[1].Name != "散歩" {
		t.Errorf("Categories[1].Name = %q, want %q", post.Categories[1].Name, "散歩")
	}
	if !post.CreationDateTime.Equal(start) {
		t.Errorf("CreationDateTime = %v, want %v", post.CreationDateTime, start)
	}
}

func TestRoundTrip(t *testing.T) {
	entry := Entry{
		UID:         "uid-456",
		Summary:     "買い物メモ",
		Description: "牛乳とパンを買う。",
		Categories:  []string{"メモ"},
		DtStart:     time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	post := ToPost(entry)
	back := FromPost(&post)

	if back.UID != entry.UID {
		t.Errorf("UID = %q, want %q", back.UID, entry.UID)
	}
	if back.Summary != entry.Summary {
		t.Errorf("Summary = %q, want %q", back.Summary, entry.Summary)
	}
	if back.Description != entry.Description {
		t.Errorf("Description = %q, want %q", back.Description, entry.Description)
	}
	if len(back.Categories) != 1 || back.Categories[0] != "メモ" {
		t.Errorf("Categories = %v が期待値と一致しません", back.Categories)
	}
}

func TestApply(t *testing.T) {
	entry := Entry{
		UID:        "uid-789",
		Summary:    "下書き",
		Categories: []string{"メモ"},
		DtStart:    time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	post := &kblog.Post{
		Title:   "公開済みのタイトル",
		Content: "公開済みの本文",
		Categories: []kblog.Category{
			{Name: "日記"},
		},
		CreationDateTime: created,
	}

	entry.Apply(post)
	if entry.Summary != "公開済みのタイトル" {
		t.Errorf("Summary = %q が期待値と一致しません", entry.Summary)
	}
	if len(entry.Categories) != 1 || entry.Categories[0] != "日記" {
		t.Errorf("Categories = %v が期待値と一致しません", entry.Categories)
	}
	if !entry.DtStart.Equal(created) {
		t.Errorf("DtStart = %v, want %v", entry.DtStart, created)
	}
	// ゼロ値の日時では既存の値を保持する
	if !entry.LastModified.IsZero() {
		t.Errorf("LastModified = %v, want zero", entry.LastModified)
	}
}
