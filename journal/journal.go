// Package journal はブログ投稿とローカルのジャーナル記録との相互変換を提供する。
//
// 投稿をカレンダー系アプリケーションのジャーナルとして保存したり、
// ジャーナルを投稿として公開したりするための変換層である。
package journal

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zero804/kblog"
)

// Entry はローカルのジャーナル記録を表す。
type Entry struct {
	UID          string
	Summary      string
	Description  string
	Categories   []string
	DtStart      time.Time
	LastModified time.Time
}

// FromPost は投稿からジャーナル記録を生成する。
// UIDは投稿のJournalIDを引き継ぎ、未設定の場合は新規に採番する。
func FromPost(post *kblog.Post) Entry {
	uid := post.JournalID
	if uid == "" {
		uid = uuid.NewString()
	}
	categories := make([]string, 0, len(post.Categories))
	for _, cat := range post.Categories {
		categories = append(categories, cat.Name)
	}
	return Entry{
		UID:          uid,
		Summary:      post.Title,
		Description:  post.Content,
		Categories:   categories,
		DtStart:      post.CreationDateTime,
		LastModified: post.ModificationDateTime,
	}
}

// ToPost はジャーナル記録から投稿を生成する。
// 生成された投稿のStatusはPostNewであり、JournalIDに記録のUIDを保持する。
func ToPost(entry Entry) kblog.Post {
	categories := make([]kblog.Category, 0, len(entry.Categories))
	for _, name := range entry.Categories {
		if name = strings.TrimSpace(name); name == "" {
			continue
		}
		categories = append(categories, kblog.Category{Name: name})
	}
	return kblog.Post{
		JournalID:            entry.UID,
		Title:                entry.Summary,
		Content:              entry.Description,
		Categories:           categories,
		CreationDateTime:     entry.DtStart,
		ModificationDateTime: entry.LastModified,
		Status:               kblog.PostNew,
	}
}

// Apply は完了した操作の結果をジャーナル記録に反映する。
func (e *Entry) Apply(post *kblog.Post) {
	e.Summary = post.Title
	e.Description = post.Content
	e.Categories = e.Categories[:0]
	for _, cat := range post.Categories {
		e.Categories = append(e.Categories, cat.Name)
	}
	if !post.CreationDateTime.IsZero() {
		e.DtStart = post.CreationDateTime
	}
	if !post.ModificationDateTime.IsZero() {
		e.LastModified = post.ModificationDateTime
	}
}
