package kblog

import "time"

// CommentStatus はコメントのクライアント側ライフサイクル状態を表す。
// PostStatusと同様に前方向にのみ遷移する。
type CommentStatus int

const (
	// CommentNew は未送信の新規コメント。
	CommentNew CommentStatus = iota
	// CommentFetched はサーバーから取得済みのコメント。
	CommentFetched
	// CommentCreated はサーバー上に作成済みのコメント。
	CommentCreated
	// CommentRemoved はサーバーから削除済みのコメント。
	CommentRemoved
	// CommentError は直近の操作が失敗したコメント。
	CommentError
)

// String はCommentStatusの文字列表現を返す。
func (s CommentStatus) String() string {
	switch s {
	case CommentNew:
		return "new"
	case CommentFetched:
		return "fetched"
	case CommentCreated:
		return "created"
	case CommentRemoved:
		return "removed"
	case CommentError:
		return "error"
	default:
		return "unknown"
	}
}

// Comment は投稿に対するコメントを表す。
type Comment struct {
	CommentID            string
	Title                string
	Content              string
	Email                string
	Name                 string
	URL                  string
	CreationDateTime     time.Time
	ModificationDateTime time.Time
	Status               CommentStatus
	Error                string // StatusがCommentErrorの場合のみ有効
}

// SetError はコメントをエラー状態に遷移させ、エラーメッセージを記録する。
func (c *Comment) SetError(message string) {
	c.Status = CommentError
	c.Error = message
}
