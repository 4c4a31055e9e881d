package kblog

import "time"

// PostStatus は投稿のクライアント側ライフサイクル状態を表す。
// 状態は前方向にのみ遷移する。呼び出し側が明示的にリセットしない限り、
// バックエンドが状態を巻き戻すことはない。
type PostStatus int

const (
	// PostNew は未送信の新規投稿。
	PostNew PostStatus = iota
	// PostFetched はサーバーから取得済みの投稿。
	PostFetched
	// PostCreated はサーバー上に作成済みの投稿。
	PostCreated
	// PostModified はサーバー上で更新済みの投稿。
	PostModified
	// PostRemoved はサーバーから削除済みの投稿。
	PostRemoved
	// PostError は直近の操作が失敗した投稿。Errorフィールドに詳細を持つ。
	PostError
)

// String はPostStatusの文字列表現を返す。
func (s PostStatus) String() string {
	switch s {
	case PostNew:
		return "new"
	case PostFetched:
		return "fetched"
	case PostCreated:
		return "created"
	case PostModified:
		return "modified"
	case PostRemoved:
		return "removed"
	case PostError:
		return "error"
	default:
		return "unknown"
	}
}

// Post はサーバー上のブログ投稿を表す。
// PostIDは新規投稿ではサーバーが採番するまで空文字列となる。
// レコードの所有権は常に呼び出し側にあり、バックエンドは操作完了時に
// フィールドを更新するのみで破棄は行わない。
// 1つのPostに対して同時に未完了の操作は1つまでとする。
type Post struct {
	PostID               string
	Title                string
	Content              string
	AdditionalContent    string // 「続きを読む」以降の本文（MovableTypeのmt_text_more）
	Slug                 string
	Summary              string
	Tags                 []string   // 順序を保持する
	Categories           []Category // 順序を保持する。先頭がプライマリカテゴリ
	Mood                 string
	Music                string
	PermaLink            string
	Link                 string
	IsPrivate            bool // trueの場合は公開（publish）しない
	IsCommentAllowed     bool
	IsTrackBackAllowed   bool
	CreationDateTime     time.Time
	ModificationDateTime time.Time
	JournalID            string // 外部のカレンダージャーナル表現への参照。省略可
	Status               PostStatus
	Error                string // StatusがPostErrorの場合のみ有効
}

// SetError は投稿をエラー状態に遷移させ、エラーメッセージを記録する。
func (p *Post) SetError(message string) {
	p.Status = PostError
	p.Error = message
}
