package kblog

// MediaStatus はメディアのクライアント側ライフサイクル状態を表す。
type MediaStatus int

const (
	// MediaNew は未送信の新規メディア。
	MediaNew MediaStatus = iota
	// MediaCreated はサーバー上に作成済みのメディア。
	MediaCreated
	// MediaError は直近の操作が失敗したメディア。
	MediaError
)

// String はMediaStatusの文字列表現を返す。
func (s MediaStatus) String() string {
	switch s {
	case MediaNew:
		return "new"
	case MediaCreated:
		return "created"
	case MediaError:
		return "error"
	default:
		return "unknown"
	}
}

// Media は画像などのバイナリメディアを表す。
// 作成成功後、URLフィールドがサーバー上の公開URLとなりアイデンティティを持つ。
type Media struct {
	Name     string
	Mimetype string
	Data     []byte // ワイヤー上ではbase64でエンコードされる
	URL      string // 作成成功後にサーバーが採番する
	Status   MediaStatus
	Error    string // StatusがMediaErrorの場合のみ有効
}

// SetError はメディアをエラー状態に遷移させ、エラーメッセージを記録する。
func (m *Media) SetError(message string) {
	m.Status = MediaError
	m.Error = message
}
