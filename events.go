package kblog

// Events はバックエンドが操作結果を通知するコールバックの集合を表す。
// 各フィールドはnilのままでもよく、その場合の通知は単に破棄される。
// 成功した操作ごとに完了イベントが1回だけ、失敗した操作ごとにErrorが
// 1回だけ呼び出される。
//
// コールバックはバックエンドのインスタンスごとに直列に呼び出される。
// 呼び出しの順序は、同一の多段choreography内を除き保証されない。
type Events struct {
	// FetchedUserInfo はfetchUserInfo完了時に呼び出される。
	FetchedUserInfo func(info UserInfo)

	// ListedBlogs はlistBlogs完了時に呼び出される。
	ListedBlogs func(blogs []BlogInfo)

	// ListedCategories はlistCategories完了時に呼び出される。
	ListedCategories func(categories []Category)

	// ListedRecentPosts はlistRecentPosts完了時に呼び出される。
	// 各投稿のStatusはPostFetchedとなる。新しい順で渡される。
	ListedRecentPosts func(posts []Post)

	// CreatedPost はcreatePost完了時に呼び出される。
	CreatedPost func(post *Post)

	// ModifiedPost はmodifyPost完了時に呼び出される。
	ModifiedPost func(post *Post)

	// FetchedPost はfetchPost完了時に呼び出される。
	FetchedPost func(post *Post)

	// RemovedPost はremovePost完了時に呼び出される。
	RemovedPost func(post *Post)

	// CreatedMedia はcreateMedia完了時に呼び出される。
	CreatedMedia func(media *Media)

	// ListedComments はlistComments完了時に呼び出される（Atom系のみ）。
	ListedComments func(post *Post, comments []Comment)

	// ListedAllComments はlistAllComments完了時に呼び出される（Atom系のみ）。
	ListedAllComments func(comments []Comment)

	// CreatedComment はcreateComment完了時に呼び出される（Atom系のみ）。
	CreatedComment func(post *Post, comment *Comment)

	// RemovedComment はremoveComment完了時に呼び出される（Atom系のみ）。
	RemovedComment func(post *Post, comment *Comment)

	// FetchedProfileID はfetchProfileId完了時に呼び出される（GDataのみ）。
	FetchedProfileID func(profileID string)

	// ListedTrackBackPings はlistTrackBackPings完了時に呼び出される
	// （MovableTypeのみ）。
	ListedTrackBackPings func(post *Post, pings []TrackBackPing)

	// Error は失敗した操作ごとに1回だけ呼び出される。
	// postとcommentは失敗を帰属できる場合にのみ非nilとなる。
	Error func(kind ErrorKind, message string, post *Post, comment *Comment)
}
