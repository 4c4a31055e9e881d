// Package movabletype はMovable Type API（XML-RPC）のバックエンドを提供する。
//
// Movable TypeはMetaWeblogを拡張したAPIで、抜粋・続き・キーワードなどの
// 拡張フィールドとトラックバック一覧に対応する。公開を伴う投稿の作成・
// 更新は3段階のchoreography（本体送信→カテゴリ設定→公開）で行う。
// MetaWeblogと共通の操作は内部のmetaweblogバックエンドに委譲する。
package movabletype

import (
	"context"
	"log/slog"
	"sync"

	"github.com/zero804/kblog"
	"github.com/zero804/kblog/internal/correlator"
	"github.com/zero804/kblog/metaweblog"
	"github.com/zero804/kblog/xmlrpc"
)

// Caller はXML-RPCトランスポートのインターフェース。
type Caller interface {
	Call(ctx context.Context, method string, args []xmlrpc.Value, id uint64, onResult xmlrpc.ResultFunc, onFault xmlrpc.FaultFunc)
}

// chainState は多段choreographyの進行中の状態。
// 1段目の完了後も後続の呼び出しに引き継がれる。
type chainState struct {
	ctx     context.Context
	post    *kblog.Post
	publish bool // 最終段でmt.publishPostを呼ぶか
	modify  bool // 更新操作か（完了イベントの種別を決める）
}

// Client はMovable Typeバックエンド。
type Client struct {
	blog      *kblog.Blog
	caller    Caller
	events    *kblog.Events
	logger    *slog.Logger
	sanitizer metaweblog.Sanitizer
	metaweb   *metaweblog.Client

	mu     sync.Mutex
	chains *correlator.Table[*chainState]
	pings  *correlator.Table[*kblog.Post]
}

// Option はClientの生成オプション。
type Option func(*Client)

// WithLogger はロガーを設定する。未指定の場合はslog.Default()を使用する。
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithSanitizer は取得した投稿本文に適用するサニタイザーを設定する。
func WithSanitizer(s metaweblog.Sanitizer) Option {
	return func(c *Client) { c.sanitizer = s }
}

// New は新しいMovable Typeバックエンドを生成する。
func New(blog *kblog.Blog, caller Caller, events *kblog.Events, opts ...Option) *Client {
	c := &Client{
		blog:   blog,
		caller: caller,
		events: events,
		chains: correlator.New[*chainState](1),
		pings:  correlator.New[*kblog.Post](1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.events == nil {
		c.events = &kblog.Events{}
	}
	mwOpts := []metaweblog.Option{metaweblog.WithLogger(c.logger)}
	if c.sanitizer != nil {
		mwOpts = append(mwOpts, metaweblog.WithSanitizer(c.sanitizer))
	}
	c.metaweb = metaweblog.New(blog, caller, c.events, mwOpts...)
	return c
}

// InterfaceName はバックエンドの名前を返す。
func (c *Client) InterfaceName() string { return "Movable Type" }

func (c *Client) defaultArgs(id string) []xmlrpc.Value {
	var args []xmlrpc.Value
	if id != "" {
		args = append(args, xmlrpc.String(id))
	}
	return append(args,
		xmlrpc.String(c.blog.Username),
		xmlrpc.String(c.blog.Password),
	)
}

// FetchUserInfo はmetaweblogバックエンドに委譲する。
func (c *Client) FetchUserInfo(ctx context.Context) { c.metaweb.FetchUserInfo(ctx) }

// ListBlogs はmetaweblogバックエンドに委譲する。
func (c *Client) ListBlogs(ctx context.Context) { c.metaweb.ListBlogs(ctx) }

// RemovePost はmetaweblogバックエンドに委譲する。
func (c *Client) RemovePost(ctx context.Context, post *kblog.Post) { c.metaweb.RemovePost(ctx, post) }

// CreateMedia はmetaweblogバックエンドに委譲する。
func (c *Client) CreateMedia(ctx context.Context, media *kblog.Media) {
	c.metaweb.CreateMedia(ctx, media)
}

// ListCategories はmt.getCategoryListでカテゴリ一覧を取得する。
// MetaWeblogのgetCategoriesと異なり、形状は常に構造体のリストである。
func (c *Client) ListCategories(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger.Debug("カテゴリ一覧を取得します")
	c.caller.Call(ctx, "mt.getCategoryList", c.defaultArgs(c.blog.BlogID), 0,
		c.onListedCategories, c.onPlainFault)
}

// ListRecentPosts は最新の投稿をnumber件まで取得する。
// number == 0 はノーオペレーションであり、リモート呼び出しを発行しない。
func (c *Client) ListRecentPosts(ctx context.Context, number int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if number <= 0 {
		if c.events.ListedRecentPosts != nil {
			c.events.ListedRecentPosts(nil)
		}
		return
	}
	c.logger.Debug("最新投稿の一覧を取得します", slog.Int("number", number))
	args := append(c.defaultArgs(c.blog.BlogID), xmlrpc.Int(int64(number)))
	c.caller.Call(ctx, "metaWeblog.getRecentPosts", args, uint64(number),
		c.onListedRecentPosts, c.onPlainFault)
}

// FetchPost はPostIDが設定された投稿をサーバーから取得する。
// 拡張フィールド（抜粋・続き・キーワード・スラッグ）も読み取る。
func (c *Client) FetchPost(ctx context.Context, post *kblog.Post) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if post == nil {
		c.emitError(kblog.Other, "投稿がnilです。", nil)
		return
	}
	token := c.chains.Issue(&chainState{post: post})
	c.logger.Debug("投稿を取得します", slog.String("post_id", post.PostID))
	c.caller.Call(ctx, "metaWeblog.getPost", c.defaultArgs(post.PostID), token,
		c.onFetchedPost, c.onChainFault)
}

// CreatePost は新規投稿をサーバーに作成する。
//
// 投稿がカテゴリを持つ場合、作成は3段階で行われる。まず
// metaWeblog.newPostを非公開（publish=false）で送信し、採番された投稿IDに
// 対してmt.setPostCategoriesでカテゴリを設定し、公開が望まれる場合のみ
// 最後にmt.publishPostを呼ぶ。CreatedPostイベントは連鎖全体の完了時に
// 1回だけ発火する。途中の段が失敗した場合は連鎖を放棄し、Errorイベントを
// 1回だけ発火する。投稿IDは1段目で設定済みのため失敗後も保持される。
func (c *Client) CreatePost(ctx context.Context, post *kblog.Post) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if post == nil {
		c.emitError(kblog.Other, "投稿がnilです。", nil)
		return
	}
	c.startChain(ctx, post, false)
}

// ModifyPost はサーバー上の投稿を更新する。CreatePostと同じ連鎖で行う。
func (c *Client) ModifyPost(ctx context.Context, post *kblog.Post) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if post == nil {
		c.emitError(kblog.Other, "投稿がnilです。", nil)
		return
	}
	if post.PostID == "" {
		c.emitError(kblog.Other, "投稿IDが設定されていません。", post)
		return
	}
	c.startChain(ctx, post, true)
}

// startChain は作成・更新の連鎖を開始する。muを保持した状態で呼び出すこと。
func (c *Client) startChain(ctx context.Context, post *kblog.Post, modify bool) {
	state := &chainState{ctx: ctx, post: post, publish: !post.IsPrivate, modify: modify}
	chained := len(post.Categories) > 0 || state.publish
	var args []xmlrpc.Value
	var method string
	if modify {
		method = "metaWeblog.editPost"
		args = c.defaultArgs(post.PostID)
	} else {
		method = "metaWeblog.newPost"
		args = c.defaultArgs(c.blog.BlogID)
	}
	// 公開はカテゴリ設定後にmt.publishPostで行うため、1段目では常に非公開
	args = append(args, payloadFromPost(post, !modify), xmlrpc.Bool(false))
	token := c.chains.Issue(state)
	c.logger.Debug("投稿を送信します",
		slog.String("method", method),
		slog.Bool("chained", chained),
	)
	if chained {
		c.caller.Call(ctx, method, args, token, c.onPostSentChained, c.onChainFault)
	} else {
		c.caller.Call(ctx, method, args, token, c.onPostSentFinal, c.onChainFault)
	}
}

// ListTrackBackPings は投稿へのトラックバック一覧を取得する。
// mt.getTrackbackPingsは認証を要求せず、引数は投稿IDのみである。
func (c *Client) ListTrackBackPings(ctx context.Context, post *kblog.Post) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if post == nil {
		c.emitError(kblog.Other, "投稿がnilです。", nil)
		return
	}
	token := c.pings.Issue(post)
	c.logger.Debug("トラックバック一覧を取得します", slog.String("post_id", post.PostID))
	c.caller.Call(ctx, "mt.getTrackbackPings", []xmlrpc.Value{xmlrpc.String(post.PostID)},
		token, c.onListedTrackBackPings, c.onPingFault)
}

// --- コールバック ---

func (c *Client) onListedCategories(result []xmlrpc.Value, _ uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(result) == 0 {
		c.emitError(kblog.ParsingError, "サーバーのレスポンスからカテゴリ一覧を読み取れませんでした。", nil)
		return
	}
	list, ok := result[0].AsArray()
	if !ok {
		c.emitError(kblog.ParsingError, "サーバーのレスポンスからカテゴリ一覧を読み取れませんでした。", nil)
		return
	}
	categories := make([]kblog.Category, 0, len(list))
	for _, e := range list {
		fields, ok := e.AsStruct()
		if !ok {
			continue
		}
		categories = append(categories, kblog.Category{
			Name:       fieldText(fields, "categoryName"),
			CategoryID: fields["categoryId"].IDText(),
		})
	}
	if c.events.ListedCategories != nil {
		c.events.ListedCategories(categories)
	}
}

func (c *Client) onListedRecentPosts(result []xmlrpc.Value, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := int(id)
	if len(result) == 0 {
		c.emitError(kblog.ParsingError, "サーバーのレスポンスから投稿一覧を読み取れませんでした。", nil)
		return
	}
	list, ok := result[0].AsArray()
	if !ok {
		c.emitError(kblog.ParsingError, "サーバーのレスポンスから投稿一覧を読み取れませんでした。", nil)
		return
	}
	posts := make([]kblog.Post, 0, len(list))
	for _, e := range list {
		var post kblog.Post
		if !readPostFromStruct(&post, e) {
			c.emitError(kblog.ParsingError, "投稿を読み取れませんでした。", nil)
			continue
		}
		c.sanitizePost(&post)
		post.Status = kblog.PostFetched
		posts = append(posts, post)
		if len(posts) >= count {
			break
		}
	}
	if c.events.ListedRecentPosts != nil {
		c.events.ListedRecentPosts(posts)
	}
}

func (c *Client) onFetchedPost(result []xmlrpc.Value, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.chains.Take(id)
	if !ok {
		c.logger.Warn("未知の相関トークンの結果を破棄します", slog.Uint64("token", id))
		return
	}
	post := state.post
	if len(result) == 0 || !readPostFromStruct(post, result[0]) {
		post.SetError("サーバーのレスポンスから投稿を読み取れませんでした。")
		c.emitError(kblog.ParsingError, post.Error, post)
		return
	}
	c.sanitizePost(post)
	post.Status = kblog.PostFetched
	if c.events.FetchedPost != nil {
		c.events.FetchedPost(post)
	}
}

// onPostSentFinal は連鎖しない作成・更新の完了を処理する。
func (c *Client) onPostSentFinal(result []xmlrpc.Value, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.chains.Take(id)
	if !ok {
		c.logger.Warn("未知の相関トークンの結果を破棄します", slog.Uint64("token", id))
		return
	}
	if !c.readSentResult(state, result) {
		return
	}
	c.finishChain(state)
}

// onPostSentChained は連鎖の1段目の完了を処理し、2段目を発行する。
func (c *Client) onPostSentChained(result []xmlrpc.Value, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.chains.Take(id)
	if !ok {
		c.logger.Warn("未知の相関トークンの結果を破棄します", slog.Uint64("token", id))
		return
	}
	if !c.readSentResult(state, result) {
		return
	}
	if len(state.post.Categories) == 0 {
		// カテゴリなしで公開のみが必要な場合、カテゴリ設定の段を飛ばす
		c.publishOrFinish(state)
		return
	}
	token := c.chains.Issue(state)
	c.logger.Debug("カテゴリを設定します", slog.String("post_id", state.post.PostID))
	args := append(c.defaultArgs(state.post.PostID), categoriesArg(state.post.Categories))
	c.caller.Call(state.ctx, "mt.setPostCategories", args, token,
		c.onSetCategories, c.onChainFault)
}

// onSetCategories は連鎖の2段目の完了を処理し、必要なら3段目を発行する。
func (c *Client) onSetCategories(result []xmlrpc.Value, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.chains.Take(id)
	if !ok {
		c.logger.Warn("未知の相関トークンの結果を破棄します", slog.Uint64("token", id))
		return
	}
	if len(result) == 0 {
		state.post.SetError("カテゴリ設定の結果を読み取れませんでした。")
		c.emitError(kblog.ParsingError, state.post.Error, state.post)
		return
	}
	c.publishOrFinish(state)
}

// publishOrFinish は公開が必要ならmt.publishPostを発行し、
// 不要なら連鎖を完了する。muを保持した状態で呼び出すこと。
func (c *Client) publishOrFinish(state *chainState) {
	if !state.publish {
		c.finishChain(state)
		return
	}
	token := c.chains.Issue(state)
	c.logger.Debug("投稿を公開します", slog.String("post_id", state.post.PostID))
	c.caller.Call(state.ctx, "mt.publishPost",
		c.defaultArgs(state.post.PostID), token, c.onPublished, c.onChainFault)
}

func (c *Client) onPublished(result []xmlrpc.Value, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.chains.Take(id)
	if !ok {
		c.logger.Warn("未知の相関トークンの結果を破棄します", slog.Uint64("token", id))
		return
	}
	if len(result) == 0 {
		state.post.SetError("公開の結果を読み取れませんでした。")
		c.emitError(kblog.ParsingError, state.post.Error, state.post)
		return
	}
	c.finishChain(state)
}

func (c *Client) onListedTrackBackPings(result []xmlrpc.Value, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	post, ok := c.pings.Take(id)
	if !ok {
		c.logger.Warn("未知の相関トークンの結果を破棄します", slog.Uint64("token", id))
		return
	}
	if len(result) == 0 {
		c.emitError(kblog.ParsingError, "サーバーのレスポンスからトラックバック一覧を読み取れませんでした。", post)
		return
	}
	list, ok := result[0].AsArray()
	if !ok {
		c.emitError(kblog.ParsingError, "サーバーのレスポンスからトラックバック一覧を読み取れませんでした。", post)
		return
	}
	pings := make([]kblog.TrackBackPing, 0, len(list))
	for _, e := range list {
		fields, ok := e.AsStruct()
		if !ok {
			continue
		}
		pings = append(pings, kblog.TrackBackPing{
			Title: fieldText(fields, "pingTitle"),
			URL:   fieldText(fields, "pingURL"),
			IP:    fieldText(fields, "pingIP"),
		})
	}
	if c.events.ListedTrackBackPings != nil {
		c.events.ListedTrackBackPings(post, pings)
	}
}

// onChainFault は連鎖中の段の失敗を処理する。連鎖は放棄され、
// Errorイベントが1回だけ発火する。設定済みの投稿IDは保持される。
func (c *Client) onChainFault(code int, message string, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kind := xmlrpc.KindForCode(code)
	state, ok := c.chains.Take(id)
	if !ok {
		c.emitError(kind, message, nil)
		return
	}
	state.post.SetError(message)
	c.emitError(kind, message, state.post)
}

func (c *Client) onPingFault(code int, message string, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kind := xmlrpc.KindForCode(code)
	post, ok := c.pings.Take(id)
	if !ok {
		c.emitError(kind, message, nil)
		return
	}
	c.emitError(kind, message, post)
}

func (c *Client) onPlainFault(code int, message string, _ uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitError(xmlrpc.KindForCode(code), message, nil)
}

// readSentResult は作成・更新の1段目のレスポンスを投稿に反映する。
// 作成は投稿IDの文字列、更新は真偽値を返すプロトコルである。
// 失敗時はエラーイベントを発火してfalseを返す。
func (c *Client) readSentResult(state *chainState, result []xmlrpc.Value) bool {
	post := state.post
	if len(result) == 0 {
		post.SetError("サーバーのレスポンスから結果を読み取れませんでした。")
		c.emitError(kblog.ParsingError, post.Error, post)
		return false
	}
	if state.modify {
		if _, ok := result[0].AsBool(); !ok {
			post.SetError("結果を読み取れませんでした。真偽値ではありません。")
			c.emitError(kblog.ParsingError, post.Error, post)
			return false
		}
		return true
	}
	postID, ok := result[0].AsString()
	if !ok {
		post.SetError("投稿IDを読み取れませんでした。文字列ではありません。")
		c.emitError(kblog.ParsingError, post.Error, post)
		return false
	}
	post.PostID = postID
	return true
}

// finishChain は連鎖を完了し、完了イベントを1回発火する。
func (c *Client) finishChain(state *chainState) {
	post := state.post
	if state.modify {
		post.Status = kblog.PostModified
		if c.events.ModifiedPost != nil {
			c.events.ModifiedPost(post)
		}
		return
	}
	post.Status = kblog.PostCreated
	c.logger.Debug("投稿を作成しました", slog.String("post_id", post.PostID))
	if c.events.CreatedPost != nil {
		c.events.CreatedPost(post)
	}
}

func (c *Client) sanitizePost(post *kblog.Post) {
	if c.sanitizer == nil {
		return
	}
	post.Content = c.sanitizer.Sanitize(post.Content)
}

// PendingCalls は現在ペンディング中の呼び出し数を返す。
func (c *Client) PendingCalls() int {
	return c.chains.Len() + c.pings.Len() + c.metaweb.PendingCalls()
}

// emitError はエラーイベントを発火する。muを保持した状態で呼び出すこと。
func (c *Client) emitError(kind kblog.ErrorKind, message string, post *kblog.Post) {
	c.logger.Error("操作が失敗しました",
		slog.String("kind", kind.String()),
		slog.String("message", message),
	)
	if c.events.Error != nil {
		c.events.Error(kind, message, post, nil)
	}
}
