// Package blogger1 はBlogger 1.0 API（XML-RPC）のバックエンドを提供する。
//
// Blogger 1.0はほとんどのブログサーバーが対応する最小公倍数的なAPIで、
// タイトルフィールドを持たないなど機能は限られる。タイトルは本文への
// 埋め込みで代替する。より高機能なMetaWeblog / MovableTypeバックエンドは
// このパッケージを合成して利用する。
package blogger1

import (
	"context"
	"log/slog"
	"sync"

	"github.com/zero804/kblog"
	"github.com/zero804/kblog/internal/correlator"
	"github.com/zero804/kblog/xmlrpc"
)

// defaultAppID はBlogger 1.0 APIのアプリケーションキー。
// 歴史的経緯により多くのサーバーは内容を検証しない。
const defaultAppID = "0123456789ABCDEF"

// Caller はXML-RPCトランスポートのインターフェース。
// テスタビリティのためxmlrpc.Clientを抽象化する。
type Caller interface {
	Call(ctx context.Context, method string, args []xmlrpc.Value, id uint64, onResult xmlrpc.ResultFunc, onFault xmlrpc.FaultFunc)
}

// Client はBlogger 1.0バックエンド。
// すべての操作は非同期で、結果はEventsのコールバックで通知される。
// コールバックはインスタンスごとに直列化される。
type Client struct {
	blog   *kblog.Blog
	caller Caller
	events *kblog.Events
	logger *slog.Logger
	appID  string

	// muはコールバックの直列化と相関表・イベント発火の保護を兼ねる
	mu    sync.Mutex
	calls *correlator.Table[*kblog.Post]
}

// Option はClientの生成オプション。
type Option func(*Client)

// WithLogger はロガーを設定する。未指定の場合はslog.Default()を使用する。
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithAppID はBlogger 1.0のアプリケーションキーを差し替える。
func WithAppID(appID string) Option {
	return func(c *Client) { c.appID = appID }
}

// New は新しいBlogger 1.0バックエンドを生成する。
func New(blog *kblog.Blog, caller Caller, events *kblog.Events, opts ...Option) *Client {
	c := &Client{
		blog:   blog,
		caller: caller,
		events: events,
		appID:  defaultAppID,
		calls:  correlator.New[*kblog.Post](1),
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
	return c
}

// InterfaceName はバックエンドの名前を返す。
func (c *Client) InterfaceName() string { return "Blogger 1.0" }

// defaultArgs はプロトコル既定の引数並び（appKey, [id,] username, password）を組み立てる。
func (c *Client) defaultArgs(id string) []xmlrpc.Value {
	args := []xmlrpc.Value{xmlrpc.String(c.appID)}
	if id != "" {
		args = append(args, xmlrpc.String(id))
	}
	return append(args,
		xmlrpc.String(c.blog.Username),
		xmlrpc.String(c.blog.Password),
	)
}

// FetchUserInfo はユーザー情報を取得する。
// 完了時にFetchedUserInfoイベントが発火する。
func (c *Client) FetchUserInfo(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger.Debug("ユーザー情報を取得します")
	c.caller.Call(ctx, "blogger.getUserInfo", c.defaultArgs(""), 0,
		c.onFetchedUserInfo, c.onPlainFault)
}

// ListBlogs は認証情報で利用可能なブログの一覧を取得する。
// 完了時にListedBlogsイベントが発火する。
func (c *Client) ListBlogs(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger.Debug("ブログ一覧を取得します")
	c.caller.Call(ctx, "blogger.getUsersBlogs", c.defaultArgs(""), 0,
		c.onListedBlogs, c.onPlainFault)
}

// ListRecentPosts は最新の投稿をnumber件まで取得する。
// number == 0 はノーオペレーションであり、リモート呼び出しを発行せずに
// 空の一覧でListedRecentPostsイベントを発火する。
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
	// 要求件数を相関値としてそのまま往復させる
	c.caller.Call(ctx, "blogger.getRecentPosts", args, uint64(number),
		c.onListedRecentPosts, c.onPlainFault)
}

// FetchPost はPostIDが設定された投稿をサーバーから取得する。
// 完了時にFetchedPostイベントが発火する。
func (c *Client) FetchPost(ctx context.Context, post *kblog.Post) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if post == nil {
		c.emitError(kblog.Other, "投稿がnilです。", nil)
		return
	}
	token := c.calls.Issue(post)
	c.logger.Debug("投稿を取得します", slog.String("post_id", post.PostID))
	c.caller.Call(ctx, "blogger.getPost", c.defaultArgs(post.PostID), token,
		c.onFetchedPost, c.onPostFault)
}

// CreatePost は新規投稿をサーバーに作成する。
// 完了時にPostIDが採番され、CreatedPostイベントが発火する。
func (c *Client) CreatePost(ctx context.Context, post *kblog.Post) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if post == nil {
		c.emitError(kblog.Other, "投稿がnilです。", nil)
		return
	}
	token := c.calls.Issue(post)
	c.logger.Debug("投稿を作成します", slog.String("blog_id", c.blog.BlogID))
	args := append(c.defaultArgs(c.blog.BlogID),
		xmlrpc.String(embedTitle(post)),
		xmlrpc.Bool(!post.IsPrivate),
	)
	c.caller.Call(ctx, "blogger.newPost", args, token,
		c.onCreatedPost, c.onPostFault)
}

// ModifyPost はサーバー上の投稿を更新する。
// 完了時にModifiedPostイベントが発火する。
func (c *Client) ModifyPost(ctx context.Context, post *kblog.Post) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if post == nil {
		c.emitError(kblog.Other, "投稿がnilです。", nil)
		return
	}
	token := c.calls.Issue(post)
	c.logger.Debug("投稿を更新します", slog.String("post_id", post.PostID))
	args := append(c.defaultArgs(post.PostID),
		xmlrpc.String(embedTitle(post)),
		xmlrpc.Bool(!post.IsPrivate),
	)
	c.caller.Call(ctx, "blogger.editPost", args, token,
		c.onModifiedPost, c.onPostFault)
}

// RemovePost はサーバーから投稿を削除する。
// 完了時にRemovedPostイベントが発火する。
func (c *Client) RemovePost(ctx context.Context, post *kblog.Post) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if post == nil {
		c.emitError(kblog.Other, "投稿がnilです。", nil)
		return
	}
	token := c.calls.Issue(post)
	c.logger.Debug("投稿を削除します", slog.String("post_id", post.PostID))
	args := append(c.defaultArgs(post.PostID), xmlrpc.Bool(true))
	c.caller.Call(ctx, "blogger.deletePost", args, token,
		c.onRemovedPost, c.onPostFault)
}

// --- コールバック ---

func (c *Client) onFetchedUserInfo(result []xmlrpc.Value, _ uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(result) == 0 || result[0].Kind() != xmlrpc.KindStruct {
		c.emitError(kblog.ParsingError, "サーバーのレスポンスからユーザー情報を読み取れませんでした。", nil)
		return
	}
	info := readUserInfoFromStruct(result[0])
	if c.events.FetchedUserInfo != nil {
		c.events.FetchedUserInfo(info)
	}
}

func (c *Client) onListedBlogs(result []xmlrpc.Value, _ uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(result) == 0 {
		c.emitError(kblog.ParsingError, "サーバーのレスポンスからブログ一覧を読み取れませんでした。", nil)
		return
	}
	list, ok := result[0].AsArray()
	if !ok {
		c.emitError(kblog.ParsingError, "サーバーのレスポンスからブログ一覧を読み取れませんでした。", nil)
		return
	}
	blogs := make([]kblog.BlogInfo, 0, len(list))
	for _, e := range list {
		if e.Kind() != xmlrpc.KindStruct {
			continue
		}
		blogs = append(blogs, kblog.BlogInfo{
			ID:   e.FieldIDText("blogid"),
			Name: e.FieldText("blogName"),
			URL:  e.FieldText("url"),
		})
	}
	if c.events.ListedBlogs != nil {
		c.events.ListedBlogs(blogs)
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
	post, ok := c.calls.Take(id)
	if !ok {
		c.logger.Warn("未知の相関トークンの結果を破棄します", slog.Uint64("token", id))
		return
	}
	if len(result) == 0 || result[0].Kind() != xmlrpc.KindStruct {
		post.SetError("サーバーのレスポンスから投稿を読み取れませんでした。")
		c.emitError(kblog.ParsingError, post.Error, post)
		return
	}
	if !readPostFromStruct(post, result[0]) {
		post.SetError("投稿を読み取れませんでした。")
		c.emitError(kblog.ParsingError, post.Error, post)
		return
	}
	post.Status = kblog.PostFetched
	if c.events.FetchedPost != nil {
		c.events.FetchedPost(post)
	}
}

func (c *Client) onCreatedPost(result []xmlrpc.Value, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	post, ok := c.calls.Take(id)
	if !ok {
		c.logger.Warn("未知の相関トークンの結果を破棄します", slog.Uint64("token", id))
		return
	}
	if len(result) == 0 {
		post.SetError("サーバーのレスポンスから投稿IDを読み取れませんでした。")
		c.emitError(kblog.ParsingError, post.Error, post)
		return
	}
	postID, ok := result[0].AsString()
	if !ok {
		post.SetError("投稿IDを読み取れませんでした。文字列ではありません。")
		c.emitError(kblog.ParsingError, post.Error, post)
		return
	}
	post.PostID = postID
	post.Status = kblog.PostCreated
	c.logger.Debug("投稿を作成しました", slog.String("post_id", postID))
	if c.events.CreatedPost != nil {
		c.events.CreatedPost(post)
	}
}

func (c *Client) onModifiedPost(result []xmlrpc.Value, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	post, ok := c.calls.Take(id)
	if !ok {
		c.logger.Warn("未知の相関トークンの結果を破棄します", slog.Uint64("token", id))
		return
	}
	if len(result) == 0 {
		post.SetError("サーバーのレスポンスから結果を読み取れませんでした。")
		c.emitError(kblog.ParsingError, post.Error, post)
		return
	}
	if _, ok := result[0].AsBool(); !ok {
		post.SetError("結果を読み取れませんでした。真偽値ではありません。")
		c.emitError(kblog.ParsingError, post.Error, post)
		return
	}
	post.Status = kblog.PostModified
	if c.events.ModifiedPost != nil {
		c.events.ModifiedPost(post)
	}
}

func (c *Client) onRemovedPost(result []xmlrpc.Value, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	post, ok := c.calls.Take(id)
	if !ok {
		c.logger.Warn("未知の相関トークンの結果を破棄します", slog.Uint64("token", id))
		return
	}
	if len(result) == 0 {
		post.SetError("サーバーのレスポンスから結果を読み取れませんでした。")
		c.emitError(kblog.ParsingError, post.Error, post)
		return
	}
	if _, ok := result[0].AsBool(); !ok {
		post.SetError("結果を読み取れませんでした。真偽値ではありません。")
		c.emitError(kblog.ParsingError, post.Error, post)
		return
	}
	post.Status = kblog.PostRemoved
	if c.events.RemovedPost != nil {
		c.events.RemovedPost(post)
	}
}

// onPostFault は相関表に登録済みの投稿操作のフォルトを処理する。
// フォルトも成功と同様にペンディングエントリを消費する。
func (c *Client) onPostFault(code int, message string, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kind := xmlrpc.KindForCode(code)
	post, ok := c.calls.Take(id)
	if !ok {
		// 帰属できないフォルトはオブジェクトなしで報告する
		c.emitError(kind, message, nil)
		return
	}
	post.SetError(message)
	c.emitError(kind, message, post)
}

// onPlainFault はペンディングオブジェクトを持たない操作のフォルトを処理する。
func (c *Client) onPlainFault(code int, message string, _ uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitError(xmlrpc.KindForCode(code), message, nil)
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

// PendingCalls は現在ペンディング中の呼び出し数を返す。
func (c *Client) PendingCalls() int { return c.calls.Len() }
