// Package metaweblog はMetaWeblog API（XML-RPC）のバックエンドを提供する。
//
// MetaWeblogはBlogger 1.0を拡張したAPIで、タイトル・カテゴリ・メディア
// アップロードに対応する。Blogger 1.0にしか存在しない操作
// （listBlogs, fetchUserInfo, removePost）は内部のblogger1バックエンドに
// 委譲する。継承ではなく合成により拡張する。
package metaweblog

import (
	"context"
	"log/slog"
	"sync"

	"github.com/zero804/kblog"
	"github.com/zero804/kblog/blogger1"
	"github.com/zero804/kblog/internal/correlator"
	"github.com/zero804/kblog/xmlrpc"
)

// Caller はXML-RPCトランスポートのインターフェース。
// テスタビリティのためxmlrpc.Clientを抽象化する。
type Caller interface {
	Call(ctx context.Context, method string, args []xmlrpc.Value, id uint64, onResult xmlrpc.ResultFunc, onFault xmlrpc.FaultFunc)
}

// Sanitizer は取得した投稿本文のHTMLサニタイズのインターフェース。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// Client はMetaWeblogバックエンド。
// すべての操作は非同期で、結果はEventsのコールバックで通知される。
type Client struct {
	blog      *kblog.Blog
	caller    Caller
	events    *kblog.Events
	logger    *slog.Logger
	sanitizer Sanitizer
	blogger   *blogger1.Client

	mu         sync.Mutex
	calls      *correlator.Table[*kblog.Post]
	mediaCalls *correlator.Table[*kblog.Media]
}

// Option はClientの生成オプション。
type Option func(*Client)

// WithLogger はロガーを設定する。未指定の場合はslog.Default()を使用する。
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithSanitizer は取得した投稿本文に適用するサニタイザーを設定する。
// 未指定の場合は本文を加工しない。
func WithSanitizer(s Sanitizer) Option {
	return func(c *Client) { c.sanitizer = s }
}

// New は新しいMetaWeblogバックエンドを生成する。
func New(blog *kblog.Blog, caller Caller, events *kblog.Events, opts ...Option) *Client {
	c := &Client{
		blog:       blog,
		caller:     caller,
		events:     events,
		calls:      correlator.New[*kblog.Post](1),
		mediaCalls: correlator.New[*kblog.Media](1),
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
	c.blogger = blogger1.New(blog, caller, c.events, blogger1.WithLogger(c.logger))
	return c
}

// InterfaceName はバックエンドの名前を返す。
func (c *Client) InterfaceName() string { return "MetaWeblog" }

// defaultArgs はプロトコル既定の引数並び（id, username, password）を組み立てる。
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

// FetchUserInfo はblogger1バックエンドに委譲する。
func (c *Client) FetchUserInfo(ctx context.Context) { c.blogger.FetchUserInfo(ctx) }

// ListBlogs はblogger1バックエンドに委譲する。
func (c *Client) ListBlogs(ctx context.Context) { c.blogger.ListBlogs(ctx) }

// RemovePost はblogger1バックエンドに委譲する。
// MetaWeblogは投稿削除のメソッドを定義していない。
func (c *Client) RemovePost(ctx context.Context, post *kblog.Post) { c.blogger.RemovePost(ctx, post) }

// ListCategories はブログのカテゴリ一覧を取得する。
// 完了時にListedCategoriesイベントが発火する。
// 仕様準拠のサーバーはマップのマップを返すが、WordPressなど一部の
// サーバーは構造体のリストを返すため、両方の形状を受理する。
func (c *Client) ListCategories(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger.Debug("カテゴリ一覧を取得します")
	c.caller.Call(ctx, "metaWeblog.getCategories", c.defaultArgs(c.blog.BlogID), 0,
		c.onListedCategories, c.onPlainFault)
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
	c.caller.Call(ctx, "metaWeblog.getRecentPosts", args, uint64(number),
		c.onListedRecentPosts, c.onPlainFault)
}

// FetchPost はPostIDが設定された投稿をサーバーから取得する。
func (c *Client) FetchPost(ctx context.Context, post *kblog.Post) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if post == nil {
		c.emitError(kblog.Other, "投稿がnilです。", nil)
		return
	}
	token := c.calls.Issue(post)
	c.logger.Debug("投稿を取得します", slog.String("post_id", post.PostID))
	c.caller.Call(ctx, "metaWeblog.getPost", c.defaultArgs(post.PostID), token,
		c.onFetchedPost, c.onPostFault)
}

// CreatePost は新規投稿をサーバーに作成する。
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
		payloadFromPost(post, true),
		xmlrpc.Bool(!post.IsPrivate),
	)
	c.caller.Call(ctx, "metaWeblog.newPost", args, token,
		c.onCreatedPost, c.onPostFault)
}

// ModifyPost はサーバー上の投稿を更新する。
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
		payloadFromPost(post, false),
		xmlrpc.Bool(!post.IsPrivate),
	)
	c.caller.Call(ctx, "metaWeblog.editPost", args, token,
		c.onModifiedPost, c.onPostFault)
}

// CreateMedia はメディアをサーバーにアップロードする。
// 完了時にURLが採番され、CreatedMediaイベントが発火する。
func (c *Client) CreateMedia(ctx context.Context, media *kblog.Media) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if media == nil {
		c.emitError(kblog.Other, "メディアがnilです。", nil)
		return
	}
	token := c.mediaCalls.Issue(media)
	c.logger.Debug("メディアを作成します", slog.String("name", media.Name))
	payload := xmlrpc.Struct(map[string]xmlrpc.Value{
		"name": xmlrpc.String(media.Name),
		"type": xmlrpc.String(media.Mimetype),
		"bits": xmlrpc.Base64(media.Data),
	})
	args := append(c.defaultArgs(c.blog.BlogID), payload)
	c.caller.Call(ctx, "metaWeblog.newMediaObject", args, token,
		c.onCreatedMedia, c.onMediaFault)
}

// --- コールバック ---

func (c *Client) onListedCategories(result []xmlrpc.Value, _ uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(result) == 0 {
		c.emitError(kblog.ParsingError, "サーバーのレスポンスからカテゴリ一覧を読み取れませんでした。", nil)
		return
	}
	categories, ok := categoriesFromValue(result[0])
	if !ok {
		c.emitError(kblog.ParsingError, "サーバーのレスポンスからカテゴリ一覧を読み取れませんでした。", nil)
		return
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
	c.sanitizePost(post)
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

func (c *Client) onCreatedMedia(result []xmlrpc.Value, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	media, ok := c.mediaCalls.Take(id)
	if !ok {
		c.logger.Warn("未知の相関トークンの結果を破棄します", slog.Uint64("token", id))
		return
	}
	if len(result) == 0 || result[0].Kind() != xmlrpc.KindStruct {
		media.SetError("結果を読み取れませんでした。マップではありません。")
		c.emitError(kblog.ParsingError, media.Error, nil)
		return
	}
	url := result[0].FieldText("url")
	if url == "" {
		// urlフィールドの欠落を黙って放置せず、パースエラーとして報告する
		media.SetError("サーバーのレスポンスにメディアのurlがありません。")
		c.emitError(kblog.ParsingError, media.Error, nil)
		return
	}
	media.URL = url
	media.Status = kblog.MediaCreated
	c.logger.Debug("メディアを作成しました", slog.String("url", url))
	if c.events.CreatedMedia != nil {
		c.events.CreatedMedia(media)
	}
}

// onPostFault は相関表に登録済みの投稿操作のフォルトを処理する。
func (c *Client) onPostFault(code int, message string, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kind := xmlrpc.KindForCode(code)
	post, ok := c.calls.Take(id)
	if !ok {
		c.emitError(kind, message, nil)
		return
	}
	post.SetError(message)
	c.emitError(kind, message, post)
}

// onMediaFault はメディア操作のフォルトを処理する。
func (c *Client) onMediaFault(code int, message string, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kind := xmlrpc.KindForCode(code)
	media, ok := c.mediaCalls.Take(id)
	if ok {
		media.SetError(message)
	}
	c.emitError(kind, message, nil)
}

// onPlainFault はペンディングオブジェクトを持たない操作のフォルトを処理する。
func (c *Client) onPlainFault(code int, message string, _ uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitError(xmlrpc.KindForCode(code), message, nil)
}

// sanitizePost はサニタイザーが設定されている場合に本文を加工する。
func (c *Client) sanitizePost(post *kblog.Post) {
	if c.sanitizer == nil {
		return
	}
	post.Content = c.sanitizer.Sanitize(post.Content)
}

// PendingCalls は現在ペンディング中の呼び出し数を返す。
func (c *Client) PendingCalls() int { return c.calls.Len() + c.mediaCalls.Len() }

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
