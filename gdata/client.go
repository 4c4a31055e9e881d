// Package gdata はGData（Atom Publishing）ベースのバックエンドを提供する。
//
// XML-RPC系のバックエンドと異なり、一覧系の操作はRPCではなくAtomフィードの
// 取得で行う。要求件数に満たない場合はrel="next"リンクをたどって追加ページを
// 取得し、サーバーの並び（新しい順）を保ったままマージする。
// 書き込み系の操作は認証トークンを付与したHTTPリクエストで行う。
package gdata

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed/atom"
	"golang.org/x/net/html"

	"github.com/zero804/kblog"
	"github.com/zero804/kblog/internal/security"
)

// Doer はHTTPリクエスト実行のインターフェース。
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Authenticator は書き込み系操作に付与する認証トークンの取得の
// インターフェース。セッション交渉の詳細は扱わない。
type Authenticator interface {
	AuthToken(ctx context.Context) (string, error)
}

// StaticToken は固定の認証トークンを返すAuthenticator。
type StaticToken string

// AuthToken は固定トークンを返す。
func (t StaticToken) AuthToken(_ context.Context) (string, error) {
	if t == "" {
		return "", fmt.Errorf("認証トークンが設定されていません")
	}
	return string(t), nil
}

// Sanitizer は取得した投稿本文のHTMLサニタイズのインターフェース。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// Client はGDataバックエンド。
// すべての操作は非同期で、結果はEventsのコールバックで通知される。
type Client struct {
	blog      *kblog.Blog
	loader    Loader
	doer      Doer
	auth      Authenticator
	events    *kblog.Events
	logger    *slog.Logger
	sanitizer Sanitizer

	mu        sync.Mutex
	profileID string
}

// Option はClientの生成オプション。
type Option func(*Client)

// WithLogger はロガーを設定する。未指定の場合はslog.Default()を使用する。
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithDoer は書き込み系操作のHTTPクライアントを差し替える。
func WithDoer(doer Doer) Option {
	return func(c *Client) { c.doer = doer }
}

// WithAuthenticator は書き込み系操作の認証を設定する。
func WithAuthenticator(auth Authenticator) Option {
	return func(c *Client) { c.auth = auth }
}

// WithSanitizer は取得した投稿本文に適用するサニタイザーを設定する。
func WithSanitizer(s Sanitizer) Option {
	return func(c *Client) { c.sanitizer = s }
}

// New は新しいGDataバックエンドを生成する。
func New(blog *kblog.Blog, loader Loader, events *kblog.Events, opts ...Option) *Client {
	c := &Client{
		blog:   blog,
		loader: loader,
		events: events,
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
	if c.doer == nil {
		c.doer = security.NewSafeClient(30 * time.Second)
	}
	return c
}

// InterfaceName はバックエンドの名前を返す。
func (c *Client) InterfaceName() string { return "Google Blogger Data" }

// --- フィードURLの組み立て ---

func (c *Client) baseURL() string {
	return strings.TrimSuffix(c.blog.ServerURL, "/")
}

func (c *Client) postsFeedURL() string {
	return fmt.Sprintf("%s/feeds/%s/posts/default", c.baseURL(), c.blog.BlogID)
}

func (c *Client) postEntryURL(postID string) string {
	return fmt.Sprintf("%s/feeds/%s/posts/default/%s", c.baseURL(), c.blog.BlogID, postID)
}

func (c *Client) commentsFeedURL(postID string) string {
	return fmt.Sprintf("%s/feeds/%s/%s/comments/default", c.baseURL(), c.blog.BlogID, postID)
}

func (c *Client) allCommentsFeedURL() string {
	return fmt.Sprintf("%s/feeds/%s/comments/default", c.baseURL(), c.blog.BlogID)
}

func (c *Client) commentEntryURL(postID, commentID string) string {
	return fmt.Sprintf("%s/feeds/%s/%s/comments/default/%s",
		c.baseURL(), c.blog.BlogID, postID, commentID)
}

func (c *Client) blogsFeedURL(profileID string) string {
	return fmt.Sprintf("%s/feeds/%s/blogs", c.baseURL(), profileID)
}

// --- 操作 ---

// FetchProfileID はブログのページをスクレイプして著者のプロフィールIDを
// 取得する。他の一部の操作（ListBlogs）の前提となる。
func (c *Client) FetchProfileID(ctx context.Context) {
	go func() {
		c.logger.Debug("プロフィールIDを取得します", slog.String("url", c.blog.ServerURL))
		id, err := c.scrapeProfileID(ctx, c.blog.ServerURL)
		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			c.emitError(kblog.ParsingError, fmt.Sprintf("プロフィールIDを取得できませんでした: %s", err), nil, nil)
			return
		}
		c.profileID = id
		if c.events.FetchedProfileID != nil {
			c.events.FetchedProfileID(id)
		}
	}()
}

// ListBlogs はプロフィールIDに紐づくブログの一覧を取得する。
// FetchProfileIDの完了後に呼び出すこと。
func (c *Client) ListBlogs(ctx context.Context) {
	c.mu.Lock()
	profileID := c.profileID
	c.mu.Unlock()
	if profileID == "" {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.emitError(kblog.Other, "プロフィールIDが未取得です。先にFetchProfileIDを呼び出してください。", nil, nil)
		return
	}
	go func() {
		feed, err := c.loader.Load(ctx, c.blogsFeedURL(profileID))
		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			c.emitError(kblog.TransportFault, fmt.Sprintf("ブログ一覧の取得に失敗しました: %s", err), nil, nil)
			return
		}
		blogs := make([]kblog.BlogInfo, 0, len(feed.Entries))
		for _, e := range feed.Entries {
			blogs = append(blogs, kblog.BlogInfo{
				ID:   idTail(e.ID, "blog-"),
				Name: e.Title,
				URL:  alternateLink(e.Links),
			})
		}
		if c.events.ListedBlogs != nil {
			c.events.ListedBlogs(blogs)
		}
	}()
}

// ListRecentPosts は最新の投稿をnumber件まで取得する。
//
// number == 0 はノーオペレーションであり、フィード取得を発行せずに空の
// 一覧でListedRecentPostsイベントを発火する。1ページで要求件数に満たず、
// フィードがrel="next"リンクを持つ場合は追加ページを取得してマージする。
// 並びはサーバーの返す新しい順をページ境界を越えて保持する。
func (c *Client) ListRecentPosts(ctx context.Context, number int) {
	if number <= 0 {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.events.ListedRecentPosts != nil {
			c.events.ListedRecentPosts(nil)
		}
		return
	}
	go func() {
		url := fmt.Sprintf("%s?max-results=%d", c.postsFeedURL(), number)
		posts, err := c.loadPosts(ctx, url, number)
		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			c.emitError(kblog.TransportFault, fmt.Sprintf("投稿一覧の取得に失敗しました: %s", err), nil, nil)
			return
		}
		if c.events.ListedRecentPosts != nil {
			c.events.ListedRecentPosts(posts)
		}
	}()
}

// loadPosts はフィードをページングしながら最大want件の投稿を集める。
func (c *Client) loadPosts(ctx context.Context, url string, want int) ([]kblog.Post, error) {
	var posts []kblog.Post
	for url != "" && len(posts) < want {
		feed, err := c.loader.Load(ctx, url)
		if err != nil {
			return nil, err
		}
		for _, e := range feed.Entries {
			post := c.postFromEntry(e)
			posts = append(posts, post)
			if len(posts) >= want {
				break
			}
		}
		url = nextLink(feed.Links)
	}
	return posts, nil
}

// FetchPost はPostIDが設定された投稿をサーバーから取得する。
func (c *Client) FetchPost(ctx context.Context, post *kblog.Post) {
	if post == nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.emitError(kblog.Other, "投稿がnilです。", nil, nil)
		return
	}
	go func() {
		feed, err := c.loader.Load(ctx, c.postsFeedURL())
		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			post.SetError(fmt.Sprintf("投稿の取得に失敗しました: %s", err))
			c.emitError(kblog.TransportFault, post.Error, post, nil)
			return
		}
		for _, e := range feed.Entries {
			if idTail(e.ID, "post-") != post.PostID {
				continue
			}
			c.applyEntry(post, e)
			if c.events.FetchedPost != nil {
				c.events.FetchedPost(post)
			}
			return
		}
		post.SetError("指定された投稿がフィードに見つかりませんでした。")
		c.emitError(kblog.Other, post.Error, post, nil)
	}()
}

// ListComments は投稿へのコメント一覧を取得する。
func (c *Client) ListComments(ctx context.Context, post *kblog.Post) {
	if post == nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.emitError(kblog.Other, "投稿がnilです。", nil, nil)
		return
	}
	go func() {
		feed, err := c.loader.Load(ctx, c.commentsFeedURL(post.PostID))
		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			c.emitError(kblog.TransportFault, fmt.Sprintf("コメント一覧の取得に失敗しました: %s", err), post, nil)
			return
		}
		comments := commentsFromFeed(feed)
		if c.events.ListedComments != nil {
			c.events.ListedComments(post, comments)
		}
	}()
}

// ListAllComments はブログ全体のコメント一覧を取得する。
func (c *Client) ListAllComments(ctx context.Context) {
	go func() {
		feed, err := c.loader.Load(ctx, c.allCommentsFeedURL())
		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			c.emitError(kblog.TransportFault, fmt.Sprintf("コメント一覧の取得に失敗しました: %s", err), nil, nil)
			return
		}
		comments := commentsFromFeed(feed)
		if c.events.ListedAllComments != nil {
			c.events.ListedAllComments(comments)
		}
	}()
}

// CreatePost は新規投稿をサーバーに作成する。
func (c *Client) CreatePost(ctx context.Context, post *kblog.Post) {
	if post == nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.emitError(kblog.Other, "投稿がnilです。", nil, nil)
		return
	}
	go func() {
		entryID, err := c.send(ctx, http.MethodPost, c.postsFeedURL(), entryXML(post))
		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			post.SetError(err.Error())
			c.emitError(kindForHTTPError(err), post.Error, post, nil)
			return
		}
		if id := idTail(entryID, "post-"); id != "" {
			post.PostID = id
		}
		post.Status = kblog.PostCreated
		if c.events.CreatedPost != nil {
			c.events.CreatedPost(post)
		}
	}()
}

// ModifyPost はサーバー上の投稿を更新する。
func (c *Client) ModifyPost(ctx context.Context, post *kblog.Post) {
	if post == nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.emitError(kblog.Other, "投稿がnilです。", nil, nil)
		return
	}
	go func() {
		_, err := c.send(ctx, http.MethodPut, c.postEntryURL(post.PostID), entryXML(post))
		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			post.SetError(err.Error())
			c.emitError(kindForHTTPError(err), post.Error, post, nil)
			return
		}
		post.Status = kblog.PostModified
		if c.events.ModifiedPost != nil {
			c.events.ModifiedPost(post)
		}
	}()
}

// RemovePost はサーバー上の投稿を削除する。
func (c *Client) RemovePost(ctx context.Context, post *kblog.Post) {
	if post == nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.emitError(kblog.Other, "投稿がnilです。", nil, nil)
		return
	}
	go func() {
		_, err := c.send(ctx, http.MethodDelete, c.postEntryURL(post.PostID), nil)
		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			post.SetError(err.Error())
			c.emitError(kindForHTTPError(err), post.Error, post, nil)
			return
		}
		post.Status = kblog.PostRemoved
		if c.events.RemovedPost != nil {
			c.events.RemovedPost(post)
		}
	}()
}

// CreateComment は投稿へのコメントを作成する。
func (c *Client) CreateComment(ctx context.Context, post *kblog.Post, comment *kblog.Comment) {
	if post == nil || comment == nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.emitError(kblog.Other, "投稿またはコメントがnilです。", post, comment)
		return
	}
	go func() {
		entryID, err := c.send(ctx, http.MethodPost, c.commentsFeedURL(post.PostID), commentXML(comment))
		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			comment.SetError(err.Error())
			c.emitError(kindForHTTPError(err), comment.Error, post, comment)
			return
		}
		if id := idTail(entryID, "comment-"); id != "" {
			comment.CommentID = id
		}
		comment.Status = kblog.CommentCreated
		if c.events.CreatedComment != nil {
			c.events.CreatedComment(post, comment)
		}
	}()
}

// RemoveComment は投稿のコメントを削除する。
func (c *Client) RemoveComment(ctx context.Context, post *kblog.Post, comment *kblog.Comment) {
	if post == nil || comment == nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.emitError(kblog.Other, "投稿またはコメントがnilです。", post, comment)
		return
	}
	go func() {
		_, err := c.send(ctx, http.MethodDelete,
			c.commentEntryURL(post.PostID, comment.CommentID), nil)
		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			comment.SetError(err.Error())
			c.emitError(kindForHTTPError(err), comment.Error, post, comment)
			return
		}
		comment.Status = kblog.CommentRemoved
		if c.events.RemovedComment != nil {
			c.events.RemovedComment(post, comment)
		}
	}()
}

// FetchUserInfo はGDataでは未対応。代わりにFetchProfileIDを使用する。
func (c *Client) FetchUserInfo(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitError(kblog.NotSupported, "このバックエンドはユーザー情報の取得に対応していません。FetchProfileIDを使用してください。", nil, nil)
}

// ListCategories はGDataでは未対応。NotSupportedのエラーイベントを発火する。
func (c *Client) ListCategories(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitError(kblog.NotSupported, "このバックエンドはカテゴリ一覧に対応していません。", nil, nil)
}

// CreateMedia はGDataでは未対応。NotSupportedのエラーイベントを発火する。
func (c *Client) CreateMedia(_ context.Context, media *kblog.Media) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if media != nil {
		media.SetError("このバックエンドはメディア作成に対応していません。")
	}
	c.emitError(kblog.NotSupported, "このバックエンドはメディア作成に対応していません。", nil, nil)
}

// --- 内部処理 ---

// send は認証ヘッダー付きのHTTPリクエストを発行し、レスポンスの
// Atomエントリのid（存在する場合）を返す。
func (c *Client) send(ctx context.Context, method, url string, body []byte) (string, error) {
	if c.auth == nil {
		return "", fmt.Errorf("認証が設定されていません")
	}
	token, err := c.auth.AuthToken(ctx)
	if err != nil {
		return "", fmt.Errorf("認証トークンの取得に失敗: %w", err)
	}
	if err := security.ValidateURL(url); err != nil {
		return "", fmt.Errorf("URL検証に失敗: %w", err)
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return "", fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("Authorization", "GoogleLogin auth="+token)
	req.Header.Set("User-Agent", c.blog.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/atom+xml; charset=utf-8")
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストに失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &httpError{status: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("レスポンスの読み取りに失敗: %w", err)
	}
	var entry struct {
		ID string `xml:"id"`
	}
	// 削除などボディのないレスポンスではidは空のまま
	_ = xml.Unmarshal(data, &entry)
	return entry.ID, nil
}

// scrapeProfileID はブログのHTMLから著者プロフィールへのリンクを探し、
// 末尾のID部分を返す。
func (c *Client) scrapeProfileID(ctx context.Context, pageURL string) (string, error) {
	if err := security.ValidateURL(pageURL); err != nil {
		return "", fmt.Errorf("URL検証に失敗: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", c.blog.UserAgent())
	resp, err := c.doer.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストに失敗: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("想定外のステータスコード: %d", resp.StatusCode)
	}

	tokenizer := html.NewTokenizer(io.LimitReader(resp.Body, 10<<20))
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		name, hasAttr := tokenizer.TagName()
		if string(name) != "a" || !hasAttr {
			continue
		}
		for {
			key, val, more := tokenizer.TagAttr()
			if string(key) == "href" {
				if id := profileIDFromHref(string(val)); id != "" {
					return id, nil
				}
			}
			if !more {
				break
			}
		}
	}
	return "", fmt.Errorf("プロフィールへのリンクが見つかりませんでした")
}

func (c *Client) postFromEntry(e *atom.Entry) kblog.Post {
	var post kblog.Post
	c.applyEntry(&post, e)
	return post
}

// applyEntry はエントリを既存のレコードに反映し、本文をサニタイズする。
// レコードのうちフィードが運ばないフィールドは破壊しない。
func (c *Client) applyEntry(post *kblog.Post, e *atom.Entry) {
	applyEntry(post, e)
	if c.sanitizer != nil {
		post.Content = c.sanitizer.Sanitize(post.Content)
	}
	post.Status = kblog.PostFetched
}

// httpError はHTTPステータスに基づく失敗。
type httpError struct {
	status int
}

func (e *httpError) Error() string {
	return fmt.Sprintf("想定外のステータスコード: %d", e.status)
}

// kindForHTTPError はHTTPエラーをエラー種別に分類する。
func kindForHTTPError(err error) kblog.ErrorKind {
	if he, ok := err.(*httpError); ok {
		if he.status == http.StatusUnauthorized || he.status == http.StatusForbidden {
			return kblog.AuthenticationError
		}
	}
	return kblog.TransportFault
}

// emitError はエラーイベントを発火する。muを保持した状態で呼び出すこと。
func (c *Client) emitError(kind kblog.ErrorKind, message string, post *kblog.Post, comment *kblog.Comment) {
	c.logger.Error("操作が失敗しました",
		slog.String("kind", kind.String()),
		slog.String("message", message),
	)
	if c.events.Error != nil {
		c.events.Error(kind, message, post, comment)
	}
}
