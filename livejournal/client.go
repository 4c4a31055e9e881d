// Package livejournal はLiveJournal API（XML-RPC）のバックエンドを提供する。
//
// LiveJournalは認証にチャレンジ・レスポンス方式を使う。認証が必要な操作は
// 2段階のchoreographyで行われる。まずLJ.XMLRPC.getchallengeで使い捨ての
// チャレンジ文字列を取得し、パスワードのMD5とチャレンジを連結した値の
// MD5を応答として本来の呼び出しに添付する。パスワードそのものは送信しない。
package livejournal

import (
	"context"
	"log/slog"
	"sync"

	"github.com/zero804/kblog"
	"github.com/zero804/kblog/internal/correlator"
	"github.com/zero804/kblog/xmlrpc"
)

// Caller はXML-RPCトランスポートのインターフェース。
type Caller interface {
	Call(ctx context.Context, method string, args []xmlrpc.Value, id uint64, onResult xmlrpc.ResultFunc, onFault xmlrpc.FaultFunc)
}

// opKind はチャレンジ取得後に発行する本来の操作の種別。
type opKind int

const (
	opCreate opKind = iota
	opModify
	opRemove
	opFetch
	opListRecent
	opLogin
)

// pendingOp はチャレンジ取得をまたいで引き継がれる操作の状態。
type pendingOp struct {
	ctx    context.Context
	kind   opKind
	post   *kblog.Post
	number int
}

// Client はLiveJournalバックエンド。
type Client struct {
	blog   *kblog.Blog
	caller Caller
	events *kblog.Events
	logger *slog.Logger

	mu    sync.Mutex
	calls *correlator.Table[*pendingOp]
	moods map[int64]string
}

// Option はClientの生成オプション。
type Option func(*Client)

// WithLogger はロガーを設定する。未指定の場合はslog.Default()を使用する。
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New は新しいLiveJournalバックエンドを生成する。
func New(blog *kblog.Blog, caller Caller, events *kblog.Events, opts ...Option) *Client {
	c := &Client{
		blog:   blog,
		caller: caller,
		events: events,
		calls:  correlator.New[*pendingOp](1),
		moods:  make(map[int64]string),
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
func (c *Client) InterfaceName() string { return "LiveJournal" }

// Moods はLJ.XMLRPC.loginが返したムードの一覧を返す。
// FetchUserInfoの完了前は空である。
func (c *Client) Moods() map[int64]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int64]string, len(c.moods))
	for id, name := range c.moods {
		out[id] = name
	}
	return out
}

// FetchUserInfo はLJ.XMLRPC.loginでユーザー情報とムード一覧を取得する。
func (c *Client) FetchUserInfo(ctx context.Context) {
	c.startOp(ctx, &pendingOp{ctx: ctx, kind: opLogin})
}

// CreatePost は新規投稿をサーバーに作成する。
func (c *Client) CreatePost(ctx context.Context, post *kblog.Post) {
	if !c.requirePost(post) {
		return
	}
	c.startOp(ctx, &pendingOp{ctx: ctx, kind: opCreate, post: post})
}

// ModifyPost はサーバー上の投稿を更新する。
func (c *Client) ModifyPost(ctx context.Context, post *kblog.Post) {
	if !c.requirePost(post) {
		return
	}
	c.startOp(ctx, &pendingOp{ctx: ctx, kind: opModify, post: post})
}

// RemovePost はサーバー上の投稿を削除する。
// LiveJournalに削除メソッドはなく、本文を空にしたediteventで削除する。
func (c *Client) RemovePost(ctx context.Context, post *kblog.Post) {
	if !c.requirePost(post) {
		return
	}
	c.startOp(ctx, &pendingOp{ctx: ctx, kind: opRemove, post: post})
}

// FetchPost はPostIDが設定された投稿をサーバーから取得する。
func (c *Client) FetchPost(ctx context.Context, post *kblog.Post) {
	if !c.requirePost(post) {
		return
	}
	c.startOp(ctx, &pendingOp{ctx: ctx, kind: opFetch, post: post})
}

// ListRecentPosts は最新の投稿をnumber件まで取得する。
// number == 0 はノーオペレーションであり、リモート呼び出しを発行しない。
func (c *Client) ListRecentPosts(ctx context.Context, number int) {
	if number <= 0 {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.events.ListedRecentPosts != nil {
			c.events.ListedRecentPosts(nil)
		}
		return
	}
	c.startOp(ctx, &pendingOp{ctx: ctx, kind: opListRecent, number: number})
}

// ListBlogs はLiveJournalでは未対応。
func (c *Client) ListBlogs(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitError(kblog.NotSupported, "このバックエンドはブログ一覧に対応していません。", nil)
}

// ListCategories はLiveJournalでは未対応。タグはpropsで投稿に付与する。
func (c *Client) ListCategories(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitError(kblog.NotSupported, "このバックエンドはカテゴリ一覧に対応していません。", nil)
}

// CreateMedia はLiveJournalでは未対応。
func (c *Client) CreateMedia(_ context.Context, media *kblog.Media) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if media != nil {
		media.SetError("このバックエンドはメディア作成に対応していません。")
	}
	c.emitError(kblog.NotSupported, "このバックエンドはメディア作成に対応していません。", nil)
}

// --- choreography ---

// startOp はチャレンジ取得の1段目を発行する。
func (c *Client) startOp(ctx context.Context, op *pendingOp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	token := c.calls.Issue(op)
	c.logger.Debug("チャレンジを取得します", slog.Uint64("token", token))
	c.caller.Call(ctx, "LJ.XMLRPC.getchallenge", nil, token, c.onChallenge, c.onOpFault)
}

// onChallenge はチャレンジ取得の完了を処理し、本来の操作を発行する。
func (c *Client) onChallenge(result []xmlrpc.Value, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	op, ok := c.calls.Take(id)
	if !ok {
		c.logger.Warn("未知の相関トークンの結果を破棄します", slog.Uint64("token", id))
		return
	}
	if len(result) == 0 {
		c.failOp(op, kblog.ParsingError, "チャレンジを読み取れませんでした。")
		return
	}
	challenge := result[0].FieldText("challenge")
	if challenge == "" {
		c.failOp(op, kblog.ParsingError, "チャレンジを読み取れませんでした。")
		return
	}
	auth := authFields(c.blog.Username, c.blog.Password, challenge)
	method, args := c.buildOpCall(op, auth)
	token := c.calls.Issue(op)
	c.logger.Debug("認証済み呼び出しを発行します",
		slog.String("method", method),
		slog.Uint64("token", token),
	)
	c.caller.Call(op.ctx, method, args, token, c.onOpResult, c.onOpFault)
}

// buildOpCall は操作種別に応じたメソッド名と引数を組み立てる。
// muを保持した状態で呼び出すこと。
func (c *Client) buildOpCall(op *pendingOp, auth map[string]xmlrpc.Value) (string, []xmlrpc.Value) {
	switch op.kind {
	case opCreate:
		return "LJ.XMLRPC.postevent", []xmlrpc.Value{eventArg(op.post, auth, c.blog.Location())}
	case opModify:
		fields := eventFields(op.post, auth, c.blog.Location())
		fields["itemid"] = xmlrpc.String(op.post.PostID)
		return "LJ.XMLRPC.editevent", []xmlrpc.Value{xmlrpc.Struct(fields)}
	case opRemove:
		fields := baseFields(auth)
		fields["itemid"] = xmlrpc.String(op.post.PostID)
		fields["event"] = xmlrpc.String("")
		fields["subject"] = xmlrpc.String("")
		return "LJ.XMLRPC.editevent", []xmlrpc.Value{xmlrpc.Struct(fields)}
	case opFetch:
		fields := baseFields(auth)
		fields["selecttype"] = xmlrpc.String("one")
		fields["itemid"] = xmlrpc.String(op.post.PostID)
		return "LJ.XMLRPC.getevents", []xmlrpc.Value{xmlrpc.Struct(fields)}
	case opListRecent:
		fields := baseFields(auth)
		fields["selecttype"] = xmlrpc.String("lastn")
		fields["howmany"] = xmlrpc.Int(int64(op.number))
		return "LJ.XMLRPC.getevents", []xmlrpc.Value{xmlrpc.Struct(fields)}
	default:
		fields := baseFields(auth)
		fields["getmoods"] = xmlrpc.Int(1)
		fields["clientversion"] = xmlrpc.String(c.blog.UserAgent())
		return "LJ.XMLRPC.login", []xmlrpc.Value{xmlrpc.Struct(fields)}
	}
}

// onOpResult は本来の操作の完了を処理する。
func (c *Client) onOpResult(result []xmlrpc.Value, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	op, ok := c.calls.Take(id)
	if !ok {
		c.logger.Warn("未知の相関トークンの結果を破棄します", slog.Uint64("token", id))
		return
	}
	if len(result) == 0 {
		c.failOp(op, kblog.ParsingError, "サーバーのレスポンスを読み取れませんでした。")
		return
	}
	switch op.kind {
	case opCreate:
		itemID := result[0].FieldIDText("itemid")
		if itemID == "" {
			c.failOp(op, kblog.ParsingError, "投稿IDを読み取れませんでした。")
			return
		}
		op.post.PostID = itemID
		if url := result[0].FieldText("url"); url != "" {
			op.post.Link = url
		}
		op.post.Status = kblog.PostCreated
		if c.events.CreatedPost != nil {
			c.events.CreatedPost(op.post)
		}
	case opModify:
		op.post.Status = kblog.PostModified
		if c.events.ModifiedPost != nil {
			c.events.ModifiedPost(op.post)
		}
	case opRemove:
		op.post.Status = kblog.PostRemoved
		if c.events.RemovedPost != nil {
			c.events.RemovedPost(op.post)
		}
	case opFetch:
		events, ok := eventList(result[0])
		if !ok || len(events) == 0 {
			c.failOp(op, kblog.ParsingError, "投稿を読み取れませんでした。")
			return
		}
		if !readPostFromEvent(op.post, events[0]) {
			c.failOp(op, kblog.ParsingError, "投稿を読み取れませんでした。")
			return
		}
		op.post.Status = kblog.PostFetched
		if c.events.FetchedPost != nil {
			c.events.FetchedPost(op.post)
		}
	case opListRecent:
		events, ok := eventList(result[0])
		if !ok {
			c.failOp(op, kblog.ParsingError, "投稿一覧を読み取れませんでした。")
			return
		}
		posts := make([]kblog.Post, 0, len(events))
		for _, e := range events {
			var post kblog.Post
			if !readPostFromEvent(&post, e) {
				continue
			}
			post.Status = kblog.PostFetched
			posts = append(posts, post)
			if len(posts) >= op.number {
				break
			}
		}
		if c.events.ListedRecentPosts != nil {
			c.events.ListedRecentPosts(posts)
		}
	case opLogin:
		info, moods := readLoginResult(result[0])
		c.moods = moods
		if c.events.FetchedUserInfo != nil {
			c.events.FetchedUserInfo(info)
		}
	}
}

// onOpFault はどちらの段の失敗も処理する。choreographyは放棄される。
func (c *Client) onOpFault(code int, message string, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kind := xmlrpc.KindForCode(code)
	op, ok := c.calls.Take(id)
	if !ok {
		c.emitError(kind, message, nil)
		return
	}
	c.failOp(op, kind, message)
}

// failOp は操作をエラー終了させる。muを保持した状態で呼び出すこと。
func (c *Client) failOp(op *pendingOp, kind kblog.ErrorKind, message string) {
	if op.post != nil {
		op.post.SetError(message)
	}
	c.emitError(kind, message, op.post)
}

// requirePost はnil投稿を拒否する。
func (c *Client) requirePost(post *kblog.Post) bool {
	if post != nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitError(kblog.Other, "投稿がnilです。", nil)
	return false
}

// PendingCalls は現在ペンディング中の呼び出し数を返す。
func (c *Client) PendingCalls() int { return c.calls.Len() }

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
