// Package kblog はブログ公開プロトコルのクライアントライブラリのドメインモデルを定義する。
//
// Blogger 1.0 / MetaWeblog / MovableType（XML-RPC系）と GData / LiveJournal
// （Atom・チャレンジ認証系）の各バックエンドに対して、投稿・コメント・メディアの
// 作成・取得・更新・削除を統一的なインターフェースで提供する。
// 各バックエンドの実装はサブパッケージ（blogger1, metaweblog, movabletype,
// gdata, livejournal）にあり、本パッケージは共有されるレコード型と
// イベント通知・エラー分類のみを持つ。
package kblog

import (
	"fmt"
	"time"
)

// Blog はブログサーバーへの接続設定を表す。
// 各バックエンドからは読み取り専用として扱われる。
type Blog struct {
	ServerURL  string // XML-RPCゲートウェイまたはAtomフィードのベースURL
	BlogID     string // サーバー上のブログID
	Username   string
	Password   string
	TimeZone   *time.Location // サーバーのタイムゾーン。nilの場合はUTC
	AppName    string         // User-Agentに使用するアプリケーション名
	AppVersion string         // User-Agentに使用するアプリケーションバージョン
}

// Location はサーバーのタイムゾーンを返す。未設定の場合はUTCを返す。
func (b *Blog) Location() *time.Location {
	if b.TimeZone == nil {
		return time.UTC
	}
	return b.TimeZone
}

// UserAgent はリクエストに使用するUser-Agent文字列を返す。
func (b *Blog) UserAgent() string {
	if b.AppName == "" {
		return "kblog/1.0"
	}
	if b.AppVersion == "" {
		return b.AppName
	}
	return fmt.Sprintf("%s/%s", b.AppName, b.AppVersion)
}

// UserInfo はブログサーバー上のユーザー情報を表す。
type UserInfo struct {
	Nickname  string
	UserID    string
	Email     string
	FirstName string
	LastName  string
	URL       string
}

// BlogInfo は認証情報で利用可能なブログの一覧要素を表す。
type BlogInfo struct {
	ID   string
	Name string
	URL  string
}

// Category はブログのカテゴリを表す。
// Nameのみ必須で、他のフィールドはサーバーが返さない場合は空文字列となる。
type Category struct {
	Name        string
	Description string
	HTMLURL     string
	RSSURL      string
	CategoryID  string // MovableTypeのmt.getCategoryListのみが返す
}

// TrackBackPing は投稿に対するトラックバックピングを表す。
type TrackBackPing struct {
	Title string
	URL   string
	IP    string
}
