package security

import (
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer はサーバーから取得した投稿・コメントのHTML本文をサニタイズする。
// 取得先のブログサーバーは信頼できるとは限らないため、許可リストベースの
// ポリシーで安全なタグと属性のみを通過させる。
// バックエンドにはオプションとして注入され、未設定の場合は本文を加工しない。
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer は新しいSanitizerを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, a, ul, ol, li, blockquote, pre, code, strong, em, img
//   - script, iframe, style および on*イベント属性は許可リスト外のため除去される
//   - imgのsrc属性はhttpsスキームのみ許可
//   - aタグには target="_blank" と rel="noopener noreferrer" を強制付与
func NewSanitizer() *Sanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src").OnElements("img")
	p.AllowAttrs("alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})

	return &Sanitizer{policy: p}
}

// Sanitize はHTML本文をサニタイズして安全なHTMLを返す。
// 空文字列の入力には空文字列を返し、同一入力に対して常に同一出力を返す。
func (s *Sanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
