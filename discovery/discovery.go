// Package discovery はブログのXML-RPCエンドポイントの自動検出を提供する。
//
// RSD（Really Simple Discovery）に基づく。ブログのHTMLのheadタグから
// rel="EditURI"リンクを検出し、リンク先のRSDドキュメントを解析して
// 対応APIとエンドポイントの一覧を得る。バックエンドの操作と異なり、
// 検出は同期APIである。
package discovery

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/zero804/kblog/internal/security"
)

// API はRSDドキュメントに列挙された1つのAPIを表す。
type API struct {
	Name      string
	Preferred bool
	APILink   string
	BlogID    string
}

// Endpoint は検出されたブログのエンドポイント情報を表す。
type Endpoint struct {
	EngineName  string
	EngineLink  string
	HomePageURL string
	APIs        []API
}

// PreferredAPI はpreferredと宣言されたAPIを返す。
// なければ先頭のAPIを返す。1つもなければfalseを返す。
func (e *Endpoint) PreferredAPI() (API, bool) {
	for _, api := range e.APIs {
		if api.Preferred {
			return api, true
		}
	}
	if len(e.APIs) > 0 {
		return e.APIs[0], true
	}
	return API{}, false
}

// Discoverer はRSDベースのエンドポイント検出を行う。
type Discoverer struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
}

// Option はDiscovererの生成オプション。
type Option func(*Discoverer)

// WithHTTPClient はHTTPクライアントを差し替える。
// 未指定の場合はSSRF対策済みクライアントを使用する。
func WithHTTPClient(client *http.Client) Option {
	return func(d *Discoverer) { d.client = client }
}

// WithUserAgent はUser-Agentヘッダーを設定する。
func WithUserAgent(ua string) Option {
	return func(d *Discoverer) { d.userAgent = ua }
}

// New はDiscovererの新しいインスタンスを生成する。
func New(opts ...Option) *Discoverer {
	d := &Discoverer{
		maxBodySize: 10 << 20,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.client == nil {
		d.client = security.NewSafeClient(30 * time.Second)
	}
	return d
}

// Discover はブログのページURLからRSDドキュメントをたどり、
// エンドポイント情報を返す。
func (d *Discoverer) Discover(ctx context.Context, pageURL string) (*Endpoint, error) {
	if err := security.ValidateURL(pageURL); err != nil {
		return nil, fmt.Errorf("URL検証に失敗: %w", err)
	}
	body, err := d.get(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("ページの取得に失敗: %w", err)
	}
	rsdURL := findEditURI(body, pageURL)
	if rsdURL == "" {
		return nil, fmt.Errorf("rel=\"EditURI\"リンクが見つかりませんでした")
	}
	if err := security.ValidateURL(rsdURL); err != nil {
		return nil, fmt.Errorf("RSDのURL検証に失敗: %w", err)
	}
	rsdBody, err := d.get(ctx, rsdURL)
	if err != nil {
		return nil, fmt.Errorf("RSDドキュメントの取得に失敗: %w", err)
	}
	endpoint, err := parseRSD(rsdBody)
	if err != nil {
		return nil, fmt.Errorf("RSDドキュメントの解析に失敗: %w", err)
	}
	return endpoint, nil
}

func (d *Discoverer) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストに失敗: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("想定外のステータスコード: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスの読み取りに失敗: %w", err)
	}
	return body, nil
}

// findEditURI はHTMLのheadタグからrel="EditURI"リンクのhrefを探す。
// 相対URLはbaseURLを基準に絶対URLに解決される。
func findEditURI(htmlBody []byte, baseURL string) string {
	baseU, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}

	tokenizer := html.NewTokenizer(bytes.NewReader(htmlBody))
	inHead := false
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := tokenizer.TagName()
			tag := string(name)
			if tag == "head" {
				inHead = true
				continue
			}
			if tag == "body" {
				// headを抜けた。これ以上は探さない
				return ""
			}
			if !inHead || tag != "link" || !hasAttr {
				continue
			}
			var rel, href string
			for {
				key, val, more := tokenizer.TagAttr()
				switch string(key) {
				case "rel":
					rel = string(val)
				case "href":
					href = string(val)
				}
				if !more {
					break
				}
			}
			if !strings.EqualFold(rel, "EditURI") || href == "" {
				continue
			}
			ref, err := url.Parse(href)
			if err != nil {
				continue
			}
			return baseU.ResolveReference(ref).String()
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if string(name) == "head" {
				return ""
			}
		}
	}
}

// rsdDoc はRSDドキュメントのXML表現。
type rsdDoc struct {
	XMLName xml.Name `xml:"rsd"`
	Service struct {
		EngineName  string `xml:"engineName"`
		EngineLink  string `xml:"engineLink"`
		HomePageURL string `xml:"homePageLink"`
		APIs        []struct {
			Name      string `xml:"name,attr"`
			Preferred string `xml:"preferred,attr"`
			APILink   string `xml:"apiLink,attr"`
			BlogID    string `xml:"blogID,attr"`
		} `xml:"apis>api"`
	} `xml:"service"`
}

// parseRSD はRSDドキュメントを解析する。
func parseRSD(body []byte) (*Endpoint, error) {
	var doc rsdDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	endpoint := &Endpoint{
		EngineName:  doc.Service.EngineName,
		EngineLink:  doc.Service.EngineLink,
		HomePageURL: doc.Service.HomePageURL,
	}
	for _, api := range doc.Service.APIs {
		endpoint.APIs = append(endpoint.APIs, API{
			Name:      api.Name,
			Preferred: strings.EqualFold(api.Preferred, "true"),
			APILink:   api.APILink,
			BlogID:    api.BlogID,
		})
	}
	return endpoint, nil
}
