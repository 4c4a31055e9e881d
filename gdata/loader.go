package gdata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed/atom"

	"github.com/zero804/kblog/internal/security"
)

// Loader はAtomフィードの取得のインターフェース。
// テスタビリティのためFeedLoaderを抽象化する。
type Loader interface {
	Load(ctx context.Context, url string) (*atom.Feed, error)
}

// Metrics はフィード取得の計測のインターフェース。
type Metrics interface {
	RecordLoadSuccess()
	RecordLoadFailure(reason string)
	RecordLoadLatency(duration time.Duration)
}

// FeedLoader はSSRF対策済みHTTPクライアントでAtomフィードを取得し、
// gofeedのatomパーサーでパースする。
type FeedLoader struct {
	client      *http.Client
	parser      *atom.Parser
	metrics     Metrics
	userAgent   string
	maxBodySize int64
}

// LoaderOption はFeedLoaderの生成オプション。
type LoaderOption func(*FeedLoader)

// WithLoaderHTTPClient はHTTPクライアントを差し替える。
// 未指定の場合はSSRF対策済みクライアントを使用する。
func WithLoaderHTTPClient(client *http.Client) LoaderOption {
	return func(l *FeedLoader) { l.client = client }
}

// WithLoaderMetrics はフィード取得の計測を設定する。
func WithLoaderMetrics(m Metrics) LoaderOption {
	return func(l *FeedLoader) { l.metrics = m }
}

// WithLoaderUserAgent はUser-Agentヘッダーを設定する。
func WithLoaderUserAgent(ua string) LoaderOption {
	return func(l *FeedLoader) { l.userAgent = ua }
}

// NewFeedLoader はFeedLoaderの新しいインスタンスを生成する。
func NewFeedLoader(opts ...LoaderOption) *FeedLoader {
	l := &FeedLoader{
		parser:      &atom.Parser{},
		maxBodySize: 10 << 20,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.client == nil {
		l.client = security.NewSafeClient(30 * time.Second)
	}
	return l
}

// Load はurlのAtomフィードを取得してパースする。
func (l *FeedLoader) Load(ctx context.Context, url string) (*atom.Feed, error) {
	start := time.Now()
	feed, err := l.load(ctx, url)
	if l.metrics != nil {
		l.metrics.RecordLoadLatency(time.Since(start))
		if err != nil {
			l.metrics.RecordLoadFailure("load_error")
		} else {
			l.metrics.RecordLoadSuccess()
		}
	}
	return feed, err
}

func (l *FeedLoader) load(ctx context.Context, url string) (*atom.Feed, error) {
	if err := security.ValidateURL(url); err != nil {
		return nil, fmt.Errorf("URL検証に失敗: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	if l.userAgent != "" {
		req.Header.Set("User-Agent", l.userAgent)
	}
	req.Header.Set("Accept", "application/atom+xml, application/xml, text/xml, */*")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストに失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("想定外のステータスコード: %d", resp.StatusCode)
	}

	feed, err := l.parser.Parse(io.LimitReader(resp.Body, l.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("フィードのパースに失敗: %w", err)
	}
	return feed, nil
}
