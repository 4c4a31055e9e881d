package xmlrpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/zero804/kblog"
	"github.com/zero804/kblog/internal/security"
)

const (
	// defaultTimeout はHTTPリクエストのデフォルトタイムアウト。
	defaultTimeout = 30 * time.Second
	// maxResponseBytes はレスポンスボディの最大読み取りサイズ。
	maxResponseBytes = 10 << 20
)

// ResultFunc は正常レスポンスの通知を受けるコールバック。
// idは呼び出し時に渡した相関トークンがそのまま返される。
type ResultFunc func(result []Value, id uint64)

// FaultFunc はフォルトまたはトランスポート失敗の通知を受けるコールバック。
// codeはXML-RPCフォルトコードまたはHTTPステータスコード。
// トランスポート層の失敗（接続エラーなど）ではcodeは0となる。
type FaultFunc func(code int, message string, id uint64)

// Metrics はクライアントが呼び出し結果を記録するインターフェース。
type Metrics interface {
	RecordCallSuccess(method string)
	RecordCallFailure(method string, reason string)
	RecordCallLatency(d time.Duration)
}

// Client はXML-RPCゲートウェイへの非同期クライアント。
// Callはリクエストの発行後すぐに制御を返し、結果は後からコールバックで
// 届く。コールバックはCallの呼び出しが返った後に別のゴルーチンで
// 実行され、呼び出し中に再入することはない。
type Client struct {
	endpoint    string
	httpClient  *http.Client
	logger      *slog.Logger
	limiter     *rate.Limiter
	metrics     Metrics
	userAgent   string
	maxAttempts int
}

// Option はClientの生成オプション。
type Option func(*Client)

// WithHTTPClient はHTTPクライアントを差し替える。
// 未指定の場合はSSRF防止機能付きのクライアントが使用される。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger はロガーを設定する。未指定の場合はslog.Default()を使用する。
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRateLimiter は外向き呼び出しのレートリミッターを設定する。
// 同一サーバーへの呼び出しすぎを防ぐため、各呼び出しの発行前に
// トークンの取得を待つ。
func WithRateLimiter(limiter *rate.Limiter) Option {
	return func(c *Client) { c.limiter = limiter }
}

// WithMetrics はメトリクスコレクターを設定する。
func WithMetrics(m Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithUserAgent はUser-Agent文字列を設定する。
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithRetry は一時的な失敗（接続エラー、429、5xx）時の最大試行回数を
// 設定する。既定は1（再試行なし）。再試行の間隔は指数バックオフとなる。
func WithRetry(maxAttempts int) Option {
	return func(c *Client) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
	}
}

// NewClient はendpointへのClientを生成する。
// endpointは事前に静的検証され、不正なURLはエラーとなる。
func NewClient(endpoint string, opts ...Option) (*Client, error) {
	if err := security.ValidateURL(endpoint); err != nil {
		return nil, fmt.Errorf("ゲートウェイURLの検証に失敗: %w", err)
	}
	c := &Client{
		endpoint:    endpoint,
		userAgent:   "kblog/1.0",
		maxAttempts: 1,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = security.NewSafeClient(defaultTimeout)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// Call はXML-RPCメソッドを非同期に呼び出す。
// 成功時はonResultが、フォルトまたはトランスポート失敗時はonFaultが、
// それぞれidとともに1回だけ呼び出される。
func (c *Client) Call(ctx context.Context, method string, args []Value, id uint64, onResult ResultFunc, onFault FaultFunc) {
	go c.call(ctx, method, args, id, onResult, onFault)
}

func (c *Client) call(ctx context.Context, method string, args []Value, id uint64, onResult ResultFunc, onFault FaultFunc) {
	start := time.Now()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.fail(method, id, 0, fmt.Sprintf("レート制限の待機に失敗: %s", err.Error()), onFault)
			return
		}
	}

	body, err := EncodeMethodCall(method, args)
	if err != nil {
		c.fail(method, id, 0, fmt.Sprintf("リクエストのエンコードに失敗: %s", err.Error()), onFault)
		return
	}

	raw, status, err := c.roundTrip(ctx, method, body)
	if err != nil {
		c.logger.Error("XML-RPC呼び出しに失敗しました",
			slog.String("method", method),
			slog.String("error", err.Error()),
		)
		c.fail(method, id, 0, err.Error(), onFault)
		return
	}
	if status != http.StatusOK {
		c.logger.Error("XML-RPCゲートウェイがエラーステータスを返しました",
			slog.String("method", method),
			slog.Int("http_status", status),
		)
		c.fail(method, id, status,
			fmt.Sprintf("サーバーがステータス %d を返しました", status), onFault)
		return
	}

	result, fault, err := DecodeResponse(raw)
	if err != nil {
		c.logger.Error("XML-RPCレスポンスのパースに失敗しました",
			slog.String("method", method),
			slog.String("error", err.Error()),
		)
		c.fail(method, id, 0, fmt.Sprintf("レスポンスのパースに失敗: %s", err.Error()), onFault)
		return
	}

	duration := time.Since(start)
	if c.metrics != nil {
		c.metrics.RecordCallLatency(duration)
	}

	if fault != nil {
		c.logger.Warn("XML-RPCフォルトを受信しました",
			slog.String("method", method),
			slog.Int("fault_code", fault.Code),
			slog.String("fault_message", fault.Message),
		)
		if c.metrics != nil {
			c.metrics.RecordCallFailure(method, "fault")
		}
		onFault(fault.Code, fault.Message, id)
		return
	}

	c.logger.Debug("XML-RPC呼び出しが完了しました",
		slog.String("method", method),
		slog.Int("params", len(result)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	if c.metrics != nil {
		c.metrics.RecordCallSuccess(method)
	}
	onResult(result, id)
}

// roundTrip はHTTPリクエストを発行し、一時的な失敗（接続エラー、429、5xx）
// であれば指数バックオフで最大maxAttempts回まで再試行する。
// 再試行しないステータスはボディを読まずにステータスだけを返す。
func (c *Client) roundTrip(ctx context.Context, method string, body []byte) ([]byte, int, error) {
	var lastErr error
	lastStatus := 0
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			c.logger.Warn("XML-RPC呼び出しを再試行します",
				slog.String("method", method),
				slog.Int("attempt", attempt+1),
			)
			if err := sleepContext(ctx, retryDelay(attempt-1)); err != nil {
				return nil, 0, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, 0, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
		}
		req.Header.Set("Content-Type", "text/xml")
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			lastStatus = 0
			continue
		}

		switch classifyStatus(resp.StatusCode) {
		case outcomeOK:
			raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
			resp.Body.Close()
			if err != nil {
				return nil, 0, fmt.Errorf("レスポンスボディの読み取りに失敗: %w", err)
			}
			return raw, resp.StatusCode, nil
		case outcomeRetry:
			resp.Body.Close()
			lastErr = nil
			lastStatus = resp.StatusCode
			continue
		default:
			resp.Body.Close()
			return nil, resp.StatusCode, nil
		}
	}
	if lastErr != nil {
		return nil, 0, lastErr
	}
	return nil, lastStatus, nil
}

// fail はトランスポート層の失敗を記録してコールバックに通知する。
func (c *Client) fail(method string, id uint64, code int, message string, onFault FaultFunc) {
	if c.metrics != nil {
		c.metrics.RecordCallFailure(method, "transport")
	}
	onFault(code, message, id)
}

// KindForCode はフォルトコードまたはHTTPステータスをエラー分類に変換する。
// 401/403は認証エラー、それ以外はトランスポート障害として扱う。
func KindForCode(code int) kblog.ErrorKind {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return kblog.AuthenticationError
	default:
		return kblog.TransportFault
	}
}
