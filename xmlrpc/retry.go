package xmlrpc

import (
	"context"
	"time"
)

// callOutcome はHTTPステータスコードに基づく呼び出し結果の分類。
type callOutcome int

const (
	// outcomeOK は成功（200）。
	outcomeOK callOutcome = iota
	// outcomeStop は再試行しても無駄なステータス（4xxの大半）。
	outcomeStop
	// outcomeRetry は再試行に値するステータス（429/5xx）。
	outcomeRetry
)

const (
	// initialRetryDelay は指数バックオフの初回遅延。
	initialRetryDelay = 500 * time.Millisecond
	// maxRetryDelay は指数バックオフの最大遅延。
	maxRetryDelay = 8 * time.Second
)

// classifyStatus はHTTPステータスコードを呼び出し結果に分類する。
// 認証エラー（401/403）やNot Foundは再試行しない。
func classifyStatus(statusCode int) callOutcome {
	switch {
	case statusCode == 200:
		return outcomeOK
	case statusCode == 429:
		return outcomeRetry
	case statusCode >= 500:
		return outcomeRetry
	default:
		return outcomeStop
	}
}

// retryDelay は再試行回数に基づいて指数バックオフ遅延を計算する。
// 初回500ミリ秒、2倍ずつ増加、最大8秒。
func retryDelay(attempt int) time.Duration {
	delay := initialRetryDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

// sleepContext はコンテキストのキャンセルを尊重して待機する。
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
