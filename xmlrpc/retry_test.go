package xmlrpc

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   callOutcome
	}{
		{http.StatusOK, outcomeOK},
		{http.StatusTooManyRequests, outcomeRetry},
		{http.StatusInternalServerError, outcomeRetry},
		{http.StatusBadGateway, outcomeRetry},
		{http.StatusServiceUnavailable, outcomeRetry},
		{http.StatusNotFound, outcomeStop},
		{http.StatusUnauthorized, outcomeStop},
		{http.StatusForbidden, outcomeStop},
		{http.StatusMovedPermanently, outcomeStop},
	}
	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.want {
			t.Errorf("classifyStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 500 * time.Millisecond},
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		// 上限で頭打ちになる
		{10, 8 * time.Second},
	}
	for _, tt := range tests {
		if got := retryDelay(tt.attempt); got != tt.want {
			t.Errorf("retryDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestSleepContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Minute); err == nil {
		t.Error("キャンセル済みコンテキストでエラーが返っていません")
	}
}
