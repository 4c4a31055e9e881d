package xmlrpc

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zero804/kblog"
)

const testEndpoint = "http://blog.example.com/xmlrpc.php"

// roundTripperFunc はテスト用のインプロセスHTTPトランスポート。
type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func xmlResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"text/xml"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// fakeServer は受信したリクエストを記録し、用意したレスポンスを順に返す。
type fakeServer struct {
	mu        sync.Mutex
	requests  []string
	responses []*http.Response
}

func (s *fakeServer) roundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, _ := io.ReadAll(req.Body)
	s.requests = append(s.requests, string(body))
	i := len(s.requests) - 1
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

func (s *fakeServer) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func newTestClient(t *testing.T, rt http.RoundTripper, opts ...Option) *Client {
	t.Helper()
	opts = append(opts,
		WithHTTPClient(&http.Client{Transport: rt}),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	c, err := NewClient(testEndpoint, opts...)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestCallSuccess(t *testing.T) {
	var gotBody string
	var gotContentType string
	rt := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		body, _ := io.ReadAll(req.Body)
		gotBody = string(body)
		gotContentType = req.Header.Get("Content-Type")
		return xmlResponse(http.StatusOK,
			`<methodResponse><params><param><value><string>42</string></value></param></params></methodResponse>`), nil
	})
	c := newTestClient(t, rt)

	done := make(chan struct{})
	var gotResult []Value
	var gotID uint64
	c.Call(context.Background(), "blogger.getPost", []Value{String("42")}, 7,
		func(result []Value, id uint64) {
			gotResult = result
			gotID = id
			close(done)
		},
		func(code int, message string, id uint64) {
			t.Errorf("予期しないフォルト: code=%d message=%q", code, message)
			close(done)
		},
	)
	waitDone(t, done)

	if !strings.Contains(gotBody, "<methodName>blogger.getPost</methodName>") {
		t.Error("リクエストボディにmethodNameが含まれていません")
	}
	if gotContentType != "text/xml" {
		t.Errorf("Content-Type = %q, want %q", gotContentType, "text/xml")
	}
	if gotID != 7 {
		t.Errorf("id = %d, want 7", gotID)
	}
	if len(gotResult) != 1 {
		t.Fatalf("パラメータ数 = %d, want 1", len(gotResult))
	}
	if s, _ := gotResult[0].AsString(); s != "42" {
		t.Errorf("結果 = %q, want %q", s, "42")
	}
}

func TestCallFaultPassthrough(t *testing.T) {
	rt := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return xmlResponse(http.StatusOK,
			`<methodResponse><fault><value><struct>`+
				`<member><name>faultCode</name><value><int>403</int></value></member>`+
				`<member><name>faultString</name><value><string>拒否されました</string></value></member>`+
				`</struct></value></fault></methodResponse>`), nil
	})
	c := newTestClient(t, rt)

	done := make(chan struct{})
	var gotCode int
	var gotMessage string
	c.Call(context.Background(), "blogger.deletePost", nil, 3,
		func(result []Value, id uint64) {
			t.Error("フォルトレスポンスでonResultが呼ばれました")
			close(done)
		},
		func(code int, message string, id uint64) {
			gotCode = code
			gotMessage = message
			close(done)
		},
	)
	waitDone(t, done)

	if gotCode != 403 {
		t.Errorf("code = %d, want 403", gotCode)
	}
	if gotMessage != "拒否されました" {
		t.Errorf("message = %q が期待値と一致しません", gotMessage)
	}
}

func TestCallHTTPErrorStatus(t *testing.T) {
	rt := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return xmlResponse(http.StatusNotFound, "not found"), nil
	})
	c := newTestClient(t, rt)

	done := make(chan struct{})
	var gotCode int
	c.Call(context.Background(), "blogger.getPost", nil, 1,
		func(result []Value, id uint64) {
			t.Error("エラーステータスでonResultが呼ばれました")
			close(done)
		},
		func(code int, message string, id uint64) {
			gotCode = code
			close(done)
		},
	)
	waitDone(t, done)

	if gotCode != http.StatusNotFound {
		t.Errorf("code = %d, want %d", gotCode, http.StatusNotFound)
	}
}

func TestCallNetworkError(t *testing.T) {
	rt := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return nil, io.ErrUnexpectedEOF
	})
	c := newTestClient(t, rt)

	done := make(chan struct{})
	var gotCode int
	c.Call(context.Background(), "blogger.getPost", nil, 1,
		func(result []Value, id uint64) {
			t.Error("接続エラーでonResultが呼ばれました")
			close(done)
		},
		func(code int, message string, id uint64) {
			gotCode = code
			close(done)
		},
	)
	waitDone(t, done)

	// トランスポート層の失敗はコード0で通知される
	if gotCode != 0 {
		t.Errorf("code = %d, want 0", gotCode)
	}
}

func TestCallRetriesOnServerError(t *testing.T) {
	srv := &fakeServer{
		responses: []*http.Response{
			xmlResponse(http.StatusInternalServerError, "error"),
			xmlResponse(http.StatusOK,
				`<methodResponse><params><param><value><string>42</string></value></param></params></methodResponse>`),
		},
	}
	c := newTestClient(t, roundTripperFunc(srv.roundTrip), WithRetry(3))

	done := make(chan struct{})
	var gotResult []Value
	c.Call(context.Background(), "blogger.getPost", nil, 1,
		func(result []Value, id uint64) {
			gotResult = result
			close(done)
		},
		func(code int, message string, id uint64) {
			t.Errorf("再試行後に成功するはずがフォルト: code=%d message=%q", code, message)
			close(done)
		},
	)
	waitDone(t, done)

	if got := srv.requestCount(); got != 2 {
		t.Errorf("リクエスト数 = %d, want 2", got)
	}
	if len(gotResult) != 1 {
		t.Fatalf("パラメータ数 = %d, want 1", len(gotResult))
	}
}

func TestCallDoesNotRetryClientError(t *testing.T) {
	srv := &fakeServer{
		responses: []*http.Response{
			xmlResponse(http.StatusNotFound, "not found"),
		},
	}
	c := newTestClient(t, roundTripperFunc(srv.roundTrip), WithRetry(3))

	done := make(chan struct{})
	c.Call(context.Background(), "blogger.getPost", nil, 1,
		func(result []Value, id uint64) {
			t.Error("404でonResultが呼ばれました")
			close(done)
		},
		func(code int, message string, id uint64) {
			close(done)
		},
	)
	waitDone(t, done)

	if got := srv.requestCount(); got != 1 {
		t.Errorf("リクエスト数 = %d, want 1", got)
	}
}

func TestNewClientRejectsInvalidEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
	}{
		{"スキーム不正", "ftp://blog.example.com/xmlrpc.php"},
		{"ホストなし", "http://"},
		{"ループバックIP", "http://127.0.0.1/xmlrpc.php"},
		{"プライベートIP", "http://192.168.1.10/xmlrpc.php"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewClient(tt.endpoint); err == nil {
				t.Errorf("NewClient(%q) がエラーを返しませんでした", tt.endpoint)
			}
		})
	}
}

func TestKindForCode(t *testing.T) {
	tests := []struct {
		code int
		want kblog.ErrorKind
	}{
		{http.StatusUnauthorized, kblog.AuthenticationError},
		{http.StatusForbidden, kblog.AuthenticationError},
		{http.StatusInternalServerError, kblog.TransportFault},
		{0, kblog.TransportFault},
	}
	for _, tt := range tests {
		if got := KindForCode(tt.code); got != tt.want {
			t.Errorf("KindForCode(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("コールバックがタイムアウトまでに呼ばれませんでした")
	}
}
