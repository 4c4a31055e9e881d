package discovery

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
)

const testRSD = `<?xml version="1.0" encoding="UTF-8"?>
<rsd version="1.0" xmlns="http://archipelago.phrasewise.com/rsd">
  <service>
    <engineName>WordPress</engineName>
    <engineLink>https://wordpress.org/</engineLink>
    <homePageLink>http://blog.example.com/</homePageLink>
    <apis>
      <api name="Blogger" preferred="false" apiLink="http://blog.example.com/xmlrpc.php" blogID="1"/>
      <api name="MetaWeblog" preferred="false" apiLink="http://blog.example.com/xmlrpc.php" blogID="1"/>
      <api name="MovableType" preferred="true" apiLink="http://blog.example.com/xmlrpc.php" blogID="1"/>
    </apis>
  </service>
</rsd>`

const testPage = `<!DOCTYPE html>
<html>
<head>
  <title>散歩日記</title>
  <link rel="EditURI" type="application/rsd+xml" href="/xmlrpc.php?rsd" />
</head>
<body><p>本文</p></body>
</html>`

// roundTripperFunc はテスト用のインプロセスHTTPトランスポート。
type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func htmlResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// pageServer はパスごとに固定レスポンスを返す。
func pageServer(t *testing.T, pages map[string]string) *http.Client {
	t.Helper()
	rt := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		body, ok := pages[req.URL.RequestURI()]
		if !ok {
			t.Errorf("予期しないリクエスト: %s", req.URL)
			return &http.Response{
				StatusCode: http.StatusNotFound,
				Header:     http.Header{},
				Body:       io.NopCloser(strings.NewReader("")),
			}, nil
		}
		return htmlResponse(body), nil
	})
	return &http.Client{Transport: rt}
}

func TestDiscover(t *testing.T) {
	client := pageServer(t, map[string]string{
		"/":               testPage,
		"/xmlrpc.php?rsd": testRSD,
	})
	d := New(WithHTTPClient(client))

	endpoint, err := d.Discover(context.Background(), "http://blog.example.com/")
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if endpoint.EngineName != "WordPress" {
		t.Errorf("EngineName = %q, want %q", endpoint.EngineName, "WordPress")
	}
	if endpoint.HomePageURL != "http://blog.example.com/" {
		t.Errorf("HomePageURL = %q が期待値と一致しません", endpoint.HomePageURL)
	}
	if len(endpoint.APIs) != 3 {
		t.Fatalf("API数 = %d, want 3", len(endpoint.APIs))
	}

	api, ok := endpoint.PreferredAPI()
	if !ok {
		t.Fatal("PreferredAPI() がAPIを返しませんでした")
	}
	if api.Name != "MovableType" {
		t.Errorf("優先API = %q, want %q", api.Name, "MovableType")
	}
	if api.APILink != "http://blog.example.com/xmlrpc.php" {
		t.Errorf("APILink = %q が期待値と一致しません", api.APILink)
	}
	if api.BlogID != "1" {
		t.Errorf("BlogID = %q, want %q", api.BlogID, "1")
	}
}

func TestDiscoverMissingEditURI(t *testing.T) {
	client := pageServer(t, map[string]string{
		"/": `<html><head><title>日記</title></head><body></body></html>`,
	})
	d := New(WithHTTPClient(client))

	if _, err := d.Discover(context.Background(), "http://blog.example.com/"); err == nil {
		t.Error("EditURIリンクがないページでエラーが返っていません")
	}
}

func TestDiscoverIgnoresLinksInBody(t *testing.T) {
	// body側のlinkは検出対象外
	page := `<html><head><title>日記</title></head>
<body><link rel="EditURI" href="/xmlrpc.php?rsd" /></body></html>`
	client := pageServer(t, map[string]string{"/": page})
	d := New(WithHTTPClient(client))

	if _, err := d.Discover(context.Background(), "http://blog.example.com/"); err == nil {
		t.Error("body内のリンクが検出されてしまいました")
	}
}

func TestDiscoverRejectsInvalidURL(t *testing.T) {
	d := New(WithHTTPClient(&http.Client{}))
	if _, err := d.Discover(context.Background(), "ftp://blog.example.com/"); err == nil {
		t.Error("不正なスキームでエラーが返っていません")
	}
}

func TestFindEditURIResolvesRelative(t *testing.T) {
	page := []byte(`<html><head><link rel="EditURI" href="rsd.xml"></head><body></body></html>`)
	got := findEditURI(page, "http://blog.example.com/diary/")
	want := "http://blog.example.com/diary/rsd.xml"
	if got != want {
		t.Errorf("findEditURI() = %q, want %q", got, want)
	}
}

func TestFindEditURICaseInsensitiveRel(t *testing.T) {
	page := []byte(`<html><head><link rel="edituri" href="/rsd.xml"></head></html>`)
	got := findEditURI(page, "http://blog.example.com/")
	if got != "http://blog.example.com/rsd.xml" {
		t.Errorf("findEditURI() = %q が期待値と一致しません", got)
	}
}

func TestPreferredAPIFallsBackToFirst(t *testing.T) {
	e := &Endpoint{APIs: []API{
		{Name: "Blogger"},
		{Name: "MetaWeblog"},
	}}
	api, ok := e.PreferredAPI()
	if !ok || api.Name != "Blogger" {
		t.Errorf("PreferredAPI() = %q (ok=%v), want %q", api.Name, ok, "Blogger")
	}

	empty := &Endpoint{}
	if _, ok := empty.PreferredAPI(); ok {
		t.Error("API0件でokが返りました")
	}
}
