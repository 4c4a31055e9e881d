package security

import (
	"strings"
	"testing"
)

func TestSanitizeKeepsAllowedTags(t *testing.T) {
	s := NewSanitizer()
	input := `<p><strong>太字</strong>と<em>強調</em></p><pre><code>x := 1</code></pre>`
	got := s.Sanitize(input)
	if got != input {
		t.Errorf("Sanitize() = %q, want %q", got, input)
	}
}

func TestSanitizeStripsScript(t *testing.T) {
	s := NewSanitizer()
	got := s.Sanitize(`<p>散歩</p><script>alert(1)</script>`)
	if got != "<p>散歩</p>" {
		t.Errorf("Sanitize() = %q, want %q", got, "<p>散歩</p>")
	}
}

func TestSanitizeStripsEventHandlers(t *testing.T) {
	s := NewSanitizer()
	got := s.Sanitize(`<p onclick="alert(1)">散歩</p>`)
	if got != "<p>散歩</p>" {
		t.Errorf("Sanitize() = %q, want %q", got, "<p>散歩</p>")
	}
}

func TestSanitizeSecuresLinks(t *testing.T) {
	s := NewSanitizer()
	got := s.Sanitize(`<a href="https://blog.example.com/entry/1">記事</a>`)
	if !strings.Contains(got, `href="https://blog.example.com/entry/1"`) {
		t.Errorf("hrefが保持されていません: %q", got)
	}
	if !strings.Contains(got, `target="_blank"`) {
		t.Errorf("target属性が付与されていません: %q", got)
	}
	if !strings.Contains(got, "noreferrer") {
		t.Errorf("rel属性が付与されていません: %q", got)
	}
}

func TestSanitizeDropsInsecureImage(t *testing.T) {
	s := NewSanitizer()
	got := s.Sanitize(`<p>写真</p><img src="http://blog.example.com/a.png">`)
	if strings.Contains(got, "img") {
		t.Errorf("httpスキームの画像が残っています: %q", got)
	}
}

func TestSanitizeKeepsSecureImage(t *testing.T) {
	s := NewSanitizer()
	got := s.Sanitize(`<img src="https://blog.example.com/a.png" alt="写真">`)
	if !strings.Contains(got, `src="https://blog.example.com/a.png"`) {
		t.Errorf("httpsスキームの画像が除去されています: %q", got)
	}
}

func TestSanitizeEmptyInput(t *testing.T) {
	s := NewSanitizer()
	if got := s.Sanitize(""); got != "" {
		t.Errorf("Sanitize(\"\") = %q, want \"\"", got)
	}
}
