package security

import (
	"testing"
	"time"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"正常なHTTPS", "https://blog.example.com/xmlrpc.php", false},
		{"正常なHTTP", "http://blog.example.com/", false},
		{"グローバルIPリテラル", "http://93.184.216.34/xmlrpc.php", false},
		{"空文字列", "", true},
		{"ftpスキーム", "ftp://blog.example.com/", true},
		{"fileスキーム", "file:///etc/passwd", true},
		{"ホストなし", "http://", true},
		{"ループバック", "http://127.0.0.1/xmlrpc.php", true},
		{"ループバック範囲内", "http://127.1.2.3/", true},
		{"プライベート10系", "http://10.0.0.5/", true},
		{"プライベート172系", "http://172.16.0.1/", true},
		{"プライベート192系", "http://192.168.1.1/", true},
		{"リンクローカル", "http://169.254.169.254/latest/meta-data/", true},
		{"IPv6ループバック", "http://[::1]/", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestNewSafeClient(t *testing.T) {
	client := NewSafeClient(10 * time.Second)
	if client == nil {
		t.Fatal("NewSafeClient() がnilを返しました")
	}
	if client.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want %v", client.Timeout, 10*time.Second)
	}
}
