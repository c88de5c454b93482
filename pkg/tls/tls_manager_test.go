package tls

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestDisabledByDefault(t *testing.T) {
	config := ConfigFromSettings()
	if config.Enabled {
		t.Fatal("TLS should be disabled by default")
	}
	manager, err := NewManager(config)
	if err != nil {
		t.Fatalf("Failed to create TLS manager: %v", err)
	}
	srv := manager.Server(":8080", http.NotFoundHandler())
	if srv.TLSConfig != nil {
		t.Error("TLS config should be nil when TLS is disabled")
	}
	if manager.HTTPServer(":8443") != nil {
		t.Error("no HTTP side server without TLS")
	}
}

func TestConfigValidation(t *testing.T) {
	dir := t.TempDir()
	cert := filepath.Join(dir, "server.crt")
	key := filepath.Join(dir, "server.key")
	os.WriteFile(cert, []byte("cert"), 0600)
	os.WriteFile(key, []byte("key"), 0600)

	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"disabled", Config{}, false},
		{"letsencrypt without domain", Config{Enabled: true, LetsEncrypt: true, Email: "a@b.c"}, true},
		{"letsencrypt without email", Config{Enabled: true, LetsEncrypt: true, Domain: "b.c"}, true},
		{"letsencrypt", Config{Enabled: true, LetsEncrypt: true, Domain: "b.c", Email: "a@b.c"}, false},
		{"manual missing files", Config{Enabled: true, CertFile: filepath.Join(dir, "x"), KeyFile: key}, true},
		{"manual", Config{Enabled: true, CertFile: cert, KeyFile: key}, false},
	}
	for _, tt := range tests {
		if err := tt.config.Validate(); (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate() = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestLetsEncryptServers(t *testing.T) {
	manager, err := NewManager(Config{
		Enabled:     true,
		LetsEncrypt: true,
		Domain:      "basic.example.org",
		Email:       "ops@example.org",
		CacheDir:    filepath.Join(t.TempDir(), "certs"),
		HTTPAddr:    ":8081",
	})
	if err != nil {
		t.Fatal(err)
	}
	srv := manager.Server(":8443", http.NotFoundHandler())
	if srv.TLSConfig == nil || srv.TLSConfig.GetCertificate == nil {
		t.Error("Let's Encrypt server needs a certificate callback")
	}
	if side := manager.HTTPServer(":8443"); side == nil || side.Addr != ":8081" {
		t.Errorf("expected the ACME challenge server, got %+v", side)
	}
}

func TestRedirectHandler(t *testing.T) {
	tests := []struct {
		httpsAddr string
		want      string
	}{
		{":8443", "https://basic.example.org:8443/ws?x=1"},
		{":443", "https://basic.example.org/ws?x=1"},
	}
	for _, tt := range tests {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "http://basic.example.org:8080/ws?x=1", nil)
		redirectHandler(tt.httpsAddr).ServeHTTP(rr, req)
		if rr.Code != http.StatusMovedPermanently || rr.Header().Get("Location") != tt.want {
			t.Errorf("%s: got %d %q, want %q", tt.httpsAddr, rr.Code, rr.Header().Get("Location"), tt.want)
		}
	}
}
