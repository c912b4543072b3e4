package egress

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolveDirect(t *testing.T) {
	echo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("203.0.113.9\n"))
	}))
	defer echo.Close()

	v := NewVerifier(Config{EchoURL: echo.URL}, slog.Default())
	ip, err := v.ResolveDirect(context.Background())
	if err != nil {
		t.Fatalf("ResolveDirect() error = %v", err)
	}
	if ip != "203.0.113.9" {
		t.Errorf("ip = %q, want 203.0.113.9", ip)
	}
	if v.directIP != ip {
		t.Errorf("direct IP not cached, got %q", v.directIP)
	}
}

func TestResolveDirectRejectsNonIP(t *testing.T) {
	echo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>blocked</html>"))
	}))
	defer echo.Close()

	v := NewVerifier(Config{EchoURL: echo.URL}, slog.Default())
	if _, err := v.ResolveDirect(context.Background()); err == nil {
		t.Error("ResolveDirect() accepted a non-IP response")
	}
	if v.directIP != "" {
		t.Errorf("direct IP cached from bad response: %q", v.directIP)
	}
}

func TestLookupRequiresToken(t *testing.T) {
	v := NewVerifier(Config{}, slog.Default())
	if _, err := v.Lookup(context.Background(), "203.0.113.9"); err == nil {
		t.Error("Lookup() without token should fail")
	}
}

func TestVerifierDefaults(t *testing.T) {
	v := NewVerifier(Config{}, slog.Default())
	if v.cfg.EchoURL != "https://api.ipify.org" {
		t.Errorf("default echo URL = %q", v.cfg.EchoURL)
	}
	if v.cfg.Timeout == 0 {
		t.Error("default timeout not applied")
	}
}
