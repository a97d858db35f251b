package share

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Aleks250483/triangels-tg-bridge/internal/config"
	"github.com/Aleks250483/triangels-tg-bridge/internal/deps"
)

func TestBuildLinkFormat(t *testing.T) {
	cfg := config.ProxyConfig{
		Port:   8443,
		Secret: "dd00112233445566778899aabbccddeeff",
	}

	got := BuildLink(cfg, "203.0.113.5")
	want := "tg://proxy?server=203.0.113.5&port=8443&secret=dd00112233445566778899aabbccddeeff"
	if got != want {
		t.Fatalf("BuildLink:\n got %q\nwant %q", got, want)
	}

	web := WebLink(cfg, "203.0.113.5")
	if web != "https://t.me/proxy?server=203.0.113.5&port=8443&secret=dd00112233445566778899aabbccddeeff" {
		t.Fatalf("unexpected web link %q", web)
	}
}

func TestResolveExplicitHostWins(t *testing.T) {
	r := NewResolver()
	r.RouteProbe = func() (net.IP, error) {
		t.Fatal("probe should not run for explicit hosts")
		return nil, nil
	}

	host, err := r.Resolve(context.Background(), " proxy.example.net ")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if host != "proxy.example.net" {
		t.Fatalf("expected trimmed explicit host, got %q", host)
	}
}

func TestResolveUsesPublicRouteAddress(t *testing.T) {
	r := NewResolver()
	r.RouteProbe = func() (net.IP, error) {
		return net.ParseIP("203.0.113.9"), nil
	}
	r.Services = nil

	host, err := r.Resolve(context.Background(), "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if host != "203.0.113.9" {
		t.Fatalf("expected route address, got %q", host)
	}
}

func TestResolvePrivateRouteFallsBackToService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("198.51.100.7\n"))
	}))
	defer srv.Close()

	r := NewResolver()
	r.RouteProbe = func() (net.IP, error) {
		return net.ParseIP("10.0.0.4"), nil
	}
	r.Services = []string{srv.URL}

	host, err := r.Resolve(context.Background(), "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if host != "198.51.100.7" {
		t.Fatalf("expected service address, got %q", host)
	}
}

func TestResolvePrivateRouteIsLastResort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := NewResolver()
	r.RouteProbe = func() (net.IP, error) {
		return net.ParseIP("192.168.1.20"), nil
	}
	r.Services = []string{srv.URL}

	host, err := r.Resolve(context.Background(), "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if host != "192.168.1.20" {
		t.Fatalf("expected private fallback, got %q", host)
	}
}

func TestResolveUnresolvable(t *testing.T) {
	r := NewResolver()
	r.RouteProbe = func() (net.IP, error) {
		return nil, errors.New("network down")
	}
	r.Services = nil

	if _, err := r.Resolve(context.Background(), ""); !errors.Is(err, ErrHostUnresolvable) {
		t.Fatalf("expected ErrHostUnresolvable, got %v", err)
	}
}

func TestResolveRejectsGarbageServiceBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html>blocked</html>"))
	}))
	defer srv.Close()

	r := NewResolver()
	r.RouteProbe = func() (net.IP, error) {
		return nil, errors.New("no route")
	}
	r.Services = []string{srv.URL}

	if _, err := r.Resolve(context.Background(), ""); !errors.Is(err, ErrHostUnresolvable) {
		t.Fatalf("expected ErrHostUnresolvable for non-IP body, got %v", err)
	}
}

func TestRenderQRRequiresEncoder(t *testing.T) {
	gate := deps.NewGate()
	gate.LookPath = func(string) (string, error) {
		return "", errors.New("not found")
	}
	qr := NewQR(gate)

	_, err := qr.Render(context.Background(), "tg://proxy?server=h&port=1&secret=s")
	var missing *deps.DependencyMissingError
	if !errors.As(err, &missing) {
		t.Fatalf("expected DependencyMissingError, got %v", err)
	}
	if missing.Tool != "qrencode" {
		t.Fatalf("expected qrencode named, got %q", missing.Tool)
	}
}

func TestRenderQRInvokesEncoder(t *testing.T) {
	gate := deps.NewGate()
	gate.LookPath = func(tool string) (string, error) {
		return "/usr/bin/" + tool, nil
	}
	qr := NewQR(gate)
	qr.Run = outputRunner{art: "[QR]"}

	art, err := qr.Render(context.Background(), "tg://proxy?server=h&port=1&secret=s")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(art, "[QR]") {
		t.Fatalf("unexpected art %q", art)
	}
}

type outputRunner struct {
	art string
}

func (r outputRunner) RunCombined(_ context.Context, _ string, _ ...string) (string, error) {
	return r.art, nil
}

func (r outputRunner) RunEnv(_ context.Context, _ []string, _ string, _ ...string) (string, error) {
	return r.art, nil
}

func (r outputRunner) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	if name != "qrencode" {
		return nil, errors.New("unexpected command " + name)
	}
	if len(args) == 0 || args[len(args)-1] == "" {
		return nil, errors.New("missing link argument")
	}
	return []byte(r.art), nil
}
