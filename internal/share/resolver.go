package share

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// ErrHostUnresolvable means no public address could be determined and none
// was given; links cannot be rendered without one.
var ErrHostUnresolvable = errors.New("could not determine this host's public address")

const (
	routeProbeAddr = "1.1.1.1:53"
	probeTimeout   = 5 * time.Second
)

// ipServices answer a GET with the caller's public IP in the body.
var ipServices = []string{
	"https://api.ipify.org",
	"https://ifconfig.me/ip",
}

// Resolver determines the address to embed in connection links.
type Resolver struct {
	HTTP       *http.Client
	RouteProbe func() (net.IP, error)
	Services   []string
}

func NewResolver() *Resolver {
	return &Resolver{
		HTTP:       &http.Client{Timeout: probeTimeout},
		RouteProbe: outboundRouteIP,
		Services:   ipServices,
	}
}

// Resolve picks the link host. An explicit host always wins. Otherwise the
// outbound route's source address is probed; when that turns out private
// (the host sits behind NAT), public IP services are asked before settling
// for it.
func (r *Resolver) Resolve(ctx context.Context, explicit string) (string, error) {
	if h := strings.TrimSpace(explicit); h != "" {
		return h, nil
	}

	var fallbackAddr string
	if ip, err := r.RouteProbe(); err == nil && usableIP(ip) {
		if !ip.IsPrivate() {
			return ip.String(), nil
		}
		fallbackAddr = ip.String()
	}

	for _, svc := range r.Services {
		if ip, err := r.fetchIP(ctx, svc); err == nil {
			return ip, nil
		}
	}

	if fallbackAddr != "" {
		return fallbackAddr, nil
	}
	return "", ErrHostUnresolvable
}

// outboundRouteIP asks the kernel which source address it would use for an
// outbound datagram. Nothing is sent.
func outboundRouteIP() (net.IP, error) {
	conn, err := net.Dial("udp", routeProbeAddr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return nil, errors.New("unexpected local address type")
	}
	return addr.IP, nil
}

func usableIP(ip net.IP) bool {
	return ip != nil && !ip.IsUnspecified() && !ip.IsLoopback()
}

func (r *Resolver) fetchIP(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return "", err
	}
	host := strings.TrimSpace(string(body))
	if net.ParseIP(host) == nil {
		return "", fmt.Errorf("%s returned %q, not an address", url, host)
	}
	return host, nil
}
