package share

import (
	"fmt"

	"github.com/Aleks250483/triangels-tg-bridge/internal/config"
)

// BuildLink formats the proxy pointer Telegram clients consume. Parameter
// order (server, port, secret) is part of the published format.
func BuildLink(cfg config.ProxyConfig, host string) string {
	return fmt.Sprintf("tg://proxy?server=%s&port=%d&secret=%s", host, cfg.Port, cfg.Secret)
}

// WebLink is the t.me variant of the same pointer, usable from browsers.
func WebLink(cfg config.ProxyConfig, host string) string {
	return fmt.Sprintf("https://t.me/proxy?server=%s&port=%d&secret=%s", host, cfg.Port, cfg.Secret)
}
