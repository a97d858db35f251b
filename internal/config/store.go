package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/distribution/reference"
	"github.com/joho/godotenv"
)

const (
	DefaultDir   = "/etc/tg-bridge"
	FileName     = "proxy.env"
	DefaultPort  = 8443
	DefaultImage = "telegrammessenger/proxy:latest"

	// The dd prefix selects the client's random-padding transport mode.
	secretPrefix = "dd"
	secretBytes  = 16
)

// ErrConfigMissing reports that no proxy config has been written yet, which
// for operate commands means install has not run.
var ErrConfigMissing = errors.New("proxy config not found (run install first)")

type ProxyConfig struct {
	Port   int
	Image  string
	Secret string
}

type Store struct {
	Dir string
}

func NewStore(dir string) *Store {
	if strings.TrimSpace(dir) == "" {
		dir = DefaultDir
	}
	return &Store{Dir: dir}
}

func (s *Store) Path() string {
	return filepath.Join(s.Dir, FileName)
}

// Load reads the proxy config without modifying it. Optional keys fall back
// to defaults; a missing SECRET makes the file unusable.
func (s *Store) Load() (ProxyConfig, error) {
	if _, err := os.Stat(s.Path()); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ProxyConfig{}, ErrConfigMissing
		}
		return ProxyConfig{}, fmt.Errorf("stat proxy config: %w", err)
	}

	vals, err := godotenv.Read(s.Path())
	if err != nil {
		return ProxyConfig{}, fmt.Errorf("read proxy config: %w", err)
	}

	cfg := ProxyConfig{
		Port:   parseIntDefault(vals["PORT"], DefaultPort),
		Image:  defaultIfEmpty(vals["IMAGE"], DefaultImage),
		Secret: strings.TrimSpace(vals["SECRET"]),
	}
	if cfg.Secret == "" {
		return ProxyConfig{}, fmt.Errorf("proxy config %s missing SECRET", s.Path())
	}
	if _, err := reference.ParseNormalizedNamed(cfg.Image); err != nil {
		return ProxyConfig{}, fmt.Errorf("proxy config has invalid IMAGE %q: %w", cfg.Image, err)
	}
	return cfg, nil
}

// Ensure returns the existing config or creates one with a fresh secret.
// port and image apply only when the file is being created; zero values mean
// defaults. The returned bool reports whether a new file was written.
func (s *Store) Ensure(port int, image string) (ProxyConfig, bool, error) {
	cfg, err := s.Load()
	if err == nil {
		return cfg, false, nil
	}
	if !errors.Is(err, ErrConfigMissing) {
		return ProxyConfig{}, false, err
	}

	if port == 0 {
		port = DefaultPort
	}
	if port < 1 || port > 65535 {
		return ProxyConfig{}, false, fmt.Errorf("invalid port %d (want 1-65535)", port)
	}
	image = defaultIfEmpty(strings.TrimSpace(image), DefaultImage)
	if _, err := reference.ParseNormalizedNamed(image); err != nil {
		return ProxyConfig{}, false, fmt.Errorf("invalid image reference %q: %w", image, err)
	}
	secret, err := GenerateSecret()
	if err != nil {
		return ProxyConfig{}, false, err
	}

	cfg = ProxyConfig{Port: port, Image: image, Secret: secret}
	if err := s.write(cfg); err != nil {
		return ProxyConfig{}, false, err
	}
	return cfg, true, nil
}

// GenerateSecret produces a new MTProto secret: the dd marker followed by 16
// random bytes in lowercase hex.
func GenerateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate proxy secret: %w", err)
	}
	return secretPrefix + hex.EncodeToString(buf), nil
}

// write lands the config atomically: the rename either installs the whole
// file or leaves nothing behind, so an interrupted install never produces a
// half-written secret.
func (s *Store) write(cfg ProxyConfig) error {
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return fmt.Errorf("ensure config dir: %w", err)
	}

	content := strings.Join([]string{
		"PORT=" + strconv.Itoa(cfg.Port),
		"IMAGE=" + cfg.Image,
		"SECRET=" + cfg.Secret,
		"",
	}, "\n")

	tmp, err := os.CreateTemp(s.Dir, FileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write proxy config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write proxy config: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("install proxy config: %w", err)
	}
	return nil
}

func defaultIfEmpty(v, d string) string {
	if strings.TrimSpace(v) == "" {
		return d
	}
	return v
}

func parseIntDefault(raw string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
