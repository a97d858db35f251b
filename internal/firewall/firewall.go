package firewall

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/Aleks250483/triangels-tg-bridge/internal/execx"
)

// Manager opens the proxy port on whichever host firewall turns out to be
// active. Hosts with no firewall, or an inactive one, are left untouched.
type Manager struct {
	Run      execx.Runner
	LookPath func(string) (string, error)
}

func NewManager() *Manager {
	return &Manager{Run: execx.Local{}, LookPath: exec.LookPath}
}

// OpenPort allows inbound TCP traffic on port. Re-running with the same port
// neither errors nor duplicates rules. The returned note describes what was
// (or was not) done.
func (m *Manager) OpenPort(ctx context.Context, port int) (string, error) {
	if port < 1 || port > 65535 {
		return "", fmt.Errorf("invalid port %d", port)
	}
	rule := fmt.Sprintf("%d/tcp", port)

	if m.has("ufw") {
		status, _ := m.Run.RunCombined(ctx, "ufw", "status")
		if ufwActive(status) {
			if ufwHasRule(status, rule) {
				return fmt.Sprintf("TCP %d already allowed via ufw.", port), nil
			}
			if out, err := m.Run.RunCombined(ctx, "ufw", "allow", rule); err != nil {
				return "", fmt.Errorf("ufw allow %s: %w\n%s", rule, err, strings.TrimSpace(out))
			}
			return fmt.Sprintf("Opened TCP %d via ufw.", port), nil
		}
	}

	if m.has("firewall-cmd") {
		state, _ := m.Run.RunCombined(ctx, "firewall-cmd", "--state")
		if strings.TrimSpace(state) == "running" {
			if out, _ := m.Run.RunCombined(ctx, "firewall-cmd", "--query-port="+rule); strings.TrimSpace(out) == "yes" {
				return fmt.Sprintf("TCP %d already allowed via firewalld.", port), nil
			}
			if out, err := m.Run.RunCombined(ctx, "firewall-cmd", "--permanent", "--add-port="+rule); err != nil {
				return "", fmt.Errorf("firewalld add-port %s: %w\n%s", rule, err, strings.TrimSpace(out))
			}
			if out, err := m.Run.RunCombined(ctx, "firewall-cmd", "--reload"); err != nil {
				return "", fmt.Errorf("firewalld reload: %w\n%s", err, strings.TrimSpace(out))
			}
			return fmt.Sprintf("Opened TCP %d via firewalld.", port), nil
		}
	}

	return fmt.Sprintf("No active firewall detected. Ensure TCP %d is reachable.", port), nil
}

func (m *Manager) has(tool string) bool {
	_, err := m.LookPath(tool)
	return err == nil
}

// ufwActive reads the first status line; anything but "Status: active" means
// ufw is installed but not enforcing.
func ufwActive(status string) bool {
	line, _, _ := strings.Cut(status, "\n")
	return strings.TrimSpace(line) == "Status: active"
}

func ufwHasRule(status, rule string) bool {
	for _, line := range strings.Split(status, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, rule) && strings.Contains(line, "ALLOW") {
			return true
		}
	}
	return false
}
