package deps

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/Aleks250483/triangels-tg-bridge/internal/execx"
)

var (
	ErrPermissionDenied    = errors.New("root privileges required")
	ErrUnsupportedPlatform = errors.New("no supported package manager found")
)

// DependencyMissingError names the exact tool the host lacks so the operator
// knows what to install.
type DependencyMissingError struct {
	Tool string
}

func (e *DependencyMissingError) Error() string {
	return fmt.Sprintf("required tool %q not found in PATH", e.Tool)
}

// Gate checks and provisions external prerequisites before anything touches
// the host. The function fields exist for test substitution.
type Gate struct {
	Run      execx.Runner
	LookPath func(string) (string, error)
	Geteuid  func() int
	GOOS     string
}

func NewGate() *Gate {
	return &Gate{
		Run:      execx.Local{},
		LookPath: exec.LookPath,
		Geteuid:  os.Geteuid,
		GOOS:     runtime.GOOS,
	}
}

func (g *Gate) Require(tool string) error {
	if _, err := g.LookPath(tool); err != nil {
		return &DependencyMissingError{Tool: tool}
	}
	return nil
}

func (g *Gate) RequireRoot() error {
	if g.Geteuid() != 0 {
		return fmt.Errorf("%w (re-run with sudo)", ErrPermissionDenied)
	}
	return nil
}

// runtimeInstallers maps detected package managers to the argv that installs
// the container runtime. Order is preference order.
var runtimeInstallers = []struct {
	manager string
	env     []string
	pre     []string
	install []string
}{
	{
		manager: "apt-get",
		env:     []string{"DEBIAN_FRONTEND=noninteractive"},
		pre:     []string{"update"},
		install: []string{"install", "-y", "docker.io"},
	},
	{
		manager: "dnf",
		install: []string{"install", "-y", "docker"},
	},
	{
		manager: "yum",
		install: []string{"install", "-y", "docker"},
	},
}

// EnsureContainerRuntime makes sure Docker is installed and its service is
// active, installing it through the host's package manager when absent.
func (g *Gate) EnsureContainerRuntime(ctx context.Context) error {
	if err := g.Require("docker"); err == nil {
		return g.activateRuntime(ctx)
	}

	if g.GOOS != "linux" {
		return fmt.Errorf("%w: automatic runtime install covers linux only", ErrUnsupportedPlatform)
	}

	for _, inst := range runtimeInstallers {
		if _, err := g.LookPath(inst.manager); err != nil {
			continue
		}
		if len(inst.pre) > 0 {
			if out, err := g.Run.RunEnv(ctx, inst.env, inst.manager, inst.pre...); err != nil {
				return fmt.Errorf("%s %s: %w\n%s", inst.manager, strings.Join(inst.pre, " "), err, strings.TrimSpace(out))
			}
		}
		if out, err := g.Run.RunEnv(ctx, inst.env, inst.manager, inst.install...); err != nil {
			return fmt.Errorf("install container runtime via %s: %w\n%s", inst.manager, err, strings.TrimSpace(out))
		}
		if err := g.Require("docker"); err != nil {
			return fmt.Errorf("container runtime still missing after %s install", inst.manager)
		}
		return g.activateRuntime(ctx)
	}

	return fmt.Errorf("%w: install Docker manually and re-run", ErrUnsupportedPlatform)
}

// activateRuntime enables and starts the docker service. Hosts without
// systemd are left alone; the daemon ping later reports whether that was
// good enough.
func (g *Gate) activateRuntime(ctx context.Context) error {
	if _, err := g.LookPath("systemctl"); err != nil {
		return nil
	}
	if out, err := g.Run.RunCombined(ctx, "systemctl", "enable", "--now", "docker"); err != nil {
		return fmt.Errorf("activate docker service: %w\n%s", err, strings.TrimSpace(out))
	}
	return nil
}
