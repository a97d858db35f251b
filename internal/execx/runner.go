package execx

import (
	"context"
	"os"
	"os/exec"
)

// Runner executes host commands. Arguments are passed as an argv vector, so
// values such as ports and image references never travel through a shell.
type Runner interface {
	// RunCombined runs name with args and returns interleaved stdout+stderr.
	RunCombined(ctx context.Context, name string, args ...string) (string, error)
	// RunEnv behaves like RunCombined with extra KEY=VALUE pairs appended to
	// the inherited environment.
	RunEnv(ctx context.Context, extraEnv []string, name string, args ...string) (string, error)
	// Output runs name with args and returns stdout only.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

type Local struct{}

func (Local) RunCombined(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return string(out), err
}

func (Local) RunEnv(ctx context.Context, extraEnv []string, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), extraEnv...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func (Local) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}
