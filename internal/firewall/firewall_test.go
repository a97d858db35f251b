package firewall

import (
	"context"
	"errors"
	"strings"
	"testing"
)

const ufwActiveWithRule = `Status: active

To                         Action      From
--                         ------      ----
8443/tcp                   ALLOW       Anywhere
8443/tcp (v6)              ALLOW       Anywhere (v6)
`

const ufwActiveEmpty = `Status: active

To                         Action      From
--                         ------      ----
`

type fakeRunner struct {
	replies map[string]string
	fail    map[string]error
	calls   []string
}

func (r *fakeRunner) run(name string, args ...string) (string, error) {
	key := strings.Join(append([]string{name}, args...), " ")
	r.calls = append(r.calls, key)
	if err, ok := r.fail[key]; ok {
		return "", err
	}
	return r.replies[key], nil
}

func (r *fakeRunner) RunCombined(_ context.Context, name string, args ...string) (string, error) {
	return r.run(name, args...)
}

func (r *fakeRunner) RunEnv(_ context.Context, _ []string, name string, args ...string) (string, error) {
	return r.run(name, args...)
}

func (r *fakeRunner) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	out, err := r.run(name, args...)
	return []byte(out), err
}

func managerWith(runner *fakeRunner, tools ...string) *Manager {
	return &Manager{
		Run: runner,
		LookPath: func(tool string) (string, error) {
			for _, have := range tools {
				if have == tool {
					return "/usr/sbin/" + tool, nil
				}
			}
			return "", errors.New("not found")
		},
	}
}

func TestOpenPortUFWAddsRule(t *testing.T) {
	runner := &fakeRunner{replies: map[string]string{
		"ufw status": ufwActiveEmpty,
	}}
	m := managerWith(runner, "ufw")

	note, err := m.OpenPort(context.Background(), 8443)
	if err != nil {
		t.Fatalf("OpenPort: %v", err)
	}
	if !strings.Contains(note, "Opened TCP 8443") {
		t.Fatalf("unexpected note %q", note)
	}

	want := []string{"ufw status", "ufw allow 8443/tcp"}
	if len(runner.calls) != len(want) {
		t.Fatalf("unexpected calls: %v", runner.calls)
	}
	for i, w := range want {
		if runner.calls[i] != w {
			t.Fatalf("call %d: got %q want %q", i, runner.calls[i], w)
		}
	}
}

func TestOpenPortUFWIdempotent(t *testing.T) {
	runner := &fakeRunner{replies: map[string]string{
		"ufw status": ufwActiveWithRule,
	}}
	m := managerWith(runner, "ufw")

	note, err := m.OpenPort(context.Background(), 8443)
	if err != nil {
		t.Fatalf("OpenPort: %v", err)
	}
	if !strings.Contains(note, "already allowed") {
		t.Fatalf("unexpected note %q", note)
	}
	for _, call := range runner.calls {
		if strings.HasPrefix(call, "ufw allow") {
			t.Fatalf("should not re-add a present rule, calls: %v", runner.calls)
		}
	}
}

func TestOpenPortUFWInactiveIsNoop(t *testing.T) {
	runner := &fakeRunner{replies: map[string]string{
		"ufw status": "Status: inactive\n",
	}}
	m := managerWith(runner, "ufw")

	note, err := m.OpenPort(context.Background(), 8443)
	if err != nil {
		t.Fatalf("OpenPort: %v", err)
	}
	if !strings.Contains(note, "No active firewall") {
		t.Fatalf("unexpected note %q", note)
	}
}

func TestOpenPortFirewalld(t *testing.T) {
	runner := &fakeRunner{replies: map[string]string{
		"firewall-cmd --state":                         "running\n",
		"firewall-cmd --query-port=8443/tcp":           "no\n",
		"firewall-cmd --permanent --add-port=8443/tcp": "success\n",
		"firewall-cmd --reload":                        "success\n",
	}}
	m := managerWith(runner, "firewall-cmd")

	note, err := m.OpenPort(context.Background(), 8443)
	if err != nil {
		t.Fatalf("OpenPort: %v", err)
	}
	if !strings.Contains(note, "firewalld") {
		t.Fatalf("unexpected note %q", note)
	}

	want := []string{
		"firewall-cmd --state",
		"firewall-cmd --query-port=8443/tcp",
		"firewall-cmd --permanent --add-port=8443/tcp",
		"firewall-cmd --reload",
	}
	if len(runner.calls) != len(want) {
		t.Fatalf("unexpected calls: %v", runner.calls)
	}
}

func TestOpenPortFirewalldAlreadyOpen(t *testing.T) {
	runner := &fakeRunner{replies: map[string]string{
		"firewall-cmd --state":               "running\n",
		"firewall-cmd --query-port=8443/tcp": "yes\n",
	}}
	m := managerWith(runner, "firewall-cmd")

	note, err := m.OpenPort(context.Background(), 8443)
	if err != nil {
		t.Fatalf("OpenPort: %v", err)
	}
	if !strings.Contains(note, "already allowed") {
		t.Fatalf("unexpected note %q", note)
	}
	if len(runner.calls) != 2 {
		t.Fatalf("expected no mutation calls, got %v", runner.calls)
	}
}

func TestOpenPortNoFirewallTools(t *testing.T) {
	runner := &fakeRunner{}
	m := managerWith(runner)

	note, err := m.OpenPort(context.Background(), 9000)
	if err != nil {
		t.Fatalf("OpenPort: %v", err)
	}
	if !strings.Contains(note, "TCP 9000") {
		t.Fatalf("unexpected note %q", note)
	}
	if len(runner.calls) != 0 {
		t.Fatalf("expected no calls, got %v", runner.calls)
	}
}

func TestOpenPortRejectsBadPort(t *testing.T) {
	m := managerWith(&fakeRunner{})
	if _, err := m.OpenPort(context.Background(), 0); err == nil {
		t.Fatal("expected error for port 0")
	}
	if _, err := m.OpenPort(context.Background(), 70000); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
}

func TestOpenPortUFWFailureSurfaces(t *testing.T) {
	runner := &fakeRunner{
		replies: map[string]string{"ufw status": ufwActiveEmpty},
		fail:    map[string]error{"ufw allow 8443/tcp": errors.New("exit status 1")},
	}
	m := managerWith(runner, "ufw")

	if _, err := m.OpenPort(context.Background(), 8443); err == nil {
		t.Fatal("expected error when ufw allow fails")
	}
}
