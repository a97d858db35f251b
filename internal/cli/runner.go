package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Aleks250483/triangels-tg-bridge/internal/config"
	"github.com/Aleks250483/triangels-tg-bridge/internal/deps"
	"github.com/Aleks250483/triangels-tg-bridge/internal/dockerx"
	"github.com/Aleks250483/triangels-tg-bridge/internal/firewall"
	"github.com/Aleks250483/triangels-tg-bridge/internal/share"
	"github.com/Aleks250483/triangels-tg-bridge/internal/ui"
	"github.com/Aleks250483/triangels-tg-bridge/internal/update"
	"github.com/Aleks250483/triangels-tg-bridge/internal/version"
)

const (
	ExitSuccess = 0
	ExitFailure = 1
	ExitUsage   = 2

	ExitPermissionDenied    = 3
	ExitDependencyMissing   = 4
	ExitUnsupportedPlatform = 5
	ExitConfigMissing       = 6
	ExitInstanceNotFound    = 7
	ExitHostUnresolvable    = 8
)

type Runner struct {
	Store     *config.Store
	Gate      *deps.Gate
	Firewall  *firewall.Manager
	Resolver  *share.Resolver
	QR        *share.QR
	NewDocker func() (*dockerx.Supervisor, error)

	docker *dockerx.Supervisor
}

func PrintHelp() {
	fmt.Print(`tg-bridge: run a Telegram MTProto proxy in Docker on this host.

Usage:
  tg-bridge [command] [flags]

Commands:
  install          Provision runtime, config, container and firewall (default)
  status           Show the proxy container state, ports and uptime
  logs             Print recent proxy logs, then follow
  stop             Stop the proxy container (success even if already stopped)
  link [host]      Print the tg://proxy connection link
  qr [host]        Print the connection link as a terminal QR code
  update           Pull the configured image and replace a stale instance
  version          Print the tg-bridge version
  help             Show this help

Flags:
  --config-dir <dir>   Config directory (default /etc/tg-bridge)
  --port <port>        External proxy port, first install only (default 8443)
  --image <ref>        Proxy image, first install only
  --no-firewall        Do not touch ufw/firewalld
  --tail <n>           Log lines to print before following (default 100)
  --no-follow          Print recent logs and exit
  --version            Print tg-bridge version and exit
  -h, --help           Show this help

Environment:
  TG_BRIDGE_CONFIG_DIR  Override the config directory
  DOCKER_HOST           Standard Docker client variables are honored
`)
}

func (r *Runner) Run(ctx context.Context, opts Options) (int, error) {
	cmd, ok := NormalizeCommand(strings.ToLower(strings.TrimSpace(opts.Command)))
	if !ok {
		return ExitUsage, fmt.Errorf("unknown command %q", opts.Command)
	}
	host, err := hostArg(cmd, opts.Args)
	if err != nil {
		return ExitUsage, err
	}

	switch cmd {
	case "", "install":
		err = r.install(ctx, opts)
	case "status":
		err = r.status(ctx)
	case "logs":
		err = r.logs(ctx, opts)
	case "stop":
		err = r.stop(ctx)
	case "link":
		err = r.link(ctx, host)
	case "qr":
		err = r.qr(ctx, host)
	case "update":
		err = r.update(ctx)
	case "version":
		fmt.Printf("tg-bridge v%s\n", version.AppVersion)
	case "help":
		PrintHelp()
	}
	return exitCode(err), err
}

// hostArg validates positionals: link and qr accept one optional host,
// everything else takes none.
func hostArg(cmd string, args []string) (string, error) {
	switch cmd {
	case "link", "qr":
		if len(args) > 1 {
			return "", fmt.Errorf("%s takes at most one host argument", cmd)
		}
		if len(args) == 1 {
			return strings.TrimSpace(args[0]), nil
		}
		return "", nil
	default:
		if len(args) > 0 {
			return "", fmt.Errorf("unknown arguments: %v", args)
		}
		return "", nil
	}
}

func (r *Runner) install(ctx context.Context, opts Options) error {
	if err := r.Gate.RequireRoot(); err != nil {
		return err
	}

	ui.Info("Checking container runtime...")
	if err := r.Gate.EnsureContainerRuntime(ctx); err != nil {
		return err
	}

	docker, err := r.Docker()
	if err != nil {
		return err
	}
	if err := waitForDaemon(ctx, docker); err != nil {
		return err
	}

	cfg, created, err := r.Store.Ensure(opts.Port, opts.Image)
	if err != nil {
		return err
	}
	if created {
		ui.Success("Wrote new proxy config to %s", r.Store.Path())
	} else {
		ui.Info("Reusing proxy config at %s", r.Store.Path())
		if opts.Port != 0 || strings.TrimSpace(opts.Image) != "" {
			ui.Warn("--port/--image apply to the first install only; edit %s instead", r.Store.Path())
		}
	}

	ui.Info("Starting proxy container %q from %s...", dockerx.ContainerName, cfg.Image)
	if err := docker.Start(ctx, cfg); err != nil {
		return err
	}
	ui.Success("Proxy container is up on TCP %d", cfg.Port)

	if opts.NoFirewall {
		ui.Info("Skipping firewall changes by request.")
	} else {
		note, err := r.Firewall.OpenPort(ctx, cfg.Port)
		if err != nil {
			// Container is already serving; warn and continue.
			ui.Warn("Firewall step failed: %v", err)
		} else {
			ui.Info("%s", note)
		}
	}

	host, err := r.Resolver.Resolve(ctx, "")
	if err != nil {
		ui.Warn("Could not detect the public address: %v", err)
		ui.Info("Run \"tg-bridge link <host>\" once the address is known.")
		return nil
	}
	printConnectionCard(cfg, host)
	return nil
}

func (r *Runner) status(ctx context.Context) error {
	docker, err := r.Docker()
	if err != nil {
		return err
	}
	rep, err := docker.Status(ctx)
	if err != nil {
		return err
	}
	if !rep.Exists {
		fmt.Printf("%s: not installed (no proxy container)\n", dockerx.ContainerName)
		return nil
	}

	lines := []string{
		ui.KV("State", rep.State),
		ui.KV("Image", rep.Image),
	}
	if len(rep.Ports) > 0 {
		lines = append(lines, ui.KV("Ports", strings.Join(rep.Ports, ", ")))
	}
	if rep.Uptime != "" {
		lines = append(lines, ui.KV("Uptime", rep.Uptime))
	}
	ui.Box("proxy container :: "+dockerx.ContainerName, lines...)
	return nil
}

func (r *Runner) logs(ctx context.Context, opts Options) error {
	docker, err := r.Docker()
	if err != nil {
		return err
	}
	follow := !opts.NoFollow
	if follow {
		ui.Info("Following proxy logs (ctrl-c to stop)...")
	}
	return docker.Logs(ctx, follow, opts.Tail, os.Stdout, os.Stderr)
}

func (r *Runner) stop(ctx context.Context) error {
	docker, err := r.Docker()
	if err != nil {
		return err
	}
	stopped, err := docker.Stop(ctx)
	if err != nil {
		return err
	}
	if stopped {
		ui.Success("Proxy container stopped.")
	} else {
		ui.Info("Proxy container already stopped or absent.")
	}
	return nil
}

func (r *Runner) link(ctx context.Context, explicit string) error {
	cfg, err := r.Store.Load()
	if err != nil {
		return err
	}
	host, err := r.Resolver.Resolve(ctx, explicit)
	if err != nil {
		return err
	}
	fmt.Println(share.BuildLink(cfg, host))
	fmt.Println(share.WebLink(cfg, host))
	return nil
}

func (r *Runner) qr(ctx context.Context, explicit string) error {
	cfg, err := r.Store.Load()
	if err != nil {
		return err
	}
	host, err := r.Resolver.Resolve(ctx, explicit)
	if err != nil {
		return err
	}
	link := share.BuildLink(cfg, host)
	art, err := r.QR.Render(ctx, link)
	if err != nil {
		return err
	}
	fmt.Println(link)
	fmt.Print(art)
	return nil
}

func (r *Runner) update(ctx context.Context) error {
	cfg, err := r.Store.Load()
	if err != nil {
		return err
	}
	docker, err := r.Docker()
	if err != nil {
		return err
	}
	ui.Info("Pulling %s...", cfg.Image)
	res, err := update.NewUpdater(docker).Refresh(ctx, cfg)
	if err != nil {
		return err
	}
	if res.Updated {
		ui.Success("%s", res.Note)
	} else {
		ui.Info("%s", res.Note)
	}
	return nil
}

// Docker returns the supervisor, connecting on first use. The handle is
// memoized so the interactive deck and command handlers share one client.
func (r *Runner) Docker() (*dockerx.Supervisor, error) {
	if r.docker != nil {
		return r.docker, nil
	}
	if r.NewDocker == nil {
		r.NewDocker = dockerx.New
	}
	docker, err := r.NewDocker()
	if err != nil {
		return nil, fmt.Errorf("connect container runtime: %w", err)
	}
	r.docker = docker
	return docker, nil
}

// waitForDaemon gives a freshly enabled docker service a moment to come up.
func waitForDaemon(ctx context.Context, docker *dockerx.Supervisor) error {
	var err error
	for i := 0; i < 5; i++ {
		if err = docker.Ping(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return err
}

func printConnectionCard(cfg config.ProxyConfig, host string) {
	ui.Box("Telegram proxy ready",
		ui.KV("Server", host),
		ui.KV("Port", strconv.Itoa(cfg.Port)),
		ui.KV("Secret", cfg.Secret),
		"",
		share.BuildLink(cfg, host),
		share.WebLink(cfg, host),
	)
}

func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var depMissing *deps.DependencyMissingError
	switch {
	case errors.Is(err, deps.ErrPermissionDenied):
		return ExitPermissionDenied
	case errors.As(err, &depMissing):
		return ExitDependencyMissing
	case errors.Is(err, deps.ErrUnsupportedPlatform):
		return ExitUnsupportedPlatform
	case errors.Is(err, config.ErrConfigMissing):
		return ExitConfigMissing
	case errors.Is(err, dockerx.ErrInstanceNotFound):
		return ExitInstanceNotFound
	case errors.Is(err, share.ErrHostUnresolvable):
		return ExitHostUnresolvable
	}
	return ExitFailure
}
