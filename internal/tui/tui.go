package tui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Aleks250483/triangels-tg-bridge/internal/cli"
	"github.com/Aleks250483/triangels-tg-bridge/internal/config"
	"github.com/Aleks250483/triangels-tg-bridge/internal/dockerx"
	"github.com/Aleks250483/triangels-tg-bridge/internal/session"
	"github.com/Aleks250483/triangels-tg-bridge/internal/share"
	"github.com/Aleks250483/triangels-tg-bridge/internal/update"
	"github.com/charmbracelet/huh"
)

// App is the interactive control deck shown when tg-bridge starts on a
// terminal with no subcommand. It drives the same Runner as the CLI.
type App struct {
	Runner *cli.Runner
	Store  *config.Store
	Hosts  *session.HostCache
}

func New(runner *cli.Runner, store *config.Store, hosts *session.HostCache) *App {
	return &App{Runner: runner, Store: store, Hosts: hosts}
}

func (a *App) Run(ctx context.Context) error {
	fmt.Println(logoText())
	for {
		choice := ""
		if err := huh.NewSelect[string]().
			Title("tg-bridge :: control deck").
			Description(a.statusLine(ctx)).
			Options(
				huh.NewOption("Install / Repair", "install"),
				huh.NewOption("Status", "status"),
				huh.NewOption("Recent Logs", "logs"),
				huh.NewOption("Connection Link", "link"),
				huh.NewOption("QR Code", "qr"),
				huh.NewOption("Update Image", "update"),
				huh.NewOption("Stop Proxy", "stop"),
				huh.NewOption("Exit", "exit"),
			).
			Value(&choice).
			Run(); err != nil {
			if isUserCancelled(err) {
				return nil
			}
			return err
		}

		switch choice {
		case "install":
			a.install(ctx)
		case "status":
			a.showStatus(ctx)
		case "logs":
			a.showLogs(ctx)
		case "link":
			a.showLink(ctx)
		case "qr":
			a.showQR(ctx)
		case "update":
			a.updateImage(ctx)
		case "stop":
			a.stop(ctx)
		case "exit":
			return nil
		}
	}
}

// statusLine is the deck description, refreshed on every pass through the
// menu loop.
func (a *App) statusLine(ctx context.Context) string {
	docker, err := a.Runner.Docker()
	if err != nil {
		return "container runtime unreachable"
	}
	rep, err := docker.Status(ctx)
	if err != nil {
		return "container runtime unreachable"
	}
	if !rep.Exists {
		return "proxy not installed"
	}
	if rep.Running {
		return fmt.Sprintf("proxy %s, up %s", rep.State, rep.Uptime)
	}
	return "proxy " + rep.State
}

func (a *App) install(ctx context.Context) {
	if docker, err := a.Runner.Docker(); err == nil {
		if rep, err := docker.Status(ctx); err == nil && rep.Running {
			if !a.confirm("proxy is already running. reinstall it?") {
				return
			}
		}
	}
	if _, err := a.Runner.Run(ctx, cli.Options{Command: "install"}); err != nil {
		a.note("install failed", err.Error())
		return
	}
	a.Hosts.Clear()
}

func (a *App) showStatus(ctx context.Context) {
	docker, err := a.Runner.Docker()
	if err != nil {
		a.note("status failed", err.Error())
		return
	}
	rep, err := docker.Status(ctx)
	if err != nil {
		a.note("status failed", err.Error())
		return
	}
	if !rep.Exists {
		a.note("status", "no proxy container found. run Install / Repair first.")
		return
	}
	lines := []string{
		"State: " + rep.State,
		"Image: " + rep.Image,
	}
	if rep.Uptime != "" {
		lines = append(lines, "Uptime: "+rep.Uptime)
	}
	if len(rep.Ports) > 0 {
		lines = append(lines, "Ports: "+strings.Join(rep.Ports, ", "))
	}
	a.note("proxy status", strings.Join(lines, "\n"))
}

func (a *App) showLogs(ctx context.Context) {
	docker, err := a.Runner.Docker()
	if err != nil {
		a.note("logs failed", err.Error())
		return
	}
	var buf bytes.Buffer
	if err := docker.Logs(ctx, false, 40, &buf, &buf); err != nil {
		if errors.Is(err, dockerx.ErrInstanceNotFound) {
			a.note("logs", "no proxy container found. run Install / Repair first.")
			return
		}
		a.note("logs failed", err.Error())
		return
	}
	out := strings.TrimSpace(buf.String())
	a.note("proxy logs :: last 40 lines", fallback(out, "(no log output yet)"))
}

func (a *App) showLink(ctx context.Context) {
	cfg, host, err := a.connection(ctx)
	if err != nil {
		a.noteConnectionError(err)
		return
	}
	a.note("connection link", strings.Join([]string{
		share.BuildLink(cfg, host),
		"",
		share.WebLink(cfg, host),
	}, "\n"))
}

func (a *App) showQR(ctx context.Context) {
	cfg, host, err := a.connection(ctx)
	if err != nil {
		a.noteConnectionError(err)
		return
	}
	link := share.BuildLink(cfg, host)
	art, err := a.Runner.QR.Render(ctx, link)
	if err != nil {
		a.note("qr failed", err.Error())
		return
	}
	// ANSI half-block art needs a real terminal write, not a note card.
	fmt.Println(link)
	fmt.Print(art)
}

func (a *App) updateImage(ctx context.Context) {
	docker, err := a.Runner.Docker()
	if err != nil {
		a.note("update failed", err.Error())
		return
	}
	cfg, err := a.Store.Load()
	if err != nil {
		a.noteConnectionError(err)
		return
	}
	res, err := update.NewUpdater(docker).Refresh(ctx, cfg)
	if err != nil {
		a.note("update failed", err.Error())
		return
	}
	lines := []string{"Image: " + res.Ref}
	if res.Pulled {
		lines = append(lines, "Pulled a newer image.")
	}
	lines = append(lines, fallback(res.Note, "done"))
	a.note("update image", strings.Join(lines, "\n"))
}

func (a *App) stop(ctx context.Context) {
	if !a.confirm("stop the proxy container?") {
		return
	}
	docker, err := a.Runner.Docker()
	if err != nil {
		a.note("stop failed", err.Error())
		return
	}
	stopped, err := docker.Stop(ctx)
	if err != nil {
		a.note("stop failed", err.Error())
		return
	}
	if stopped {
		a.note("proxy stopped", "the container stays on disk; Install / Repair starts it again")
	} else {
		a.note("proxy stopped", "nothing was running")
	}
}

// connection loads the proxy config and resolves the public host, caching
// the address for the rest of the session.
func (a *App) connection(ctx context.Context) (config.ProxyConfig, string, error) {
	cfg, err := a.Store.Load()
	if err != nil {
		return config.ProxyConfig{}, "", err
	}
	if host, ok := a.Hosts.Get("auto"); ok {
		return cfg, host, nil
	}
	host, err := a.Runner.Resolver.Resolve(ctx, "")
	if err != nil {
		return config.ProxyConfig{}, "", err
	}
	a.Hosts.Set("auto", host)
	return cfg, host, nil
}

func (a *App) noteConnectionError(err error) {
	if errors.Is(err, config.ErrConfigMissing) {
		a.note("no connection yet", "no proxy config found. run Install / Repair first.")
		return
	}
	a.note("connection failed", err.Error())
}

func (a *App) confirm(prompt string) bool {
	val := false
	if err := huh.NewConfirm().Title(prompt).Affirmative("Yes").Negative("No").Value(&val).Run(); err != nil {
		return false
	}
	return val
}

func (a *App) note(title, body string) {
	_ = huh.NewNote().Title(title).Description(body).Next(true).Run()
}

func isUserCancelled(err error) bool {
	if err == nil {
		return false
	}
	v := strings.ToLower(err.Error())
	return strings.Contains(v, "interrupt") || strings.Contains(v, "cancel") || strings.Contains(v, "abort")
}

func fallback(v, d string) string {
	if strings.TrimSpace(v) == "" {
		return d
	}
	return v
}
