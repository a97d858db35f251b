package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Aleks250483/triangels-tg-bridge/internal/cli"
	"github.com/Aleks250483/triangels-tg-bridge/internal/config"
	"github.com/Aleks250483/triangels-tg-bridge/internal/deps"
	"github.com/Aleks250483/triangels-tg-bridge/internal/dockerx"
	"github.com/Aleks250483/triangels-tg-bridge/internal/firewall"
	"github.com/Aleks250483/triangels-tg-bridge/internal/session"
	"github.com/Aleks250483/triangels-tg-bridge/internal/share"
	"github.com/Aleks250483/triangels-tg-bridge/internal/tui"
	"github.com/Aleks250483/triangels-tg-bridge/internal/version"
	"golang.org/x/term"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := cli.Parse(args)
	if err != nil {
		printErr(err)
		cli.PrintHelp()
		return cli.ExitUsage
	}

	if opts.Help {
		cli.PrintHelp()
		return cli.ExitSuccess
	}

	if opts.VersionOnly {
		fmt.Printf("tg-bridge v%s\n", version.AppVersion)
		return cli.ExitSuccess
	}

	dir := strings.TrimSpace(opts.ConfigDir)
	if dir == "" {
		dir = strings.TrimSpace(os.Getenv("TG_BRIDGE_CONFIG_DIR"))
	}
	store := config.NewStore(dir)
	gate := deps.NewGate()
	runner := &cli.Runner{
		Store:     store,
		Gate:      gate,
		Firewall:  firewall.NewManager(),
		Resolver:  share.NewResolver(),
		QR:        share.NewQR(gate),
		NewDocker: dockerx.New,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	isTTY := isTerminalFile(os.Stdin) && isTerminalFile(os.Stdout)
	if opts.Command == "" && isTTY {
		app := tui.New(runner, store, session.NewHostCache())
		if err := app.Run(ctx); err != nil {
			printErr(err)
			return cli.ExitFailure
		}
		return cli.ExitSuccess
	}

	code, err := runner.Run(ctx, opts)
	if err != nil {
		printErr(err)
	}
	return code
}

func printErr(err error) {
	fmt.Fprintf(os.Stderr, "[tg-bridge] ERROR: %v\n", err)
}

func isTerminalFile(f *os.File) bool {
	fd := f.Fd()
	// Guard against uintptr->int overflow (paranoia, but keeps scanners quiet).
	if fd > uintptr(^uint(0)>>1) {
		return false
	}
	return term.IsTerminal(int(fd))
}
