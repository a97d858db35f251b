package cli

import (
	"github.com/spf13/pflag"
)

type Options struct {
	Command     string
	Args        []string
	ConfigDir   string
	Port        int
	Image       string
	NoFirewall  bool
	Tail        int
	NoFollow    bool
	VersionOnly bool
	Help        bool
}

func DefaultOptions() Options {
	return Options{
		Tail: 100,
	}
}

func Parse(args []string) (Options, error) {
	opts := DefaultOptions()
	fs := pflag.NewFlagSet("tg-bridge", pflag.ContinueOnError)

	fs.StringVar(&opts.ConfigDir, "config-dir", opts.ConfigDir, "Config directory")
	fs.IntVar(&opts.Port, "port", 0, "External proxy port (first install only)")
	fs.StringVar(&opts.Image, "image", "", "Proxy image reference (first install only)")
	fs.BoolVar(&opts.NoFirewall, "no-firewall", false, "Skip firewall changes")
	fs.IntVar(&opts.Tail, "tail", opts.Tail, "Log lines to print before following")
	fs.BoolVar(&opts.NoFollow, "no-follow", false, "Print recent logs and exit")
	fs.BoolVar(&opts.VersionOnly, "version", false, "Print version")
	fs.BoolVarP(&opts.Help, "help", "h", false, "Show help")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	rest := fs.Args()
	if len(rest) > 0 {
		opts.Command = rest[0]
		opts.Args = rest[1:]
	}

	return opts, nil
}

func NormalizeCommand(v string) (string, bool) {
	switch v {
	case "", "install", "status", "logs", "stop", "link", "qr", "update", "version", "help":
		return v, true
	default:
		return "", false
	}
}
