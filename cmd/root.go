// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v2"

	"sharerelay/config"
	"sharerelay/internal/core"
	"sharerelay/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X sharerelay/cmd.version=2.0.0"
var version = "0.3.0" //nolint:gochecknoglobals

// stdout receives --version and --dry-run output.
var stdout io.Writer = os.Stdout //nolint:gochecknoglobals

// flags holds the raw flag values.  Only flags the user actually set
// are applied over the file and environment layers.
type flags struct {
	configFile string
	watch      bool
	dryRun     bool
	verbose    int
	logFormat  string

	controlAddr        string
	streamAddr         string
	idleTimeout        time.Duration
	writeTimeout       time.Duration
	viewerWriteTimeout time.Duration

	host         string
	controlPort  int
	streamPort   int
	user         string
	secret       string
	replyTimeout time.Duration

	directory  string
	sqlitePath string
	redisAddr  string
	inviteSeed string

	adminAddr string
	rateLimit float64

	showVersion bool
	showHelp    bool
}

func newFlagSet(f *flags) *flag.FlagSet {
	fs := flag.NewFlagSet("sharerelay", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	// ── general ──────────────────────────────────────────────────
	fs.StringVarP(&f.configFile, "config", "f", "", "YAML config file")
	fs.BoolVar(&f.watch, "watch", false, "Reload the log level when the config file changes (serve)")
	fs.BoolVar(&f.dryRun, "dry-run", false, "Validate and print the resolved config, then exit")
	fs.CountVarP(&f.verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.StringVar(&f.logFormat, "log-format", util.FormatConsole, "Log format: console or json")

	// ── server ───────────────────────────────────────────────────
	fs.StringVar(&f.controlAddr, "control-addr", "", "Control listen address (serve)")
	fs.StringVar(&f.streamAddr, "stream-addr", "", "Stream listen address (serve)")
	fs.DurationVar(&f.idleTimeout, "idle-timeout", 0, "Drop silent control connections after this long (0 = never)")
	fs.DurationVar(&f.writeTimeout, "write-timeout", 0, "Control write deadline (0 = none)")
	fs.DurationVar(&f.viewerWriteTimeout, "viewer-write-timeout", 0, "Drop viewers that stall a write this long (0 = never)")

	// ── client ───────────────────────────────────────────────────
	fs.StringVarP(&f.host, "host", "H", "", "Relay host")
	fs.IntVar(&f.controlPort, "control-port", 0, "Relay control port")
	fs.IntVar(&f.streamPort, "stream-port", 0, "Relay stream port")
	fs.StringVarP(&f.user, "user", "u", "", "Username")
	fs.StringVarP(&f.secret, "secret", "s", "", "Share password")
	fs.DurationVar(&f.replyTimeout, "reply-timeout", 0, "How long to wait for a server reply")

	// ── directory ────────────────────────────────────────────────
	fs.StringVar(&f.directory, "directory", "", "User directory backend: memory, sqlite or redis")
	fs.StringVar(&f.sqlitePath, "sqlite-path", "", "SQLite database file")
	fs.StringVar(&f.redisAddr, "redis-addr", "", "Redis address")
	fs.StringVar(&f.inviteSeed, "invite-seed", "", "Seed mixed into invitation codes")

	// ── admin ────────────────────────────────────────────────────
	fs.StringVar(&f.adminAddr, "admin-addr", "", `Admin HTTP address ("" disables)`)
	fs.Float64Var(&f.rateLimit, "rate-limit", 0, "Admin requests per second per client (0 disables)")

	fs.BoolVar(&f.showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&f.showHelp, "help", "h", false, "Show this help")
	return fs
}

// Execute parses args and runs the selected sharerelay mode.
func Execute(ctx context.Context, args []string) error {
	var f flags
	fs := newFlagSet(&f)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if f.showHelp || len(args) == 0 {
		printUsage(fs)
		return nil
	}
	if f.showVersion {
		fmt.Fprintf(stdout, "sharerelay %s\n", version)
		return nil
	}

	cfg, err := resolve(fs, &f)
	if err != nil {
		return err
	}

	if needsSecret(cfg) {
		secret, ok, err := promptSecret(cfg.Mode)
		if err != nil {
			return err
		}
		if ok {
			cfg.Client.Secret = secret
		}
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.DryRun {
		return printConfig(cfg)
	}

	logger := util.NewLogger(cfg.Log.Verbose, cfg.Log.Format)
	defer logger.Sync() //nolint:errcheck

	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	return mode.Run(ctx)
}

// resolve layers defaults, the config file, the environment and the
// flags that were set, in that order.
func resolve(fs *flag.FlagSet, f *flags) (*config.Config, error) {
	cfg := config.Default()

	if f.configFile != "" {
		if err := config.LoadFile(f.configFile, cfg); err != nil {
			return nil, err
		}
		cfg.ConfigFile = f.configFile
	}
	config.LoadFromEnv(cfg)

	if err := positional(cfg, fs.Args()); err != nil {
		return nil, err
	}

	set := fs.Changed
	if set("watch") {
		cfg.Watch = f.watch
	}
	cfg.DryRun = f.dryRun
	if set("verbose") {
		cfg.Log.Verbose = f.verbose
	}
	if set("log-format") {
		cfg.Log.Format = f.logFormat
	}

	if set("control-addr") {
		cfg.Server.ControlAddr = f.controlAddr
	}
	if set("stream-addr") {
		cfg.Server.StreamAddr = f.streamAddr
	}
	if set("idle-timeout") {
		cfg.Server.IdleTimeout = f.idleTimeout
	}
	if set("write-timeout") {
		cfg.Server.WriteTimeout = f.writeTimeout
	}
	if set("viewer-write-timeout") {
		cfg.Server.ViewerWriteTimeout = f.viewerWriteTimeout
	}

	if set("host") {
		cfg.Client.Host = f.host
	}
	if set("control-port") {
		cfg.Client.ControlPort = f.controlPort
	}
	if set("stream-port") {
		cfg.Client.StreamPort = f.streamPort
	}
	if set("user") {
		cfg.Client.Username = f.user
	}
	if set("secret") {
		cfg.Client.Secret = f.secret
	}
	if set("reply-timeout") {
		cfg.Client.ReplyTimeout = f.replyTimeout
	}

	if set("directory") {
		cfg.Directory.Backend = f.directory
	}
	if set("sqlite-path") {
		cfg.Directory.SQLitePath = f.sqlitePath
	}
	if set("redis-addr") {
		cfg.Directory.Redis.Address = f.redisAddr
	}
	if set("invite-seed") {
		cfg.Directory.InviteSeed = f.inviteSeed
	}

	if set("admin-addr") {
		cfg.Admin.Addr = f.adminAddr
	}
	if set("rate-limit") {
		cfg.Admin.RateLimit.RequestsPerSecond = f.rateLimit
		cfg.Admin.RateLimit.Enabled = f.rateLimit > 0
	}
	return cfg, nil
}

// positional reads "<mode> [target]".
func positional(cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("mode required (use --help for usage)")
	}
	cfg.Mode = args[0]
	rest := args[1:]

	if cfg.Mode == config.ModeView {
		if len(rest) == 0 {
			return fmt.Errorf("view: target user required")
		}
		cfg.Client.Target, rest = rest[0], rest[1:]
	}
	if len(rest) > 0 {
		return fmt.Errorf("%s: unexpected argument %q", cfg.Mode, rest[0])
	}
	return nil
}

func needsSecret(cfg *config.Config) bool {
	return (cfg.Mode == config.ModeShare || cfg.Mode == config.ModeView) &&
		cfg.Client.Secret == "" && !cfg.DryRun
}

func printConfig(cfg *config.Config) error {
	shown := *cfg
	if shown.Client.Secret != "" {
		shown.Client.Secret = "********"
	}
	if shown.Directory.Redis.Password != "" {
		shown.Directory.Redis.Password = "********"
	}
	out, err := yaml.Marshal(&shown)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "# sharerelay %s (dry run)\n", cfg.Mode)
	_, err = stdout.Write(out)
	return err
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `sharerelay – screen-share relay v%s

Relays one publisher's screen stream to any number of viewers.

Usage:
  sharerelay serve [options]                      Run the relay
  sharerelay shares [options]                     List active shares
  sharerelay share -u <user> [options] < stream   Publish stdin
  sharerelay view <user> -u <me> [options]        Write a share to stdout
  sharerelay invite -u <user> [options]           Issue an invitation code

Options:
`, version)
	fs.SetOutput(os.Stderr)
	fs.PrintDefaults()
	fs.SetOutput(io.Discard)
	fmt.Fprintf(os.Stderr, `
Examples:
  sharerelay serve -v                                   Relay on :9999 and :10002
  sharerelay serve --directory sqlite --admin-addr :8080
  ffmpeg ... -f mpegts - | sharerelay share -H relay -u alice -s pw
  sharerelay view alice -H relay -u bob -s pw | ffplay -
  sharerelay invite -u carol --directory sqlite --invite-seed s3cret
`)
}
