// Command rpchost serves JSON-RPC over HTTP, either dispatching locally or
// relaying to a plugin host, and can run the plugin host itself.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/mnehpets/rpchost/config"
	"github.com/mnehpets/rpchost/core"
	"github.com/mnehpets/rpchost/middleware"
)

// Globals are flags shared by every command.
type Globals struct {
	Config   string `help:"YAML or TOML config file" type:"path" env:"RPCHOST_CONFIG"`
	EnvFile  string `name:"env-file" help:"Optional .env file" default:".env"`
	LogLevel string `name:"log-level" help:"Override log.level (debug, info, warn, error)"`
}

// CLI represents the command line interface structure using Kong
type CLI struct {
	Globals

	Serve        ServeCmd        `cmd:"" default:"withargs" help:"Serve JSON-RPC over HTTP"`
	Plugin       PluginCmd       `cmd:"" help:"Run the plugin host on the plugin channel"`
	HashPassword HashPasswordCmd `cmd:"" name:"hash-password" help:"Print a bcrypt hash for auth.password_hash"`
	Version      VersionCmd      `cmd:"" help:"Show version information"`
}

// ServeCmd runs the HTTP host.
type ServeCmd struct {
	Mode   string `help:"local or gateway"`
	Listen string `help:"HTTP listen address"`
}

// PluginCmd runs the plugin host.
type PluginCmd struct {
	Network string   `help:"tcp or unix"`
	Address string   `help:"Plugin channel address"`
	Seed    []string `help:"Preload torrents as infoHash=name" placeholder:"HASH=NAME"`
}

// HashPasswordCmd hashes a password read from stdin.
type HashPasswordCmd struct{}

// VersionCmd prints the version.
type VersionCmd struct{}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("rpchost"),
		kong.Description("JSON-RPC host with a plugin gateway"),
		kong.Vars{"version": core.Version},
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}

// load reads the configuration, lets the command adjust it, validates it and
// builds the logger.
func (g *Globals) load(override func(*config.Config)) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(g.Config, g.EnvFile)
	if err != nil {
		return nil, nil, err
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if override != nil {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func (s *ServeCmd) override(cfg *config.Config) {
	if s.Mode != "" {
		cfg.Mode = s.Mode
	}
	if s.Listen != "" {
		cfg.Listen = s.Listen
	}
}

// Run implements the serve command.
func (s *ServeCmd) Run(g *Globals) error {
	cfg, logger, err := g.load(s.override)
	if err != nil {
		return err
	}
	a, err := newHostApp(cfg, logger)
	if err != nil {
		return err
	}
	if err := a.server.Open(); err != nil {
		return err
	}
	logger.Info("rpchost listening", "addr", a.server.Addr().String(), "mode", cfg.Mode, "version", core.Version)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signals)

	for sig := range signals {
		if sig != syscall.SIGHUP {
			logger.Info("shutting down", "signal", sig.String())
			break
		}
		next, _, err := g.load(s.override)
		if err != nil {
			logger.Error("config reload failed", "error", err)
			continue
		}
		if err := a.reload(context.Background(), next); err != nil {
			logger.Error("config reload failed", "error", err)
		}
	}
	return a.server.Close()
}

func (p *PluginCmd) override(cfg *config.Config) {
	if p.Network != "" {
		cfg.Plugin.Network = p.Network
	}
	if p.Address != "" {
		cfg.Plugin.Address = p.Address
	}
}

// Run implements the plugin command.
func (p *PluginCmd) Run(g *Globals) error {
	cfg, logger, err := g.load(p.override)
	if err != nil {
		return err
	}
	srv, session, err := newPluginServer(cfg, logger)
	if err != nil {
		return err
	}
	for _, s := range p.Seed {
		hash, name, _ := strings.Cut(s, "=")
		if err := session.Add(hash, name); err != nil {
			return fmt.Errorf("seed %q: %w", s, err)
		}
	}
	if err := srv.Open(); err != nil {
		return err
	}
	logger.Info("plugin host listening", "network", cfg.Plugin.Network, "addr", srv.Addr().String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info("shutting down")
	return srv.Close()
}

// Run implements the hash-password command.
func (h *HashPasswordCmd) Run() error {
	return hashPassword(os.Stdin, os.Stdout)
}

func hashPassword(r io.Reader, w io.Writer) error {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("empty password")
	}
	hash, err := middleware.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, hash)
	return err
}

// Run implements the version command.
func (v *VersionCmd) Run() error {
	fmt.Printf("rpchost version %s\n", core.Version)
	return nil
}
