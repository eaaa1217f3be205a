package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind        string
	port        int
	prefix      string
	profile     bool
	tlsCert     string
	tlsKey      string
	verbose     bool
	version     bool

	// idleLobbyTimeout reaps lobbies, in any state, with no
	// member/observer for this long.
	idleLobbyTimeout time.Duration

	// chatBacklog is the number of retained messages per chat channel
	// (global lobby-list chat, and each lobby's in-lobby chat).
	chatBacklog int

	// outboxHighWater is the per-connection outbound queue depth past
	// which a connection is declared unhealthy and torn down.
	outboxHighWater int

	// pingInterval/pongTimeout drive the connection manager's liveness
	// check (spec §4.1).
	pingInterval time.Duration
	pongTimeout  time.Duration

	// maxFrameBytes bounds a single wire frame (spec §4.1 "oversize frame").
	maxFrameBytes int
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.chatBacklog < 1 {
		return fmt.Errorf("invalid chat backlog (must be >= 1): %d", c.chatBacklog)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("MINIGAMES")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "minigames-server...",
		Short:         "An authoritative real-time session engine for small multiplayer games.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: MINIGAMES_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: MINIGAMES_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: MINIGAMES_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: MINIGAMES_PROFILE)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: MINIGAMES_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: MINIGAMES_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: MINIGAMES_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: MINIGAMES_VERSION)")
	fs.DurationVar(&cfg.idleLobbyTimeout, "idle-lobby-timeout", 30*time.Minute, "time before an empty lobby is reaped (env: MINIGAMES_IDLE_LOBBY_TIMEOUT)")
	fs.IntVar(&cfg.chatBacklog, "chat-backlog", 128, "messages retained per chat channel (env: MINIGAMES_CHAT_BACKLOG)")
	fs.IntVar(&cfg.outboxHighWater, "outbox-high-water", 256, "per-connection outbound queue depth before disconnect (env: MINIGAMES_OUTBOX_HIGH_WATER)")
	fs.DurationVar(&cfg.pingInterval, "ping-interval", 10*time.Second, "idle ping cadence per connection (env: MINIGAMES_PING_INTERVAL)")
	fs.DurationVar(&cfg.pongTimeout, "pong-timeout", 20*time.Second, "time to wait for a pong before closing (env: MINIGAMES_PONG_TIMEOUT)")
	fs.IntVar(&cfg.maxFrameBytes, "max-frame-bytes", 1<<20, "largest accepted wire frame, in bytes (env: MINIGAMES_MAX_FRAME_BYTES)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("minigames-server v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
