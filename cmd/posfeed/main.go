// Command posfeed connects to a restaurant POS backend's notification feed
// and streams role-scoped notifications to the terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"posfeed/internal/config"
	"posfeed/internal/connection"
	"posfeed/internal/presenter"
	"posfeed/internal/router"
	"posfeed/internal/session"
	"posfeed/internal/store"
	"posfeed/internal/transport"
	"posfeed/pkg/types"
)

type flags struct {
	configPath string
	logLevel   string
	url        string
	token      string
	secret     string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f := &flags{}

	app := &cli.Command{
		Name:  "posfeed",
		Usage: "Stream restaurant POS notifications to the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("POSFEED_CONFIG"),
				Destination: &f.configPath,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Sources:     cli.EnvVars("POSFEED_LOG_LEVEL"),
				Value:       "info",
				Destination: &f.logLevel,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			level, err := zerolog.ParseLevel(f.logLevel)
			if err != nil {
				return ctx, fmt.Errorf("parse log level: %w", err)
			}
			log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
				Level(level).
				With().Timestamp().Logger()
			return ctx, nil
		},
		Commands: []*cli.Command{
			listenCommand(f),
			tokenCommand(f),
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Error().Err(err).Msg("posfeed failed")
		os.Exit(1)
	}
}

func listenCommand(f *flags) *cli.Command {
	return &cli.Command{
		Name:  "listen",
		Usage: "Connect to the notification feed and print toasts",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "url",
				Usage:       "feed endpoint (overrides config)",
				Destination: &f.url,
			},
			&cli.StringFlag{
				Name:        "token",
				Usage:       "login token (overrides config)",
				Sources:     cli.EnvVars("POSFEED_AUTH_TOKEN"),
				Destination: &f.token,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := config.Load(f.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if f.url != "" {
				cfg.Server.URL = f.url
			}
			if f.token != "" {
				cfg.Auth.Token = f.token
			}
			if cfg.Auth.Token == "" {
				return fmt.Errorf("a login token is required (flag --token or config auth.token)")
			}

			sess, err := session.NewProvider(cfg.Auth.Secret).FromToken(cfg.Auth.Token)
			if err != nil {
				return fmt.Errorf("resolve session: %w", err)
			}

			notifications := store.New()
			notifications.SetOnChange(func(unread int) {
				log.Debug().Int("unread", unread).Msg("notification log changed")
			})

			mgr := connection.NewManager(
				transport.Dial(cfg.Transport.Options(), log.Logger),
				router.New(log.Logger),
				notifications,
				presenter.NewTerminal(os.Stdout, log.Logger),
				log.Logger,
			)

			if err := mgr.Connect(ctx, cfg.Server.URL, sess); err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer mgr.Disconnect()

			log.Info().Str("endpoint", cfg.Server.URL).Str("role", string(sess.Role)).Msg("listening")
			<-ctx.Done()

			entries, unread := notifications.Snapshot()
			log.Info().Int("total", len(entries)).Int("unread", unread).Msg("shutting down")
			return nil
		},
	}
}

func tokenCommand(f *flags) *cli.Command {
	var (
		user string
		role string
		ttl  time.Duration
	)
	return &cli.Command{
		Name:  "token",
		Usage: "Mint a development login token",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "secret",
				Usage:       "signing secret shared with the backend",
				Sources:     cli.EnvVars("POSFEED_AUTH_SECRET"),
				Destination: &f.secret,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "user",
				Usage:       "user id",
				Destination: &user,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "role",
				Usage:       "role (admin, cashier, kitchen, staff, other)",
				Destination: &role,
				Value:       string(types.RoleStaff),
			},
			&cli.DurationFlag{
				Name:        "ttl",
				Usage:       "token lifetime",
				Destination: &ttl,
				Value:       24 * time.Hour,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			token, err := session.NewProvider(f.secret).GenerateToken(user, types.Role(role), ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
}
