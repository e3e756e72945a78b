package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/recyconnect/notify/internal/api"
	"github.com/recyconnect/notify/internal/channel"
	"github.com/recyconnect/notify/internal/config"
	"github.com/recyconnect/notify/internal/session"
	"github.com/recyconnect/notify/internal/store"
	"github.com/recyconnect/notify/internal/tui"
)

type appEnv struct {
	cfg   *config.Config
	creds *session.Store
	api   *api.Client
}

func main() {
	ctx := context.Background()

	var (
		env      appEnv
		logLevel string
		logFile  string
	)

	app := &cli.Command{
		Name:  "notify",
		Usage: "RecyConnect live notifications in your terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Sources:     cli.EnvVars("RECY_NOTIFY_LOG_LEVEL"),
				Value:       "info",
				Destination: &logLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "write logs to a file instead of stderr",
				Sources:     cli.EnvVars("RECY_NOTIFY_LOG_FILE"),
				Destination: &logFile,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			if err := setupLogger(logLevel, logFile); err != nil {
				return ctx, err
			}

			cfg, err := config.Load()
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}

			creds, err := session.Open(cfg.Keyring.ServiceName, cfg.Keyring.FileDir)
			if err != nil {
				return ctx, fmt.Errorf("open credential store: %w", err)
			}

			env = appEnv{
				cfg:   cfg,
				creds: creds,
				api:   api.New(cfg.API.BaseURL, cfg.API.Timeout, creds),
			}
			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "authenticate and persist the credential",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Usage: "account email", Required: true},
					&cli.StringFlag{Name: "password", Usage: "account password (prompted if omitted)"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return runLogin(ctx, &env, c.String("email"), c.String("password"))
				},
			},
			{
				Name:  "logout",
				Usage: "remove the persisted credential",
				Action: func(ctx context.Context, c *cli.Command) error {
					if err := env.creds.Clear(); err != nil {
						return err
					}
					fmt.Println("logged out")
					return nil
				},
			},
			{
				Name:  "status",
				Usage: "show the signed-in account and unread count",
				Action: func(ctx context.Context, c *cli.Command) error {
					return runStatus(ctx, &env)
				},
			},
			{
				Name:  "run",
				Usage: "open the live notification feed",
				Action: func(ctx context.Context, c *cli.Command) error {
					return runFeed(ctx, &env, logFile != "")
				},
			},
		},
		// Default action opens the feed, like launching the app signed in.
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() > 0 {
				return fmt.Errorf("unknown command %q. Run 'notify --help' for usage", c.Args().First())
			}
			return runFeed(ctx, &env, logFile != "")
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func setupLogger(level, file string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q", level)
	}
	zerolog.SetGlobalLevel(lvl)

	var out io.Writer = os.Stderr
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		out = f
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	return nil
}

func runLogin(ctx context.Context, env *appEnv, email, password string) error {
	if password == "" {
		fmt.Fprint(os.Stderr, "password: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		password = string(raw)
	}

	cred, err := env.api.Login(ctx, email, password)
	if err != nil {
		return err
	}
	if err := env.creds.SaveCredential(cred.Token, cred.Role); err != nil {
		return err
	}

	user, err := env.api.Me(ctx)
	if err != nil {
		// Credential is stored; the greeting is best-effort.
		log.Warn().Err(err).Msg("could not fetch profile after login")
		fmt.Println("logged in")
		return nil
	}
	fmt.Printf("logged in as %s (%s)\n", user.Name, user.Role)
	return nil
}

func runStatus(ctx context.Context, env *appEnv) error {
	identity, err := env.creds.Identity()
	if err != nil {
		return fmt.Errorf("not logged in: run 'notify login' first")
	}

	fmt.Printf("user:   %s\nrole:   %s\n", identity.UserID, identity.Role)

	user, err := env.api.Me(ctx)
	if err != nil {
		fmt.Printf("server: unreachable (%v)\n", err)
		return nil
	}
	unread, err := env.api.UnreadCount(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("name:   %s\npoints: %d\nrank:   #%d\nunread: %d\n", user.Name, user.EcoPoints, user.Rank, unread)
	return nil
}

func runFeed(ctx context.Context, env *appEnv, keepLogs bool) error {
	identity, err := env.creds.Identity()
	if err != nil {
		return fmt.Errorf("not logged in: run 'notify login' first")
	}
	token, err := env.creds.Token()
	if err != nil {
		return err
	}

	// Logs on stderr would tear up the alternate screen.
	if !keepLogs {
		log.Logger = log.Output(io.Discard)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := store.New(env.api, log.Logger)
	bridge := tui.NewBridge()
	st.Subscribe(bridge.OnChange)
	st.OnToast(bridge.OnToast)

	ch := channel.New(env.cfg.Channel.URL, env.cfg.Channel.ReconnectDelay, st, log.Logger)

	// Initial fetch and the live subscription start back-to-back, no
	// barrier between them; the store merges pushes that land while the
	// fetch is still in flight.
	go func() {
		if err := st.Initialize(ctx); err != nil {
			log.Error().Err(err).Msg("feed started without server state")
		}
	}()
	ch.Connect(ctx, identity.UserID, token)

	toasts := tui.NewToastController(env.cfg.UI.ToastTTL, env.cfg.UI.MaxToasts)
	model := tui.NewModel(st, bridge, toasts, st.Snapshot())

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, runErr := p.Run()

	ch.Disconnect()
	st.Teardown()
	return runErr
}
