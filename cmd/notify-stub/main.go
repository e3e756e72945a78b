// notify-stub runs the in-memory stand-in for the RecyConnect backend so
// the notifier can be developed and demoed without the real service.
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

	"github.com/recyconnect/notify/internal/stubserver"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	app := &cli.Command{
		Name:  "notify-stub",
		Usage: "in-memory RecyConnect backend stub for local development",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "listen address",
				Sources: cli.EnvVars("RECY_STUB_ADDR"),
				Value:   ":8080",
			},
			&cli.StringFlag{
				Name:    "secret",
				Usage:   "token signing secret",
				Sources: cli.EnvVars("RECY_STUB_SECRET"),
			},
			&cli.DurationFlag{
				Name:    "demo-interval",
				Usage:   "how often to fabricate a demo notification (0 disables)",
				Sources: cli.EnvVars("RECY_STUB_DEMO_INTERVAL"),
				Value:   20 * time.Second,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := stubserver.New(stubserver.Options{Secret: c.String("secret")})

			go srv.RunDemo(ctx, c.Duration("demo-interval"))

			go func() {
				addr := c.String("addr")
				log.Info().Str("addr", addr).Msg("stub backend listening")
				if err := srv.Start(addr); err != nil {
					log.Info().Msg("stub backend stopped")
				}
			}()

			<-ctx.Done()
			log.Info().Msg("shutting down gracefully...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
