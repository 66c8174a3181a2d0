package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/pathakanu/dingbot/internal/bot"
)

func newServeCmd(load func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and the reminder scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.close()

			sched, err := a.scheduler()
			if err != nil {
				return err
			}
			if err := sched.Start(); err != nil {
				return err
			}

			gin.SetMode(gin.ReleaseMode)
			dingBot := bot.New(bot.Deps{
				Reminders: a.reminders,
				History:   a.history,
				Memory:    a.memory,
				Replier:   a.llm,
				Notifier:  a.notifier,
				Logger:    a.logger,
				AppSecret: a.cfg.AppSecret,
				Location:  a.cfg.LocalTimezone,
			})

			server := &http.Server{
				Addr:              ":" + a.cfg.Port,
				Handler:           dingBot.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Printf("server starting on :%s", a.cfg.Port)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			select {
			case <-ctx.Done():
				a.logger.Println("shutting down...")
			case err := <-errCh:
				if err != nil {
					a.logger.Printf("server error: %v", err)
					sched.Stop()
					return err
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				a.logger.Printf("server shutdown error: %v", err)
			}
			sched.Stop()
			return nil
		},
	}
}
