// Package cli holds the dingbot command tree.
package cli

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/pathakanu/dingbot/internal/config"
	"github.com/pathakanu/dingbot/internal/database"
	"github.com/pathakanu/dingbot/internal/history"
	"github.com/pathakanu/dingbot/internal/mem0"
	"github.com/pathakanu/dingbot/internal/notify"
	myopenai "github.com/pathakanu/dingbot/internal/openai"
	"github.com/pathakanu/dingbot/internal/reminder"
	"github.com/pathakanu/dingbot/internal/scheduler"
)

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "dingbot",
		Short:         "DingTalk chat bot with long-term memory and periodic reminders",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "optional YAML config file")

	load := func() (*app, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		return newApp(cfg)
	}

	root.AddCommand(
		newServeCmd(load),
		newRememberCmd(load),
		newForgetCmd(load),
		newMemoriesCmd(load),
		newCycleCmd(load),
	)
	return root
}

// app holds the wired collaborators shared by every subcommand.
type app struct {
	cfg       *config.Config
	logger    *log.Logger
	db        *gorm.DB
	reminders *reminder.Store
	history   *history.Store
	llm       *myopenai.Client
	memory    *mem0.Client
	notifier  notify.Notifier
}

func newApp(cfg *config.Config) (*app, error) {
	logger := log.New(os.Stdout, "[dingbot] ", log.LstdFlags|log.Lshortfile)

	db, err := database.New(cfg.DatabaseURL, cfg.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}

	llm := myopenai.New(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel)
	if !llm.Enabled() {
		logger.Printf("llm: no API key configured, using template replies")
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		reminders: reminder.NewStore(db),
		history:   history.NewStore(db, nil),
		llm:       llm,
		memory:    mem0.New(cfg.Mem0APIKey, cfg.Mem0BaseURL, logger),
		notifier:  notify.FromConfig(cfg, logger),
	}, nil
}

func (a *app) scheduler() (*scheduler.Scheduler, error) {
	factsInterval := a.cfg.FactsInterval()
	if factsInterval > 0 && !a.llm.Enabled() {
		a.logger.Printf("scheduler: fact cycle disabled, it needs a language model")
		factsInterval = 0
	}
	return scheduler.New(scheduler.Deps{
		Reminders:     a.reminders,
		History:       a.history,
		Writer:        a.llm,
		Notifier:      a.notifier,
		Logger:        a.logger,
		CheckInterval: a.cfg.CheckInterval(),
		FactsInterval: factsInterval,
		Location:      a.cfg.LocalTimezone,
	})
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
