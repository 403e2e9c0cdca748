package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/api"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/auth"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/bulkjob"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/config"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/db"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/logger"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/metrics"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/workflow"
)

var errNoProject = errors.New("--project is required (flag or project_id in the config file)")

// app holds what every command needs, built once per invocation.
type app struct {
	cfg     config.Config
	log     logger.Logger
	client  *api.Client
	jwt     *auth.JWTService
	journal *db.DB
	metrics *metrics.Metrics
	out     io.Writer
}

// appOptions selects optional parts of the app.
type appOptions struct {
	journal bool
	metrics bool
}

func loadConfig(g *globalFlags) (config.Config, error) {
	cfg := &config.Config{}
	if g.configPath != "" {
		loaded, err := config.LoadConfig(g.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	// Flags win over the file.
	if g.apiURL != "" {
		cfg.APIBaseURL = g.apiURL
	}
	if g.projectID != "" {
		cfg.ProjectID = g.projectID
	}
	if g.clientID != "" {
		cfg.ClientID = g.clientID
	}
	if g.userID != "" {
		cfg.UserID = g.userID
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if g.verbose {
		cfg.Verbose = true
		cfg.LogLevel = "debug"
	}
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg.MergeWithDefaults(config.Config{}), nil
}

func newApp(ctx context.Context, cmd *cobra.Command, g *globalFlags, opts appOptions) (*app, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Console: true})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a := &app{cfg: cfg, log: log, out: cmd.OutOrStdout()}
	if opts.metrics {
		a.metrics = metrics.New()
	}

	jwtCfg, err := config.OptionalJWTConfig()
	if err != nil {
		return nil, err
	}
	if jwtCfg != nil {
		a.jwt = auth.NewJWTService(jwtCfg)
	}

	clientOpts := api.DefaultOptions(cfg.APIBaseURL)
	clientOpts.Timeout = cfg.RequestTimeout()
	clientOpts.RequestsPerSecond = cfg.RequestsPerSecond
	clientOpts.Logger = log
	clientOpts.Metrics = a.metrics
	switch {
	case cfg.APIToken != "":
		token := cfg.APIToken
		clientOpts.Token = func() (string, error) { return token, nil }
	case a.jwt != nil && cfg.UserID != "":
		clientOpts.Token = a.jwt.TokenSource(cfg.UserID)
	}
	a.client, err = api.NewClient(clientOpts)
	if err != nil {
		return nil, err
	}

	if opts.journal && cfg.DatabaseURL != "" {
		journal, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := journal.Migrate(ctx); err != nil {
			journal.Close()
			return nil, err
		}
		a.journal = journal
		log.Debug("job journal enabled")
	}
	return a, nil
}

// bulkJournal returns the journal as an interface, nil when disabled.
func (a *app) bulkJournal() bulkjob.Journal {
	if a.journal == nil {
		return nil
	}
	return a.journal
}

func (a *app) controllerOptions(projectID, clientID, userID string, onProgress bulkjob.ProgressCallback) workflow.Options {
	return workflow.Options{
		ProjectID:       projectID,
		ClientID:        clientID,
		UserID:          userID,
		PageSize:        a.cfg.PageSize,
		LocationCode:    a.cfg.LocationCode,
		LanguageCode:    a.cfg.LanguageCode,
		PollInterval:    a.cfg.PollInterval(),
		MaxPollAttempts: a.cfg.MaxPollAttempts,
		MaxPollDuration: a.cfg.MaxPollDuration(),
		// A zero value falls back to the runner default.
		RefetchConcurrency: a.cfg.RefetchConcurrency,
		Journal:            a.bulkJournal(),
		OnProgress:         onProgress,
		Logger:             a.log,
		Metrics:            a.metrics,
	}
}

// open creates and loads the configured project's controller.
func (a *app) open(ctx context.Context, onProgress bulkjob.ProgressCallback) (*workflow.Controller, error) {
	if a.cfg.ProjectID == "" {
		return nil, errNoProject
	}
	c, err := workflow.New(a.client, a.controllerOptions(a.cfg.ProjectID, a.cfg.ClientID, a.cfg.UserID, onProgress))
	if err != nil {
		return nil, err
	}
	if err := c.Reload(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to load project %s: %w", a.cfg.ProjectID, err)
	}
	return c, nil
}

func (a *app) close() {
	if a.journal != nil {
		a.journal.Close()
	}
	_ = a.log.Sync()
}
