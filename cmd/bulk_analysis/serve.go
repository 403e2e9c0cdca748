package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ajaypag/guest-post-workflow-sub004/internal/bulkjob"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/server"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/server/ratelimit"
	"github.com/ajaypag/guest-post-workflow-sub004/internal/workflow"
)

// sessionFactory builds project controllers for the control API. The
// configured client applies to the configured project only.
func (a *app) sessionFactory() server.SessionFactory {
	return func(projectID, clientID, userID string, onProgress bulkjob.ProgressCallback) (*workflow.Controller, error) {
		if clientID == "" && projectID == a.cfg.ProjectID {
			clientID = a.cfg.ClientID
		}
		return workflow.New(a.client, a.controllerOptions(projectID, clientID, userID, onProgress))
	}
}

func (a *app) serverConfig(port int) server.Config {
	cfg := server.Config{
		Port:          port,
		Sessions:      a.sessionFactory(),
		DefaultUserID: a.cfg.UserID,
		JWT:           a.jwt,
		RateLimit:     ratelimit.LoadConfig(),
		Metrics:       a.metrics,
		Logger:        a.log,
	}
	if a.journal != nil {
		cfg.History = a.journal
	}
	return cfg
}

func init() {
	register(newServeCmd)
}

func newServeCmd(g *globalFlags) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the control API server",
		Long: `Start an HTTP server that hosts one controller session per project: filtering, selection,
bulk updates, jobs with progress over server-sent events, duplicate-aware adds, triage and
exports. Requests need a bearer token when JWT_SECRET is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cmd, g, appOptions{journal: true, metrics: true})
			if err != nil {
				return err
			}
			defer a.close()

			srv, err := server.New(a.serverConfig(port))
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}
			return srv.Start(ctx)
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "Port to listen on")
	return cmd
}
