package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/usernameweb/acctdash/internal/api"
	"github.com/usernameweb/acctdash/internal/auth"
	"github.com/usernameweb/acctdash/internal/config"
	"github.com/usernameweb/acctdash/internal/duration"
	"github.com/usernameweb/acctdash/internal/export"
	"github.com/usernameweb/acctdash/internal/query"
	"github.com/usernameweb/acctdash/internal/scheduler"
)

// revocationTTL bounds how long signed-out tokens are remembered.
const revocationTTL = 24 * time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with scheduled exports",
	Long: `Run acctdash as a long-running daemon serving the dashboard API and
running scheduled exports.

The daemon runs in the foreground and performs:
  - HTTP API server on configured port (default: 8080)
  - Scheduled exports of all rows matching each job's filters

Configure schedules in config.toml:
  [[exports]]
  name = "nightly"
  schedule = "0 2 * * *"   # 2am daily (cron format)
  format = "xlsx"
  group = "batch-1"
  enabled = true

Cron format: minute hour day-of-month month day-of-week
  Examples:
    0 2 * * *     = 2:00 AM daily
    */15 * * * *  = Every 15 minutes
    0 0 * * 0     = Midnight on Sundays

Use Ctrl+C to stop the daemon gracefully.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Validate security posture before doing any work
	if err := cfg.Server.ValidateSecure(); err != nil {
		return err
	}
	if err := MustBeLocal("serve"); err != nil {
		return err
	}

	cls, err := newClassifier(cfg)
	if err != nil {
		return err
	}
	dest, err := exportDestination(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	profile := exportProfile(cfg)

	s, err := openLocalStore(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	guard, err := buildGuard(cmd.Context(), cfg.Server, cfg.Account.Email)
	if err != nil {
		return err
	}

	exportFunc := func(ctx context.Context, job config.ExportSchedule) (string, error) {
		return runScheduledExport(ctx, s, cls, profile, dest, job)
	}
	sched := scheduler.New(exportFunc).WithLogger(logger)

	count, errs := sched.AddExportsFromConfig(cfg)
	for _, err := range errs {
		logger.Error("failed to schedule export", "error", err)
	}

	apiServer := api.NewServer(cfg, s, sched, guard, logger,
		api.WithClassifier(cls),
		api.WithExportProfile(profile))

	g, ctx := errgroup.WithContext(cmd.Context())

	sched.Start()

	g.Go(func() error {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("API server shutdown error", "error", err)
		}

		// Wait for running exports to finish (with timeout)
		select {
		case <-sched.Stop().Done():
		case <-time.After(30 * time.Second):
			logger.Warn("shutdown timed out waiting for exports")
		}
		return nil
	})

	bindAddr := cfg.Server.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	fmt.Printf("acctdash daemon started\n")
	fmt.Printf("  API server: http://%s\n", net.JoinHostPort(bindAddr, strconv.Itoa(cfg.Server.APIPort)))
	fmt.Printf("  Scheduled exports: %d\n", count)
	fmt.Printf("  Database: %s\n", redactDSN(cfg.DatabaseDSN()))
	for _, status := range sched.Status() {
		fmt.Printf("  %s: next export at %s\n", status.Name, status.NextRun.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")

	err = g.Wait()
	fmt.Println("Shutdown complete.")
	return err
}

// buildGuard assembles the API authenticator from [server]. It returns nil
// when neither an API key nor an OIDC issuer is configured.
func buildGuard(ctx context.Context, sc config.ServerConfig, owner string) (*auth.Guard, error) {
	var chain auth.Chain
	if sc.APIKey != "" {
		if owner == "" {
			logger.Warn("[server] api_key is set but [account] email is empty; api key requests will be rejected")
		}
		chain = append(chain, auth.NewAPIKeyVerifier(sc.APIKey, owner))
	}
	if sc.OIDCIssuer != "" {
		v, err := auth.NewOIDCVerifier(ctx, sc.OIDCIssuer, sc.OIDCClientID)
		if err != nil {
			return nil, err
		}
		chain = append(chain, v)
	}
	if len(chain) == 0 {
		return nil, nil
	}
	return &auth.Guard{Verifier: chain, Revocations: auth.NewRevocations(revocationTTL)}, nil
}

// runScheduledExport exports every row matching job's filters into a
// per-run location under dest and returns where the file was stored.
func runScheduledExport(ctx context.Context, backend query.Backend, cls *duration.Classifier,
	profile export.Profile, dest export.Destination, job config.ExportSchedule) (string, error) {
	if job.Owner == "" {
		return "", fmt.Errorf("export %s: no owner (set owner or [account] email)", job.Name)
	}
	format, err := export.ParseFormat(job.Format)
	if job.Format == "" {
		format, err = export.FormatXLSX, nil
	}
	if err != nil {
		return "", err
	}
	bucket, err := duration.ParseBucket(job.Duration)
	if err != nil {
		return "", err
	}

	st := query.NewFilterState(query.DefaultPageSize)
	st.SetSearch(job.Search)
	st.SetGroup(job.Group)
	st.SetTag(job.Tag)
	st.SetDuration(bucket)

	res, err := export.NewExporter(backend, cls).
		WithProfile(profile).
		WithDestination(export.RunDestination{Dest: dest, Job: job.Name}).
		WithLogger(logger.With("export", job.Name)).
		Export(ctx, job.Owner, export.Request{Format: format, Filters: st, All: true})
	var empty *export.ExportEmptyError
	if errors.As(err, &empty) {
		logger.Info("scheduled export matched no accounts", "export", job.Name)
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return res.Location, nil
}
