package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/backstage/dairy/internal/metrics"
	"example.com/backstage/dairy/internal/services"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background refresh worker",
	Long: `Start the background worker that periodically refreshes assignments
for the configured agents, keeping the last good snapshot in Redis and
dropping trip handles of settled deliveries.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	agents := a.cfg.Worker.AgentIDs
	if len(agents) == 0 && a.session.AgentID() != "" {
		agents = []string{a.session.AgentID()}
	}
	if len(agents) == 0 {
		log.Warn().Msg("No agents configured, refreshing unscoped assignments only")
		agents = []string{""}
	}

	interval := a.cfg.Worker.RefreshInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	svc := a.services()
	refresh := func() {
		for _, agentID := range agents {
			rows := svc.Assignments.Refresh(ctx, refreshQuery(agentID, a.cfg.Worker.LookbackDays, time.Now()))
			log.Info().Str("agent_id", agentID).Int("assignments", len(rows)).Msg("Assignments refreshed")
		}
		expireTrips(a.trips, a.cfg.Worker.LookbackDays, time.Now())
		a.metrics.SetGauge(metrics.OpenTrips, int64(a.trips.Len()))
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Dur("interval", interval).Strs("agents", agents).Msg("Starting assignment refresh job")

		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(refresh),
			gocron.WithStartAt(gocron.WithStartImmediately()),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return err
		}

		scheduler.Start()

		// Wait for context cancellation
		<-ctx.Done()

		return scheduler.Shutdown()
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}

// refreshQuery covers today and the lookback days before it
func refreshQuery(agentID string, lookbackDays int, now time.Time) services.AssignmentQuery {
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	from := to
	if lookbackDays > 0 {
		from = to.AddDate(0, 0, -lookbackDays)
	}
	return services.AssignmentQuery{From: &from, To: &to, AgentID: agentID}
}

// expireTrips forgets trips from before the refresh window, keeping one
// extra day so a visit that runs past midnight can still be completed
func expireTrips(trips *services.TripTracker, lookbackDays int, now time.Time) int {
	q := refreshQuery("", lookbackDays, now)
	n := trips.Expire(q.From.AddDate(0, 0, -1))
	if n > 0 {
		log.Debug().Int("expired", n).Msg("Forgot trips from past days")
	}
	return n
}
