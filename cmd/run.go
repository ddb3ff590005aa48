package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Ashfaaq98/opencti-sync/internal/bus"
	"github.com/Ashfaaq98/opencti-sync/internal/destination"
	"github.com/Ashfaaq98/opencti-sync/internal/logger"
	"github.com/Ashfaaq98/opencti-sync/internal/pipeline"
	"github.com/Ashfaaq98/opencti-sync/internal/retry"
	"github.com/Ashfaaq98/opencti-sync/internal/source"
	"github.com/Ashfaaq98/opencti-sync/internal/state"
	"github.com/Ashfaaq98/opencti-sync/internal/stix"
	"github.com/Ashfaaq98/opencti-sync/internal/trigger"
)

var runOnce bool

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync connector",
	Long: `Run executes the import pipeline: observables first, then indicators
with based-on relationships.

By default the connector loops, sleeping CONNECTOR_DURATION_PERIOD between
runs and honoring refresh/reset trigger files dropped into the trigger
directory. With --once it performs a single run and exits.

Examples:
  # Run on the configured interval
  opencti-sync run

  # Single run, then exit
  opencti-sync run --once`,
	RunE: runConnector,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runOnce, "once", false, "Perform a single run and exit")
}

func runConnector(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()

	log := logger.New(cfg.Log.Level)

	if err := cfg.Validate(); err != nil {
		return err
	}

	retryPolicy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Delay:       cfg.Retry.Delay,
	}

	sourceClient, err := source.NewClient(source.Config{
		URL:          cfg.Source.URL,
		Token:        cfg.Source.Token,
		PageSize:     cfg.Source.PageSize,
		Cooldown:     cfg.Source.Cooldown,
		RateLimitRPS: cfg.Source.RateLimitRPS,
		Retry:        retryPolicy,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create source client: %w", err)
	}
	defer sourceClient.Close()

	destClient, err := destination.NewClient(destination.Config{
		URL:         cfg.Destination.URL,
		Token:       cfg.Destination.Token,
		ConnectorID: cfg.Connector.ID,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create destination client: %w", err)
	}

	store, err := state.NewStore(cfg.Database.Path, cfg.Connector.ID)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer store.Close()

	eventBus := bus.NewBus(cfg.Redis.URL, log)
	defer eventBus.Close()

	runner := &connectorRunner{
		cfg:    cfg,
		log:    log,
		store:  store,
		source: sourceClient,
		dest:   destClient,
		events: runEventPublisher{bus: eventBus, connectorID: cfg.Connector.ID},
		retry:  retryPolicy,
	}

	if runOnce {
		_, err := runner.runOnce(ctx)
		return err
	}
	return runner.loop(ctx)
}

// connectorRunner owns the long-lived pieces shared across runs.
type connectorRunner struct {
	cfg    Config
	log    zerolog.Logger
	store  *state.Store
	source *source.Client
	dest   *destination.Client
	events runEventPublisher
	retry  retry.Policy
}

func (r *connectorRunner) runOnce(ctx context.Context) (*pipeline.Summary, error) {
	snapshot, err := r.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if snapshot.LastRun != nil {
		r.log.Info().Time("last_run", *snapshot.LastRun).Msg("Previous run found")
	}

	orchestrator := pipeline.NewOrchestrator(pipeline.OrchestratorConfig{
		Fetcher: r.source,
		Mapper:  stix.NewMapper(r.log),
		Work:    r.dest,
		State:   r.store,
		Events:  r.events,
		NewDispatcher: func(workID string) *pipeline.Dispatcher {
			return pipeline.NewDispatcher(r.dest, pipeline.DispatcherConfig{
				WorkID:    workID,
				BatchSize: r.cfg.Batch.Size,
				Cooldown:  r.cfg.Batch.Cooldown,
				Retry:     r.retry,
			}, r.log)
		},
		FriendlyName: fmt.Sprintf("%s run @ %s", r.cfg.Connector.Name, time.Now().UTC().Format(time.RFC3339)),
	}, r.log)

	return orchestrator.Execute(ctx, pipeline.ResumePoint{
		ObservablesCursor: snapshot.ObservablesCursor,
		IndicatorsCursor:  snapshot.IndicatorsCursor,
	})
}

// loop runs on the configured interval and honors out-of-cycle triggers.
func (r *connectorRunner) loop(ctx context.Context) error {
	watcher, err := trigger.NewWatcher(r.cfg.Trigger.Dir, r.log)
	if err != nil {
		return fmt.Errorf("failed to start trigger watcher: %w", err)
	}
	defer watcher.Close()

	go func() {
		if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.log.Warn().Err(err).Msg("Trigger watcher stopped")
		}
	}()

	interval := r.cfg.Connector.DurationPeriod
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	r.log.Info().Dur("interval", interval).Msg("Connector scheduling started")

	for {
		if _, err := r.runOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			// Failed runs do not stop the scheduler; cursors are kept
			// for resumption on the next cycle.
			r.log.Error().Err(err).Msg("Run failed, waiting for next cycle")
		}

		select {
		case <-ctx.Done():
			return nil
		case request := <-watcher.Requests():
			if request == trigger.Reset {
				r.log.Info().Msg("Reset trigger received, clearing state")
				if err := r.store.Reset(ctx); err != nil {
					r.log.Error().Err(err).Msg("Failed to reset state")
				}
			}
		case <-time.After(interval):
		}
	}
}

// runEventPublisher adapts the bus to the orchestrator's publisher contract.
type runEventPublisher struct {
	bus         bus.Bus
	connectorID string
}

func (p runEventPublisher) PublishRun(ctx context.Context, runID, phase, detail string) error {
	return p.bus.PublishRunEvent(ctx, bus.RunEvent{
		ConnectorID: p.connectorID,
		RunID:       runID,
		Phase:       phase,
		Detail:      detail,
	})
}
