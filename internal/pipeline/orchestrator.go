package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Ashfaaq98/opencti-sync/internal/source"
	"github.com/Ashfaaq98/opencti-sync/internal/stix"
)

// Phase names the steps of a run's state machine.
type Phase string

const (
	PhaseIdle                   Phase = "idle"
	PhaseFetchingObservables    Phase = "fetching_observables"
	PhaseDispatchingObservables Phase = "dispatching_observables"
	PhaseFetchingIndicators     Phase = "fetching_indicators"
	PhaseBuildingRelationships  Phase = "building_relationships"
	PhaseDispatchingIndicators  Phase = "dispatching_indicators"
	PhaseCompleted              Phase = "completed"
	PhaseFailed                 Phase = "failed"
)

// SourceFetcher is the page-at-a-time contract the orchestrator drives.
// Implemented by source.Client.
type SourceFetcher interface {
	FetchObservables(ctx context.Context, cursor string) (source.ObservablePage, error)
	FetchIndicators(ctx context.Context, cursor string) (source.IndicatorPage, error)
	Cooldown() time.Duration
}

// WorkTracker registers and closes the run's work unit on the destination
// platform. Implemented by destination.Client.
type WorkTracker interface {
	InitiateWork(ctx context.Context, friendlyName string) (string, error)
	CompleteWork(ctx context.Context, workID, message string, inError bool) error
}

// StateRecorder persists run progress so interrupted runs resume at a
// batch boundary and completed runs record their last_run marker.
type StateRecorder interface {
	BeginRun(ctx context.Context, runID string) error
	SaveObservablesCursor(ctx context.Context, cursor string) error
	SaveIndicatorsCursor(ctx context.Context, cursor string) error
	FinishRun(ctx context.Context, runID string, summary Summary, runErr error) error
}

// EventPublisher emits run lifecycle events for external observers.
type EventPublisher interface {
	PublishRun(ctx context.Context, runID string, phase string, detail string) error
}

// ResumePoint carries the cursors saved by a previous run.
type ResumePoint struct {
	ObservablesCursor string
	IndicatorsCursor  string
}

// Summary counts what a run accomplished.
type Summary struct {
	RunID         string
	Observables   int
	Indicators    int
	Relationships int
	Batches       int
	Started       time.Time
	Finished      time.Time
}

// Orchestrator sequences one run: all observables fetched, mapped and
// dispatched first, then indicators with relationship resolution. The
// indicator phase never starts before observable pagination is exhausted;
// indicators processed earlier would silently lose relationships.
type Orchestrator struct {
	fetcher       SourceFetcher
	mapper        *stix.Mapper
	work          WorkTracker
	state         StateRecorder
	events        EventPublisher
	newDispatcher func(workID string) *Dispatcher
	friendlyName  string
	logger        zerolog.Logger

	phase Phase
}

// OrchestratorConfig wires an orchestrator.
type OrchestratorConfig struct {
	Fetcher       SourceFetcher
	Mapper        *stix.Mapper
	Work          WorkTracker
	State         StateRecorder
	Events        EventPublisher
	NewDispatcher func(workID string) *Dispatcher
	FriendlyName  string
}

// NewOrchestrator creates an idle orchestrator.
func NewOrchestrator(cfg OrchestratorConfig, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		fetcher:       cfg.Fetcher,
		mapper:        cfg.Mapper,
		work:          cfg.Work,
		state:         cfg.State,
		events:        cfg.Events,
		newDispatcher: cfg.NewDispatcher,
		friendlyName:  cfg.FriendlyName,
		logger:        logger,
		phase:         PhaseIdle,
	}
}

// Phase returns the orchestrator's current phase.
func (o *Orchestrator) Phase() Phase {
	return o.phase
}

// Execute performs one full run. On error the run is marked Failed,
// remaining phases are skipped, and already-dispatched batches stay in
// the destination; deterministic object ids make the re-import on the
// next invocation idempotent.
func (o *Orchestrator) Execute(ctx context.Context, resume ResumePoint) (*Summary, error) {
	summary := &Summary{
		RunID:   uuid.NewString(),
		Started: time.Now().UTC(),
	}

	o.logger.Info().Str("run_id", summary.RunID).Msg("Starting run")

	if err := o.state.BeginRun(ctx, summary.RunID); err != nil {
		return summary, o.fail(ctx, summary, fmt.Errorf("failed to record run start: %w", err))
	}
	o.publish(ctx, summary.RunID, "started", "")

	workID, err := o.work.InitiateWork(ctx, o.friendlyName)
	if err != nil {
		return summary, o.fail(ctx, summary, fmt.Errorf("failed to initiate work: %w", err))
	}

	dispatcher := o.newDispatcher(workID)
	mapping := NewMappingTable()

	if err := o.runObservablePhase(ctx, dispatcher, mapping, resume, summary); err != nil {
		o.completeWork(ctx, workID, err.Error(), true)
		return summary, o.fail(ctx, summary, err)
	}

	if err := o.runIndicatorPhase(ctx, dispatcher, mapping, resume, summary); err != nil {
		o.completeWork(ctx, workID, err.Error(), true)
		return summary, o.fail(ctx, summary, err)
	}

	summary.Batches = dispatcher.Batches()
	summary.Finished = time.Now().UTC()
	o.phase = PhaseCompleted

	message := fmt.Sprintf(
		"%s successfully run: %d observables, %d indicators, %d relationships in %d batches",
		o.friendlyName, summary.Observables, summary.Indicators, summary.Relationships, summary.Batches,
	)
	o.completeWork(ctx, workID, message, false)

	if err := o.state.FinishRun(ctx, summary.RunID, *summary, nil); err != nil {
		o.logger.Error().Err(err).Msg("Failed to record run completion")
	}
	o.publish(ctx, summary.RunID, "completed", message)

	o.logger.Info().
		Str("run_id", summary.RunID).
		Int("observables", summary.Observables).
		Int("indicators", summary.Indicators).
		Int("relationships", summary.Relationships).
		Int("batches", summary.Batches).
		Msg("Run completed")

	return summary, nil
}

// runObservablePhase drains observable pagination, mapping and
// dispatching each page and recording standard id mappings for the
// indicator phase.
func (o *Orchestrator) runObservablePhase(ctx context.Context, dispatcher *Dispatcher, mapping *MappingTable, resume ResumePoint, summary *Summary) error {
	o.phase = PhaseFetchingObservables
	o.publish(ctx, summary.RunID, string(o.phase), "")

	// The author identity rides in the first bundle so created_by_ref
	// resolves on the destination.
	if err := dispatcher.Add(ctx, o.mapper.Author()); err != nil {
		return err
	}

	cursor := resume.ObservablesCursor
	hasNextPage := true

	for hasNextPage {
		page, err := o.fetcher.FetchObservables(ctx, cursor)
		if err != nil {
			return err
		}

		o.phase = PhaseDispatchingObservables
		for _, raw := range page.Records {
			obj := o.mapper.Observable(raw)
			if obj == nil {
				continue
			}
			if err := dispatcher.Add(ctx, *obj); err != nil {
				return err
			}
			mapping.Record(raw.StandardID, obj.ID)
			summary.Observables++
		}

		cursor = page.EndCursor
		hasNextPage = page.HasNextPage

		if err := o.state.SaveObservablesCursor(ctx, cursor); err != nil {
			o.logger.Warn().Err(err).Msg("Failed to save observables cursor")
		}

		if hasNextPage {
			o.phase = PhaseFetchingObservables
			if err := o.sleep(ctx, o.fetcher.Cooldown()); err != nil {
				return err
			}
		}
	}

	if err := dispatcher.Flush(ctx); err != nil {
		return err
	}

	o.logger.Info().
		Int("observables", summary.Observables).
		Int("mapped", mapping.Len()).
		Msg("Observable phase completed")

	return nil
}

// runIndicatorPhase drains indicator pagination, resolving relationships
// against the mapping populated by the observable phase.
func (o *Orchestrator) runIndicatorPhase(ctx context.Context, dispatcher *Dispatcher, mapping *MappingTable, resume ResumePoint, summary *Summary) error {
	o.phase = PhaseFetchingIndicators
	o.publish(ctx, summary.RunID, string(o.phase), "")

	builder := NewRelationshipBuilder(mapping, o.mapper, o.logger)

	cursor := resume.IndicatorsCursor
	hasNextPage := true

	for hasNextPage {
		page, err := o.fetcher.FetchIndicators(ctx, cursor)
		if err != nil {
			return err
		}

		o.phase = PhaseBuildingRelationships
		for _, raw := range page.Records {
			obj := o.mapper.Indicator(raw)
			if obj == nil {
				continue
			}
			if err := dispatcher.Add(ctx, *obj); err != nil {
				return err
			}
			summary.Indicators++

			relationships := builder.Build(obj.ID, raw.Observables)
			if len(relationships) > 0 {
				if err := dispatcher.Add(ctx, relationships...); err != nil {
					return err
				}
				summary.Relationships += len(relationships)
			}
		}

		cursor = page.EndCursor
		hasNextPage = page.HasNextPage

		if err := o.state.SaveIndicatorsCursor(ctx, cursor); err != nil {
			o.logger.Warn().Err(err).Msg("Failed to save indicators cursor")
		}

		if hasNextPage {
			o.phase = PhaseFetchingIndicators
			if err := o.sleep(ctx, o.fetcher.Cooldown()); err != nil {
				return err
			}
		}
	}

	o.phase = PhaseDispatchingIndicators
	if err := dispatcher.Flush(ctx); err != nil {
		return err
	}

	o.logger.Info().
		Int("indicators", summary.Indicators).
		Int("relationships", summary.Relationships).
		Msg("Indicator phase completed")

	return nil
}

func (o *Orchestrator) fail(ctx context.Context, summary *Summary, err error) error {
	o.phase = PhaseFailed
	summary.Finished = time.Now().UTC()

	if stateErr := o.state.FinishRun(ctx, summary.RunID, *summary, err); stateErr != nil {
		o.logger.Error().Err(stateErr).Msg("Failed to record run failure")
	}
	o.publish(ctx, summary.RunID, string(PhaseFailed), err.Error())

	o.logger.Error().Err(err).Str("run_id", summary.RunID).Msg("Run failed")
	return err
}

func (o *Orchestrator) completeWork(ctx context.Context, workID, message string, inError bool) {
	if err := o.work.CompleteWork(ctx, workID, message, inError); err != nil {
		o.logger.Warn().Err(err).Str("work_id", workID).Msg("Failed to complete work")
	}
}

func (o *Orchestrator) publish(ctx context.Context, runID, phase, detail string) {
	if o.events == nil {
		return
	}
	if err := o.events.PublishRun(ctx, runID, phase, detail); err != nil {
		o.logger.Debug().Err(err).Msg("Failed to publish run event")
	}
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
