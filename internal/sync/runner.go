package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"synchronsync/internal/identity"
	"synchronsync/internal/journal"
	"synchronsync/internal/localtime"
	"synchronsync/internal/metrics"
	"synchronsync/internal/models"
)

// Run outcomes as recorded in the journal and exposed as metric labels.
const (
	OutcomeOK          = "ok"
	OutcomePartial     = "partial"
	OutcomeEmpty       = "empty"
	OutcomeAuthFailed  = "auth_failed"
	OutcomeFetchFailed = "fetch_failed"
	OutcomeListFailed  = "list_failed"
)

// Runner orchestrates one sync run: login, scrape, localize, diff, apply.
type Runner struct {
	portal     Portal
	gateway    Gateway
	reconciler *Reconciler
	journal    Journal
	localizer  *localtime.Localizer
	logger     *zerolog.Logger

	now func() time.Time
}

// NewRunner wires a runner. journal may be nil.
func NewRunner(portal Portal, gateway Gateway, reconciler *Reconciler, jrnl Journal,
	localizer *localtime.Localizer, logger *zerolog.Logger) *Runner {
	return &Runner{
		portal:     portal,
		gateway:    gateway,
		reconciler: reconciler,
		journal:    jrnl,
		localizer:  localizer,
		logger:     logger,
		now:        localizer.Now,
	}
}

// Run executes a full sync cycle. The calendar is never mutated when the
// login, scrape, or listing step fails, or when the portal yields no
// appointments at all.
func (r *Runner) Run(ctx context.Context) (journal.Run, error) {
	run := journal.Run{ID: uuid.NewString(), StartedAt: r.now()}
	logger := r.logger.With().Str("run_id", run.ID).Logger()

	if err := r.portal.Login(ctx); err != nil {
		return r.finish(ctx, run, OutcomeAuthFailed), fmt.Errorf("portal login: %w", err)
	}

	raws, err := r.portal.FetchAppointments(ctx)
	if err != nil {
		return r.finish(ctx, run, OutcomeFetchFailed), fmt.Errorf("fetch appointments: %w", err)
	}
	run.Scraped = len(raws)
	metrics.AddAppointmentsScraped(len(raws))

	if len(raws) == 0 {
		logger.Warn().Msg("portal yielded no appointments, leaving calendar untouched")
		return r.finish(ctx, run, OutcomeEmpty), nil
	}

	now := r.now()
	desired, skipped := r.localize(raws, now, &logger)
	run.Skipped = skipped

	existing, err := r.gateway.ListManaged(ctx, now)
	if err != nil {
		return r.finish(ctx, run, OutcomeListFailed), fmt.Errorf("list managed events: %w", err)
	}

	plan := BuildPlan(desired, existing)
	logger.Info().
		Int("desired", len(desired)).
		Int("existing", len(existing)).
		Int("creates", len(plan.Creates)).
		Int("updates", len(plan.Updates)).
		Int("deletes", len(plan.Deletes)).
		Int("unchanged", plan.Unchanged).
		Msg("reconciliation plan")

	summary := r.reconciler.Apply(ctx, run.ID, plan)
	run.Created = summary.Created
	run.Updated = summary.Updated
	run.Deleted = summary.Deleted
	run.Failed = summary.Failed

	outcome := OutcomeOK
	if summary.Failed > 0 {
		outcome = OutcomePartial
	}
	finished := r.finish(ctx, run, outcome)
	logger.Info().
		Int("created", summary.Created).
		Int("updated", summary.Updated).
		Int("deleted", summary.Deleted).
		Int("unchanged", summary.Unchanged).
		Int("failed", summary.Failed).
		Int("skipped", skipped).
		Str("outcome", outcome).
		Msg("sync run finished")
	return finished, nil
}

// localize filters the scrape to future appointments and attaches instants
// and ids. A row with an unparseable date or time is skipped, not fatal.
func (r *Runner) localize(raws []models.RawAppointment, now time.Time, logger *zerolog.Logger) ([]models.Appointment, int) {
	var desired []models.Appointment
	skipped := 0

	for _, raw := range raws {
		start, err := r.localizer.Instant(raw.Date, raw.StartTime)
		if err != nil {
			logger.Warn().Err(err).Str("studio", raw.Studio).Msg("skipping unparseable appointment")
			skipped++
			continue
		}
		end, err := r.localizer.Instant(raw.Date, raw.EndTime)
		if err != nil {
			logger.Warn().Err(err).Str("studio", raw.Studio).Msg("skipping unparseable appointment")
			skipped++
			continue
		}
		if start.Before(now) {
			continue
		}

		desired = append(desired, models.Appointment{
			RawAppointment: raw,
			Start:          start,
			End:            end,
			ID:             identity.AppointmentID(raw.Date, raw.Studio, raw.Note),
		})
	}
	return desired, skipped
}

func (r *Runner) finish(ctx context.Context, run journal.Run, outcome string) journal.Run {
	run.FinishedAt = r.now()
	run.Outcome = outcome
	metrics.IncRun(outcome)

	if r.journal != nil {
		if err := r.journal.RecordRun(ctx, run); err != nil {
			r.logger.Warn().Err(err).Str("run_id", run.ID).Msg("failed to journal run")
		}
	}
	return run
}
