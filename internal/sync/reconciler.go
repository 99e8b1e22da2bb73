// Package sync contains the reconciliation core: diffing scraped
// appointments against managed calendar events and applying the minimal
// create/update/delete set.
package sync

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"synchronsync/internal/journal"
	"synchronsync/internal/metrics"
	"synchronsync/internal/models"
	"synchronsync/internal/notify"
)

// Update pairs a desired appointment with the provider id of the event it
// replaces.
type Update struct {
	EventID     string
	Appointment models.Appointment
}

// Plan is the computed difference between desired and existing state. The
// three sets are disjoint and cover the union of both id spaces; ids in
// both inputs with equal fields land in Unchanged.
type Plan struct {
	Creates   []models.Appointment
	Updates   []Update
	Deletes   []models.ManagedEvent
	Unchanged int
}

// Empty reports whether the plan requires no calendar mutation.
func (p Plan) Empty() bool {
	return len(p.Creates) == 0 && len(p.Updates) == 0 && len(p.Deletes) == 0
}

// BuildPlan diffs desired appointments against existing managed events by
// appointment id. When two desired appointments share an id (same date,
// studio and note), the later one wins — a consequence of the identity
// scheme, not a defect.
func BuildPlan(desired []models.Appointment, existing []models.ManagedEvent) Plan {
	desiredByID := make(map[string]models.Appointment, len(desired))
	for _, a := range desired {
		desiredByID[a.ID] = a
	}
	existingByID := make(map[string]models.ManagedEvent, len(existing))
	for _, e := range existing {
		existingByID[e.AppointmentID] = e
	}

	var plan Plan

	for _, e := range existing {
		if _, ok := desiredByID[e.AppointmentID]; !ok {
			plan.Deletes = append(plan.Deletes, e)
		}
	}

	seen := make(map[string]bool, len(desired))
	for _, a := range desired {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		want := desiredByID[a.ID]

		event, ok := existingByID[a.ID]
		if !ok {
			plan.Creates = append(plan.Creates, want)
			continue
		}
		if needsUpdate(event, want) {
			plan.Updates = append(plan.Updates, Update{EventID: event.EventID, Appointment: want})
		} else {
			plan.Unchanged++
		}
	}

	return plan
}

// needsUpdate compares the mutable event fields against the appointment.
// The note comparison ignores surrounding whitespace on both sides.
func needsUpdate(e models.ManagedEvent, a models.Appointment) bool {
	return !e.Start.Equal(a.Start) ||
		!e.End.Equal(a.End) ||
		e.Location != a.Address ||
		strings.TrimSpace(e.Description) != strings.TrimSpace(a.Note)
}

// Summary counts what Apply did.
type Summary struct {
	Created   int
	Updated   int
	Deleted   int
	Unchanged int
	Failed    int
}

// Reconciler applies plans against the calendar, notifying and journaling
// each change. Every operation is isolated: one gateway failure is logged
// and counted, and the remaining operations still run.
type Reconciler struct {
	gateway  Gateway
	notifier notify.Notifier
	journal  Journal
	loc      *time.Location
	logger   *zerolog.Logger
}

// NewReconciler wires the reconciler. journal may be nil to skip journaling.
func NewReconciler(gateway Gateway, notifier notify.Notifier, jrnl Journal, loc *time.Location, logger *zerolog.Logger) *Reconciler {
	return &Reconciler{
		gateway:  gateway,
		notifier: notifier,
		journal:  jrnl,
		loc:      loc,
		logger:   logger,
	}
}

// Apply executes the plan: deletions first, then creates and updates.
func (r *Reconciler) Apply(ctx context.Context, runID string, plan Plan) Summary {
	summary := Summary{Unchanged: plan.Unchanged}

	for _, e := range plan.Deletes {
		if err := r.gateway.Delete(ctx, e.EventID); err != nil {
			r.opFailed(&summary, "delete", e.AppointmentID, err)
			continue
		}
		summary.Deleted++
		metrics.IncCalendarOp("delete")
		r.logger.Info().Str("event_id", e.EventID).Str("summary", e.Summary).Msg("deleted event")
		r.record(ctx, runID, "delete", e.AppointmentID, e.EventID, e.Summary, e.Start, "no longer on portal")
		r.send(ctx, notify.Notification{
			Title:    "Termin abgesagt",
			Message:  e.Describe(r.loc),
			Priority: notify.PriorityHigh,
		})
	}

	for _, a := range plan.Creates {
		eventID, err := r.gateway.Create(ctx, a)
		if err != nil {
			r.opFailed(&summary, "create", a.ID, err)
			continue
		}
		summary.Created++
		metrics.IncCalendarOp("create")
		r.logger.Info().Str("event_id", eventID).Str("summary", a.Studio).Msg("created event")
		r.record(ctx, runID, "create", a.ID, eventID, a.Studio, a.Start, "")
		r.send(ctx, notify.Notification{
			Title:   "Termin hinzugefügt",
			Message: a.Describe(),
		})
	}

	for _, u := range plan.Updates {
		if err := r.gateway.Update(ctx, u.EventID, u.Appointment); err != nil {
			r.opFailed(&summary, "update", u.Appointment.ID, err)
			continue
		}
		summary.Updated++
		metrics.IncCalendarOp("update")
		r.logger.Info().Str("event_id", u.EventID).Str("summary", u.Appointment.Studio).Msg("updated event")
		r.record(ctx, runID, "update", u.Appointment.ID, u.EventID, u.Appointment.Studio, u.Appointment.Start, "")
		r.send(ctx, notify.Notification{
			Title:   "Termin aktualisiert",
			Message: u.Appointment.Describe(),
		})
	}

	return summary
}

func (r *Reconciler) opFailed(summary *Summary, op, appointmentID string, err error) {
	summary.Failed++
	metrics.IncCalendarOpFailure(op)
	r.logger.Error().Err(err).Str("op", op).Str("appointment_id", appointmentID).Msg("calendar operation failed")
}

func (r *Reconciler) record(ctx context.Context, runID, op, appointmentID, eventID, summary string, start time.Time, detail string) {
	if r.journal == nil {
		return
	}
	err := r.journal.RecordOperation(ctx, journal.Operation{
		RunID:         runID,
		Op:            op,
		AppointmentID: appointmentID,
		EventID:       eventID,
		Summary:       summary,
		StartTime:     start,
		Detail:        detail,
	})
	if err != nil {
		r.logger.Warn().Err(err).Str("op", op).Msg("failed to journal operation")
	}
}

func (r *Reconciler) send(ctx context.Context, n notify.Notification) {
	if err := r.notifier.Notify(ctx, n); err != nil {
		metrics.IncNotificationFailure()
		r.logger.Warn().Err(err).Str("title", n.Title).Msg("notification failed")
	}
}
