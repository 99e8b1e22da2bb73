package sync

import (
	"context"
	"time"

	"synchronsync/internal/journal"
	"synchronsync/internal/models"
)

// Portal yields the desired appointments from the booking site.
type Portal interface {
	Login(ctx context.Context) error
	FetchAppointments(ctx context.Context) ([]models.RawAppointment, error)
}

// Gateway mirrors calendar.Gateway; redeclared here so the reconciler can
// be tested without the Google client.
type Gateway interface {
	ListManaged(ctx context.Context, from time.Time) ([]models.ManagedEvent, error)
	Create(ctx context.Context, a models.Appointment) (string, error)
	Update(ctx context.Context, eventID string, a models.Appointment) error
	Delete(ctx context.Context, eventID string) error
}

// Journal records runs and operations. Satisfied by *journal.Journal.
type Journal interface {
	RecordRun(ctx context.Context, r journal.Run) error
	RecordOperation(ctx context.Context, op journal.Operation) error
}
