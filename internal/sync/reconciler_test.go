package sync

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synchronsync/internal/identity"
	"synchronsync/internal/journal"
	"synchronsync/internal/models"
	"synchronsync/internal/notify"
)

// fakeGateway keeps managed events in memory so that a second run can diff
// against the writes of the first.
type fakeGateway struct {
	events map[string]models.ManagedEvent
	nextID int

	failCreate bool
	failUpdate bool
	failDelete bool

	creates, updates, deletes int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{events: make(map[string]models.ManagedEvent)}
}

func (g *fakeGateway) ListManaged(_ context.Context, from time.Time) ([]models.ManagedEvent, error) {
	var out []models.ManagedEvent
	for _, e := range g.events {
		if !e.Start.Before(from) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (g *fakeGateway) Create(_ context.Context, a models.Appointment) (string, error) {
	g.creates++
	if g.failCreate {
		return "", fmt.Errorf("insert failed")
	}
	g.nextID++
	id := fmt.Sprintf("evt-%d", g.nextID)
	g.events[id] = managedFrom(id, a)
	return id, nil
}

func (g *fakeGateway) Update(_ context.Context, eventID string, a models.Appointment) error {
	g.updates++
	if g.failUpdate {
		return fmt.Errorf("update failed")
	}
	g.events[eventID] = managedFrom(eventID, a)
	return nil
}

func (g *fakeGateway) Delete(_ context.Context, eventID string) error {
	g.deletes++
	if g.failDelete {
		return fmt.Errorf("delete failed")
	}
	delete(g.events, eventID)
	return nil
}

func managedFrom(eventID string, a models.Appointment) models.ManagedEvent {
	return models.ManagedEvent{
		EventID:       eventID,
		AppointmentID: a.ID,
		Summary:       a.Studio,
		Location:      a.Address,
		Description:   a.Note,
		Start:         a.Start,
		End:           a.End,
	}
}

type fakeNotifier struct {
	sent []notify.Notification
	fail bool
}

func (n *fakeNotifier) Notify(_ context.Context, msg notify.Notification) error {
	if n.fail {
		return fmt.Errorf("delivery failed")
	}
	n.sent = append(n.sent, msg)
	return nil
}

type fakeJournal struct {
	runs []journal.Run
	ops  []journal.Operation
}

func (j *fakeJournal) RecordRun(_ context.Context, r journal.Run) error {
	j.runs = append(j.runs, r)
	return nil
}

func (j *fakeJournal) RecordOperation(_ context.Context, op journal.Operation) error {
	j.ops = append(j.ops, op)
	return nil
}

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func testLocation(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	return loc
}

func appointment(t *testing.T, date, start, end, studio, address, note string) models.Appointment {
	t.Helper()
	loc := testLocation(t)
	s, err := time.ParseInLocation("02.01.2006 15:04", date+" "+start, loc)
	require.NoError(t, err)
	e, err := time.ParseInLocation("02.01.2006 15:04", date+" "+end, loc)
	require.NoError(t, err)
	return models.Appointment{
		RawAppointment: models.RawAppointment{
			Date: date, StartTime: start, EndTime: end,
			Studio: studio, Address: address, Note: note,
		},
		Start: s,
		End:   e,
		ID:    identity.AppointmentID(date, studio, note),
	}
}

func TestBuildPlan_Partition(t *testing.T) {
	a := appointment(t, "01.01.2025", "10:00", "11:00", "A", "X", "")
	b := appointment(t, "02.01.2025", "10:00", "11:00", "B", "Y", "")
	c := appointment(t, "03.01.2025", "10:00", "11:00", "C", "Z", "")

	existingB := managedFrom("evt-b", b)
	existingB.Location = "elsewhere" // forces an update
	existingC := managedFrom("evt-c", c)
	existingD := models.ManagedEvent{EventID: "evt-d", AppointmentID: "gone", Summary: "D"}

	plan := BuildPlan(
		[]models.Appointment{a, b, c},
		[]models.ManagedEvent{existingB, existingC, existingD},
	)

	require.Len(t, plan.Creates, 1)
	assert.Equal(t, a.ID, plan.Creates[0].ID)
	require.Len(t, plan.Updates, 1)
	assert.Equal(t, "evt-b", plan.Updates[0].EventID)
	require.Len(t, plan.Deletes, 1)
	assert.Equal(t, "evt-d", plan.Deletes[0].EventID)
	assert.Equal(t, 1, plan.Unchanged)

	// The sets must be pairwise disjoint and cover desired ∪ existing.
	ids := make(map[string]int)
	for _, x := range plan.Creates {
		ids[x.ID]++
	}
	for _, x := range plan.Updates {
		ids[x.Appointment.ID]++
	}
	for _, x := range plan.Deletes {
		ids[x.AppointmentID]++
	}
	for id, n := range ids {
		assert.Equal(t, 1, n, "id %s appears in more than one set", id)
	}
	assert.Len(t, ids, 3) // c is unchanged, covered without an operation
}

func TestBuildPlan_NeverDeletesDesired(t *testing.T) {
	a := appointment(t, "01.01.2025", "10:00", "11:00", "A", "X", "")
	b := appointment(t, "02.01.2025", "10:00", "11:00", "B", "Y", "")
	eventA := managedFrom("evt-a", a)
	eventB := managedFrom("evt-b", b)

	orderings := [][]models.ManagedEvent{
		{eventA, eventB},
		{eventB, eventA},
	}
	for _, existing := range orderings {
		plan := BuildPlan([]models.Appointment{b, a}, existing)
		assert.Empty(t, plan.Deletes)
		assert.Empty(t, plan.Creates)
	}
}

func TestBuildPlan_UpdateOnDescriptionOnly(t *testing.T) {
	a := appointment(t, "01.01.2025", "10:00", "11:00", "A", "X", "neuer Text")
	event := managedFrom("evt-1", a)
	event.Description = "alter Text"

	plan := BuildPlan([]models.Appointment{a}, []models.ManagedEvent{event})

	require.Len(t, plan.Updates, 1)
	assert.Empty(t, plan.Creates)
	assert.Empty(t, plan.Deletes)
	assert.Equal(t, "evt-1", plan.Updates[0].EventID)
	// The appointment id rides along unchanged into the update payload.
	assert.Equal(t, a.ID, plan.Updates[0].Appointment.ID)
}

func TestBuildPlan_DescriptionWhitespaceIgnored(t *testing.T) {
	a := appointment(t, "01.01.2025", "10:00", "11:00", "A", "X", "  Regie: Müller  ")
	event := managedFrom("evt-1", a)
	event.Description = "Regie: Müller"

	plan := BuildPlan([]models.Appointment{a}, []models.ManagedEvent{event})
	assert.True(t, plan.Empty())
	assert.Equal(t, 1, plan.Unchanged)
}

func TestBuildPlan_DuplicateDesiredLaterWins(t *testing.T) {
	early := appointment(t, "01.01.2025", "10:00", "11:00", "A", "X", "")
	late := appointment(t, "01.01.2025", "15:00", "16:00", "A", "X", "")
	require.Equal(t, early.ID, late.ID) // same date+studio+note collapse to one id

	plan := BuildPlan([]models.Appointment{early, late}, nil)

	require.Len(t, plan.Creates, 1)
	assert.True(t, plan.Creates[0].Start.Equal(late.Start))
}

func newTestReconciler(t *testing.T, gw Gateway, n notify.Notifier, j Journal) *Reconciler {
	t.Helper()
	return NewReconciler(gw, n, j, testLocation(t), testLogger())
}

func TestApply_CreateScenario(t *testing.T) {
	gw := newFakeGateway()
	notifier := &fakeNotifier{}
	jrnl := &fakeJournal{}
	r := newTestReconciler(t, gw, notifier, jrnl)

	a := appointment(t, "01.01.2025", "10:00", "11:00", "A", "X", "")
	plan := BuildPlan([]models.Appointment{a}, nil)
	summary := r.Apply(context.Background(), "run-1", plan)

	assert.Equal(t, Summary{Created: 1}, summary)
	require.Len(t, gw.events, 1)
	for _, e := range gw.events {
		assert.Equal(t, "A", e.Summary)
		assert.Equal(t, "X", e.Location)
		assert.Equal(t, a.ID, e.AppointmentID)
		assert.True(t, e.Start.Equal(a.Start))
		assert.True(t, e.End.Equal(a.End))
	}

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "Termin hinzugefügt", notifier.sent[0].Title)
	assert.Equal(t, "01.01.2025 10:00-11:00 A, X", notifier.sent[0].Message)

	require.Len(t, jrnl.ops, 1)
	assert.Equal(t, "create", jrnl.ops[0].Op)
	assert.Equal(t, "run-1", jrnl.ops[0].RunID)
}

func TestApply_DeleteScenario(t *testing.T) {
	gw := newFakeGateway()
	notifier := &fakeNotifier{}
	r := newTestReconciler(t, gw, notifier, nil)

	a := appointment(t, "01.01.2025", "10:00", "11:00", "A", "X", "")
	gw.events["evt-1"] = managedFrom("evt-1", a)

	plan := BuildPlan(nil, []models.ManagedEvent{gw.events["evt-1"]})
	summary := r.Apply(context.Background(), "run-1", plan)

	assert.Equal(t, Summary{Deleted: 1}, summary)
	assert.Empty(t, gw.events)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "Termin abgesagt", notifier.sent[0].Title)
	// The cancellation notice is reconstructed from the event's own fields.
	assert.Contains(t, notifier.sent[0].Message, "01.01.2025")
	assert.Contains(t, notifier.sent[0].Message, "10:00")
	assert.Contains(t, notifier.sent[0].Message, "A")
}

func TestApply_NoOpIdempotence(t *testing.T) {
	gw := newFakeGateway()
	notifier := &fakeNotifier{}
	r := newTestReconciler(t, gw, notifier, nil)
	ctx := context.Background()

	desired := []models.Appointment{
		appointment(t, "01.01.2025", "10:00", "11:00", "A", "X", ""),
		appointment(t, "02.01.2025", "12:00", "14:00", "B", "Y", "Regie: Schmidt"),
	}

	first := r.Apply(ctx, "run-1", BuildPlan(desired, nil))
	assert.Equal(t, 2, first.Created)

	existing, err := gw.ListManaged(ctx, time.Time{})
	require.NoError(t, err)

	second := BuildPlan(desired, existing)
	assert.True(t, second.Empty(), "second run must be a no-op")

	summary := r.Apply(ctx, "run-2", second)
	assert.Equal(t, Summary{Unchanged: 2}, summary)
	assert.Equal(t, 2, gw.creates)
	assert.Zero(t, gw.updates)
	assert.Zero(t, gw.deletes)
}

func TestApply_FailureIsolation(t *testing.T) {
	gw := newFakeGateway()
	gw.failCreate = true
	notifier := &fakeNotifier{}
	r := newTestReconciler(t, gw, notifier, nil)

	stale := managedFrom("evt-stale", appointment(t, "05.01.2025", "10:00", "11:00", "Old", "Z", ""))
	desired := []models.Appointment{
		appointment(t, "01.01.2025", "10:00", "11:00", "A", "X", ""),
		appointment(t, "02.01.2025", "10:00", "11:00", "B", "Y", ""),
	}

	summary := r.Apply(context.Background(), "run-1", BuildPlan(desired, []models.ManagedEvent{stale}))

	// Both creates fail, the delete still goes through.
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 1, summary.Deleted)
	assert.Equal(t, 2, gw.creates)
	assert.Equal(t, 1, gw.deletes)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "Termin abgesagt", notifier.sent[0].Title)
}

func TestApply_NotifierFailureIsNonFatal(t *testing.T) {
	gw := newFakeGateway()
	notifier := &fakeNotifier{fail: true}
	r := newTestReconciler(t, gw, notifier, nil)

	a := appointment(t, "01.01.2025", "10:00", "11:00", "A", "X", "")
	summary := r.Apply(context.Background(), "run-1", BuildPlan([]models.Appointment{a}, nil))

	assert.Equal(t, Summary{Created: 1}, summary)
	assert.Len(t, gw.events, 1)
}
