package models

import (
	"fmt"
	"strings"
	"time"
)

// Private extended-property keys stamped onto every calendar event this
// service creates. Only events carrying the marker are ever updated or
// deleted; everything else on the calendar is left alone.
const (
	MarkerKey   = "createdBySynchronScript"
	MarkerValue = "true"
	IDKey       = "appointmentId"
)

// RawAppointment is one row scraped from the synchron.de appointments page.
// Date is DD.MM.YYYY, StartTime and EndTime are HH:MM local clock times.
type RawAppointment struct {
	Date      string
	StartTime string
	EndTime   string
	Studio    string
	Address   string
	Note      string
}

// Appointment is a RawAppointment with localized instants and a stable
// identity attached.
type Appointment struct {
	RawAppointment

	Start time.Time
	End   time.Time
	ID    string
}

// Describe renders the appointment for notification messages.
func (a Appointment) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s-%s %s", a.Date, a.StartTime, a.EndTime, a.Studio)
	if a.Address != "" {
		fmt.Fprintf(&b, ", %s", a.Address)
	}
	if note := strings.TrimSpace(a.Note); note != "" {
		fmt.Fprintf(&b, " (%s)", note)
	}
	return b.String()
}

// ManagedEvent is a remote calendar entry created by this service. EventID
// is the provider-assigned id, AppointmentID the identity stamped into the
// event's private extended properties.
type ManagedEvent struct {
	EventID       string
	AppointmentID string
	Summary       string
	Location      string
	Description   string
	Start         time.Time
	End           time.Time
}

// Describe reconstructs a best-effort appointment summary from the event's
// own fields, for cancellation notices where the source row no longer exists.
func (e ManagedEvent) Describe(loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s",
		e.Start.In(loc).Format("02.01.2006"),
		e.Start.In(loc).Format("15:04"),
		e.Summary)
	if note := strings.TrimSpace(e.Description); note != "" {
		fmt.Fprintf(&b, " (%s)", note)
	}
	return b.String()
}
