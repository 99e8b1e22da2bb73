// Package calendar is the gateway to the remote Google Calendar. Only
// events stamped with the managed marker are ever listed, updated, or
// deleted through it.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"synchronsync/internal/models"
)

// Gateway exposes the calendar operations the reconciler needs.
type Gateway interface {
	// ListManaged returns managed events starting at or after from,
	// ordered by start time.
	ListManaged(ctx context.Context, from time.Time) ([]models.ManagedEvent, error)

	// Create inserts a new managed event and returns the provider id.
	Create(ctx context.Context, a models.Appointment) (string, error)

	// Update replaces all mutable fields of an existing managed event,
	// keeping marker and appointment id intact.
	Update(ctx context.Context, eventID string, a models.Appointment) error

	// Delete removes an event by provider id. An already-gone event is not
	// an error.
	Delete(ctx context.Context, eventID string) error
}

// Config holds the OAuth credentials and calendar selection. The refresh
// token is long-lived; access tokens are minted per run.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	CalendarID   string
	TimeZone     string

	// RequestsPerSecond throttles calls to the Calendar API. Zero picks a
	// conservative default.
	RequestsPerSecond float64
}

// GoogleGateway implements Gateway over the Google Calendar v3 API.
type GoogleGateway struct {
	service    *gcal.Service
	calendarID string
	timeZone   string
	limiter    *rate.Limiter
	logger     *zerolog.Logger
}

// NewGoogleGateway authenticates with a refresh token and builds the
// service client.
func NewGoogleGateway(ctx context.Context, cfg Config, logger *zerolog.Logger) (*GoogleGateway, error) {
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = "Europe/Berlin"
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gcal.CalendarEventsScope},
	}
	ts := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	service, err := gcal.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}

	return &GoogleGateway{
		service:    service,
		calendarID: cfg.CalendarID,
		timeZone:   cfg.TimeZone,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:     logger,
	}, nil
}

func (g *GoogleGateway) ListManaged(ctx context.Context, from time.Time) ([]models.ManagedEvent, error) {
	var events []models.ManagedEvent
	pageToken := ""
	for {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		call := g.service.Events.List(g.calendarID).
			Context(ctx).
			TimeMin(from.Format(time.RFC3339)).
			PrivateExtendedProperty(models.MarkerKey + "=" + models.MarkerValue).
			SingleEvents(true).
			OrderBy("startTime")
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		result, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		for _, item := range result.Items {
			ev, ok := toManagedEvent(item)
			if !ok {
				g.logger.Warn().Str("event_id", item.Id).Msg("skipping marked event without appointment id")
				continue
			}
			events = append(events, ev)
		}
		if result.NextPageToken == "" {
			return events, nil
		}
		pageToken = result.NextPageToken
	}
}

func (g *GoogleGateway) Create(ctx context.Context, a models.Appointment) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}
	created, err := g.service.Events.Insert(g.calendarID, eventBody(a, g.timeZone)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert event: %w", err)
	}
	return created.Id, nil
}

func (g *GoogleGateway) Update(ctx context.Context, eventID string, a models.Appointment) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := g.service.Events.Update(g.calendarID, eventID, eventBody(a, g.timeZone)).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update event %s: %w", eventID, err)
	}
	return nil
}

func (g *GoogleGateway) Delete(ctx context.Context, eventID string) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	err := g.service.Events.Delete(g.calendarID, eventID).Context(ctx).Do()
	if isGone(err) {
		g.logger.Debug().Str("event_id", eventID).Msg("event already gone")
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete event %s: %w", eventID, err)
	}
	return nil
}

// eventBody renders an appointment as a calendar event, marker and id
// stamped into the private extended properties.
func eventBody(a models.Appointment, timeZone string) *gcal.Event {
	return &gcal.Event{
		Summary:     a.Studio,
		Location:    a.Address,
		Description: a.Note,
		Start: &gcal.EventDateTime{
			DateTime: a.Start.Format(time.RFC3339),
			TimeZone: timeZone,
		},
		End: &gcal.EventDateTime{
			DateTime: a.End.Format(time.RFC3339),
			TimeZone: timeZone,
		},
		ExtendedProperties: &gcal.EventExtendedProperties{
			Private: map[string]string{
				models.MarkerKey: models.MarkerValue,
				models.IDKey:     a.ID,
			},
		},
	}
}

// toManagedEvent converts an API item. Items without a parseable timed
// start or without an appointment id are not usable for reconciliation.
func toManagedEvent(item *gcal.Event) (models.ManagedEvent, bool) {
	if item.Start == nil || item.Start.DateTime == "" || item.End == nil {
		return models.ManagedEvent{}, false
	}
	if item.ExtendedProperties == nil {
		return models.ManagedEvent{}, false
	}
	appointmentID := item.ExtendedProperties.Private[models.IDKey]
	if appointmentID == "" {
		return models.ManagedEvent{}, false
	}

	start, err := time.Parse(time.RFC3339, item.Start.DateTime)
	if err != nil {
		return models.ManagedEvent{}, false
	}
	end, err := time.Parse(time.RFC3339, item.End.DateTime)
	if err != nil {
		return models.ManagedEvent{}, false
	}

	return models.ManagedEvent{
		EventID:       item.Id,
		AppointmentID: appointmentID,
		Summary:       item.Summary,
		Location:      item.Location,
		Description:   item.Description,
		Start:         start,
		End:           end,
	}, true
}

func isGone(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone
	}
	return false
}
