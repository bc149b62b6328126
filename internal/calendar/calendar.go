// Package calendar mirrors bookings into an external calendar.
package calendar

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"labreserve/internal/metrics"
)

// Event is the calendar view of a booking.
type Event struct {
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
}

// BookingEvent builds the event for a booking.
func BookingEvent(bookingID, requesterID int64, requester, facility, location string, start, end time.Time) Event {
	return Event{
		Summary:     fmt.Sprintf("Facility booking: %s - %s", facility, requester),
		Description: fmt.Sprintf("Local booking ID: %d\nRequester: %s (ID: %d)", bookingID, requester, requesterID),
		Location:    location,
		Start:       start.UTC(),
		End:         end.UTC(),
	}
}

// Noop is used when calendar sync is disabled.
type Noop struct{}

func (Noop) CreateEvent(context.Context, Event) (string, error) { return "", nil }

func (Noop) DeleteEvent(context.Context, string) error { return nil }

// GoogleClient writes events to one Google calendar with a service account.
type GoogleClient struct {
	svc        *gcal.Service
	calendarID string
	timeout    time.Duration
}

// NewGoogleClient reads service account credentials from credentialsFile.
func NewGoogleClient(ctx context.Context, credentialsFile, calendarID string, timeout time.Duration) (*GoogleClient, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read calendar credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, gcal.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("parse calendar credentials: %w", err)
	}
	return newGoogleClient(ctx, calendarID, timeout, option.WithCredentials(creds))
}

func newGoogleClient(ctx context.Context, calendarID string, timeout time.Duration, opts ...option.ClientOption) (*GoogleClient, error) {
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &GoogleClient{svc: svc, calendarID: calendarID, timeout: timeout}, nil
}

// CreateEvent inserts the event and returns its id.
func (c *GoogleClient) CreateEvent(ctx context.Context, ev Event) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	created, err := c.svc.Events.Insert(c.calendarID, &gcal.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       &gcal.EventDateTime{DateTime: ev.Start.UTC().Format(time.RFC3339), TimeZone: "UTC"},
		End:         &gcal.EventDateTime{DateTime: ev.End.UTC().Format(time.RFC3339), TimeZone: "UTC"},
	}).Context(ctx).Do()

	metrics.IncCalendarSync("create", err == nil)
	if err != nil {
		return "", fmt.Errorf("insert calendar event: %w", err)
	}
	return created.Id, nil
}

// DeleteEvent removes the event with the given id.
func (c *GoogleClient) DeleteEvent(ctx context.Context, ref string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.svc.Events.Delete(c.calendarID, ref).Context(ctx).Do()
	metrics.IncCalendarSync("delete", err == nil)
	if err != nil {
		return fmt.Errorf("delete calendar event %s: %w", ref, err)
	}
	return nil
}
