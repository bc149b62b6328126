package audit

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"labreserve/internal/model"
)

type stubSource struct {
	bookings []model.Booking
	err      error
	from, to time.Time
}

func (s *stubSource) ListBookingsBetween(_ context.Context, from, to time.Time) ([]model.Booking, error) {
	s.from, s.to = from, to
	return s.bookings, s.err
}

func TestExport(t *testing.T) {
	ref := "evt-1"
	start := time.Date(2030, 6, 10, 9, 0, 0, 0, time.UTC)
	source := &stubSource{bookings: []model.Booking{
		{
			ID: 1, FacilityID: 2, RequesterID: 3, Start: start, End: start.Add(time.Hour),
			Status: model.BookingActive, ExternalCalendarRef: &ref,
			Facility: &model.Facility{Name: "Chem Lab"}, Requester: &model.User{Name: "Ana"},
		},
		{
			ID: 2, FacilityID: 5, RequesterID: 3, Start: start, End: start.Add(time.Hour),
			Status: model.BookingCancelled,
		},
	}}

	var buf bytes.Buffer
	n, err := NewExporter(source).Export(context.Background(), start, start.AddDate(0, 0, 1), &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, start, source.from)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{bookingsSheet, summarySheet}, f.GetSheetList())

	rows, err := f.GetRows(bookingsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, bookingColumns, rows[0])
	assert.Equal(t, []string{"1", "Chem Lab", "Ana", "2030-06-10T09:00:00Z", "2030-06-10T10:00:00Z", "active", "evt-1", "0001-01-01T00:00:00Z"}, rows[1])
	assert.Equal(t, "facility #5", rows[2][1])
	assert.Equal(t, "user #3", rows[2][2])

	summary, err := f.GetRows(summarySheet)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Facility", "Active", "Cancelled"},
		{"Chem Lab", "1", "0"},
		{"facility #5", "0", "1"},
	}, summary)
}

func TestExport_SourceError(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewExporter(&stubSource{err: errors.New("db down")}).Export(context.Background(), time.Now(), time.Now(), &buf)
	assert.Error(t, err)
	assert.Zero(t, buf.Len())
}
