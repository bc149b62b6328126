package booking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"labreserve/internal/availability"
	"labreserve/internal/calendar"
	"labreserve/internal/database"
	"labreserve/internal/events"
	"labreserve/internal/model"
	"labreserve/internal/svcclient"
)

type mockIdentity struct {
	mock.Mock
}

func (m *mockIdentity) GetUser(ctx context.Context, id int64) (*svcclient.UserInfo, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*svcclient.UserInfo), args.Error(1)
}

type mockCalendar struct {
	mock.Mock
}

func (m *mockCalendar) CreateEvent(ctx context.Context, ev calendar.Event) (string, error) {
	args := m.Called(ctx, ev)
	return args.String(0), args.Error(1)
}

func (m *mockCalendar) DeleteEvent(ctx context.Context, ref string) error {
	return m.Called(ctx, ref).Error(0)
}

// 2024-06-10 is a Monday.
var (
	now    = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	monday = time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
)

func at(d time.Time, hour, min int) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), hour, min, 0, 0, time.UTC)
}

type fixture struct {
	db       *database.DB
	svc      *Service
	identity *mockIdentity
	calendar *mockCalendar
	bus      *events.Bus
	facility *model.Facility
	teacher  *model.User
	student  *model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.New(io.Discard)

	db, err := database.Open(database.Options{Path: filepath.Join(t.TempDir(), "booking.db")}, &logger)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{db: db, identity: new(mockIdentity), calendar: new(mockCalendar), bus: events.NewBus(&logger)}

	f.facility = &model.Facility{Name: "Chem Lab", Location: "Building B", Capacity: 24}
	require.NoError(t, db.CreateFacility(ctx, f.facility))

	f.teacher = &model.User{Name: "Ana", Email: "ana@example.com", Username: "ana", PasswordHash: "x", Role: model.RoleTeacher}
	f.student = &model.User{Name: "Leo", Email: "leo@example.com", Username: "leo", PasswordHash: "x", Role: model.RoleStudent}
	require.NoError(t, db.CreateUser(ctx, f.teacher))
	require.NoError(t, db.CreateUser(ctx, f.student))

	// Monday 09:00-10:00 and 10:00-11:00 for every facility.
	require.NoError(t, db.CreateRule(ctx, &model.WeeklyRule{DayOfWeek: 0, StartTime: "09:00", EndTime: "10:00", IsEnabled: true, IntervalKind: "available"}))
	require.NoError(t, db.CreateRule(ctx, &model.WeeklyRule{DayOfWeek: 0, StartTime: "10:00", EndTime: "11:00", IsEnabled: true, IntervalKind: "available"}))

	f.identity.On("GetUser", mock.Anything, f.teacher.ID).
		Return(&svcclient.UserInfo{ID: f.teacher.ID, Name: "Ana", Role: model.RoleTeacher}, nil).Maybe()
	f.identity.On("GetUser", mock.Anything, f.student.ID).
		Return(&svcclient.UserInfo{ID: f.student.ID, Name: "Leo", Role: model.RoleStudent}, nil).Maybe()

	f.svc = NewService(db, db, f.identity, f.calendar, f.bus, availability.NewEvaluator(time.UTC), &logger)
	return f
}

func (f *fixture) request(start, end time.Time) ReserveRequest {
	return ReserveRequest{FacilityID: f.facility.ID, RequesterID: f.teacher.ID, Start: start, End: end}
}

func TestReserve_FirstSucceedsSecondOverlaps(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.calendar.On("CreateEvent", mock.Anything, mock.MatchedBy(func(ev calendar.Event) bool {
		return ev.Summary == "Facility booking: Chem Lab - Ana" && ev.Location == "Building B"
	})).Return("evt-1", nil).Once()

	var created []events.Event
	f.bus.Subscribe(events.BookingCreated, func(_ context.Context, e events.Event) error {
		created = append(created, e)
		return nil
	})

	b, err := f.svc.Reserve(ctx, f.request(at(monday, 9, 0), at(monday, 10, 0)), now)
	require.NoError(t, err)
	assert.Equal(t, model.BookingActive, b.Status)
	require.NotNil(t, b.ExternalCalendarRef)
	assert.Equal(t, "evt-1", *b.ExternalCalendarRef)
	require.Len(t, created, 1)
	assert.Equal(t, b.ID, created[0].BookingID)

	stored, err := f.db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", *stored.ExternalCalendarRef)

	_, err = f.svc.Reserve(ctx, f.request(at(monday, 9, 0), at(monday, 10, 0)), now)
	assert.ErrorIs(t, err, ErrOverlap)
	var overlap *OverlapError
	require.True(t, errors.As(err, &overlap))
	assert.Equal(t, b.ID, overlap.BookingID)

	f.calendar.AssertExpectations(t)
}

func TestReserve_ValidationOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.identity.On("GetUser", mock.Anything, int64(404)).Return(nil, svcclient.ErrNotFound)
	f.identity.On("GetUser", mock.Anything, int64(503)).Return(nil, fmt.Errorf("%w: dial", svcclient.ErrUnavailable))

	tests := []struct {
		name string
		req  ReserveRequest
		want error
	}{
		{
			name: "end before start",
			req:  f.request(at(monday, 10, 0), at(monday, 9, 0)),
			want: ErrInvalidRange,
		},
		{
			name: "empty window",
			req:  f.request(at(monday, 9, 0), at(monday, 9, 0)),
			want: ErrInvalidRange,
		},
		{
			name: "in the past",
			req:  f.request(at(now, 9, 0), at(now, 10, 0)),
			want: ErrInPast,
		},
		{
			name: "past wins over unknown facility",
			req:  ReserveRequest{FacilityID: 999, RequesterID: f.teacher.ID, Start: at(now, 9, 0), End: at(now, 10, 0)},
			want: ErrInPast,
		},
		{
			name: "unknown facility",
			req:  ReserveRequest{FacilityID: 999, RequesterID: f.teacher.ID, Start: at(monday, 9, 0), End: at(monday, 10, 0)},
			want: ErrFacilityNotFound,
		},
		{
			name: "unknown requester",
			req:  ReserveRequest{FacilityID: f.facility.ID, RequesterID: 404, Start: at(monday, 9, 0), End: at(monday, 10, 0)},
			want: ErrRequesterNotFound,
		},
		{
			name: "identity down",
			req:  ReserveRequest{FacilityID: f.facility.ID, RequesterID: 503, Start: at(monday, 9, 0), End: at(monday, 10, 0)},
			want: ErrIdentityUnavailable,
		},
		{
			name: "contained window is not a slot",
			req:  f.request(at(monday, 9, 15), at(monday, 10, 15)),
			want: ErrSlotMismatch,
		},
		{
			name: "two slots at once",
			req:  f.request(at(monday, 9, 0), at(monday, 11, 0)),
			want: ErrSlotMismatch,
		},
		{
			name: "closed day",
			req:  f.request(at(monday.AddDate(0, 0, 1), 9, 0), at(monday.AddDate(0, 0, 1), 10, 0)),
			want: ErrSlotMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Reserve(ctx, tt.req, now)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestReserve_WholeDayExceptionBlocks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.db.CreateException(ctx, &model.DateException{Date: "2024-06-10", Description: strPtr("holiday")}))

	_, err := f.svc.Reserve(ctx, f.request(at(monday, 9, 0), at(monday, 10, 0)), now)
	assert.ErrorIs(t, err, ErrSlotMismatch)

	schedule, err := f.svc.Schedule(ctx, f.facility.ID, monday, monday)
	require.NoError(t, err)
	require.Len(t, schedule["2024-06-10"], 1)
	assert.Equal(t, "holiday", schedule["2024-06-10"][0].Kind)
}

func TestReserve_PartialExceptions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.calendar.On("CreateEvent", mock.Anything, mock.Anything).Return("evt-open", nil)
	tuesday := monday.AddDate(0, 0, 1)

	// A disabled window closes its part of a rule slot.
	require.NoError(t, f.db.CreateException(ctx, &model.DateException{
		FacilityID: &f.facility.ID, Date: "2024-06-10", StartTime: strPtr("09:00"), EndTime: strPtr("10:00"), Description: strPtr("cleaning"),
	}))
	_, err := f.svc.Reserve(ctx, f.request(at(monday, 9, 0), at(monday, 10, 0)), now)
	assert.ErrorIs(t, err, ErrSlotMismatch)
	_, err = f.svc.Reserve(ctx, f.request(at(monday, 10, 0), at(monday, 11, 0)), now)
	require.NoError(t, err)

	// An enabled window opens extra bookable time, even on a day without rules.
	require.NoError(t, f.db.CreateException(ctx, &model.DateException{
		FacilityID: &f.facility.ID, Date: "2024-06-11", StartTime: strPtr("18:00"), EndTime: strPtr("20:00"), IsEnabled: true,
	}))
	schedule, err := f.svc.Schedule(ctx, f.facility.ID, tuesday, tuesday)
	require.NoError(t, err)
	require.Len(t, schedule["2024-06-11"], 3)
	assert.Equal(t, model.Slot{Start: at(tuesday, 18, 0), End: at(tuesday, 20, 0), Kind: "available"}, schedule["2024-06-11"][1])

	_, err = f.svc.Reserve(ctx, f.request(at(tuesday, 17, 0), at(tuesday, 18, 0)), now)
	assert.ErrorIs(t, err, ErrSlotMismatch)
	b, err := f.svc.Reserve(ctx, f.request(at(tuesday, 18, 0), at(tuesday, 20, 0)), now)
	require.NoError(t, err)
	assert.Equal(t, model.BookingActive, b.Status)
}

func TestReserve_CalendarFailureKeepsBooking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.calendar.On("CreateEvent", mock.Anything, mock.Anything).Return("", errors.New("quota exceeded"))

	b, err := f.svc.Reserve(ctx, f.request(at(monday, 9, 0), at(monday, 10, 0)), now)
	require.NoError(t, err)
	assert.Nil(t, b.ExternalCalendarRef)

	stored, err := f.db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingActive, stored.Status)
	assert.Nil(t, stored.ExternalCalendarRef)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.calendar.On("CreateEvent", mock.Anything, mock.Anything).Return("evt-9", nil)
	f.calendar.On("DeleteEvent", mock.Anything, "evt-9").Return(nil).Once()

	b, err := f.svc.Reserve(ctx, f.request(at(monday, 9, 0), at(monday, 10, 0)), now)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, 999, f.teacher.ID, model.RoleTeacher)
	assert.ErrorIs(t, err, ErrBookingNotFound)

	_, err = f.svc.Cancel(ctx, b.ID, f.student.ID, model.RoleStudent)
	assert.ErrorIs(t, err, ErrForbidden)

	cancelled, err := f.svc.Cancel(ctx, b.ID, f.teacher.ID, model.RoleTeacher)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, cancelled.Status)
	assert.Nil(t, cancelled.ExternalCalendarRef)

	_, err = f.svc.Cancel(ctx, b.ID, f.teacher.ID, model.RoleTeacher)
	assert.ErrorIs(t, err, ErrAlreadyCancelled)

	stored, err := f.db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ExternalCalendarRef)

	// The freed window can be booked again.
	_, err = f.svc.Reserve(ctx, f.request(at(monday, 9, 0), at(monday, 10, 0)), now)
	assert.NoError(t, err)

	f.calendar.AssertExpectations(t)
}

func TestCancel_AdminMayCancelAnyBooking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.calendar.On("CreateEvent", mock.Anything, mock.Anything).Return("", nil)

	b, err := f.svc.Reserve(ctx, f.request(at(monday, 10, 0), at(monday, 11, 0)), now)
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, b.ID, 12345, model.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, cancelled.Status)
	f.calendar.AssertNotCalled(t, "DeleteEvent", mock.Anything, mock.Anything)
}

func TestListingsAndCount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.calendar.On("CreateEvent", mock.Anything, mock.Anything).Return("", nil)

	first, err := f.svc.Reserve(ctx, f.request(at(monday, 9, 0), at(monday, 10, 0)), now)
	require.NoError(t, err)
	nextWeek := monday.AddDate(0, 0, 7)
	second, err := f.svc.Reserve(ctx, f.request(at(nextWeek, 10, 0), at(nextWeek, 11, 0)), now)
	require.NoError(t, err)

	list, err := f.svc.FacilityBookings(ctx, f.facility.ID, monday, monday)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, first.ID, list[0].ID)

	list, err = f.svc.FacilityBookings(ctx, f.facility.ID, monday, nextWeek)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = f.svc.FacilityBookings(ctx, 999, monday, monday)
	assert.ErrorIs(t, err, ErrFacilityNotFound)

	mine, err := f.svc.RequesterBookings(ctx, f.teacher.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID, "newest first")

	n, err := f.svc.ActiveCount(ctx, f.facility.ID, at(monday, 10, 30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestReserve_ConcurrentRequestsNeverOverlap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.calendar.On("CreateEvent", mock.Anything, mock.Anything).Return("", nil)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		overlaps  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Reserve(ctx, f.request(at(monday, 9, 0), at(monday, 10, 0)), now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrOverlap):
				overlaps++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, overlaps)
}

func TestReserve_RandomSequenceKeepsBookingsDisjoint(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.calendar.On("CreateEvent", mock.Anything, mock.Anything).Return("", nil)
	f.calendar.On("DeleteEvent", mock.Anything, mock.Anything).Return(nil)

	// Half-hour slots all day long on Mondays for this facility.
	for h := 0; h < 24; h++ {
		for _, m := range []int{0, 30} {
			start := fmt.Sprintf("%02d:%02d", h, m)
			end := fmt.Sprintf("%02d:%02d", h, m+29)
			require.NoError(t, f.db.CreateRule(ctx, &model.WeeklyRule{
				FacilityID: &f.facility.ID, DayOfWeek: 0, StartTime: start, EndTime: end, IsEnabled: true, IntervalKind: "available",
			}))
		}
	}

	rng := rand.New(rand.NewSource(7))
	var ids []int64
	for i := 0; i < 150; i++ {
		if len(ids) > 0 && rng.Intn(4) == 0 {
			id := ids[rng.Intn(len(ids))]
			_, _ = f.svc.Cancel(ctx, id, f.teacher.ID, model.RoleTeacher)
			continue
		}
		h, m := rng.Intn(24), []int{0, 30}[rng.Intn(2)]
		start := at(monday, h, m)
		b, err := f.svc.Reserve(ctx, f.request(start, start.Add(29*time.Minute)), now)
		if err == nil {
			ids = append(ids, b.ID)
			continue
		}
		assert.ErrorIs(t, err, ErrOverlap)
	}

	active, err := f.svc.FacilityBookings(ctx, f.facility.ID, monday, monday)
	require.NoError(t, err)
	for i := range active {
		for j := i + 1; j < len(active); j++ {
			assert.False(t, active[i].Overlaps(active[j].Start, active[j].End),
				"bookings %d and %d overlap", active[i].ID, active[j].ID)
		}
	}
}

func strPtr(s string) *string { return &s }
