package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labreserve/internal/model"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	db, err := Open(Options{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "test.db")}, &logger)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedUser(t *testing.T, db *DB, username string, role model.Role) *model.User {
	t.Helper()
	u := &model.User{Name: username, Email: username + "@example.com", Username: username, PasswordHash: "x", Role: role}
	require.NoError(t, db.CreateUser(context.Background(), u))
	return u
}

func seedFacility(t *testing.T, db *DB, name string) *model.Facility {
	t.Helper()
	f := &model.Facility{Name: name, Location: "B1", Capacity: 20}
	require.NoError(t, db.CreateFacility(context.Background(), f))
	return f
}

func utc(hour, min int) time.Time {
	return time.Date(2030, 6, 10, hour, min, 0, 0, time.UTC)
}

func accept([]model.WeeklyRule, []model.DateException, *model.Booking) error { return nil }

func TestUsers(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	ana := seedUser(t, db, "ana", model.RoleStudent)
	seedUser(t, db, "bruno", model.RoleTeacher)

	err := db.CreateUser(ctx, &model.User{Name: "x", Email: "ana@example.com", Username: "other", PasswordHash: "x", Role: model.RoleStudent})
	assert.ErrorIs(t, err, ErrDuplicate)

	got, err := db.GetUserByLogin(ctx, "ANA@example.com")
	require.NoError(t, err)
	assert.Equal(t, ana.ID, got.ID)

	got, err = db.GetUserByLogin(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, ana.ID, got.ID)

	_, err = db.GetUser(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	users, err := db.ListUsers(ctx, UserFilter{Role: model.RoleTeacher})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "bruno", users[0].Username)

	users, err = db.ListUsers(ctx, UserFilter{Query: "AN"})
	require.NoError(t, err)
	assert.Len(t, users, 1)

	require.NoError(t, db.SetPasswordHash(ctx, ana.ID, "new"))
	assert.ErrorIs(t, db.SetPasswordHash(ctx, 999, "new"), ErrNotFound)
	assert.ErrorIs(t, db.DeleteUser(ctx, 999), ErrNotFound)
}

func TestDeleteUserReferencedByBooking(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	u := seedUser(t, db, "ana", model.RoleTeacher)
	f := seedFacility(t, db, "Lab A")

	b := &model.Booking{RequesterID: u.ID, FacilityID: f.ID, Start: utc(9, 0), End: utc(10, 0), Status: model.BookingActive}
	require.NoError(t, db.Reserve(ctx, b, "2030-06-10", "2030-06-10", accept))

	err := db.DeleteUser(ctx, u.ID)
	assert.ErrorIs(t, err, ErrReferenced)
}

func TestDeleteFacilityWithCancelledBooking(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	u := seedUser(t, db, "ana", model.RoleTeacher)
	f := seedFacility(t, db, "Lab A")

	b := &model.Booking{RequesterID: u.ID, FacilityID: f.ID, Start: utc(9, 0), End: utc(10, 0), Status: model.BookingActive}
	require.NoError(t, db.Reserve(ctx, b, "2030-06-10", "2030-06-10", accept))
	require.NoError(t, db.CancelBooking(ctx, b.ID))

	// Bookings are history: even a cancelled one keeps the facility alive.
	err := db.DeleteFacility(ctx, f.ID)
	assert.ErrorIs(t, err, ErrReferenced)
	assert.ErrorIs(t, db.DeleteUser(ctx, u.ID), ErrReferenced)

	_, err = db.GetFacility(ctx, f.ID)
	assert.NoError(t, err)
}

func TestFacilitiesAndInventory(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	campus := &model.Campus{Name: "North", Address: "Main St 1"}
	require.NoError(t, db.CreateCampus(ctx, campus))

	f := &model.Facility{Name: "Chem Lab", Capacity: 30, CampusID: &campus.ID}
	require.NoError(t, db.CreateFacility(ctx, f))
	other := seedFacility(t, db, "Physics Lab")

	n, err := db.CountFacilitiesInCampus(ctx, campus.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := db.GetFacility(ctx, f.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Campus)
	assert.Equal(t, "North", got.Campus.Name)

	list, err := db.ListFacilities(ctx, campus.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	microscope := &model.Resource{FacilityID: f.ID, Kind: "microscope", Status: "available"}
	require.NoError(t, db.CreateResource(ctx, microscope))
	require.NoError(t, db.CreateResource(ctx, &model.Resource{FacilityID: other.ID, Kind: "laptop", Status: "maintenance"}))

	resources, err := db.ListResources(ctx, model.ResourceFilter{CampusID: campus.ID})
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Equal(t, "microscope", resources[0].Kind)

	resources, err = db.ListResources(ctx, model.ResourceFilter{Status: "maintenance"})
	require.NoError(t, err)
	assert.Len(t, resources, 1)

	// The facility filter wins over the campus filter.
	resources, err = db.ListResources(ctx, model.ResourceFilter{CampusID: campus.ID, FacilityID: other.ID})
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Equal(t, "laptop", resources[0].Kind)

	require.NoError(t, db.CreateResource(ctx, &model.Resource{FacilityID: other.ID, Kind: " ", Status: "available"}))
	kinds, err := db.ListResourceKinds(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"laptop", "microscope"}, kinds)

	count, err := db.CountResourcesInFacility(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// The facility is still referenced by a resource.
	assert.ErrorIs(t, db.DeleteFacility(ctx, f.ID), ErrReferenced)
	assert.ErrorIs(t, db.DeleteCampus(ctx, campus.ID), ErrReferenced)
}

func TestLoans(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	u := seedUser(t, db, "ana", model.RoleStudent)
	f := seedFacility(t, db, "Lab A")
	r := &model.Resource{FacilityID: f.ID, Kind: "laptop", Status: "available"}
	require.NoError(t, db.CreateResource(ctx, r))

	loan := &model.Loan{ResourceID: r.ID, UserID: u.ID, RequesterName: "ana", Quantity: 1, Start: utc(9, 0), End: utc(12, 0), Status: model.LoanPending}
	require.NoError(t, db.CreateLoan(ctx, loan))

	bad := &model.Loan{ResourceID: r.ID, UserID: u.ID, RequesterName: "ana", Quantity: 0, Start: utc(9, 0), End: utc(12, 0), Status: model.LoanPending}
	assert.ErrorIs(t, db.CreateLoan(ctx, bad), ErrConstraint)

	require.NoError(t, db.UpdateLoanStatus(ctx, loan.ID, model.LoanPending, model.LoanApproved, "ok"))
	assert.ErrorIs(t, db.UpdateLoanStatus(ctx, loan.ID, model.LoanPending, model.LoanRejected, ""), ErrNotFound)

	got, err := db.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LoanApproved, got.Status)
	assert.Equal(t, "ok", got.Comment)
	assert.Equal(t, utc(9, 0), got.Start)

	mine, err := db.ListLoans(ctx, LoanFilter{UserID: u.ID})
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	n, err := db.CountLoansOfResource(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSchedule(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	f := seedFacility(t, db, "Lab A")
	other := seedFacility(t, db, "Lab B")

	require.NoError(t, db.CreateRule(ctx, &model.WeeklyRule{FacilityID: &f.ID, DayOfWeek: 2, StartTime: "09:00", EndTime: "10:00", IsEnabled: true, IntervalKind: "available"}))
	require.NoError(t, db.CreateRule(ctx, &model.WeeklyRule{DayOfWeek: 0, StartTime: "09:00", EndTime: "10:00", IsEnabled: true, IntervalKind: "available"}))
	require.NoError(t, db.CreateRule(ctx, &model.WeeklyRule{FacilityID: &other.ID, DayOfWeek: 1, StartTime: "09:00", EndTime: "10:00", IsEnabled: true, IntervalKind: "available"}))

	all, err := db.ListRules(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Nil(t, all[0].FacilityID, "general rules come first")

	own, err := db.ListRules(ctx, f.ID)
	require.NoError(t, err)
	assert.Len(t, own, 1)

	rules, err := db.RulesFor(ctx, f.ID)
	require.NoError(t, err)
	assert.Len(t, rules, 2)

	require.NoError(t, db.CreateException(ctx, &model.DateException{Date: "2030-06-10"}))
	require.NoError(t, db.CreateException(ctx, &model.DateException{FacilityID: &f.ID, Date: "2030-06-12"}))
	require.NoError(t, db.CreateException(ctx, &model.DateException{FacilityID: &other.ID, Date: "2030-06-11"}))
	require.NoError(t, db.CreateException(ctx, &model.DateException{Date: "2030-07-01"}))

	exceptions, err := db.ExceptionsFor(ctx, f.ID, "2030-06-10", "2030-06-30")
	require.NoError(t, err)
	require.Len(t, exceptions, 2)
	assert.Equal(t, "2030-06-10", exceptions[0].Date)

	listed, err := db.ListExceptions(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "2030-07-01", listed[0].Date)

	// Facility rules go with the facility.
	require.NoError(t, db.DeleteFacility(ctx, other.ID))
	all, err = db.ListRules(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestReserveAndCancel(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	u := seedUser(t, db, "ana", model.RoleTeacher)
	f := seedFacility(t, db, "Lab A")

	first := &model.Booking{RequesterID: u.ID, FacilityID: f.ID, Start: utc(9, 0), End: utc(10, 0), Status: model.BookingActive}
	require.NoError(t, db.Reserve(ctx, first, "2030-06-10", "2030-06-10", accept))
	assert.NotZero(t, first.ID)

	var seen *model.Booking
	overlapping := &model.Booking{RequesterID: u.ID, FacilityID: f.ID, Start: utc(9, 30), End: utc(10, 30), Status: model.BookingActive}
	veto := errors.New("overlap")
	err := db.Reserve(ctx, overlapping, "2030-06-10", "2030-06-10", func(_ []model.WeeklyRule, _ []model.DateException, conflict *model.Booking) error {
		seen = conflict
		if conflict != nil {
			return veto
		}
		return nil
	})
	assert.ErrorIs(t, err, veto)
	require.NotNil(t, seen)
	assert.Equal(t, first.ID, seen.ID)

	// Touching windows do not conflict.
	adjacent, err := db.FindOverlap(ctx, f.ID, utc(10, 0), utc(11, 0))
	require.NoError(t, err)
	assert.Nil(t, adjacent)

	n, err := db.CountActiveBookings(ctx, f.ID, utc(0, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, db.SetCalendarRef(ctx, first.ID, "evt-1"))
	require.NoError(t, db.CancelBooking(ctx, first.ID))
	assert.ErrorIs(t, db.CancelBooking(ctx, first.ID), ErrNotFound)

	got, err := db.GetBooking(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, got.Status)
	require.NotNil(t, got.ExternalCalendarRef)
	assert.Equal(t, "evt-1", *got.ExternalCalendarRef)

	conflict, err := db.FindOverlap(ctx, f.ID, utc(9, 0), utc(10, 0))
	require.NoError(t, err)
	assert.Nil(t, conflict, "cancelled bookings free their window")

	mine, err := db.ListRequesterBookings(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	all, err := db.ListBookingsBetween(ctx, utc(0, 0), utc(23, 0))
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NotNil(t, all[0].Facility)
	assert.Equal(t, "Lab A", all[0].Facility.Name)
}

func TestReserve_ConcurrentSameWindow(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	u := seedUser(t, db, "ana", model.RoleTeacher)
	f := seedFacility(t, db, "Lab A")

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	errOverlap := errors.New("overlap")

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b := &model.Booking{RequesterID: u.ID, FacilityID: f.ID, Start: utc(9, 0), End: utc(10, 0), Status: model.BookingActive}
			err := db.Reserve(ctx, b, "2030-06-10", "2030-06-10", func(_ []model.WeeklyRule, _ []model.DateException, conflict *model.Booking) error {
				if conflict != nil {
					return errOverlap
				}
				return nil
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, errOverlap)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	bookings, err := db.ListFacilityBookings(ctx, f.ID, utc(0, 0), utc(23, 0))
	require.NoError(t, err)
	assert.Len(t, bookings, 1)
}

func TestBackupService(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedFacility(t, db, "Lab A")

	dir := t.TempDir()
	logger := zerolog.Nop()
	svc := NewBackupService(db, BackupOptions{Enabled: true, Dir: dir, Retention: time.Hour}, &logger)

	path, err := svc.PerformBackup(ctx)
	require.NoError(t, err)
	assert.FileExists(t, path)

	old := filepath.Join(dir, "backup_20000101_000000.db")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o600))
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	assert.Equal(t, 1, svc.CleanupOldBackups())
	assert.NoFileExists(t, old)
	assert.FileExists(t, path)
}
