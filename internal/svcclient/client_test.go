package svcclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labreserve/internal/model"
)

func TestUsersClient_GetUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		switch r.URL.Path {
		case "/users/internal/7":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"code":200,"status":"success","message":"ok","data":{"id":7,"name":"Ana","email":"ana@example.com","username":"ana","role":"teacher"}}`))
		case "/users/internal/8":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":404,"status":"error","message":"user not found"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c := NewUsersClient(Options{BaseURL: srv.URL, APIKey: "secret", Timeout: time.Second})

	user, err := c.GetUser(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "Ana", user.Name)
	assert.Equal(t, model.RoleTeacher, user.Role)

	_, err = c.GetUser(context.Background(), 8)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.GetUser(context.Background(), 9)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestUsersClient_UnknownRouteIsUnavailable(t *testing.T) {
	// A base URL pointing at the wrong server answers 404 for every path.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("Cannot GET " + r.URL.Path))
	}))
	defer srv.Close()

	c := NewUsersClient(Options{BaseURL: srv.URL, Timeout: time.Second})
	_, err := c.GetUser(context.Background(), 7)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrNotFound)

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer empty.Close()

	_, err = NewUsersClient(Options{BaseURL: empty.URL, Timeout: time.Second}).GetUser(context.Background(), 7)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestUsersClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewUsersClient(Options{BaseURL: url, Timeout: time.Second})
	_, err := c.GetUser(context.Background(), 1)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestUsersClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewUsersClient(Options{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := c.GetUser(context.Background(), 1)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestReservationsClient_ActiveBookings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/facilities/3/bookings/count", r.URL.Path)
		_, _ = w.Write([]byte(`{"code":200,"status":"success","message":"ok","data":{"facility_id":3,"active_count":2}}`))
	}))
	defer srv.Close()

	c := NewReservationsClient(Options{BaseURL: srv.URL, RatePerSecond: 10, Burst: 1})
	n, err := c.ActiveBookings(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestClient_RateLimitRespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"facility_id":1,"active_count":0}}`))
	}))
	defer srv.Close()

	c := NewReservationsClient(Options{BaseURL: srv.URL, RatePerSecond: 0.001, Burst: 1})
	_, err := c.ActiveBookings(context.Background(), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.ActiveBookings(ctx, 1)
	assert.ErrorIs(t, err, ErrUnavailable)
}
