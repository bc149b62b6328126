package svcclient

import (
	"context"
	"fmt"
)

// ActiveCount is the body of the reservation service's count endpoint.
type ActiveCount struct {
	FacilityID  int64 `json:"facility_id"`
	ActiveCount int64 `json:"active_count"`
}

// ReservationsClient asks the reservation service about bookings.
type ReservationsClient struct {
	client
}

func NewReservationsClient(opts Options) *ReservationsClient {
	return &ReservationsClient{client: newClient("reservations", opts)}
}

// ActiveBookings counts active bookings of a facility that have not ended.
func (c *ReservationsClient) ActiveBookings(ctx context.Context, facilityID int64) (int64, error) {
	endpoint := fmt.Sprintf("%s/facilities/%d/bookings/count", c.baseURL, facilityID)
	var count ActiveCount
	if err := c.doGet(ctx, endpoint, &count); err != nil {
		return 0, err
	}
	return count.ActiveCount, nil
}
