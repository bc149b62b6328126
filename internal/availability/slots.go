package availability

import (
	"fmt"
	"time"

	"labreserve/internal/model"
)

// DefaultMaxRangeDays caps schedule queries when no limit is configured.
const DefaultMaxRangeDays = 90

// FindExactSlot returns the slot whose bounds equal [start, end) and whose
// kind is kind. Containment is not enough.
func FindExactSlot(slots []model.Slot, start, end time.Time, kind string) (model.Slot, bool) {
	for _, s := range slots {
		if s.Start.Equal(start) && s.End.Equal(end) && s.Kind == kind {
			return s, true
		}
	}
	return model.Slot{}, false
}

// AvailableSlots returns only slots of kind "available".
func AvailableSlots(slots []model.Slot) []model.Slot {
	var available []model.Slot
	for _, s := range slots {
		if s.Kind == model.KindAvailable {
			available = append(available, s)
		}
	}
	return available
}

// ParseRange parses a YYYY-MM-DD pair. from after to is allowed and yields
// an empty schedule; spans longer than maxDays are rejected.
func ParseRange(from, to string, maxDays int) (start, end time.Time, err error) {
	if from == "" || to == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("date_from and date_to are required")
	}

	start, err = time.Parse(model.DateLayout, from)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid date_from format; expected YYYY-MM-DD")
	}

	end, err = time.Parse(model.DateLayout, to)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid date_to format; expected YYYY-MM-DD")
	}

	if maxDays <= 0 {
		maxDays = DefaultMaxRangeDays
	}
	days := int(end.Sub(start).Hours() / 24)
	if days > maxDays {
		return time.Time{}, time.Time{}, fmt.Errorf("date range exceeds maximum of %d days", maxDays)
	}

	return start, end, nil
}
