// Package availability turns weekly rules and date exceptions into per-day
// slot sequences.
package availability

import (
	"sort"
	"time"

	"labreserve/internal/model"
)

// Schedule maps ISO dates (YYYY-MM-DD) to the ordered slots of that day.
type Schedule map[string][]model.Slot

// Evaluator computes schedules. Rule and exception times are read in loc;
// produced slots are in UTC.
type Evaluator struct {
	loc *time.Location
}

// NewEvaluator creates an evaluator for the given location (UTC when nil).
func NewEvaluator(loc *time.Location) *Evaluator {
	if loc == nil {
		loc = time.UTC
	}
	return &Evaluator{loc: loc}
}

// Location returns the location rule times are interpreted in.
func (e *Evaluator) Location() *time.Location {
	return e.loc
}

// DayKey returns the schedule key of the day containing t.
func (e *Evaluator) DayKey(t time.Time) string {
	return t.In(e.loc).Format(model.DateLayout)
}

// ComputeSchedule evaluates every day of [from, to] inclusive for one
// facility. Only the calendar date of from and to is used. Rules and
// exceptions belonging to other facilities are ignored.
func (e *Evaluator) ComputeSchedule(
	facilityID int64,
	from, to time.Time,
	rules []model.WeeklyRule,
	exceptions []model.DateException,
) Schedule {
	start := e.dayStart(from)
	end := e.dayStart(to)

	schedule := make(Schedule)
	if start.After(end) {
		return schedule
	}

	specificRules, generalRules := indexRules(facilityID, rules)
	specificExc, generalExc := indexExceptions(facilityID, exceptions)

	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := d.Format(model.DateLayout)

		exc, ok := specificExc[key]
		if !ok {
			exc, ok = generalExc[key]
		}

		if ok && exc.WholeDay() && !exc.IsEnabled {
			schedule[key] = []model.Slot{e.fullDay(d, labelOr(exc.Description, model.KindUnavailable))}
			continue
		}

		weekday := Weekday(d)
		dayRules := specificRules[weekday]
		if len(dayRules) == 0 {
			dayRules = generalRules[weekday]
		}

		var slots []model.Slot
		if len(dayRules) == 0 {
			slots = []model.Slot{e.fullDay(d, model.KindUnavailable)}
		} else {
			slots = e.ruleSlots(d, dayRules)
		}

		if ok && !exc.WholeDay() {
			slots = e.overlayException(d, slots, exc)
		}

		schedule[key] = slots
	}

	return schedule
}

// Weekday returns 0 for Monday through 6 for Sunday.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func (e *Evaluator) dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, e.loc)
}

// fullDay spans 00:00 to 23:59:59.999 of d.
func (e *Evaluator) fullDay(d time.Time, kind string) model.Slot {
	return model.Slot{
		Start: d.UTC(),
		End:   d.AddDate(0, 0, 1).Add(-time.Millisecond).UTC(),
		Kind:  kind,
	}
}

type clockedRule struct {
	start, end time.Duration
	rule       model.WeeklyRule
}

func (e *Evaluator) ruleSlots(d time.Time, rules []model.WeeklyRule) []model.Slot {
	clocked := make([]clockedRule, 0, len(rules))
	for _, r := range rules {
		start, err := model.ParseClock(r.StartTime)
		if err != nil {
			continue
		}
		end, err := model.ParseClock(r.EndTime)
		if err != nil || end <= start {
			continue
		}
		clocked = append(clocked, clockedRule{start: start, end: end, rule: r})
	}

	sort.SliceStable(clocked, func(i, j int) bool {
		return clocked[i].start < clocked[j].start
	})

	slots := make([]model.Slot, 0, len(clocked))
	for _, c := range clocked {
		kind := model.KindUnavailable
		if c.rule.IsEnabled {
			kind = c.rule.IntervalKind
			if kind == "" {
				kind = model.KindAvailable
			}
		}
		slots = append(slots, model.Slot{
			Start: onDate(d, c.start).UTC(),
			End:   onDate(d, c.end).UTC(),
			Kind:  kind,
		})
	}
	return slots
}

// overlayException carves the exception window out of the day's slots and
// inserts the window itself as a slot.
func (e *Evaluator) overlayException(d time.Time, slots []model.Slot, exc model.DateException) []model.Slot {
	startOff, err := model.ParseClock(*exc.StartTime)
	if err != nil {
		return slots
	}
	endOff, err := model.ParseClock(*exc.EndTime)
	if err != nil || endOff <= startOff {
		return slots
	}

	winStart := onDate(d, startOff).UTC()
	winEnd := onDate(d, endOff).UTC()

	kind := model.KindAvailable
	if !exc.IsEnabled {
		kind = labelOr(exc.Description, model.KindUnavailable)
	}

	out := make([]model.Slot, 0, len(slots)+2)
	for _, s := range slots {
		if !isOverlapping(s.Start, s.End, winStart, winEnd) {
			out = append(out, s)
			continue
		}
		if s.Start.Before(winStart) {
			out = append(out, model.Slot{Start: s.Start, End: winStart, Kind: s.Kind})
		}
		if winEnd.Before(s.End) {
			out = append(out, model.Slot{Start: winEnd, End: s.End, Kind: s.Kind})
		}
	}
	out = append(out, model.Slot{Start: winStart, End: winEnd, Kind: kind})

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

func indexRules(facilityID int64, rules []model.WeeklyRule) (specific, general map[int][]model.WeeklyRule) {
	specific = make(map[int][]model.WeeklyRule)
	general = make(map[int][]model.WeeklyRule)
	for _, r := range rules {
		switch {
		case r.FacilityID == nil:
			general[r.DayOfWeek] = append(general[r.DayOfWeek], r)
		case *r.FacilityID == facilityID:
			specific[r.DayOfWeek] = append(specific[r.DayOfWeek], r)
		}
	}
	return specific, general
}

// indexExceptions keeps the first exception seen per date and scope.
func indexExceptions(facilityID int64, exceptions []model.DateException) (specific, general map[string]model.DateException) {
	specific = make(map[string]model.DateException)
	general = make(map[string]model.DateException)
	for _, exc := range exceptions {
		switch {
		case exc.FacilityID == nil:
			if _, seen := general[exc.Date]; !seen {
				general[exc.Date] = exc
			}
		case *exc.FacilityID == facilityID:
			if _, seen := specific[exc.Date]; !seen {
				specific[exc.Date] = exc
			}
		}
	}
	return specific, general
}

func onDate(d time.Time, offset time.Duration) time.Time {
	h := int(offset / time.Hour)
	m := int(offset % time.Hour / time.Minute)
	s := int(offset % time.Minute / time.Second)
	return time.Date(d.Year(), d.Month(), d.Day(), h, m, s, 0, d.Location())
}

func labelOr(label *string, fallback string) string {
	if label != nil && *label != "" {
		return *label
	}
	return fallback
}

func isOverlapping(start1, end1, start2, end2 time.Time) bool {
	return start1.Before(end2) && start2.Before(end1)
}
