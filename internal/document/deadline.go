package document

import "time"

// ReturnWindowBusinessDays is how long a branch has to hand over the paper
// original after a document is sent back to the district.
const ReturnWindowBusinessDays = 5

// DueClass labels how close a return deadline is.
type DueClass string

const (
	DueOverdue DueClass = "overdue"
	DueToday   DueClass = "due_today"
	DueSoon    DueClass = "due_soon"
	DueOnTrack DueClass = "on_track"
)

// CivilDate truncates t to midnight in loc. All workflow date stamps go
// through this so comparisons are day-granular.
func CivilDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// AddBusinessDays returns start advanced by n business days, where Saturday
// and Sunday do not count. A start on a weekend first rolls forward to the
// next business day boundary implicitly: the first added day is the next
// weekday after start.
func AddBusinessDays(start time.Time, n int) time.Time {
	d := start
	for i := 0; i < n; i++ {
		d = d.AddDate(0, 0, 1)
		for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			d = d.AddDate(0, 0, 1)
		}
	}
	return d
}

// ReturnWindow is the computed deadline pair for a send-back.
type ReturnWindow struct {
	SentBackAt time.Time
	DueAt      time.Time
}

// ComputeReturnWindow derives the paper hand-over deadline from the send-back
// date: five business days later, weekends skipped.
func ComputeReturnWindow(sentBackAt time.Time) ReturnWindow {
	return ReturnWindow{
		SentBackAt: sentBackAt,
		DueAt:      AddBusinessDays(sentBackAt, ReturnWindowBusinessDays),
	}
}

// ClassifyDeadline compares a due date against today (both civil dates).
// A deadline within the next two business days counts as due_soon.
func ClassifyDeadline(dueAt, today time.Time) DueClass {
	switch {
	case today.After(dueAt):
		return DueOverdue
	case sameDay(dueAt, today):
		return DueToday
	case !AddBusinessDays(today, 2).Before(dueAt):
		return DueSoon
	default:
		return DueOnTrack
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
