package schedule

import (
	"time"
)

// RecurrentLeg is the schedule shape used by sources that publish one
// document per recurring service instead of per dated departure: an
// effective/discontinued window, seven day-of-week flags, and local
// times-of-day. Day1 is Monday, matching the FAA flight data file layout.
type RecurrentLeg struct {
	DepartureAirport string
	ArrivalAirport   string
	EffectiveDate    time.Time
	DiscontinuedDate time.Time
	Days             [7]bool // Monday..Sunday
	DepartureTime    string  // "15:04", UTC
	ArrivalTime      string  // "15:04", UTC
	TotalSeats       int
}

// weekdayIndex maps time.Weekday onto the Monday-first Days array.
func weekdayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// OperatesOn reports whether the leg runs on the given calendar day.
func (l *RecurrentLeg) OperatesOn(day time.Time) bool {
	day = DayOf(day)
	if day.Before(DayOf(l.EffectiveDate)) || day.After(DayOf(l.DiscontinuedDate)) {
		return false
	}
	return l.Days[weekdayIndex(day.Weekday())]
}

// Expand materialises the leg for one calendar day. The departure instant
// is the day at the stored departure time-of-day; an arrival time-of-day
// earlier than the departure rolls to the next calendar day. The second
// return is false when the leg does not operate on that day or a
// time-of-day fails to parse.
func (l *RecurrentLeg) Expand(day time.Time) (LightFlight, bool) {
	if !l.OperatesOn(day) {
		return LightFlight{}, false
	}
	dep, err := atTimeOfDay(day, l.DepartureTime)
	if err != nil {
		return LightFlight{}, false
	}
	arr, err := atTimeOfDay(day, l.ArrivalTime)
	if err != nil {
		return LightFlight{}, false
	}
	if arr.Before(dep) {
		// Overnight flight: next-day arrival.
		arr = arr.Add(24 * time.Hour)
	}
	return LightFlight{
		TotalSeats:     l.TotalSeats,
		DepartureUTC:   dep,
		ArrivalUTC:     arr,
		ArrivalAirport: l.ArrivalAirport,
	}, true
}

// OperatingDays counts the calendar days in [start, end) on which the leg
// runs, clamped to its effective window. Used to aggregate seat flows from
// recurrent schedules without materialising every flight.
func (l *RecurrentLeg) OperatingDays(start, end time.Time) int {
	from := DayOf(start)
	if eff := DayOf(l.EffectiveDate); eff.After(from) {
		from = eff
	}
	until := DayOf(end)
	if disc := DayOf(l.DiscontinuedDate).Add(24 * time.Hour); disc.Before(until) {
		until = disc
	}
	count := 0
	for day := from; day.Before(until); day = day.Add(24 * time.Hour) {
		if l.Days[weekdayIndex(day.Weekday())] {
			count++
		}
	}
	return count
}

func atTimeOfDay(day time.Time, tod string) (time.Time, error) {
	layout := "15:04"
	if len(tod) == len("15:04:05") {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, tod)
	if err != nil {
		return time.Time{}, err
	}
	day = DayOf(day)
	return day.Add(time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second), nil
}
