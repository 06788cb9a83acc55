package scanner

import "time"

// MarketOpen reports whether t falls inside regular NYSE trading hours,
// 09:30 to 16:00 Eastern, Monday through Friday. Exchange holidays are
// not tracked; orders outside sessions are rejected by the gateway
// anyway.
func MarketOpen(t time.Time) bool {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		// Without tzdata the guard cannot be evaluated; let the
		// gateway be the arbiter.
		return true
	}

	et := t.In(loc)
	switch et.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	minutes := et.Hour()*60 + et.Minute()
	return minutes >= 9*60+30 && minutes < 16*60
}
