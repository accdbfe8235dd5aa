package catalog

import "time"

// Market session status values.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// PSX trades Monday to Friday, 09:30 to 15:30 Pakistan time, which has no DST.
var karachi = time.FixedZone("PKT", 5*60*60)

const (
	openMinute  = 9*60 + 30
	closeMinute = 15*60 + 30
)

// MarketStatus reports whether the regular session is open at now.
func MarketStatus(now time.Time) string {
	local := now.In(karachi)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return StatusClosed
	}
	minute := local.Hour()*60 + local.Minute()
	if minute >= openMinute && minute < closeMinute {
		return StatusOpen
	}
	return StatusClosed
}
