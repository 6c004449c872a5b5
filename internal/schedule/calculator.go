package schedule

import (
	"time"

	"cadence/internal/services"
)

// searchHorizonDays bounds the forward scan for the next delivery day. Any
// valid cadence repeats within a week; the slack covers DST edge days.
const searchHorizonDays = 14

// NextDelivery returns the next instant strictly after now that matches the
// cadence's weekday set and delivery hour in the given timezone, as a UTC
// instant.
//
// Daylight-saving transitions are resolved by normalization: when the local
// hour does not exist on a transition day the first valid instant after it is
// used, and when the hour repeats the first occurrence wins.
func NextDelivery(c Cadence, loc *time.Location, now time.Time) (time.Time, error) {
	if err := c.Validate(); err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}

	local := now.In(loc)
	for offset := 0; offset <= searchHorizonDays; offset++ {
		day := local.AddDate(0, 0, offset)
		if !c.DeliversOn(day.Weekday()) {
			continue
		}
		candidate := time.Date(day.Year(), day.Month(), day.Day(), c.DeliveryHour, 0, 0, 0, loc)
		if candidate.After(now) {
			return candidate.UTC(), nil
		}
	}
	return time.Time{}, services.Wrap(services.ErrScheduling, "calculator", "next delivery", "no delivery instant within horizon", nil)
}

// GenerationStart returns the instant generation must begin for a delivery
// instant, a fixed lead offset earlier.
func GenerationStart(delivery time.Time, lead time.Duration) time.Time {
	return delivery.Add(-lead)
}
