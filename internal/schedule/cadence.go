package schedule

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"cadence/internal/services"
)

// Mode selects how a project's delivery days are derived.
type Mode string

const (
	ModeDaily  Mode = "daily"
	ModeWeekly Mode = "weekly"
	ModeCustom Mode = "custom"
)

// ParseMode converts a string into a known Mode.
func ParseMode(value string) (Mode, bool) {
	normalized := Mode(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case ModeDaily, ModeWeekly, ModeCustom:
		return normalized, true
	}
	return "", false
}

// Cadence describes a project's delivery rhythm: which weekdays and at
// which local hour an episode is delivered.
type Cadence struct {
	Mode         Mode           `json:"mode"`
	Days         []time.Weekday `json:"days"`
	DeliveryHour int            `json:"delivery_hour"`
}

// Validate rejects cadence configurations that cannot produce a delivery
// instant. Errors carry the scheduling marker so they are refused at the
// application boundary.
func (c Cadence) Validate() error {
	switch c.Mode {
	case ModeDaily:
	case ModeWeekly:
		if len(c.Days) != 1 {
			return services.Wrap(services.ErrScheduling, "cadence", "validate", "weekly cadence requires exactly one delivery day", nil)
		}
	case ModeCustom:
		if len(c.Days) == 0 {
			return services.Wrap(services.ErrScheduling, "cadence", "validate", "custom cadence requires at least one delivery day", nil)
		}
	default:
		return services.Wrap(services.ErrScheduling, "cadence", "validate", "unknown cadence mode "+strconv.Quote(string(c.Mode)), nil)
	}
	for _, day := range c.Days {
		if day < time.Sunday || day > time.Saturday {
			return services.Wrap(services.ErrScheduling, "cadence", "validate", "invalid weekday", nil)
		}
	}
	if c.DeliveryHour < 0 || c.DeliveryHour > 23 {
		return services.Wrap(services.ErrScheduling, "cadence", "validate", "delivery hour must be between 0 and 23", nil)
	}
	return nil
}

// DeliversOn reports whether the cadence delivers on the given weekday.
func (c Cadence) DeliversOn(day time.Weekday) bool {
	if c.Mode == ModeDaily {
		return true
	}
	for _, d := range c.Days {
		if d == day {
			return true
		}
	}
	return false
}

// LoadLocation resolves an IANA timezone name, tagging failures as
// scheduling errors.
func LoadLocation(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(strings.TrimSpace(name))
	if err != nil {
		return nil, services.Wrap(services.ErrScheduling, "cadence", "timezone", "unknown timezone "+strconv.Quote(name), err)
	}
	return loc, nil
}

// FormatDays serializes a weekday set for storage, sorted and deduplicated.
func FormatDays(days []time.Weekday) string {
	if len(days) == 0 {
		return ""
	}
	seen := make(map[time.Weekday]struct{}, len(days))
	ordered := make([]int, 0, len(days))
	for _, day := range days {
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		ordered = append(ordered, int(day))
	}
	sort.Ints(ordered)
	parts := make([]string, len(ordered))
	for i, day := range ordered {
		parts[i] = strconv.Itoa(day)
	}
	return strings.Join(parts, ",")
}

// ParseDays deserializes a stored weekday set.
func ParseDays(value string) []time.Weekday {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	days := make([]time.Weekday, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 || n > 6 {
			continue
		}
		days = append(days, time.Weekday(n))
	}
	return days
}
