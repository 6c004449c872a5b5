package schedule_test

import (
	"errors"
	"testing"
	"time"

	"cadence/internal/schedule"
	"cadence/internal/services"
)

func mustLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := schedule.LoadLocation(name)
	if err != nil {
		t.Fatalf("LoadLocation(%s): %v", name, err)
	}
	return loc
}

func TestNextDeliveryWeeklyUTC(t *testing.T) {
	cad := schedule.Cadence{Mode: schedule.ModeWeekly, Days: []time.Weekday{time.Monday}, DeliveryHour: 9}
	// Sunday 23:00 UTC.
	now := time.Date(2026, time.March, 1, 23, 0, 0, 0, time.UTC)

	got, err := schedule.NextDelivery(cad, time.UTC, now)
	if err != nil {
		t.Fatalf("NextDelivery failed: %v", err)
	}
	want := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}

	start := schedule.GenerationStart(got, 2*time.Hour)
	wantStart := time.Date(2026, time.March, 2, 7, 0, 0, 0, time.UTC)
	if !start.Equal(wantStart) {
		t.Fatalf("expected generation start %s, got %s", wantStart, start)
	}
}

func TestNextDeliverySkipsSameDayPastHour(t *testing.T) {
	cad := schedule.Cadence{Mode: schedule.ModeDaily, DeliveryHour: 9}
	now := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

	got, err := schedule.NextDelivery(cad, time.UTC, now)
	if err != nil {
		t.Fatalf("NextDelivery failed: %v", err)
	}
	want := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected next day delivery %s, got %s", want, got)
	}
}

func TestNextDeliveryCustomDays(t *testing.T) {
	cad := schedule.Cadence{
		Mode:         schedule.ModeCustom,
		Days:         []time.Weekday{time.Tuesday, time.Friday},
		DeliveryHour: 6,
	}
	// Wednesday.
	now := time.Date(2026, time.March, 4, 12, 0, 0, 0, time.UTC)

	got, err := schedule.NextDelivery(cad, time.UTC, now)
	if err != nil {
		t.Fatalf("NextDelivery failed: %v", err)
	}
	if got.Weekday() != time.Friday {
		t.Fatalf("expected Friday delivery, got %s", got.Weekday())
	}
}

func TestNextDeliverySpringForwardGap(t *testing.T) {
	loc := mustLocation(t, "America/New_York")
	// 2026-03-08: 02:00 local does not exist (clocks jump to 03:00).
	cad := schedule.Cadence{Mode: schedule.ModeWeekly, Days: []time.Weekday{time.Sunday}, DeliveryHour: 2}
	now := time.Date(2026, time.March, 7, 12, 0, 0, 0, loc)

	got, err := schedule.NextDelivery(cad, loc, now)
	if err != nil {
		t.Fatalf("NextDelivery failed: %v", err)
	}
	local := got.In(loc)
	if local.Day() != 8 || local.Hour() != 3 {
		t.Fatalf("expected first valid occurrence 03:00 on Mar 8, got %s", local)
	}
}

func TestNextDeliveryFallBackRepeatPicksFirst(t *testing.T) {
	loc := mustLocation(t, "America/New_York")
	// 2026-11-01: 01:00 local occurs twice; the first (EDT) occurrence wins.
	cad := schedule.Cadence{Mode: schedule.ModeWeekly, Days: []time.Weekday{time.Sunday}, DeliveryHour: 1}
	now := time.Date(2026, time.October, 31, 12, 0, 0, 0, loc)

	got, err := schedule.NextDelivery(cad, loc, now)
	if err != nil {
		t.Fatalf("NextDelivery failed: %v", err)
	}
	if zone, _ := got.In(loc).Zone(); zone != "EDT" {
		t.Fatalf("expected first occurrence in EDT, got %s", zone)
	}
}

func TestNextDeliveryTimezoneConversion(t *testing.T) {
	loc := mustLocation(t, "Asia/Tokyo")
	cad := schedule.Cadence{Mode: schedule.ModeDaily, DeliveryHour: 9}
	now := time.Date(2026, time.June, 1, 22, 0, 0, 0, time.UTC)

	got, err := schedule.NextDelivery(cad, loc, now)
	if err != nil {
		t.Fatalf("NextDelivery failed: %v", err)
	}
	// 09:00 JST on June 2 is 00:00 UTC on June 2.
	want := time.Date(2026, time.June, 2, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestCadenceValidation(t *testing.T) {
	cases := []struct {
		name string
		cad  schedule.Cadence
		ok   bool
	}{
		{"daily", schedule.Cadence{Mode: schedule.ModeDaily, DeliveryHour: 9}, true},
		{"weekly one day", schedule.Cadence{Mode: schedule.ModeWeekly, Days: []time.Weekday{time.Monday}, DeliveryHour: 9}, true},
		{"weekly no days", schedule.Cadence{Mode: schedule.ModeWeekly, DeliveryHour: 9}, false},
		{"custom empty", schedule.Cadence{Mode: schedule.ModeCustom, DeliveryHour: 9}, false},
		{"bad hour", schedule.Cadence{Mode: schedule.ModeDaily, DeliveryHour: 24}, false},
		{"unknown mode", schedule.Cadence{Mode: "fortnightly", DeliveryHour: 9}, false},
	}
	for _, tc := range cases {
		err := tc.cad.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok {
			if err == nil {
				t.Fatalf("%s: expected error", tc.name)
			}
			if !errors.Is(err, services.ErrScheduling) {
				t.Fatalf("%s: expected scheduling marker, got %v", tc.name, err)
			}
		}
	}
}

func TestDaysRoundTrip(t *testing.T) {
	days := []time.Weekday{time.Friday, time.Monday, time.Monday}
	encoded := schedule.FormatDays(days)
	if encoded != "1,5" {
		t.Fatalf("expected sorted deduplicated encoding, got %q", encoded)
	}
	decoded := schedule.ParseDays(encoded)
	if len(decoded) != 2 || decoded[0] != time.Monday || decoded[1] != time.Friday {
		t.Fatalf("unexpected decode: %v", decoded)
	}
}
