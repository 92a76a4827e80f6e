package billing

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AEST is the agency's default billing zone (UTC+10, no daylight saving).
var AEST = time.FixedZone("AEST", 10*60*60)

// PricingTable holds the unit prices of one pricing version.
type PricingTable struct {
	Version            string
	StandardInHours    decimal.Decimal
	StandardOutOfHours decimal.Decimal
	ManualReview       decimal.Decimal
	SMS                decimal.Decimal
	Currency           string
}

// DefaultPricing is the current price list.
var DefaultPricing = PricingTable{
	Version:            "2024-01",
	StandardInHours:    decimal.RequireFromString("1.00"),
	StandardOutOfHours: decimal.RequireFromString("2.00"),
	ManualReview:       decimal.RequireFromString("1.00"),
	SMS:                decimal.RequireFromString("0.30"),
	Currency:           "aud",
}

// BusinessHours is the daily window [Start, End) in Location during which the
// standard in-hours rate applies. Start and End are offsets from midnight.
type BusinessHours struct {
	Location *time.Location
	Start    time.Duration
	End      time.Duration
}

// DefaultBusinessHours is 12:00 to 13:00 AEST.
func DefaultBusinessHours() BusinessHours {
	return BusinessHours{Location: AEST, Start: 12 * time.Hour, End: 13 * time.Hour}
}

// Contains reports whether t falls inside the window on its local calendar day.
func (h BusinessHours) Contains(t time.Time) bool {
	loc := h.Location
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	clock := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second +
		time.Duration(local.Nanosecond())
	return clock >= h.Start && clock < h.End
}

func (h BusinessHours) String() string {
	name := "UTC"
	if h.Location != nil {
		name = h.Location.String()
	}
	return fmt.Sprintf("%s-%s %s", formatClock(h.Start), formatClock(h.End), name)
}

// ParseClock parses "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

func formatClock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int((d%time.Hour)/time.Minute))
}
