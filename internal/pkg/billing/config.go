package billing

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/TalentDesk/internal/pkg/env"
)

// DefaultPublicDomain matches the portal's default APP_HOST and APP_PORT.
const DefaultPublicDomain = "http://localhost:4000"

// Config holds the billing settings shared by all billing components.
type Config struct {
	Location         *time.Location
	BusinessHours    BusinessHours
	Pricing          PricingTable
	NetDays          int
	MirrorBatchLimit int
	MirrorDelay      time.Duration
	PublicDomain     string
}

// DefaultConfig returns AEST business hours, the default price list and Net-14 terms.
func DefaultConfig() Config {
	return Config{
		Location:         AEST,
		BusinessHours:    DefaultBusinessHours(),
		Pricing:          DefaultPricing,
		NetDays:          14,
		MirrorBatchLimit: 100,
		MirrorDelay:      250 * time.Millisecond,
		PublicDomain:     DefaultPublicDomain,
	}
}

// LoadConfigFromEnv reads BILLING_* settings on top of DefaultConfig.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if tz := strings.TrimSpace(env.GetEnv("BILLING_TIMEZONE", "")); tz != "" && tz != "AEST" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return Config{}, fmt.Errorf("BILLING_TIMEZONE: %w", err)
		}
		cfg.Location = loc
	}
	cfg.BusinessHours.Location = cfg.Location

	start, err := ParseClock(env.GetEnv("BILLING_BUSINESS_HOURS_START", "12:00"))
	if err != nil {
		return Config{}, fmt.Errorf("BILLING_BUSINESS_HOURS_START: %w", err)
	}
	end, err := ParseClock(env.GetEnv("BILLING_BUSINESS_HOURS_END", "13:00"))
	if err != nil {
		return Config{}, fmt.Errorf("BILLING_BUSINESS_HOURS_END: %w", err)
	}
	if end <= start {
		return Config{}, fmt.Errorf("business hours end %s must be after start %s", formatClock(end), formatClock(start))
	}
	cfg.BusinessHours.Start = start
	cfg.BusinessHours.End = end

	if cfg.NetDays, err = intFromEnv("BILLING_NET_DAYS", cfg.NetDays); err != nil {
		return Config{}, err
	}
	if cfg.MirrorBatchLimit, err = intFromEnv("BILLING_MIRROR_BATCH_LIMIT", cfg.MirrorBatchLimit); err != nil {
		return Config{}, err
	}
	delayMS, err := intFromEnv("BILLING_MIRROR_DELAY_MS", int(cfg.MirrorDelay/time.Millisecond))
	if err != nil {
		return Config{}, err
	}
	cfg.MirrorDelay = time.Duration(delayMS) * time.Millisecond

	if cur := strings.ToLower(strings.TrimSpace(env.GetEnv("BILLING_CURRENCY", ""))); cur != "" {
		cfg.Pricing.Currency = cur
	}
	cfg.PublicDomain = strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", cfg.PublicDomain), "/")

	return cfg, nil
}

func intFromEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(env.GetEnv(key, ""))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s: invalid value %q", key, raw)
	}
	return v, nil
}
