package domain

import "time"

// Cooldown is the minimum spacing between two firings of the same alert.
type Cooldown string

const (
	CooldownOnce            Cooldown = "once"
	CooldownOncePerMinute   Cooldown = "once_per_minute"
	CooldownOncePer5Minute  Cooldown = "once_per_5_minute"
	CooldownOncePer15Minute Cooldown = "once_per_15_minute"
	CooldownOncePerHour     Cooldown = "once_per_hour"
	CooldownOncePerDay      Cooldown = "once_per_day"
)

// cooldownWindows is the frequency policy table. CooldownOnce is absent on
// purpose: an alert with that policy is never re-selected after it fires.
var cooldownWindows = map[Cooldown]time.Duration{
	CooldownOncePerMinute:   time.Minute,
	CooldownOncePer5Minute:  5 * time.Minute,
	CooldownOncePer15Minute: 15 * time.Minute,
	CooldownOncePerHour:     time.Hour,
	CooldownOncePerDay:      24 * time.Hour,
}

// repeatingCooldowns fixes the order in which DueCutoffs emits entries so
// generated queries are stable.
var repeatingCooldowns = []Cooldown{
	CooldownOncePerMinute,
	CooldownOncePer5Minute,
	CooldownOncePer15Minute,
	CooldownOncePerHour,
	CooldownOncePerDay,
}

// Valid reports whether c is a known cooldown policy.
func (c Cooldown) Valid() bool {
	if c == CooldownOnce {
		return true
	}
	_, ok := cooldownWindows[c]
	return ok
}

// Window returns the re-selection window for c. The boolean is false for
// CooldownOnce and for unknown policies.
func (c Cooldown) Window() (time.Duration, bool) {
	d, ok := cooldownWindows[c]
	return d, ok
}

// DueCutoff pairs a repeating cooldown with the latest last-triggered time
// that still makes an alert under that policy due.
type DueCutoff struct {
	Cooldown Cooldown
	Cutoff   time.Time
}

// DueCutoffs expands the policy table for the given instant. Stores turn the
// result into a single query: an alert is due when it is active and either
// has never fired or matches one of the (cooldown, last_triggered <= cutoff)
// pairs.
func DueCutoffs(now time.Time) []DueCutoff {
	out := make([]DueCutoff, 0, len(repeatingCooldowns))
	for _, c := range repeatingCooldowns {
		out = append(out, DueCutoff{Cooldown: c, Cutoff: now.Add(-cooldownWindows[c])})
	}
	return out
}
