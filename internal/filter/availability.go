// Package filter implements the release eligibility rules applied to catalog episodes.
//
// Eligibility is checked in two stages. At scan time an episode must have aired on
// the current UTC calendar day; at publish time one of its availability instants
// must already have passed. An episode scheduled for later today is picked up by the
// scan but held back until it is out.
package filter

import (
	"time"

	"release_bot/internal/model"
)

// IsToday reports whether t falls on the same UTC calendar date as now.
// A zero t is an unknown date and never today.
func IsToday(t, now time.Time) bool {
	if t.IsZero() {
		return false
	}
	ty, tm, td := t.UTC().Date()
	ny, nm, nd := now.UTC().Date()
	return ty == ny && tm == nm && td == nd
}

// IsInPast reports whether t is strictly before now.
// A zero t is an unknown date and never in the past.
func IsInPast(t, now time.Time) bool {
	if t.IsZero() {
		return false
	}
	return now.After(t)
}

// AiredToday reports whether the free or premium availability date of ep is today.
func AiredToday(ep model.Episode, now time.Time) bool {
	return IsToday(ep.FreeAvailableAt, now) || IsToday(ep.PremiumAvailableAt, now)
}

// Admissible reports whether ep passes the scan-time checks: it is a full
// episode, not a clip, and aired today.
func Admissible(ep model.Episode, now time.Time) bool {
	return !ep.IsClip && AiredToday(ep, now)
}

// Available reports whether ep is actually released for free or premium users.
func Available(ep model.Episode, now time.Time) bool {
	return IsInPast(ep.FreeAvailableAt, now) || IsInPast(ep.PremiumAvailableAt, now)
}

// EffectiveTime returns the instant used to order announcements: the free
// availability time when it is today, otherwise the premium one.
func EffectiveTime(ep model.Episode, now time.Time) time.Time {
	if IsToday(ep.FreeAvailableAt, now) {
		return ep.FreeAvailableAt
	}
	return ep.PremiumAvailableAt
}
