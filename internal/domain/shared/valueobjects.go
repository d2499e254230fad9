// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// TenantID represents a unique cup tenant identifier (short slug).
type TenantID string

// Regular expression for valid tenant slug format.
var tenantIDRegex = regexp.MustCompile(`^[a-z][a-z0-9-]{1,31}$`)

// IsValid checks if the tenant ID is valid.
func (t TenantID) IsValid() bool {
	return tenantIDRegex.MatchString(string(t))
}

// String returns the string representation.
func (t TenantID) String() string {
	return string(t)
}

// NewTenantID creates a new TenantID with validation.
func NewTenantID(id string) (TenantID, error) {
	tid := TenantID(strings.ToLower(strings.TrimSpace(id)))
	if !tid.IsValid() {
		return "", NewDomainError("shared", "NewTenantID", ErrInvalidID, "invalid tenant ID format")
	}
	return tid, nil
}

// PilotID represents a unique pilot identifier (UUID format).
type PilotID string

// UUID validation regex (simple version).
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// IsValid checks if the pilot ID is a valid UUID.
func (p PilotID) IsValid() bool {
	return uuidRegex.MatchString(string(p))
}

// String returns the string representation.
func (p PilotID) String() string {
	return string(p)
}

// IsEmpty checks if the ID is empty.
func (p PilotID) IsEmpty() bool {
	return p == ""
}

// NewPilotID creates a new PilotID with validation.
func NewPilotID(id string) (PilotID, error) {
	pid := PilotID(strings.ToLower(strings.TrimSpace(id)))
	if !pid.IsValid() {
		return "", NewDomainError("shared", "NewPilotID", ErrInvalidID, "invalid pilot ID format")
	}
	return pid, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Lap Time Value Object
// ═══════════════════════════════════════════════════════════════════════════

// LapTime represents a pilot's best lap time in milliseconds.
// Zero means "no time recorded yet".
type LapTime int64

// IsValid checks if the lap time is plausible (non-negative, under an hour).
func (lt LapTime) IsValid() bool {
	return lt >= 0 && lt < LapTime(time.Hour/time.Millisecond)
}

// IsZero reports whether no time has been recorded.
func (lt LapTime) IsZero() bool {
	return lt == 0
}

// Duration returns the lap time as a time.Duration.
func (lt LapTime) Duration() time.Duration {
	return time.Duration(lt) * time.Millisecond
}

// FasterThan reports whether this lap time beats another. A zero time
// never beats anything, and anything beats a zero time.
func (lt LapTime) FasterThan(other LapTime) bool {
	if lt.IsZero() {
		return false
	}
	if other.IsZero() {
		return true
	}
	return lt < other
}

// String returns a human-readable "ss.mmm" representation.
func (lt LapTime) String() string {
	if lt.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%d.%03d", lt/1000, lt%1000)
}

// ═══════════════════════════════════════════════════════════════════════════
// Rank and Points Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// Rank represents a pilot's position in a result table (1 = first).
// Zero means "unranked".
type Rank int

// IsValid checks if the rank is valid.
func (r Rank) IsValid() bool {
	return r >= 0
}

// IsPodium reports whether the rank is a podium position.
func (r Rank) IsPodium() bool {
	return r >= 1 && r <= 3
}

// Int returns the underlying int value.
func (r Rank) Int() int {
	return int(r)
}

// Points represents competition points awarded for a final rank.
type Points int

// Int returns the underlying int value.
func (p Points) Int() int {
	return int(p)
}
