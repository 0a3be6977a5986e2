package actor

import (
	"fmt"
)

// FingerprintUnknown is substituted when a client supplies no device
// fingerprint, which degrades that caller class to per-IP granularity.
const FingerprintUnknown = "unknown"

// Tiers order callers by trust, each carrying its own request budget.
const (
	TierGuest Tier = iota
	TierMember
	TierAdmin
)

// Roles recognised from the upstream authentication claims.
const (
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// Tier is the budget class of an Actor.
type Tier int

func (t Tier) String() string {
	switch t {
	case TierAdmin:
		return "admin"
	case TierMember:
		return "member"
	default:
		return "guest"
	}
}

// Actor is the resolved identity a rate limit is charged against. It is
// derived per call and never stored.
type Actor struct {
	Fingerprint string
	IP          string
	Tier        Tier
	UserID      uint64
}

// Resolve derives the Actor for a call from its authentication claims,
// source address and client fingerprint.
func Resolve(userID uint64, role, ip, fingerprint string) Actor {
	if fingerprint == "" {
		fingerprint = FingerprintUnknown
	}

	return Actor{
		Fingerprint: fingerprint,
		IP:          ip,
		Tier:        tier(userID, role),
		UserID:      userID,
	}
}

// Authenticated indicates if the Actor carries an authenticated identity.
func (a Actor) Authenticated() bool {
	return a.UserID != 0
}

// Key returns the stable string identity counters are keyed by. Two calls
// from the same caller inside a window resolve to the same key.
func (a Actor) Key() string {
	if a.Authenticated() {
		return fmt.Sprintf("authed:%d:%s:%s", a.UserID, a.IP, a.Fingerprint)
	}

	return fmt.Sprintf("guest:%s:%s", a.IP, a.Fingerprint)
}

func tier(userID uint64, role string) Tier {
	if userID == 0 {
		return TierGuest
	}

	switch role {
	case RoleAdmin, RoleSuperAdmin:
		return TierAdmin
	default:
		return TierMember
	}
}
