package services

import "time"

// MaxLifetime bounds every expiring document. Expiries are stored as Unix
// nanoseconds by several backends, which cannot represent instants past 2262.
const MaxLifetime = 100 * 365 * 24 * time.Hour

// ExpirationPolicy decides the lifetime of new documents. A zero Default
// means documents do not expire unless asked to; a zero Max means no cap.
type ExpirationPolicy struct {
	Default time.Duration
	Max     time.Duration
}

// ExpiresAt returns the expiry for a document created at now, or nil when
// it never expires.
//
// A positive requested TTL is used as is. Zero selects Default. A
// negative TTL asks for no expiry, which only privileged callers may have;
// others get Default. Unprivileged lifetimes never exceed Max, and no
// lifetime exceeds MaxLifetime.
func (p ExpirationPolicy) ExpiresAt(now time.Time, requested time.Duration, privileged bool) *time.Time {
	ttl := requested
	switch {
	case requested > 0:
	case requested < 0 && privileged:
		return nil
	default:
		ttl = p.Default
	}
	if !privileged && p.Max > 0 && (ttl <= 0 || ttl > p.Max) {
		ttl = p.Max
	}
	if ttl <= 0 {
		return nil
	}
	if ttl > MaxLifetime {
		ttl = MaxLifetime
	}
	t := now.Add(ttl)
	return &t
}
