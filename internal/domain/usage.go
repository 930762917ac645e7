package domain

import "time"

// UsageCounter tracks consumed metered units against a cap.
//
// Used only ever grows through the metering service's charge operation,
// except for an explicit administrative reset.
type UsageCounter struct {
	Email     string
	Used      int64
	Limit     int64
	UpdatedAt time.Time
}

// HasRemaining returns true iff used < limit.
func (u *UsageCounter) HasRemaining() bool {
	return u.Used < u.Limit
}

// Remaining returns the units left before the cap, never negative.
func (u *UsageCounter) Remaining() int64 {
	if u.Used >= u.Limit {
		return 0
	}
	return u.Limit - u.Used
}
