package domain

import "time"

// SessionExpiry is the staleness window after which a session status stops
// counting toward the aggregate view. Expiry is evaluated at read time; rows
// are never deleted.
const SessionExpiry = 5 * time.Minute

// SessionStatus represents one agent session's self-reported state, upserted
// on every push and keyed by the session key.
type SessionStatus struct {
	SessionKey  string    `json:"sessionKey"`
	Label       string    `json:"label,omitempty"`
	Active      bool      `json:"active"`
	CurrentTask string    `json:"currentTask,omitempty"`
	Model       string    `json:"model,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Expired reports whether the status is older than the staleness window.
func (s SessionStatus) Expired(now time.Time) bool {
	return now.Sub(s.UpdatedAt) > SessionExpiry
}

// SessionAggregate is the combined view over all live sessions: Active when
// any non-expired session reports active, CurrentTask from the first such
// session.
type SessionAggregate struct {
	Active      bool            `json:"active"`
	CurrentTask string          `json:"currentTask,omitempty"`
	Sessions    []SessionStatus `json:"sessions"`
}

// AggregateSessions filters expired rows and folds the rest into the
// aggregate view.
func AggregateSessions(all []SessionStatus, now time.Time) SessionAggregate {
	agg := SessionAggregate{Sessions: make([]SessionStatus, 0, len(all))}
	for _, s := range all {
		if s.Expired(now) {
			continue
		}
		agg.Sessions = append(agg.Sessions, s)
		if s.Active && !agg.Active {
			agg.Active = true
			agg.CurrentTask = s.CurrentTask
		}
	}
	return agg
}
