package model

import (
	"time"
)

// UserStatus tracks how confident the vision backend is about a user.
type UserStatus string

const (
	UserUnknown    UserStatus = "unknown"
	UserDetected   UserStatus = "detected"
	UserIdentified UserStatus = "identified"
	UserLost       UserStatus = "lost"
)

// User is the identity of the person in front of the robot. Detection and
// identification events mutate it; components reference users by id only.
type User struct {
	ID             string         `json:"user_id"`
	Name           string         `json:"user_name,omitempty"`
	Status         UserStatus     `json:"status"`
	Confidence     float64        `json:"confidence"`
	ConsensusRatio float64        `json:"consensus_ratio"`
	FirstDetected  time.Time      `json:"first_detected"`
	LastSeen       time.Time      `json:"last_seen"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// NewUser creates a user from the first detection event carrying its id.
func NewUser(id string) *User {
	now := time.Now().UTC()
	return &User{
		ID:            id,
		Status:        UserDetected,
		FirstDetected: now,
		LastSeen:      now,
	}
}

// Touch refreshes the last-seen timestamp.
func (u *User) Touch() {
	u.LastSeen = time.Now().UTC()
}

// Identify assigns a display name and promotes the user to IDENTIFIED.
// It reports whether the call changed anything.
func (u *User) Identify(name string) bool {
	if name == "" {
		return false
	}
	changed := u.Name != name || u.Status != UserIdentified
	u.Name = name
	u.Status = UserIdentified
	u.Touch()
	return changed
}

// MarkLost flags the user as out of view.
func (u *User) MarkLost() {
	u.Status = UserLost
	u.Touch()
}

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	if u.Metadata != nil {
		out.Metadata = make(map[string]any, len(u.Metadata))
		for k, v := range u.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
