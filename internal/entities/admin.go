package entities

import "time"

// AdminRecord marks a user as a system-wide administrator.
// Presence alone grants universal access, superseding every other rule.
type AdminRecord struct {
	UserID    string
	GrantedBy string
	CreatedAt time.Time
}
