package models

import "time"

// SnapshotCookie is one cookie captured from the authenticated browser context
type SnapshotCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"` // unix seconds, -1 for session cookies
	Secure   bool    `json:"secure"`
	HTTPOnly bool    `json:"http_only"`
	SameSite string  `json:"same_site,omitempty"`
}

// SessionSnapshot is the persisted form of an authenticated browser session.
// It is written wholesale on every login; a new login overwrites the previous one.
type SessionSnapshot struct {
	Cookies    []SnapshotCookie `json:"cookies"`
	Origin     string           `json:"origin"`
	UserAgent  string           `json:"user_agent"`
	CapturedAt time.Time        `json:"captured_at"`
}
