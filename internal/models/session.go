package models

import "time"

// SessionTTL is how long a session stays alive after its last activity.
const SessionTTL = 24 * time.Hour

// ContextData holds dialogue-state slots carried across turns.
// Values are strings, numbers, or booleans.
type ContextData map[string]any

// Session is one conversation thread between an end user and the NLU engine.
type Session struct {
	UserID       string      `json:"userId"`
	SessionID    string      `json:"sessionId"`
	ContextData  ContextData `json:"contextData"`
	LastActivity time.Time   `json:"lastActivity"`
	CreatedAt    time.Time   `json:"createdAt"`
	ExpiresAt    time.Time   `json:"expiresAt"`
	MessageCount int         `json:"messageCount"`
	IsActive     bool        `json:"isActive"`
	UserAgent    string      `json:"userAgent,omitempty"`
	IPAddress    string      `json:"ipAddress,omitempty"`
}

// IsExpired reports whether the session has passed its expiry at the given time.
func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Touch records one message at the given time and moves the expiry to expiresAt.
func (s *Session) Touch(at, expiresAt time.Time) {
	s.LastActivity = at
	s.ExpiresAt = expiresAt
	s.MessageCount++
}

// MergeContext layers partial on top of the existing context, key by key.
func (s *Session) MergeContext(partial ContextData) {
	if s.ContextData == nil {
		s.ContextData = make(ContextData, len(partial))
	}
	for k, v := range partial {
		s.ContextData[k] = v
	}
}

// Info returns the public projection of the session.
func (s *Session) Info() *SessionInfo {
	sessionID := s.SessionID
	lastActivity := s.LastActivity
	return &SessionInfo{
		UserID:       s.UserID,
		SessionID:    &sessionID,
		IsActive:     s.IsActive,
		MessageCount: s.MessageCount,
		LastActivity: &lastActivity,
	}
}

// SessionInfo is what callers see about a user's session.
// SessionID is nil when the user has no active session.
type SessionInfo struct {
	UserID       string     `json:"userId"`
	SessionID    *string    `json:"sessionId"`
	IsActive     bool       `json:"isActive"`
	MessageCount int        `json:"messageCount,omitempty"`
	LastActivity *time.Time `json:"lastActivity,omitempty"`
}

// SessionSummary is a row in monitoring listings.
type SessionSummary struct {
	UserID       string    `json:"userId"`
	SessionID    string    `json:"sessionId"`
	LastActivity time.Time `json:"lastActivity"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	IsActive     bool      `json:"isActive"`
}

// SessionStatistics aggregates session counts for monitoring.
type SessionStatistics struct {
	TotalSessions         int64   `json:"totalSessions"`
	ActiveSessions        int64   `json:"activeSessions"`
	ExpiredSessions       int64   `json:"expiredSessions"`
	AvgMessagesPerSession float64 `json:"avgMessagesPerSession"`
	TotalMessages         int64   `json:"totalMessages"`
	CleanupNeeded         bool    `json:"cleanupNeeded"`
}

// RequestMetadata carries the client attributes captured from an inbound request.
type RequestMetadata struct {
	IPAddress string `json:"ipAddress"`
	UserAgent string `json:"userAgent"`
}
