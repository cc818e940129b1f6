package core

// SessionID identifies one attached connection for its whole lifetime.
type SessionID string
