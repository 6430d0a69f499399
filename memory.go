package aicore

// ConversationLog is the append-only per-session turn log.
// Implemented by the memory package (JSONL, one file per session).
type ConversationLog interface {
	// AddTurn appends one turn to the session's log.
	AddTurn(sessionID, role, message string, meta map[string]any) error
	// GetConversation returns all turns, or the last limit turns when
	// limit > 0.
	GetConversation(sessionID string, limit int) ([]Turn, error)
	// Clear removes the session's log. Never fails on a missing file.
	Clear(sessionID string) error
}
