package msg

import (
	"github.com/google/uuid"

	"github.com/ismaiel54/fullfeed/internal/feed"
)

// Header keys set on every produced frame record
const (
	HeaderEventID     = "event_id"
	HeaderSessionID   = "session_id"
	HeaderMessageType = "message_type"
)

// FrameHeaders returns the headers for one decoded frame. Every record
// gets a fresh event id so consumers can spot redeliveries.
func FrameHeaders(sessionID string, m feed.Message) map[string]string {
	return map[string]string{
		HeaderEventID:     uuid.NewString(),
		HeaderSessionID:   sessionID,
		HeaderMessageType: string(m.Type()),
	}
}
