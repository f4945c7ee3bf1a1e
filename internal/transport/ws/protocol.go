package ws

import (
	"encoding/json"
	"fmt"
	"time"
)

// Inbound message types sent by clients.
const (
	MsgAudioChunk    = "audio_chunk"
	MsgSpeakingStart = "speaking_start"
	MsgSpeakingStop  = "speaking_stop"
	MsgText          = "text"
	MsgBegin         = "begin"
	MsgTTSMode       = "tts_mode"
)

// Inbound is a JSON message from a client. Audio may also arrive as binary
// frames, in which case the MIME type comes from the connection's "mime"
// query parameter.
type Inbound struct {
	Type string `json:"type"`

	// Data is the base64-encoded audio of an audio_chunk.
	Data     []byte `json:"data,omitempty"`
	MimeType string `json:"mime_type,omitempty"`

	// Text is the candidate's typed or browser-recognised answer.
	Text string `json:"text,omitempty"`

	// Force repeats the greeting on begin.
	Force bool `json:"force,omitempty"`

	// Mode is "server" or "browser" for tts_mode.
	Mode string `json:"mode,omitempty"`
}

// Outbound is the envelope every event is sent in.
type Outbound struct {
	Type        string    `json:"type"`
	InterviewID string    `json:"interview_id"`
	Payload     any       `json:"payload"`
	At          time.Time `json:"at"`
}

func encode(o Outbound) ([]byte, error) {
	return json.Marshal(o)
}

func decodeInbound(data []byte) (Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return Inbound{}, fmt.Errorf("ws: decode message: %w", err)
	}
	return msg, nil
}
