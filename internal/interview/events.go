package interview

import "time"

// EventType names an outbound event.
type EventType string

const (
	EventTranscript         EventType = "transcript"
	EventAIText             EventType = "ai_text"
	EventTurnState          EventType = "turn_state"
	EventVoiceMode          EventType = "voice_mode"
	EventInputGate          EventType = "input_gate"
	EventSpeechCaptureHint  EventType = "speech_capture_hint"
	EventAudioPlayback      EventType = "audio_playback"
	EventAssistantAudioDone EventType = "assistant_audio_done"
)

// Participant is the role a transport connection holds in an interview.
type Participant string

const (
	ParticipantCandidate Participant = "candidate"
	ParticipantObserver  Participant = "observer"
)

// Event is a single outbound notification. Payload is one of the *Payload
// types in this file.
type Event struct {
	Type    EventType
	Payload any
	At      time.Time
}

// Sink delivers events to connected participants. Delivery is fire and
// forget. Implementations must not block and must not call back into the
// [Session]: events are emitted while the session lock is held so their order
// matches the order of state changes.
type Sink interface {
	Broadcast(interviewID string, ev Event)
	SendToParticipant(interviewID string, role Participant, ev Event)
}

// TranscriptPayload carries a candidate message.
type TranscriptPayload struct {
	MessageID string `json:"message_id,omitempty"`
	Text      string `json:"text"`

	// Original is the raw recognised text when vocabulary correction changed
	// it.
	Original string `json:"original,omitempty"`
	Source   string `json:"source"`
}

// AITextPayload carries an interviewer message.
type AITextPayload struct {
	MessageID string `json:"message_id,omitempty"`
	Text      string `json:"text"`
	Greeting  bool   `json:"greeting,omitempty"`
	Fallback  bool   `json:"fallback,omitempty"`
}

// TurnStatePayload reports a state transition.
type TurnStatePayload struct {
	State    string `json:"state"`
	Previous string `json:"previous"`
}

// Speech pipeline locations used in [VoiceModePayload].
const (
	PipelineServer  = "server"
	PipelineBrowser = "browser"
)

// VoiceModePayload switches where speech is recognised and rendered.
type VoiceModePayload struct {
	STT       string     `json:"stt"`
	TTS       string     `json:"tts"`
	Reason    string     `json:"reason,omitempty"`
	Until     *time.Time `json:"until,omitempty"`
	Recovered bool       `json:"recovered,omitempty"`
}

// InputGatePayload tells the candidate their input arrived while the
// interviewer had the floor.
type InputGatePayload struct {
	State  string `json:"state"`
	Reason string `json:"reason"`
}

// HintPayload is a human-readable speech capture hint.
type HintPayload struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// AudioPlaybackPayload is one chunk of synthesised speech. Data is base64
// encoded by encoding/json.
type AudioPlaybackPayload struct {
	Seq        int    `json:"seq"`
	Data       []byte `json:"data"`
	MimeType   string `json:"mime_type"`
	SampleRate int    `json:"sample_rate,omitempty"`
}

// AudioDonePayload marks the end of an interviewer turn's speech.
type AudioDonePayload struct {
	Streamed bool `json:"streamed"`
	Chunks   int  `json:"chunks"`
}
