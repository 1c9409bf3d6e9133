package websocket

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/linguaforge/server/domain/entities"
	"github.com/linguaforge/server/usecase"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Client to server control messages
const (
	MessageTypeListeningStart  MessageType = "listening_start"
	MessageTypeListeningEnd    MessageType = "listening_end"
	MessageTypeListeningCancel MessageType = "listening_cancel"
	MessageTypeTranscript      MessageType = "transcript"
	MessageTypeReset           MessageType = "reset"
	MessageTypeSpeak           MessageType = "speak"
	MessageTypePing            MessageType = "ping"
)

// Server to client messages
const (
	MessageTypeState         MessageType = "state"
	MessageTypeTurn          MessageType = "turn"
	MessageTypeSpeakingStart MessageType = "speaking_start"
	MessageTypeSpeakingEnd   MessageType = "speaking_end"
	MessageTypePong          MessageType = "pong"
	MessageTypeError         MessageType = "error"
)

// Error codes sent in ErrorMessage
const (
	ErrorCodeInvalidMessage = "invalid_message"
	ErrorCodeInvalidState   = "invalid_state"
	ErrorCodeUnsupported    = "unsupported_capability"
	ErrorCodeProvider       = "provider_error"
	ErrorCodeValidation     = "validation_error"
	ErrorCodeCaptureFailed  = "capture_failed"
	ErrorCodeInternal       = "internal_error"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp,omitempty"`
	MessageID string      `json:"message_id,omitempty"`
}

// ListeningStartMessage opens a capture. Zero fields fall back to the engine defaults.
type ListeningStartMessage struct {
	BaseMessage
	Language   string `json:"language,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Encoding   string `json:"encoding,omitempty"`
}

// ControlMessage carries listening_end, listening_cancel and reset
type ControlMessage struct {
	BaseMessage
}

// TranscriptMessage is a browser-side recognition result for the active capture
type TranscriptMessage struct {
	BaseMessage
	Text    string `json:"text"`
	IsFinal *bool  `json:"is_final,omitempty"`
}

// Final reports whether the transcript closes the utterance. Omitted means final.
func (m *TranscriptMessage) Final() bool {
	return m.IsFinal == nil || *m.IsFinal
}

// SpeakMessage asks the server to voice a prompt, e.g. a lesson question
type SpeakMessage struct {
	BaseMessage
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// StateMessage mirrors the engine's derived state
type StateMessage struct {
	BaseMessage
	State       usecase.ConversationState `json:"state"`
	IsAnalyzing bool                      `json:"is_analyzing"`
	IsSpeaking  bool                      `json:"is_speaking"`
}

// TurnMessage carries one appended conversation turn
type TurnMessage struct {
	BaseMessage
	Turn entities.Turn `json:"turn"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage parses and validates an incoming text frame
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeListeningStart:
		var msg ListeningStartMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid listening_start message: %w", err)
		}
		if err := v.validateListeningStart(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypeListeningEnd, MessageTypeListeningCancel, MessageTypeReset:
		return &ControlMessage{BaseMessage: base}, nil

	case MessageTypeTranscript:
		var msg TranscriptMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid transcript message: %w", err)
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, fmt.Errorf("text is required")
		}
		return &msg, nil

	case MessageTypeSpeak:
		var msg SpeakMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid speak message: %w", err)
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, fmt.Errorf("text is required")
		}
		return &msg, nil

	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil

	case "":
		return nil, fmt.Errorf("message type is required")

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

func (v *MessageValidator) validateListeningStart(msg *ListeningStartMessage) error {
	if msg.SampleRate != 0 && (msg.SampleRate < 8000 || msg.SampleRate > 48000) {
		return fmt.Errorf("sample_rate must be between 8000 and 48000")
	}
	if msg.Encoding == "" {
		return nil
	}

	validEncodings := map[string]bool{
		"LINEAR16": true, "WAV": true, "FLAC": true, "MULAW": true,
		"AMR": true, "AMR_WB": true, "OGG_OPUS": true,
	}
	if !validEncodings[msg.Encoding] {
		return fmt.Errorf("encoding must be one of: LINEAR16, WAV, FLAC, MULAW, AMR, AMR_WB, OGG_OPUS")
	}
	return nil
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{
		Type:      t,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: newBase(MessageTypeError),
		Code:        code,
		Message:     message,
		Details:     details,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: newBase(MessageTypePong),
		Data:        data,
	}
}

// CreateStateMessage renders an engine snapshot
func CreateStateMessage(snapshot usecase.ConversationSnapshot) *StateMessage {
	return &StateMessage{
		BaseMessage: newBase(MessageTypeState),
		State:       snapshot.State,
		IsAnalyzing: snapshot.IsAnalyzing,
		IsSpeaking:  snapshot.IsSpeaking,
	}
}

// CreateTurnMessage wraps an appended turn
func CreateTurnMessage(turn entities.Turn) *TurnMessage {
	return &TurnMessage{
		BaseMessage: newBase(MessageTypeTurn),
		Turn:        turn,
	}
}

// CreateControlMessage creates a message without a payload, e.g. speaking_start
func CreateControlMessage(t MessageType) *ControlMessage {
	return &ControlMessage{BaseMessage: newBase(t)}
}
