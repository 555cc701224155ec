package types

import "errors"

// Store-level errors.
var ErrNotFound = errors.New("requested item not found")
var ErrConflict = errors.New("item already exists or conflict")
var ErrInvalidInput = errors.New("invalid input")

// Authentication and identity errors. ErrVerification and ErrStoreUnavailable
// are fatal: they are never turned into a flash message.
var (
	ErrUserNotFound       = errors.New("no user found for email")
	ErrInvalidCredentials = errors.New("incorrect password")
	ErrVerification       = errors.New("password verification failed")
	ErrStaleIdentity      = errors.New("session identity no longer valid")
	ErrStoreUnavailable   = errors.New("credential store unavailable")
)

// MessageCategory groups one-shot flash messages for the templates.
type MessageCategory string

const (
	MessageSuccess         MessageCategory = "success"
	MessageError           MessageCategory = "error"
	MessageValidationError MessageCategory = "validationError"
)

// Message is a one-shot notification shown on exactly one subsequent request.
type Message struct {
	Category MessageCategory `json:"category"`
	Text     string          `json:"text"`
}

func NewMessage(category MessageCategory, text string) Message {
	return Message{Category: category, Text: text}
}
