// Package history holds the running chat history of a voice session.
//
// A History always starts with exactly one system turn carrying the persona's
// system prompt. That turn is fixed for the lifetime of the session; every
// later turn is a user or assistant turn appended at the end. Turns are never
// edited or removed.
package history

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ErrSystemTurn is returned when something other than New tries to add a system turn.
var ErrSystemTurn = errors.New("history: system turn is fixed at session start")

// ErrUnknownRole is returned for turns with a role outside user/assistant.
var ErrUnknownRole = errors.New("history: unknown role")

// Image is a reference to a captured video frame.
type Image struct {
	// Data is the encoded frame (usually JPEG).
	Data []byte

	// MIMEType of Data, e.g. "image/jpeg".
	MIMEType string

	Width  int
	Height int

	// FrameID is the runtime's frame counter, if it sends one.
	FrameID uint64

	CapturedAt time.Time
}

// ToolCall records a function the model asked for during an assistant turn.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Turn is one message in the conversation.
type Turn struct {
	ID        string
	Role      Role
	Text      string
	Image     *Image
	ToolCalls []ToolCall

	// Interrupted marks an assistant turn cut short by the user.
	Interrupted bool

	CreatedAt time.Time
}

// HasImage reports whether the turn carries a frame.
func (t Turn) HasImage() bool {
	return t.Image != nil
}

// History is the ordered, append-only list of turns for one session.
// It is safe for concurrent use.
type History struct {
	mu    sync.RWMutex
	turns []Turn
}

// New creates a history holding only the system prompt.
func New(systemPrompt string) *History {
	return &History{
		turns: []Turn{{
			ID:        uuid.NewString(),
			Role:      RoleSystem,
			Text:      systemPrompt,
			CreatedAt: time.Now(),
		}},
	}
}

// NewUserTurn builds a user turn. img may be nil.
func NewUserTurn(text string, img *Image) Turn {
	return Turn{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Text:      text,
		Image:     img,
		CreatedAt: time.Now(),
	}
}

// NewAssistantTurn builds an assistant turn.
func NewAssistantTurn(text string, calls []ToolCall, interrupted bool) Turn {
	return Turn{
		ID:          uuid.NewString(),
		Role:        RoleAssistant,
		Text:        text,
		ToolCalls:   calls,
		Interrupted: interrupted,
		CreatedAt:   time.Now(),
	}
}

// Append adds a user or assistant turn to the end of the history.
// The turn is copied so later changes by the caller do not leak in.
func (h *History) Append(t Turn) error {
	switch t.Role {
	case RoleUser, RoleAssistant:
	case RoleSystem:
		return ErrSystemTurn
	default:
		return ErrUnknownRole
	}

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, cloneTurn(t))
	return nil
}

// Turns returns a copy of every turn, oldest first.
func (h *History) Turns() []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Turn, len(h.turns))
	for i, t := range h.turns {
		out[i] = cloneTurn(t)
	}
	return out
}

// Len returns the number of turns, including the system turn.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// System returns the system turn.
func (h *History) System() Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return cloneTurn(h.turns[0])
}

// Last returns the most recent turn.
func (h *History) Last() Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return cloneTurn(h.turns[len(h.turns)-1])
}

func cloneTurn(t Turn) Turn {
	if t.Image != nil {
		img := *t.Image
		img.Data = append([]byte(nil), t.Image.Data...)
		t.Image = &img
	}
	if t.ToolCalls != nil {
		t.ToolCalls = append([]ToolCall(nil), t.ToolCalls...)
	}
	return t
}
