// Package messages provides the single user-visible status message slot.
// A new message always replaces the previous one; there is no stacking.
package messages

import (
	"fmt"
	"sync"
	"time"
)

// Kind classifies a message for rendering.
type Kind string

// Kind values
const (
	KindInfo     Kind = "info"
	KindProgress Kind = "progress"
	KindSuccess  Kind = "success"
	KindError    Kind = "error"
)

// Glyph returns the prefix rendered in front of a message of this kind.
func (k Kind) Glyph() string {
	switch k {
	case KindProgress:
		return "⏳"
	case KindSuccess:
		return "✅"
	case KindError:
		return "❌"
	default:
		return "ℹ️"
	}
}

// Message is one status line.
type Message struct {
	Kind Kind      `json:"kind"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// String renders the message with its glyph.
func (m Message) String() string {
	if m.Text == "" {
		return ""
	}
	return m.Kind.Glyph() + " " + m.Text
}

// Slot holds the current message and fans every update out to subscribers.
type Slot struct {
	mu      sync.RWMutex
	current Message
	subs    map[int]chan Message
	nextSub int
	now     func() time.Time
}

// NewSlot creates an empty message slot.
func NewSlot() *Slot {
	return &Slot{
		subs: make(map[int]chan Message),
		now:  time.Now,
	}
}

// Set replaces the current message.
func (s *Slot) Set(kind Kind, text string) Message {
	msg := Message{Kind: kind, Text: text, At: s.now()}

	s.mu.Lock()
	s.current = msg
	subs := make([]chan Message, 0, len(s.subs))
	for _, ch := range s.subs {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	for _, ch := range subs {
		// Slow subscribers drop intermediate messages; the latest one is always in Current.
		select {
		case ch <- msg:
		default:
		}
	}
	return msg
}

// Infof sets an informational message.
func (s *Slot) Infof(format string, args ...any) Message {
	return s.Set(KindInfo, fmt.Sprintf(format, args...))
}

// Progressf sets a progress message.
func (s *Slot) Progressf(format string, args ...any) Message {
	return s.Set(KindProgress, fmt.Sprintf(format, args...))
}

// Successf sets a success message.
func (s *Slot) Successf(format string, args ...any) Message {
	return s.Set(KindSuccess, fmt.Sprintf(format, args...))
}

// Fail converts an operation failure into the error message.
func (s *Slot) Fail(op string, err error) Message {
	if err == nil {
		return s.Set(KindError, op+" failed")
	}
	return s.Set(KindError, fmt.Sprintf("%s failed: %v", op, err))
}

// Current returns the latest message; ok is false until the first Set.
func (s *Slot) Current() (msg Message, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, !s.current.At.IsZero()
}

// Clear empties the slot without notifying subscribers.
func (s *Slot) Clear() {
	s.mu.Lock()
	s.current = Message{}
	s.mu.Unlock()
}

// Subscribe returns a channel receiving every subsequent message and a cancel func.
func (s *Slot) Subscribe(buffer int) (<-chan Message, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Message, buffer)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}
