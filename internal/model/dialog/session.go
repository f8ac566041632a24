package dialog

import (
	"errors"
	"fmt"
	"time"
)

// Phase is the lifecycle position of a slot-filling dialog.
type Phase string

const (
	PhaseAwaitingFirstInput Phase = "awaiting_first_input"
	PhaseAwaitingAnswer     Phase = "awaiting_answer"
	PhaseCompleted          Phase = "completed"
)

var (
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrNoQuestions       = errors.New("question list is empty")
)

// Session is the server-held state of one dialog. It is only mutated by the
// holder of the session's lease.
type Session struct {
	Key              string
	InvoiceID        string
	FixedContext     string
	PendingQuestions []string
	Answers          []string
	Cursor           int
	Phase            Phase
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewSession returns a session waiting for its first transcript.
func NewSession(key, invoiceID string, now time.Time) *Session {
	return &Session{
		Key:       key,
		InvoiceID: invoiceID,
		Phase:     PhaseAwaitingFirstInput,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// BeginQuestions records the first transcript and the model's question list.
// The list is copied and never changed afterwards.
func (s *Session) BeginQuestions(transcript string, questions []string, now time.Time) error {
	if s.Phase != PhaseAwaitingFirstInput {
		return fmt.Errorf("%w: begin questions in phase %s", ErrInvalidTransition, s.Phase)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}
	s.FixedContext = transcript
	s.PendingQuestions = append([]string(nil), questions...)
	s.Answers = make([]string, 0, len(questions))
	s.Cursor = 0
	s.Phase = PhaseAwaitingAnswer
	s.UpdatedAt = now
	return nil
}

// RecordAnswer appends the answer to the question at the cursor and advances it.
func (s *Session) RecordAnswer(answer string, now time.Time) error {
	if s.Phase != PhaseAwaitingAnswer {
		return fmt.Errorf("%w: record answer in phase %s", ErrInvalidTransition, s.Phase)
	}
	if s.Cursor >= len(s.PendingQuestions) {
		return fmt.Errorf("%w: all %d questions already answered", ErrInvalidTransition, len(s.PendingQuestions))
	}
	s.Answers = append(s.Answers, answer)
	s.Cursor++
	s.UpdatedAt = now
	return nil
}

// Complete marks the session terminal.
func (s *Session) Complete(now time.Time) {
	s.Phase = PhaseCompleted
	s.UpdatedAt = now
}

// Exhausted reports whether every pending question has an answer.
func (s *Session) Exhausted() bool {
	return s.Phase == PhaseAwaitingAnswer && s.Cursor == len(s.PendingQuestions)
}

// CurrentQuestion returns the question at the cursor, or "" when none is pending.
func (s *Session) CurrentQuestion() string {
	if s.Cursor < 0 || s.Cursor >= len(s.PendingQuestions) {
		return ""
	}
	return s.PendingQuestions[s.Cursor]
}

// CheckInvariants verifies the cursor bounds and the answers/cursor pairing.
func (s *Session) CheckInvariants() error {
	if s.Cursor < 0 || s.Cursor > len(s.PendingQuestions) {
		return fmt.Errorf("cursor %d outside [0, %d]", s.Cursor, len(s.PendingQuestions))
	}
	if len(s.Answers) != s.Cursor {
		return fmt.Errorf("answers %d != cursor %d", len(s.Answers), s.Cursor)
	}
	return nil
}

// Snapshot is a read-only copy of a session safe to hand to other goroutines.
type Snapshot struct {
	Key            string    `json:"sessionId"`
	InvoiceID      string    `json:"invoiceId"`
	Phase          Phase     `json:"phase"`
	Questions      []string  `json:"questions"`
	AnsweredCount  int       `json:"answeredCount"`
	Cursor         int       `json:"cursor"`
	TotalQuestions int       `json:"totalQuestions"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		Key:            s.Key,
		InvoiceID:      s.InvoiceID,
		Phase:          s.Phase,
		Questions:      append([]string(nil), s.PendingQuestions...),
		AnsweredCount:  len(s.Answers),
		Cursor:         s.Cursor,
		TotalQuestions: len(s.PendingQuestions),
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}
