package capture

import (
	"github.com/google/uuid"

	"github.com/snaplate/backend/internal/translate"
)

// Phase is the position of the current generation in the state machine.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseLoading   Phase = "loading"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
)

// Failure is the last error of a generation, safe to show to users.
type Failure struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// State is a consistent copy of the orchestration state.
type State struct {
	Generation     uint64            `json:"generation"`
	Phase          Phase             `json:"phase"`
	Loading        bool              `json:"is_loading"`
	TargetLanguage string            `json:"target_language,omitempty"`
	Image          []byte            `json:"-"`
	HasImage       bool              `json:"has_image"`
	Result         *translate.Result `json:"result,omitempty"`
	Error          *Failure          `json:"last_error,omitempty"`
	Alert          *Alert            `json:"alert,omitempty"`
	// RecordID and PersistError report the best-effort history write that
	// follows a success. Neither is set while the write is pending.
	RecordID     *uuid.UUID `json:"record_id,omitempty"`
	PersistError string     `json:"persist_error,omitempty"`
}

// Settled reports whether the generation has left Loading.
func (s State) Settled() bool {
	return s.Phase != PhaseLoading
}

func (s State) clone() State {
	c := s
	c.HasImage = len(s.Image) > 0
	if s.Result != nil {
		r := *s.Result
		c.Result = &r
	}
	if s.Error != nil {
		f := *s.Error
		c.Error = &f
	}
	if s.Alert != nil {
		a := *s.Alert
		c.Alert = &a
	}
	if s.RecordID != nil {
		id := *s.RecordID
		c.RecordID = &id
	}
	return c
}
