package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Mode governs where a channel's traffic is delivered
type Mode string

const (
	// ModeSafe redirects every destination to the operator address
	ModeSafe Mode = "safe"
	// ModeTest redirects like ModeSafe and tags the record as a rehearsal
	ModeTest Mode = "test"
	// ModeLive delivers to the caller-supplied destination
	ModeLive Mode = "live"
)

// ParseMode accepts a mode name in any letter case
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.IsValid() {
		return "", fmt.Errorf("unknown mode %q", s)
	}
	return m, nil
}

// IsValid reports whether the mode is known
func (m Mode) IsValid() bool {
	return m == ModeSafe || m == ModeTest || m == ModeLive
}

// RewritesDestination reports whether the mode redirects to the operator address
func (m Mode) RewritesDestination() bool {
	return m == ModeSafe || m == ModeTest
}

// ModeState is the current mode of one channel. Version increases by one on
// every change and is the compare-and-swap token.
type ModeState struct {
	Channel       Channel   `json:"channel" db:"channel"`
	Mode          Mode      `json:"mode" db:"mode"`
	Version       int64     `json:"version" db:"version"`
	LastChangedAt time.Time `json:"last_changed_at" db:"last_changed_at"`
	LastChangedBy string    `json:"last_changed_by" db:"last_changed_by"`
}

// TableName returns the table name for the ModeState model
func (ModeState) TableName() string {
	return "mode_states"
}

// Next returns the state that follows s after switching to mode
func (s ModeState) Next(mode Mode, changedBy string, at time.Time) ModeState {
	return ModeState{
		Channel:       s.Channel,
		Mode:          mode,
		Version:       s.Version + 1,
		LastChangedAt: at,
		LastChangedBy: changedBy,
	}
}

// ModeChange records one mode switch. It is not an invocation.
type ModeChange struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Channel      Channel   `json:"channel" db:"channel"`
	PreviousMode Mode      `json:"previous_mode" db:"previous_mode"`
	NewMode      Mode      `json:"new_mode" db:"new_mode"`
	ChangedBy    string    `json:"changed_by" db:"changed_by"`
	ChangedAt    time.Time `json:"changed_at" db:"changed_at"`
}

// TableName returns the table name for the ModeChange model
func (ModeChange) TableName() string {
	return "mode_changes"
}

// NewModeChange builds the change record for the transition prev -> next
func NewModeChange(prev, next ModeState) *ModeChange {
	return &ModeChange{
		ID:           uuid.New(),
		Channel:      next.Channel,
		PreviousMode: prev.Mode,
		NewMode:      next.Mode,
		ChangedBy:    next.LastChangedBy,
		ChangedAt:    next.LastChangedAt,
	}
}
