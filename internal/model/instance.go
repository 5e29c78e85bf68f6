package model

import "time"

// Engine instance states.
const (
	StateUninitialized = "uninitialized"
	StateRunning       = "running"
	StateDestroyed     = "destroyed"
)

// Instance is the journal record of one engine instance.
type Instance struct {
	ID          string     `json:"id"`
	Driver      string     `json:"driver"`
	Args        []string   `json:"args"`
	State       string     `json:"state"`
	CreatedAt   time.Time  `json:"created_at"`
	DestroyedAt *time.Time `json:"destroyed_at,omitempty"`
}
