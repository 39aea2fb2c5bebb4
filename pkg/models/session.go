package models

import "time"

// SessionStatus represents the current state of the shared browser session
type SessionStatus string

const (
	StatusStarting SessionStatus = "STARTING"
	StatusRunning  SessionStatus = "RUNNING"
	StatusClosed   SessionStatus = "CLOSED"
	StatusError    SessionStatus = "ERROR"
)

// BrowserMode selects how the browser process is launched
type BrowserMode string

const (
	ModeLocal  BrowserMode = "local"
	ModeDocker BrowserMode = "docker"
)

// SessionInfo describes the process-wide browser session
type SessionInfo struct {
	ID          string        `json:"id"`
	Mode        BrowserMode   `json:"mode"`
	Status      SessionStatus `json:"status"`
	StartedAt   time.Time     `json:"startedAt"`
	UserDataDir string        `json:"-"`
	ConnectURL  string        `json:"-"`
	ContainerID string        `json:"-"`
}

// ProfileSnapshot is a compressed copy of the browser user-data directory
type ProfileSnapshot struct {
	ID        string    `json:"id"`
	Path      string    `json:"-"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}
