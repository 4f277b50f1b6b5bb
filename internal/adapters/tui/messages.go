package tui

import "go.trai.ch/tally/internal/app"

// MsgStatus carries a fresh status snapshot or the error that prevented it.
type MsgStatus struct {
	Status app.Status
	Err    error
}

// MsgResumed is sent after a force-resume request completes.
type MsgResumed struct {
	Err error
}

type msgTick struct{}
