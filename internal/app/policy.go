package app

import "github.com/dkeye/grinder/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a participant whose send buffer is full.
type Policy interface {
	OnBackPressure(room *core.Room, id core.ConnID) BackpressureAction
}

type SimplePolicy struct{}

// OnBackPressure disconnects the slow participant.
func (SimplePolicy) OnBackPressure(room *core.Room, id core.ConnID) BackpressureAction {
	return KickMember
}
