package negotiate

import (
	"errors"
	"fmt"

	"github.com/dkeye/grinder/internal/core"
)

var (
	ErrClosed     = errors.New("peer link closed")
	ErrWrongState = errors.New("negotiation step not valid in current state")
)

// Error reports a failed negotiation step. The link it happened on keeps
// the state it had before the step.
type Error struct {
	Op   string
	Peer core.ConnID
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("negotiate %s with %s: %v", e.Op, e.Peer, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
