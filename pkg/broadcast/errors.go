package broadcast

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by Recv after the channel was closed and drained,
	// and by Hub.Subscribe after the hub was closed.
	ErrClosed = errors.New("broadcast: closed")

	// ErrLagged matches every *LagError via errors.Is.
	ErrLagged = errors.New("broadcast: subscriber lagged")
)

// LagError reports that a subscriber fell behind and values were overwritten
// before it read them. The subscription stays usable: the next Recv returns
// the oldest value still buffered.
type LagError struct {
	Skipped uint64
}

func (e *LagError) Error() string {
	return fmt.Sprintf("broadcast: subscriber lagged, %d values skipped", e.Skipped)
}

func (e *LagError) Is(target error) bool {
	return target == ErrLagged
}
