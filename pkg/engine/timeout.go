package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultTimeout bounds a single scene evaluation unless WithTimeout
// overrides it.
const DefaultTimeout = 5 * time.Second

var (
	// ErrTimeout is returned when a scene runs past the engine's timeout.
	ErrTimeout = errors.New("scene evaluation timed out")
	// ErrSuperseded is returned when a newer evaluation started first.
	ErrSuperseded = errors.New("scene evaluation superseded")
)

type evalResult struct {
	scene  *Scene
	errors []EvalError
	err    error
}

// generation numbers evaluations so a late result can be told apart from
// the current one.
type generation struct {
	mu sync.Mutex
	n  uint64
}

func (g *generation) next() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return g.n
}

func (g *generation) current() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}

// await returns the result sent on ch, ErrTimeout after limit, or
// ErrSuperseded when gen is no longer current. A timed-out goroutine keeps
// running; its result is dropped into the buffered channel and discarded.
func await(ch <-chan evalResult, gen uint64, gens *generation, limit time.Duration) (*Scene, []EvalError, error) {
	timer := time.NewTimer(limit)
	defer timer.Stop()

	select {
	case res := <-ch:
		if gen != gens.current() {
			return nil, nil, fmt.Errorf("engine: %w", ErrSuperseded)
		}
		return res.scene, res.errors, res.err
	case <-timer.C:
		return nil, nil, fmt.Errorf("engine: after %s: %w", limit, ErrTimeout)
	}
}
