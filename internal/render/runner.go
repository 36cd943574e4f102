package render

import (
	"errors"
	"image"
	"sync"
)

// ErrBusy is returned by Runner.Do while a previous render is still running.
var ErrBusy = errors.New("a render is already in progress")

// Result carries a finished render back to the caller.
type Result struct {
	Image *image.Gray
	Err   error
}

// Runner executes renders one at a time on a background goroutine. There is
// no queue: a second Do while one is in flight gets ErrBusy, and the caller
// tells the user to wait.
type Runner struct {
	mu   sync.Mutex
	busy bool
}

// Busy reports whether a render is in flight.
func (r *Runner) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busy
}

// Do starts render on a new goroutine and calls done with its result. done
// runs on the render goroutine; UI callers must hop back to the main thread
// themselves.
func (r *Runner) Do(render func() (*image.Gray, error), done func(Result)) error {
	r.mu.Lock()
	if r.busy {
		r.mu.Unlock()
		return ErrBusy
	}
	r.busy = true
	r.mu.Unlock()

	go func() {
		img, err := render()
		r.mu.Lock()
		r.busy = false
		r.mu.Unlock()
		done(Result{Image: img, Err: err})
	}()
	return nil
}
