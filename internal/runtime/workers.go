package runtime

import "context"

// workerPool bounds how many blocking handlers run concurrently. Each job
// runs on its own goroutine while the caller waits for the result, so a
// blocking callback occupies a pool slot instead of a consume loop.
type workerPool struct {
	slots chan struct{}
}

func newWorkerPool(size int) *workerPool {
	if size <= 0 {
		size = 1
	}
	return &workerPool{slots: make(chan struct{}, size)}
}

// Run executes fn once a pool slot is free and returns its error. If ctx is
// cancelled while waiting for a slot or for fn to finish, the context error
// is returned; an already-started fn still runs to completion and releases
// its slot.
func (p *workerPool) Run(ctx context.Context, fn func() error) error {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	done := make(chan error, 1)
	go func() {
		defer func() { <-p.slots }()
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
