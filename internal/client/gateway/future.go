package gateway

import "context"

// Future is the result of a submitted mutation
type Future[Resp any] struct {
	done chan struct{}
	resp Resp
	err  error
}

func newFuture[Resp any]() *Future[Resp] {
	return &Future[Resp]{done: make(chan struct{})}
}

// Done is closed when the mutation completed, failed or was superseded
func (f *Future[Resp]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future resolves or ctx is done
func (f *Future[Resp]) Wait(ctx context.Context) (Resp, error) {
	select {
	case <-f.done:
		return f.resp, f.err
	case <-ctx.Done():
		var zero Resp
		return zero, ctx.Err()
	}
}

func (f *Future[Resp]) resolve(resp Resp, err error) {
	f.resp = resp
	f.err = err
	close(f.done)
}
