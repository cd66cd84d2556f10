package trapprocessor

import (
	"context"
	"errors"
	"sync"

	"github.com/rexpark/Arduino-SNMP/snmppdu"
)

// job is one validated trap waiting for dispatch.
type job struct {
	ctx context.Context
	msg *snmppdu.TrapMessage
}

// workerPool dispatches validated traps on a fixed set of goroutines. Jobs
// are queued on a bounded channel; a full queue blocks the receive loop.
type workerPool struct {
	workers  int
	dispatch func(ctx context.Context, msg *snmppdu.TrapMessage)
	jobs     chan job
	wg       sync.WaitGroup
}

func newWorkerPool(workers int, dispatch func(ctx context.Context, msg *snmppdu.TrapMessage)) *workerPool {
	return &workerPool{
		workers:  workers,
		dispatch: dispatch,
		jobs:     make(chan job, workers*2),
	}
}

func (w *workerPool) start() {
	for range w.workers {
		w.wg.Add(1)
		go w.worker()
	}
}

// stop closes the queue and waits for queued jobs to finish. It must be
// called once, by the goroutine that submits.
func (w *workerPool) stop() {
	close(w.jobs)
	w.wg.Wait()
}

func (w *workerPool) worker() {
	defer w.wg.Done()
	for j := range w.jobs {
		w.dispatch(j.ctx, j.msg)
	}
}

// errPoolStopping is returned by submit when the listener is stopping.
var errPoolStopping = errors.New("listener stopping, trap discarded")

// submit queues msg, giving up if ctx is cancelled or quit is closed first.
func (w *workerPool) submit(ctx context.Context, quit <-chan struct{}, msg *snmppdu.TrapMessage) error {
	j := job{ctx: ctx, msg: msg}
	select {
	case w.jobs <- j:
		return nil
	default:
	}

	select {
	case w.jobs <- j:
		return nil
	case <-quit:
		return errPoolStopping
	case <-ctx.Done():
		return ctx.Err()
	}
}
