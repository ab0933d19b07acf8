package async

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/punchcard/pkg/utils/errutil"
)

// Dispatcher runs handlers in background goroutines that outlive the HTTP
// request which started them. Wait lets shutdown drain them.
type Dispatcher struct {
	wg sync.WaitGroup
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Dispatch executes handler asynchronously. The handler context keeps the
// values of ctx, such as the logger, but not its cancellation. Errors and
// panics are reported through errutil.
func (d *Dispatcher) Dispatch(ctx context.Context, handler func(ctx context.Context) error) {
	bgCtx := context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				_ = errutil.Handle(bgCtx, goerr.New("panic in async handler", goerr.V("panic", r)), "async handler panicked")
			}
		}()

		if err := handler(bgCtx); err != nil {
			_ = errutil.Handle(bgCtx, err, "async handler failed")
		}
	}()
}

// Wait blocks until every dispatched handler returns or ctx is done
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return goerr.Wrap(ctx.Err(), "async handlers still running")
	}
}
