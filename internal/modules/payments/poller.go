package payments

import (
	"context"
	"errors"
	"sync"
	"time"
)

// PollHandle controls one background PIX watch. The owner must call Stop
// when the buyer leaves; the loop also ends on settlement, local expiration
// or the maximum watch duration.
type PollHandle struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	last Attempt
	err  error
}

// Stop cancels the loop and waits for it to exit. Safe to call repeatedly.
func (h *PollHandle) Stop() {
	h.cancel()
	<-h.done
}

func (h *PollHandle) Done() <-chan struct{} { return h.done }

// Result is the last attempt seen and the error that ended the loop, if any.
func (h *PollHandle) Result() (Attempt, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last, h.err
}

func (h *PollHandle) set(a Attempt, err error) {
	h.mu.Lock()
	if err == nil {
		h.last = a
	}
	h.err = err
	h.mu.Unlock()
}

// Watch polls CheckPix on a fixed interval until the order settles. A timer
// on the code's expiration fires independently of the ticker. onUpdate runs
// on the watch goroutine after every successful check.
func (r *Reconciler) Watch(ctx context.Context, orderID string, onUpdate func(Attempt)) *PollHandle {
	ctx, cancel := context.WithTimeout(ctx, r.pollMax)
	h := &PollHandle{cancel: cancel, done: make(chan struct{})}
	go r.poll(ctx, h, orderID, onUpdate)
	return h
}

func (r *Reconciler) poll(ctx context.Context, h *PollHandle, orderID string, onUpdate func(Attempt)) {
	defer close(h.done)
	defer h.cancel()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	var expiry <-chan time.Time
	if ref, err := r.refs.Active(ctx, orderID); err == nil && ref.PixExpiresAt != nil {
		t := time.NewTimer(max(ref.PixExpiresAt.Sub(r.now()), 0))
		defer t.Stop()
		expiry = t.C
	}

	// step reports whether the loop is finished.
	step := func() bool {
		a, err := r.CheckPix(ctx, orderID)
		if ctx.Err() != nil {
			return true
		}
		if err != nil {
			h.set(Attempt{}, err)
			r.logger.ErrorContext(ctx, "pix watch stopped", "order_id", orderID, "err", err)
			return true
		}
		h.set(a, nil)
		if onUpdate != nil {
			onUpdate(a)
		}
		return a.Settled()
	}

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				r.logger.InfoContext(context.WithoutCancel(ctx), "pix watch reached max duration", "order_id", orderID)
			}
			return
		case <-expiry:
			expiry = nil
			if step() {
				return
			}
		case <-ticker.C:
			if step() {
				return
			}
		}
	}
}
