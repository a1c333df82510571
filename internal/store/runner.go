package store

import (
	"context"
	"log"
	"time"
)

// PollFunc checks on the selected device. It returns true when the device
// has gone away and the backend must reset.
type PollFunc func() (closed bool)

// Runner is the actor loop: it interleaves action handling with device
// polling, mirroring the single-threaded control loop the rest of the
// backend assumes.
type Runner struct {
	store *Store
	disp  *Dispatcher
	poll  PollFunc

	// PollInterval controls how often the device is polled between
	// requests. Defaults to 1ms, fast enough that frame callbacks keep up
	// with camera rates.
	PollInterval time.Duration
}

// NewRunner wires a store, its dispatcher and a device poll function.
func NewRunner(s *Store, d *Dispatcher, poll PollFunc) *Runner {
	return &Runner{
		store:        s,
		disp:         d,
		poll:         poll,
		PollInterval: time.Millisecond,
	}
}

// Run processes requests and polls the device until the context ends.
func (r *Runner) Run(ctx context.Context) error {
	interval := r.PollInterval
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case req := <-r.disp.requests:
			log.Printf("[Store] handling action %s", req.Action)
			req.reply <- r.store.Handle(req)

		case <-ticker.C:
			if r.poll == nil {
				continue
			}
			if closed := r.poll(); closed {
				log.Printf("[Store] device disconnected, resetting")
				r.store.Handle(Request{Action: ActionReset})
				r.disp.PushNotice(ErrorNotice{
					Action:  NoticeFullReset,
					Message: "Device disconnected",
				})
			}
		}
	}
}
