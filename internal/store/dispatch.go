package store

import "context"

// ErrorNotice is a backend-initiated error pushed to the frontend outside
// the request/response cycle, e.g. when the device disconnects mid-stream.
type ErrorNotice struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

// NoticeFullReset tells the frontend to discard its device state and start
// over.
const NoticeFullReset = "FullReset"

// Dispatcher is the bidirectional queue pair between the websocket handler
// and the actor: requests flow in and block for their result, notices flow
// out for the handler to push whenever it next services the connection.
type Dispatcher struct {
	requests chan Request
	notices  chan ErrorNotice
}

// NewDispatcher creates a dispatcher. The notice queue is buffered so the
// actor never blocks on an absent or slow frontend.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		requests: make(chan Request),
		notices:  make(chan ErrorNotice, 16),
	}
}

// Dispatch sends a request to the actor and waits for its result. It
// returns the context error if the actor is gone or the caller gives up.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Result, error) {
	req.reply = make(chan Result, 1)
	select {
	case d.requests <- req:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	select {
	case res := <-req.reply:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Notices exposes the outbound queue for the websocket handler to drain.
func (d *Dispatcher) Notices() <-chan ErrorNotice {
	return d.notices
}

// PushNotice enqueues a backend-initiated error. If the queue is full the
// oldest notice is discarded; the frontend only ever needs the latest state.
func (d *Dispatcher) PushNotice(n ErrorNotice) {
	for {
		select {
		case d.notices <- n:
			return
		default:
			select {
			case <-d.notices:
			default:
			}
		}
	}
}
