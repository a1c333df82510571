package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/oakview/oakbridge/internal/topics"
)

func TestDispatchRoundTrip(t *testing.T) {
	s := New()
	d := NewDispatcher()
	r := NewRunner(s, d, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	res, err := d.Dispatch(ctx, Request{
		Action:        ActionSetSubscriptions,
		Subscriptions: []topics.Topic{topics.DepthImage},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK || len(res.Subscriptions) != 1 || res.Subscriptions[0] != topics.DepthImage {
		t.Errorf("unexpected result: %+v", res)
	}

	cancel()
	<-done
}

func TestDispatchReturnsContextError(t *testing.T) {
	d := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// No runner is draining requests; Dispatch must not block.
	_, err := d.Dispatch(ctx, Request{Action: ActionGetPipeline})
	if err != context.Canceled {
		t.Errorf("Dispatch error = %v, want context.Canceled", err)
	}
}

func TestPushNoticeDropsOldestWhenFull(t *testing.T) {
	d := NewDispatcher()
	for i := 0; i < cap(d.notices)+5; i++ {
		d.PushNotice(ErrorNotice{Action: NoticeFullReset, Message: fmt.Sprintf("n%d", i)})
	}

	// The newest notice must survive the overflow.
	var last ErrorNotice
	for {
		select {
		case n := <-d.Notices():
			last = n
			continue
		default:
		}
		break
	}
	if want := fmt.Sprintf("n%d", cap(d.notices)+4); last.Message != want {
		t.Errorf("last notice = %q, want %q", last.Message, want)
	}
}

func TestRunnerResetsOnDeviceLoss(t *testing.T) {
	s := New()
	resetCalled := make(chan struct{}, 1)
	s.OnReset = func() (bool, string) {
		select {
		case resetCalled <- struct{}{}:
		default:
		}
		return true, "Reset successful"
	}

	d := NewDispatcher()
	closed := true
	r := NewRunner(s, d, func() bool {
		// Report the loss once; afterwards there is no device to poll.
		was := closed
		closed = false
		return was
	})
	r.PollInterval = 100 * time.Microsecond

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	select {
	case <-resetCalled:
	case <-ctx.Done():
		t.Fatal("timed out waiting for reset")
	}

	select {
	case n := <-d.Notices():
		if n.Action != NoticeFullReset {
			t.Errorf("notice action = %q, want %q", n.Action, NoticeFullReset)
		}
		if n.Message != "Device disconnected" {
			t.Errorf("notice message = %q", n.Message)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for FullReset notice")
	}

	cancel()
	<-done
}
