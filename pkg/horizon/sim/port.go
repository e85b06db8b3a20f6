package sim

import (
	"context"
	"sync"

	"github.com/pnp3ds/pnp/pkg/horizon"
)

type pending struct {
	ev    horizon.Event
	reply chan error
}

// Port is the pnp service port. Requests sent with Call wait for the
// service's reply; notifications are queued.
type Port struct {
	events chan pending

	mu        sync.Mutex
	replies   map[*horizon.Request]chan error
	closed    chan struct{}
	closeOnce sync.Once
}

// NewPort returns an open port.
func NewPort() *Port {
	return &Port{
		events:  make(chan pending, 64),
		replies: make(map[*horizon.Request]chan error),
		closed:  make(chan struct{}),
	}
}

// Receive returns the next event.
func (p *Port) Receive(ctx context.Context) (horizon.Event, error) {
	select {
	case <-ctx.Done():
		return horizon.Event{}, ctx.Err()
	case <-p.closed:
		return horizon.Event{}, horizon.ErrPortClosed
	case pe := <-p.events:
		if pe.reply != nil {
			p.mu.Lock()
			p.replies[pe.ev.Request] = pe.reply
			p.mu.Unlock()
		}
		return pe.ev, nil
	}
}

// Reply completes a request returned by Receive.
func (p *Port) Reply(req *horizon.Request, result error) error {
	p.mu.Lock()
	ch, ok := p.replies[req]
	delete(p.replies, req)
	p.mu.Unlock()
	if !ok {
		return horizon.ErrInvalidValue.WithOp("reply to unknown request")
	}
	ch <- result
	return nil
}

// Call sends req and waits for the reply.
func (p *Port) Call(ctx context.Context, req *horizon.Request) error {
	reply := make(chan error, 1)
	select {
	case p.events <- pending{ev: horizon.Event{Request: req}, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.closed:
		return horizon.ErrPortClosed
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-p.closed:
		return horizon.ErrPortClosed
	}
}

// Notify queues a notification.
func (p *Port) Notify(id uint32) {
	select {
	case p.events <- pending{ev: horizon.Event{Notification: id}}:
	case <-p.closed:
	}
}

// Close makes every pending and future Receive and Call fail with
// horizon.ErrPortClosed.
func (p *Port) Close() {
	p.closeOnce.Do(func() { close(p.closed) })
}
