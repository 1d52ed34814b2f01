// Package sse implements a Server-Sent Events broker that tells open editors
// when notes change.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event is one named SSE message. Data is JSON-encoded into the frame.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Note event kinds accepted by PublishNoteEvent.
const (
	KindCreated = "created"
	KindUpdated = "updated"
	KindDeleted = "deleted"
)

// Event types on the wire.
const (
	TypeListUpdated = "list.updated"
	TypeReloaded    = "notes.reloaded"
)

// NoteChange is the payload of the note.* events.
type NoteChange struct {
	ID string `json:"id"`
}

const (
	defaultListThrottle = 2 * time.Second
	defaultHeartbeat    = 30 * time.Second
	clientBuffer        = 64
	retryMillis         = 3000
)

// Option configures a Broker.
type Option func(*Broker)

// WithListThrottle bounds how often the coarse list.updated event is sent.
func WithListThrottle(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.listMin = d
		}
	}
}

// WithHeartbeat sets the interval of keepalive comments on idle streams.
// Zero or negative disables them.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broker) {
		b.heartbeat = d
	}
}

type request struct {
	event Event
	// note marks a note.* event, which may be followed by list.updated.
	note bool
}

// Broker fans events out to connected SSE clients.
//
// A single goroutine owns the client set, the event sequence and the list
// throttle; everything else talks to it over channels.
type Broker struct {
	listMin   time.Duration
	heartbeat time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	eventCh       chan request
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker and starts its loop. Call Close to stop it.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		listMin:       defaultListThrottle,
		heartbeat:     defaultHeartbeat,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		eventCh:       make(chan request, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

// frame renders an event in text/event-stream format.
func frame(seq uint64, event Event) ([]byte, error) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload), nil
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		seq      uint64
		lastList time.Time
	)

	broadcast := func(event Event) {
		seq++
		raw, err := frame(seq, event)
		if err != nil {
			return
		}
		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Slow client; it misses this event rather than stalling the loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case req := <-b.eventCh:
			broadcast(req.event)
			if !req.note {
				continue
			}
			if now := time.Now(); now.Sub(lastList) >= b.listMin {
				lastList = now
				broadcast(Event{Type: TypeListUpdated, Data: struct{}{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes every client channel. It is safe to call
// more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client. The channel is closed by Unsubscribe or Close.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

func (b *Broker) send(req request) {
	if b.closed.Load() {
		return
	}
	select {
	case b.eventCh <- req:
	case <-b.stopped:
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	b.send(request{event: event})
}

// PublishNoteEvent announces a note change as note.<kind>, followed by a
// throttled list.updated. Unknown kinds are dropped.
func (b *Broker) PublishNoteEvent(kind, id string) {
	switch kind {
	case KindCreated, KindUpdated, KindDeleted:
	default:
		return
	}
	b.send(request{
		event: Event{Type: "note." + kind, Data: NoteChange{ID: id}},
		note:  true,
	})
}

// PublishReload tells clients the workbook was changed outside the app, so
// everything they display may be stale.
func (b *Broker) PublishReload() {
	b.Publish(Event{Type: TypeReloaded, Data: struct{}{}})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "retry: %d\n\n", retryMillis)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	var tick <-chan time.Time
	if b.heartbeat > 0 {
		ticker := time.NewTicker(b.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
