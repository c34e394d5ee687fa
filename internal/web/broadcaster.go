package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Event is a single SSE message. Kind is "log" for debug output, or one
// of the engine notification kinds (state, markers, capture, zoom, filter).
type Event struct {
	Time  string `json:"t"`
	Kind  string `json:"k"`
	Level string `json:"l,omitempty"`
	Msg   string `json:"msg,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// Broadcaster distributes events to multiple SSE clients.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
}

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel that receives broadcast messages and a cleanup function.
// The caller must call the returned cleanup when done (e.g. on client disconnect).
func (b *Broadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Clients returns the number of subscribed clients.
func (b *Broadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Publish sends an engine notification to all clients.
func (b *Broadcaster) Publish(kind string, data any) {
	b.send(Event{Kind: kind, Data: data})
}

// Broadcast sends a log line to all clients.
func (b *Broadcaster) Broadcast(level, msg string) {
	b.send(Event{Kind: "log", Level: level, Msg: msg})
}

// send marshals evt as {"t":"...","k":"...",...}. Slow clients may miss
// messages (non-blocking, buffered).
func (b *Broadcaster) send(evt Event) {
	evt.Time = time.Now().Format(time.RFC3339)
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// channel full, skip
		}
	}
}

// BroadcastWriter implements io.Writer; each Write broadcasts the content to SSE clients.
func BroadcastWriter(b *Broadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

// broadcastWriter wraps Broadcaster as io.Writer for use with debug.SetOutput.
type broadcastWriter struct {
	b *Broadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(string(p), "\n") {
		if msg := strings.TrimSpace(line); msg != "" {
			w.b.Broadcast("info", msg)
		}
	}
	return len(p), nil
}
