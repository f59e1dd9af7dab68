// Package sse streams server-sent events to browser clients.
package sse

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

type Event struct {
	ID   uint64
	Name string
	Data string
}

func (e Event) format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "id: %d\n", e.ID)
	if e.Name != "" {
		fmt.Fprintf(&b, "event: %s\n", e.Name)
	}
	for _, line := range strings.Split(e.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")
	return b.String()
}

type Client struct {
	id   string
	ch   chan Event
	done chan struct{}
}

// Hub fans events out to connected clients and keeps a short history so a
// reconnecting client can resume from Last-Event-ID.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	history  []Event
	keep     int
	nextID   uint64
	interval time.Duration
	retryMs  int
}

func NewHub(interval time.Duration, keep int) *Hub {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if keep <= 0 {
		keep = 128
	}
	return &Hub{clients: make(map[string]*Client), keep: keep, interval: interval, retryMs: 5000}
}

func (h *Hub) AddClient(id string) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.clients[id]; ok {
		close(old.done)
	}
	c := &Client{id: id, ch: make(chan Event, 64), done: make(chan struct{})}
	h.clients[id] = c
	return c
}

func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.clients[c.id]; ok && cur == c {
		close(c.done)
		delete(h.clients, c.id)
	}
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish sends a named event with a JSON payload. Slow clients miss live
// events but can catch up from history on reconnect.
func (h *Hub) Publish(name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	ev := Event{ID: h.nextID, Name: name, Data: string(b)}
	h.history = append(h.history, ev)
	if len(h.history) > h.keep {
		h.history = h.history[len(h.history)-h.keep:]
	}
	for _, c := range h.clients {
		select {
		case c.ch <- ev:
		default:
		}
	}
	return nil
}

// Since returns retained events newer than id.
func (h *Hub) Since(id uint64) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Event, 0)
	for _, ev := range h.history {
		if ev.ID > id {
			out = append(out, ev)
		}
	}
	return out
}

func (h *Hub) Serve(c *gin.Context, clientID string) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	fmt.Fprintf(c.Writer, "retry: %d\n\n", h.retryMs)

	client := h.AddClient(clientID)
	defer h.RemoveClient(client)

	var last uint64
	if raw := c.GetHeader("Last-Event-ID"); raw != "" {
		last, _ = strconv.ParseUint(raw, 10, 64)
		for _, ev := range h.Since(last) {
			_, _ = c.Writer.WriteString(ev.format())
			last = ev.ID
		}
	}
	flusher.Flush()

	ping := time.NewTicker(h.interval)
	defer ping.Stop()
	for {
		select {
		case <-client.done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			_, _ = c.Writer.WriteString("event: ping\ndata: {}\n\n")
			flusher.Flush()
		case ev := <-client.ch:
			if ev.ID <= last {
				continue
			}
			last = ev.ID
			_, _ = c.Writer.WriteString(ev.format())
			flusher.Flush()
		}
	}
}
