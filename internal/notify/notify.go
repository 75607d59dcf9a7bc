package notify

import (
	"fmt"
	"io"
	"sync"

	"reuse-console/internal/logging"
)

type Level string

const (
	Success Level = "success"
	Info    Level = "info"
	Error   Level = "error"
)

type Notification struct {
	Level       Level
	Title       string
	Description string
}

// Notifier surfaces a message to the user.
type Notifier interface {
	Notify(n Notification)
}

// Writer prints notifications as single lines, e.g. to a terminal.
type Writer struct {
	mu  sync.Mutex
	out io.Writer
}

func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

func (w *Writer) Notify(n Notification) {
	w.mu.Lock()
	defer w.mu.Unlock()

	logging.Logg.Debug("notification", "level", n.Level, "title", n.Title)
	if n.Description == "" {
		fmt.Fprintf(w.out, "[%s] %s\n", n.Level, n.Title)
		return
	}
	fmt.Fprintf(w.out, "[%s] %s: %s\n", n.Level, n.Title, n.Description)
}

// Recorder keeps notifications in memory.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Discard drops every notification.
type Discard struct{}

func (Discard) Notify(Notification) {}
