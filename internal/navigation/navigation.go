package navigation

import (
	"net/url"
	"sync"
)

// Navigator moves the application between routes.
type Navigator interface {
	// Current returns the path and query of the active route.
	Current() string
	Push(target string)
	// Replace swaps the active route without adding a history entry.
	Replace(target string)
	// Hard performs a full navigation that drops in-memory route state.
	Hard(target string)
}

type Kind string

const (
	KindPush    Kind = "push"
	KindReplace Kind = "replace"
	KindHard    Kind = "hard"
)

type Entry struct {
	Kind   Kind
	Target string
}

// Router is an in-memory Navigator keeping a history stack.
type Router struct {
	mu      sync.Mutex
	history []string
	log     []Entry
}

func NewRouter(start string) *Router {
	if start == "" {
		start = "/"
	}
	return &Router{history: []string{start}}
}

func (r *Router) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history[len(r.history)-1]
}

func (r *Router) Push(target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, target)
	r.log = append(r.log, Entry{KindPush, target})
}

func (r *Router) Replace(target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history[len(r.history)-1] = target
	r.log = append(r.log, Entry{KindReplace, target})
}

func (r *Router) Hard(target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = []string{target}
	r.log = append(r.log, Entry{KindHard, target})
}

// Back pops the history stack and reports whether there was an entry to return to.
func (r *Router) Back() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.history) < 2 {
		return false
	}
	r.history = r.history[:len(r.history)-1]
	return true
}

// Entries returns every navigation performed so far.
func (r *Router) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.log))
	copy(out, r.log)
	return out
}

// Path strips the query string and fragment from a route.
func Path(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	return u.Path
}

// LoginRedirect builds the login route carrying the page to come back to.
func LoginRedirect(current string) string {
	if current == "" {
		return "/login"
	}
	return "/login?returnUrl=" + url.QueryEscape(current)
}
