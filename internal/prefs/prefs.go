// Package prefs keeps the interface preferences that survive restarts:
// the ui-storage and table-storage records.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"reuse-console/internal/logging"
	"reuse-console/internal/store"
)

var ErrInvalidTheme = errors.New("theme must be light or dark")

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// load leaves v untouched when nothing has been stored yet.
func load(ctx context.Context, s store.Storage, key string, v any) error {
	err := store.LoadJSON(ctx, s, key, v)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

type UIState struct {
	Theme       Theme `json:"theme"`
	SidebarOpen bool  `json:"sidebarOpen"`
}

func DefaultUI() UIState {
	return UIState{Theme: ThemeLight, SidebarOpen: true}
}

// UI is the ui-storage store.
type UI struct {
	storage store.Storage

	mu    sync.Mutex
	state UIState
}

func NewUI(storage store.Storage) *UI {
	return &UI{storage: storage, state: DefaultUI()}
}

// Load restores the stored preferences. An unreadable record keeps the defaults.
func (u *UI) Load(ctx context.Context) error {
	state := DefaultUI()
	if err := load(ctx, u.storage, store.UIKey, &state); err != nil {
		logging.Logg.Warn("UI preferences unreadable, using defaults", "error", err)
		state = DefaultUI()
	}
	if state.Theme != ThemeDark {
		state.Theme = ThemeLight
	}
	u.mu.Lock()
	u.state = state
	u.mu.Unlock()
	return nil
}

func (u *UI) State() UIState {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

func (u *UI) SetTheme(ctx context.Context, t Theme) error {
	if t != ThemeLight && t != ThemeDark {
		return fmt.Errorf("%w: %q", ErrInvalidTheme, t)
	}
	return u.update(ctx, func(s *UIState) { s.Theme = t })
}

func (u *UI) SetSidebarOpen(ctx context.Context, open bool) error {
	return u.update(ctx, func(s *UIState) { s.SidebarOpen = open })
}

func (u *UI) ToggleSidebar(ctx context.Context) error {
	return u.update(ctx, func(s *UIState) { s.SidebarOpen = !s.SidebarOpen })
}

func (u *UI) update(ctx context.Context, fn func(*UIState)) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	fn(&u.state)
	return store.SaveJSON(ctx, u.storage, store.UIKey, u.state)
}
