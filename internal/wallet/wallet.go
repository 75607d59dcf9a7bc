// Package wallet holds the local copy of the consumer wallet. The copy is
// only ever replaced with what the API returns; balances are never adjusted
// locally.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"reuse-console/internal/logging"
	"reuse-console/internal/model"
)

var ErrWalletUnavailable = errors.New("wallet unavailable")

// Client is the subset of the API client the wallet uses.
type Client interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
}

// Snapshot is one consistent view of the wallet and its history.
type Snapshot struct {
	Wallet    model.WalletData
	History   []model.HistoryEntry
	UpdatedAt time.Time
	Version   int
}

// ReadModel is the in-memory wallet shown to the user.
type ReadModel struct {
	mu      sync.RWMutex
	current *Snapshot
}

// Replace swaps the whole read-model for a freshly fetched one.
func (r *ReadModel) Replace(w model.WalletData, history []model.HistoryEntry, at time.Time) {
	h := make([]model.HistoryEntry, len(history))
	copy(h, history)

	r.mu.Lock()
	defer r.mu.Unlock()
	version := 1
	if r.current != nil {
		version = r.current.Version + 1
	}
	r.current = &Snapshot{Wallet: w, History: h, UpdatedAt: at, Version: version}
}

// Current returns the latest snapshot, ok is false before the first refresh.
func (r *ReadModel) Current() (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return Snapshot{}, false
	}
	s := *r.current
	s.History = make([]model.HistoryEntry, len(r.current.History))
	copy(s.History, r.current.History)
	return s, true
}

// Reset drops the snapshot, e.g. when the account signs out.
func (r *ReadModel) Reset() {
	r.mu.Lock()
	r.current = nil
	r.mu.Unlock()
}

type Service struct {
	api   Client
	model *ReadModel
	now   func() time.Time
}

func NewService(api Client, rm *ReadModel) *Service {
	if rm == nil {
		rm = &ReadModel{}
	}
	return &Service{api: api, model: rm, now: time.Now}
}

func (s *Service) Model() *ReadModel {
	return s.model
}

// Refresh fetches the wallet and its history and replaces the read-model.
// Nothing is replaced unless both calls succeed.
func (s *Service) Refresh(ctx context.Context) (Snapshot, error) {
	w, err := s.fetchWallet(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	var history []model.HistoryEntry
	if err := s.api.Get(ctx, "consumers/history", nil, &history); err != nil {
		return Snapshot{}, fmt.Errorf("%w: history: %w", ErrWalletUnavailable, err)
	}

	s.model.Replace(w, history, s.now())
	snap, _ := s.model.Current()
	logging.Logg.Debug("Wallet refreshed", "points", w.Points, "entries", len(history), "version", snap.Version)
	return snap, nil
}

func (s *Service) fetchWallet(ctx context.Context) (model.WalletData, error) {
	var w model.WalletData
	if err := s.api.Get(ctx, "consumers/wallet", nil, &w); err != nil {
		return w, fmt.Errorf("%w: %w", ErrWalletUnavailable, err)
	}
	// Older backends report the spendable amount as balance only.
	if w.Points == 0 && w.Balance != 0 {
		w.Points = w.Balance
	}
	if w.Balance == 0 {
		w.Balance = w.Points
	}
	return w, nil
}
