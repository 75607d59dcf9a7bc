package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reuse-console/internal/model"
	"reuse-console/internal/transport"
)

type noToken struct{}

func (noToken) Token() string { return "" }

func newServer(t *testing.T, wallet, history string) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/consumers/wallet", func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(wallet))
	})
	mux.HandleFunc("/consumers/history", func(w http.ResponseWriter, r *http.Request) {
		if history == "" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(history))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestRefreshReplacesWholesale(t *testing.T) {
	srv, calls := newServer(t,
		`{"isSuccess":true,"data":{"accountId":"a1","points":120,"lifetimePoints":300,"totalReturns":4,"co2Saved":85.5}}`,
		`{"isSuccess":true,"data":["Returned 2 cups","Top-up 100000"]}`)
	svc := NewService(transport.New(srv.URL, noToken{}), nil)

	_, ok := svc.Model().Current()
	assert.False(t, ok)

	snap, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, *calls)
	assert.Equal(t, model.WalletData{AccountID: "a1", Balance: 120, Points: 120, LifetimePoints: 300, TotalReturns: 4, CO2Saved: 85.5}, snap.Wallet)
	require.Len(t, snap.History, 2)
	assert.Equal(t, "Returned 2 cups", snap.History[0].Description)
	assert.Equal(t, 1, snap.Version)

	snap, err = svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Version)
}

func TestRefreshFailureKeepsPreviousModel(t *testing.T) {
	rm := &ReadModel{}
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	rm.Replace(model.WalletData{Points: 5}, nil, at)

	srv, _ := newServer(t, `{"isSuccess":true,"data":{"points":999}}`, "")
	svc := NewService(transport.New(srv.URL, noToken{}), rm)

	_, err := svc.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWalletUnavailable)
	assert.Equal(t, http.StatusInternalServerError, transport.StatusCode(err))

	snap, ok := rm.Current()
	require.True(t, ok)
	assert.Equal(t, int64(5), snap.Wallet.Points)
	assert.Equal(t, at, snap.UpdatedAt)
}

func TestRefreshRejectedEnvelope(t *testing.T) {
	srv, _ := newServer(t, `{"isSuccess":false,"message":"no wallet"}`, `[]`)
	svc := NewService(transport.New(srv.URL, noToken{}), nil)

	_, err := svc.Refresh(context.Background())
	var terr *transport.Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "no wallet", terr.Message)
}

func TestCurrentReturnsCopy(t *testing.T) {
	rm := &ReadModel{}
	rm.Replace(model.WalletData{}, []model.HistoryEntry{{Description: "a"}}, time.Now())

	snap, _ := rm.Current()
	snap.History[0].Description = "mutated"

	again, _ := rm.Current()
	assert.Equal(t, "a", again.History[0].Description)

	rm.Reset()
	_, ok := rm.Current()
	assert.False(t, ok)
}

func TestHistoryEntryObjects(t *testing.T) {
	var entries []model.HistoryEntry
	require.NoError(t, json.Unmarshal([]byte(`[{"id":"h1","type":"topup","amount":10000}]`), &entries))
	assert.Equal(t, "topup", entries[0].Type)
}
