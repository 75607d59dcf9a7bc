package packages

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reuse-console/internal/model"
	"reuse-console/internal/transport"
)

// fakeBackend keeps packages in a map and answers with the
// {success, data, message} envelope.
type fakeBackend struct {
	mu    sync.Mutex
	pkgs  map[string]model.Package
	next  int
	calls int
}

func reply(w http.ResponseWriter, status int, success bool, data any, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": success, "data": data, "message": message})
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /package", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.calls++
		out := make([]model.Package, 0, len(b.pkgs))
		for _, p := range b.pkgs {
			out = append(out, p)
		}
		reply(w, http.StatusOK, true, out, "")
	})
	mux.HandleFunc("POST /package", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.calls++
		var d Draft
		json.NewDecoder(r.Body).Decode(&d)
		b.next++
		p := model.Package{ID: "PKG-" + strconv.Itoa(b.next), UserID: "u1", Items: d.Items, TotalPrice: d.TotalPrice, Status: model.PackageActive}
		b.pkgs[p.ID] = p
		reply(w, http.StatusCreated, true, p, "")
	})
	mux.HandleFunc("/package/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.calls++
		p, ok := b.pkgs[r.PathValue("id")]
		if !ok {
			reply(w, http.StatusNotFound, false, nil, "Package not found")
			return
		}
		switch r.Method {
		case http.MethodGet:
			reply(w, http.StatusOK, true, p, "")
		case http.MethodPut:
			var d Draft
			json.NewDecoder(r.Body).Decode(&d)
			p.Items, p.TotalPrice, p.Status = d.Items, d.TotalPrice, d.Status
			b.pkgs[p.ID] = p
			reply(w, http.StatusOK, true, p, "")
		case http.MethodDelete:
			delete(b.pkgs, p.ID)
			reply(w, http.StatusOK, true, p, "")
		}
	})
	mux.HandleFunc("POST /qr-codes/generate", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ItemUIDs []string `json:"itemUids"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		defer b.mu.Unlock()
		var out []model.QRCodeResult
		ok := 0
		for _, id := range body.ItemUIDs {
			if _, found := b.pkgs[id]; found {
				ok++
				out = append(out, model.QRCodeResult{ItemUID: id, QRCodeURL: "http://qr/" + id, Status: "success"})
				continue
			}
			out = append(out, model.QRCodeResult{ItemUID: id, Status: "error", Error: "Failed to generate QR code"})
		}
		reply(w, http.StatusOK, ok > 0, out, "Generated QR codes")
	})
	return mux
}

func newService(tb testing.TB) (*Service, *fakeBackend) {
	tb.Helper()
	b := &fakeBackend{pkgs: map[string]model.Package{}}
	srv := httptest.NewServer(b.handler())
	tb.Cleanup(srv.Close)
	return NewService(transport.New(srv.URL, nil)), b
}

func TestPackageLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	created, err := svc.Create(ctx, Draft{Items: []model.PackageItem{{ProductID: "cup", Quantity: 2}}, TotalPrice: 4000})
	require.NoError(t, err)
	assert.Equal(t, "PKG-1", created.ID)
	assert.Equal(t, model.PackageActive, created.Status)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	updated, err := svc.SetStatus(ctx, created.ID, model.PackageWashing)
	require.NoError(t, err)
	assert.Equal(t, model.PackageWashing, updated.Status)
	assert.Equal(t, created.Items, updated.Items)
	assert.Equal(t, int64(4000), updated.TotalPrice)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.PackageWashing, list[0].Status)

	require.NoError(t, svc.Delete(ctx, created.ID))
	_, err = svc.Get(ctx, created.ID)
	assert.Equal(t, http.StatusNotFound, transport.StatusCode(err))
	assert.ErrorContains(t, err, "Package not found")
}

func TestDraftValidationSkipsBackend(t *testing.T) {
	ctx := context.Background()
	svc, b := newService(t)

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{name: "no items", call: func() error { _, err := svc.Create(ctx, Draft{}); return err }, want: ErrNoItems},
		{name: "zero quantity", call: func() error {
			_, err := svc.Create(ctx, Draft{Items: []model.PackageItem{{ProductID: "cup"}}})
			return err
		}, want: ErrItemQuantity},
		{name: "bad status", call: func() error {
			_, err := svc.Update(ctx, "PKG-1", Draft{Items: []model.PackageItem{{ProductID: "cup", Quantity: 1}}, Status: "Lost"})
			return err
		}, want: ErrInvalidStatus},
		{name: "set bad status", call: func() error { _, err := svc.SetStatus(ctx, "PKG-1", "Lost"); return err }, want: ErrInvalidStatus},
		{name: "empty id", call: func() error { return svc.Delete(ctx, " ") }, want: ErrEmptyID},
		{name: "no qr items", call: func() error { _, err := svc.GenerateQR(ctx, nil); return err }, want: ErrNoQRItems},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), tt.want)
		})
	}
	assert.Zero(t, b.calls)
}

func TestGenerateQR(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	p, err := svc.Create(ctx, Draft{Items: []model.PackageItem{{ProductID: "box", Quantity: 1}}})
	require.NoError(t, err)

	results, err := svc.GenerateQR(ctx, []string{p.ID, "INVALID-001"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "success", results[0].Status)
	assert.Equal(t, "http://qr/"+p.ID, results[0].QRCodeURL)
	assert.Equal(t, "error", results[1].Status)
	assert.NotEmpty(t, results[1].Error)

	_, err = svc.GenerateQR(ctx, []string{"INVALID-001"})
	require.Error(t, err, "nothing generated")
	assert.Equal(t, http.StatusOK, transport.StatusCode(err))
}
