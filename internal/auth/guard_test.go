package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reuse-console/internal/model"
	"reuse-console/internal/store"
)

func TestGuardWaitsForRehydration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "/wallet")
	require.NoError(t, store.SaveJSON(ctx, f.storage, store.AuthKey, model.Session{Token: "opaque", IsAuthenticated: true}))
	g := NewGuard(f.m)

	assert.Equal(t, Decision{Action: Wait}, g.Decide(ctx, "/wallet"))

	require.NoError(t, f.m.Rehydrate(ctx))
	assert.Equal(t, Decision{Action: Allow}, g.Decide(ctx, "/wallet"))
}

func TestGuardDecisions(t *testing.T) {
	ctx := context.Background()
	admin := &model.AccountProfile{ID: "1", Role: model.RoleAdmin}
	consumer := &model.AccountProfile{ID: "2", Role: model.RoleConsumer}

	tests := []struct {
		name    string
		session *model.Session
		path    string
		want    Decision
	}{
		{name: "public page signed out", path: "/login", want: Decision{Action: Allow}},
		{name: "verify email signed out", path: "/verify-email?userId=1", want: Decision{Action: Allow}},
		{name: "protected signed out", path: "/wallet?tab=1", want: Decision{Action: Redirect, Target: "/login?returnUrl=%2Fwallet%3Ftab%3D1"}},
		{name: "admin page as admin", session: &model.Session{Token: "t", IsAuthenticated: true, User: admin}, path: "/admin", want: Decision{Action: Allow}},
		{name: "admin page as consumer", session: &model.Session{Token: "t", IsAuthenticated: true, User: consumer}, path: "/admin/users", want: Decision{Action: Redirect, Target: "/"}},
		{name: "admin page degraded", session: &model.Session{Token: "t", IsAuthenticated: true}, path: "/admin", want: Decision{Action: Redirect, Target: "/"}},
		{name: "degraded session elsewhere", session: &model.Session{Token: "t", IsAuthenticated: true}, path: "/inventory", want: Decision{Action: Allow}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "/")
			if tt.session != nil {
				require.NoError(t, store.SaveJSON(ctx, f.storage, store.AuthKey, tt.session))
			}
			require.NoError(t, f.m.Rehydrate(ctx))
			assert.Equal(t, tt.want, NewGuard(f.m).Decide(ctx, tt.path))
		})
	}
}

func TestGuardExpiresStaleToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "/")
	now := time.Now()
	token := signedToken(t, now.Add(time.Minute))
	require.NoError(t, store.SaveJSON(ctx, f.storage, store.AuthKey, model.Session{Token: token, IsAuthenticated: true}))
	require.NoError(t, f.m.Rehydrate(ctx))

	f.m.now = func() time.Time { return now.Add(2 * time.Minute) }
	d := NewGuard(f.m).Decide(ctx, "/wallet")

	assert.Equal(t, Decision{Action: Redirect, Target: "/login?returnUrl=%2Fwallet"}, d)
	assert.False(t, f.m.Snapshot().IsAuthenticated)
	assert.Empty(t, f.nav.Entries(), "guard callers perform the redirect")
	assert.Equal(t, 1, f.notes.Len())
}
