package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouterReplaceDoesNotGrowHistory(t *testing.T) {
	r := NewRouter("/")
	r.Push("/wallet?success=true&order=1")
	r.Replace("/wallet")

	assert.Equal(t, "/wallet", r.Current())
	assert.True(t, r.Back())
	assert.Equal(t, "/", r.Current())
	assert.False(t, r.Back())
}

func TestRouterHardResetsHistory(t *testing.T) {
	r := NewRouter("/admin")
	r.Push("/wallet")
	r.Hard("/login")

	assert.Equal(t, "/login", r.Current())
	assert.False(t, r.Back())
	assert.Equal(t, []Entry{{KindPush, "/wallet"}, {KindHard, "/login"}}, r.Entries())
}

func TestLoginRedirect(t *testing.T) {
	assert.Equal(t, "/login?returnUrl=%2Fwallet%3Ftab%3D1", LoginRedirect("/wallet?tab=1"))
	assert.Equal(t, "/login", LoginRedirect(""))
	assert.Equal(t, "/wallet", Path("/wallet?success=true"))
}
