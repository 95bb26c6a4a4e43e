package pool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Hubmakerlabs/bridgr/pkg/nostr/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureAndRemove(t *testing.T) {
	// nothing listens here, the relays stay disconnected
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	p := NewSimplePool(context.Background(), relay.Options{})
	defer p.Close()

	r1, added, err := p.EnsureRelay(srv.URL)
	require.NoError(t, err)
	assert.True(t, added)
	r2, added, err := p.EnsureRelay(srv.URL + "/")
	require.NoError(t, err)
	assert.False(t, added)
	assert.Same(t, r1, r2)

	_, added, err = p.EnsureRelay("ws://127.0.0.1:1")
	require.NoError(t, err)
	assert.True(t, added)
	assert.Len(t, p.Relays, 2)
	assert.Equal(t, "ws://127.0.0.1:1", p.Relays[1].URL())

	_, _, err = p.EnsureRelay("")
	assert.ErrorIs(t, err, relay.ErrInvalidURL)

	assert.Equal(t, 0, p.Send([]byte(`["CLOSE","x"]`)))

	assert.Equal(t, 1, p.Remove(srv.URL))
	assert.Equal(t, 0, p.Remove(srv.URL))
	_, ok := p.Get(srv.URL)
	assert.False(t, ok)
	assert.Len(t, p.Relays, 1)
}
