package varnish

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pior/varnish/internal/testutils"
)

func pingsOn(d *testutils.FakeDaemon, connID int) int {
	n := 0
	for _, ex := range d.Exchanges() {
		if ex.Command == "ping" && ex.Conn == connID {
			n++
		}
	}
	return n
}

func TestKeepAlive_Pings(t *testing.T) {
	d := testutils.NewFakeDaemon(t)
	client := newTestClient(t, d, Config{KeepAlive: true, KeepAliveInterval: 20 * time.Millisecond})

	require.NoError(t, client.Connect(context.Background()))

	require.Eventually(t, func() bool { return d.Count("ping") >= 3 }, time.Second, 5*time.Millisecond)
	assert.True(t, client.IsConnected())
	assert.Equal(t, 1, d.Accepted())
	assert.GreaterOrEqual(t, client.Stats().Pings, uint64(3))
}

func TestKeepAlive_Disabled(t *testing.T) {
	d := testutils.NewFakeDaemon(t)
	client := newTestClient(t, d, Config{KeepAliveInterval: 10 * time.Millisecond})

	_, err := client.Execute(context.Background(), "status")
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, d.Count("ping"))
}

func TestKeepAlive_StopsOnDisconnect(t *testing.T) {
	d := testutils.NewFakeDaemon(t)
	client := newTestClient(t, d, Config{KeepAlive: true, KeepAliveInterval: 10 * time.Millisecond})

	require.NoError(t, client.Connect(context.Background()))
	require.Eventually(t, func() bool { return d.Count("ping") >= 1 }, time.Second, 5*time.Millisecond)

	client.Disconnect()
	pings := d.Count("ping")

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, pings, d.Count("ping"))
	assert.Equal(t, 1, d.Accepted(), "keep-alive must not reconnect")
	assert.False(t, client.IsConnected())
}

func TestKeepAlive_StopsWhenPeerCloses(t *testing.T) {
	d := testutils.NewFakeDaemon(t)
	client := newTestClient(t, d, Config{KeepAlive: true, KeepAliveInterval: 10 * time.Millisecond})

	require.NoError(t, client.Connect(context.Background()))
	require.Eventually(t, func() bool { return d.Count("ping") >= 1 }, time.Second, 5*time.Millisecond)

	d.DropConnections()

	require.Eventually(t, func() bool { return !client.IsConnected() }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, d.Accepted(), "keep-alive must not reconnect")

	// The next command reconnects and restarts keep-alive
	_, err := client.Execute(context.Background(), "status")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return pingsOn(d, 2) >= 1 }, time.Second, 5*time.Millisecond)
}

func TestKeepAlive_NewTaskPerConnection(t *testing.T) {
	d := testutils.NewFakeDaemon(t)
	client := newTestClient(t, d, Config{KeepAlive: true, KeepAliveInterval: 10 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, client.Connect(ctx))
	require.Eventually(t, func() bool { return pingsOn(d, 1) >= 1 }, time.Second, 5*time.Millisecond)

	client.Disconnect()
	require.NoError(t, client.Connect(ctx))
	require.Eventually(t, func() bool { return pingsOn(d, 2) >= 2 }, time.Second, 5*time.Millisecond)

	pings := pingsOn(d, 1)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, pings, pingsOn(d, 1), "no ping on the closed connection")
}

func TestKeepAlive_EnabledAfterConnect(t *testing.T) {
	d := testutils.NewFakeDaemon(t)
	client := newTestClient(t, d, Config{KeepAliveInterval: 10 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, client.Connect(ctx))
	client.SetKeepAlive(true)

	// Applies to the next connection only
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, d.Count("ping"))

	client.Disconnect()
	require.NoError(t, client.Connect(ctx))
	require.Eventually(t, func() bool { return pingsOn(d, 2) >= 1 }, time.Second, 5*time.Millisecond)
}
