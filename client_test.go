package varnish

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pior/varnish/internal/testutils"
	"github.com/pior/varnish/vcli"
)

// newTestClient creates a client for the fake daemon, disconnected at cleanup.
func newTestClient(t *testing.T, d *testutils.FakeDaemon, config Config) *Client {
	t.Helper()

	client, err := NewWithConfig(d.Addr(), config)
	require.NoError(t, err)
	t.Cleanup(client.Disconnect)
	return client
}

// newMockClient creates a client whose connections are served by mock.
func newMockClient(t *testing.T, mock *testutils.ConnectionMock) *Client {
	t.Helper()

	client, err := NewWithConfig("127.0.0.1:6082", Config{dial: mockDialer(mock)})
	require.NoError(t, err)
	return client
}

func mockDialer(mock *testutils.ConnectionMock) func(context.Context, string, string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return mock, nil
	}
}

// closedPortAddr returns an address nothing listens on.
func closedPortAddr(t *testing.T) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())
	return addr
}

func TestNew(t *testing.T) {
	client, err := New("127.0.0.1:6082")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:6082", client.Server())
	assert.Equal(t, DefaultTimeout, client.Config().Timeout)
	assert.False(t, client.Config().KeepAlive)
}

func TestNew_DefaultPort(t *testing.T) {
	client, err := New("varnish.internal")
	require.NoError(t, err)
	assert.Equal(t, "varnish.internal:6082", client.Server())
}

func TestNew_InvalidServer(t *testing.T) {
	_, err := New("host:notaport")
	require.Error(t, err)
}

func TestNewWithConfig(t *testing.T) {
	client, err := NewWithConfig("10.0.0.3:6060", Config{
		Host:      "ignored",
		Timeout:   NoTimeout,
		KeepAlive: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.3:6060", client.Server())
	assert.Equal(t, NoTimeout, client.Config().Timeout)
	assert.True(t, client.Config().KeepAlive)
}

func TestNewFromConfig(t *testing.T) {
	client := NewFromConfig(Config{Timeout: 5 * time.Second})

	assert.Equal(t, "localhost:6082", client.Server())
	assert.Equal(t, 5*time.Second, client.Config().Timeout)
	assert.Equal(t, DefaultKeepAliveInterval, client.Config().KeepAliveInterval)
}

func TestClient_Setters(t *testing.T) {
	client := NewFromConfig(Config{})

	require.NoError(t, client.SetServer("blahost:9876"))
	assert.Equal(t, "blahost", client.Config().Host)
	assert.Equal(t, 9876, client.Config().Port)
	assert.Equal(t, "blahost:9876", client.Server())

	require.Error(t, client.SetServer("blahost:0"))
	assert.Equal(t, "blahost:9876", client.Server(), "failed SetServer must not change the server")

	client.SetTimeout(0)
	assert.Equal(t, NoTimeout, client.Config().Timeout)
	client.SetTimeout(250 * time.Millisecond)
	assert.Equal(t, 250*time.Millisecond, client.Config().Timeout)

	client.SetKeepAlive(true)
	assert.True(t, client.Config().KeepAlive)
}

func TestClient_NotConnectedOnCreation(t *testing.T) {
	client, err := New("127.0.0.1:6082")
	require.NoError(t, err)

	assert.False(t, client.IsConnected())
}

func TestClient_DisconnectWhenNotConnected(t *testing.T) {
	client, err := New("127.0.0.1:6082")
	require.NoError(t, err)

	assert.NotPanics(t, client.Disconnect)
	assert.NotPanics(t, client.Disconnect)
	assert.NoError(t, client.Close())
	assert.False(t, client.IsConnected())
}

func TestClient_CommandConnects(t *testing.T) {
	d := testutils.NewFakeDaemon(t)
	client := newTestClient(t, d, Config{})

	_, err := client.Execute(context.Background(), "ping")
	require.NoError(t, err)
	assert.True(t, client.IsConnected())
	assert.Equal(t, 1, d.Accepted())
}

func TestClient_Disconnect(t *testing.T) {
	d := testutils.NewFakeDaemon(t)
	client := newTestClient(t, d, Config{})

	_, err := client.Execute(context.Background(), "ping")
	require.NoError(t, err)
	require.True(t, client.IsConnected())

	client.Disconnect()
	assert.False(t, client.IsConnected())

	require.Eventually(t, func() bool { return d.Count("quit") == 1 }, time.Second, 5*time.Millisecond)
}

func TestClient_ReconnectsAfterDisconnect(t *testing.T) {
	d := testutils.NewFakeDaemon(t)
	client := newTestClient(t, d, Config{})
	ctx := context.Background()

	_, err := client.Execute(ctx, "ping")
	require.NoError(t, err)
	client.Disconnect()

	_, err = client.Execute(ctx, "ping")
	require.NoError(t, err)
	assert.True(t, client.IsConnected())
	assert.Equal(t, 2, d.Accepted())
}

func TestClient_Connect(t *testing.T) {
	d := testutils.NewFakeDaemon(t)
	client := newTestClient(t, d, Config{})
	ctx := context.Background()

	require.NoError(t, client.Connect(ctx))
	assert.True(t, client.IsConnected())

	// Connecting again is a no-op
	require.NoError(t, client.Connect(ctx))
	assert.Equal(t, 1, d.Accepted())
}

func TestClient_ConnectError(t *testing.T) {
	client, err := New(closedPortAddr(t))
	require.NoError(t, err)

	err = client.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ConnectError)
	assert.Equal(t, ConnectError, KindOf(err))
	assert.False(t, client.IsConnected())

	_, err = client.Execute(context.Background(), "ping")
	assert.ErrorIs(t, err, ConnectError)
	assert.Equal(t, uint64(2), client.Stats().ConnectErrors)
}

func TestClient_DisconnectAfterPeerClosed(t *testing.T) {
	d := testutils.NewFakeDaemon(t)
	client := newTestClient(t, d, Config{})

	_, err := client.Execute(context.Background(), "ping")
	require.NoError(t, err)

	d.DropConnections()

	assert.NotPanics(t, client.Disconnect)
	assert.False(t, client.IsConnected())
}

func TestClient_ConfigChangeAffectsNextConnection(t *testing.T) {
	first := testutils.NewFakeDaemon(t)
	second := testutils.NewFakeDaemon(t)
	client := newTestClient(t, first, Config{})
	ctx := context.Background()

	_, err := client.Execute(ctx, "ping")
	require.NoError(t, err)

	require.NoError(t, client.SetServer(second.Addr()))

	// Still talking to the first daemon
	_, err = client.Execute(ctx, "ping")
	require.NoError(t, err)
	assert.Equal(t, 2, first.Count("ping"))
	assert.Equal(t, 0, second.Accepted())

	client.Disconnect()

	_, err = client.Execute(ctx, "ping")
	require.NoError(t, err)
	assert.Equal(t, 1, second.Count("ping"))
}

func TestClient_ReadBanner(t *testing.T) {
	d := testutils.NewFakeDaemon(t)
	d.SetBanner(200, "-----------------------------\nVarnish Cache CLI 1.0\n-----------------------------")
	client := newTestClient(t, d, Config{ReadBanner: true})

	content, err := client.Execute(context.Background(), "status")
	require.NoError(t, err)
	assert.Equal(t, "Child in state running", content)
}

func TestClient_Authentication(t *testing.T) {
	challenge := "abcdefghijklmnopqrstuvwxyzabcdef"
	secret := []byte("s3cret\n")

	d := testutils.NewFakeDaemon(t)
	d.SetBanner(107, challenge+"\n\nAuthentication required.")
	d.Handle("auth", func(args []string) (int, string) {
		if len(args) == 1 && args[0] == vcli.AuthResponse([]byte(challenge), secret) {
			return 200, "Varnish Cache CLI 1.0"
		}
		return 107, challenge + "\n\nAuthentication required."
	})

	t.Run("with secret", func(t *testing.T) {
		client := newTestClient(t, d, Config{Secret: secret})

		content, err := client.Execute(context.Background(), "status")
		require.NoError(t, err)
		assert.Equal(t, "Child in state running", content)
	})

	t.Run("wrong secret", func(t *testing.T) {
		client := newTestClient(t, d, Config{Secret: []byte("wrong\n")})

		_, err := client.Execute(context.Background(), "status")
		require.ErrorIs(t, err, ConnectError)
		assert.False(t, client.IsConnected())
	})

	t.Run("without secret", func(t *testing.T) {
		client := newTestClient(t, d, Config{ReadBanner: true})

		_, err := client.Execute(context.Background(), "status")
		require.ErrorIs(t, err, ConnectError)
		assert.ErrorIs(t, err, errAuthRequired)
	})
}
