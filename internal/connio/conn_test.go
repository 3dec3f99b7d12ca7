package connio

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardcached/shardcached/internal/handler"
	"github.com/shardcached/shardcached/internal/store"
)

func newPipe(t *testing.T) (*Conn, net.Conn) {
	t.Helper()
	server, client := net.Pipe()

	engine := store.New(store.Config{NumShards: 2}, nil)
	t.Cleanup(engine.Close)

	h := handler.New(engine, handler.Config{})
	c := New(server, h, 0, nil)
	return c, client
}

func TestConn_SetAndGetRoundTrip(t *testing.T) {
	c, client := newPipe(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx) }()

	reader := bufio.NewReader(client)

	_, err := client.Write([]byte("set foo 0 0 3\r\nbar\r\n"))
	require.NoError(t, err)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "STORED\r\n", line)

	_, err = client.Write([]byte("get foo\r\n"))
	require.NoError(t, err)
	line1, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "VALUE foo 0 3\r\n", line1)
	line2, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "bar\r\n", line2)
	line3, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "END\r\n", line3)

	_, err = client.Write([]byte("quit\r\n"))
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after quit")
	}
	cancel()
}

// TestConn_StorageHeaderAndDataInSeparateReads is P1/P7 for a
// segmented client: the command header and its data block can arrive
// in separate reads, with an unrelated buffer-compacting slide in
// between. The key named in the header must survive that slide intact.
func TestConn_StorageHeaderAndDataInSeparateReads(t *testing.T) {
	c, client := newPipe(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx) }()

	reader := bufio.NewReader(client)

	_, err := client.Write([]byte("set foo 0 0 3\r\n"))
	require.NoError(t, err)

	_, err = client.Write([]byte("bar\r\n"))
	require.NoError(t, err)

	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "STORED\r\n", line)

	_, err = client.Write([]byte("get foo\r\n"))
	require.NoError(t, err)
	line1, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "VALUE foo 0 3\r\n", line1)
	line2, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "bar\r\n", line2)
	line3, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "END\r\n", line3)

	_, err = client.Write([]byte("quit\r\n"))
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after quit")
	}
	cancel()
}
