package server

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hokaido/hokaido/internal/protocol"
)

func TestBroadcasterFanoutToWatcher(t *testing.T) {
	ch := newChannel(testLog())

	bServer, bClient := net.Pipe()
	defer bClient.Close()
	wServer, wClient := net.Pipe()
	defer wClient.Close()

	go spawnBroadcaster(newHandle(bServer), ch, testLog())

	resp, err := protocol.NewDecoder(bClient).DecodeJoinResponse()
	require.NoError(t, err)
	require.True(t, resp.Success)

	go spawnWatcher(newHandle(wServer), ch, testLog())
	_, err = protocol.NewDecoder(wClient).DecodeJoinResponse()
	require.NoError(t, err)

	// addWatcher tells the broadcaster a watcher joined; read it so that
	// write does not hold the channel mutex until its deadline.
	joined, err := protocol.NewDecoder(bClient).DecodeNotification()
	require.NoError(t, err)
	require.Equal(t, protocol.TopicWatcherJoined, joined.Topic)

	require.NoError(t, protocol.NewEncoder(bClient).EncodeNotification(protocol.Output([]byte("hi"))))

	result := make(chan protocol.Notification, 1)
	go func() {
		n, err := protocol.NewDecoder(wClient).DecodeNotification()
		require.NoError(t, err)
		result <- n
	}()

	select {
	case n := <-result:
		require.Equal(t, protocol.TopicOutput, n.Topic)
		require.Equal(t, "hi", n.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fanout")
	}
}

func TestBroadcasterExitClearsSlot(t *testing.T) {
	ch := newChannel(testLog())

	bServer, bClient := net.Pipe()

	exited := make(chan struct{})
	go func() {
		spawnBroadcaster(newHandle(bServer), ch, testLog())
		close(exited)
	}()

	_, err := protocol.NewDecoder(bClient).DecodeJoinResponse()
	require.NoError(t, err)

	bClient.Close()

	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcaster handler never exited")
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	require.Nil(t, ch.broadcaster)
}

func TestWatcherHandlerDoesNotBlockOnSend(t *testing.T) {
	ch := newChannel(testLog())

	wServer, wClient := net.Pipe()
	defer wClient.Close()

	done := make(chan struct{})
	go func() {
		spawnWatcher(newHandle(wServer), ch, testLog())
		close(done)
	}()

	_, err := protocol.NewDecoder(wClient).DecodeJoinResponse()
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("spawnWatcher should return promptly after registering")
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	require.Len(t, ch.watchers, 1)
}
