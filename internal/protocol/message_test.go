package protocol_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hokaido/hokaido/internal/protocol"
)

func TestJoinRequestRoundTrip(t *testing.T) {
	cases := []protocol.JoinRequest{
		{Role: protocol.RoleBroadcast, Channel: "default"},
		{Role: protocol.RoleWatch, Channel: "room-42"},
		{Role: protocol.RoleWatch, Channel: ""},
	}

	for _, want := range cases {
		var buf bytes.Buffer
		require.NoError(t, protocol.NewEncoder(&buf).EncodeJoinRequest(want))

		got, err := protocol.NewDecoder(&buf).DecodeJoinRequest()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestJoinResponseRoundTrip(t *testing.T) {
	for _, success := range []bool{true, false} {
		var buf bytes.Buffer
		want := protocol.JoinResponse{Success: success}
		require.NoError(t, protocol.NewEncoder(&buf).EncodeJoinResponse(want))

		got, err := protocol.NewDecoder(&buf).DecodeJoinResponse()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestNotificationRoundTrip(t *testing.T) {
	cases := []protocol.Notification{
		protocol.Output([]byte("\x1b[8;24;80thello\n")),
		protocol.Closed("Broadcaster has changed"),
		protocol.WatcherJoined(),
	}

	for _, want := range cases {
		var buf bytes.Buffer
		require.NoError(t, protocol.NewEncoder(&buf).EncodeNotification(want))

		got, err := protocol.NewDecoder(&buf).DecodeNotification()
		require.NoError(t, err)
		require.Equal(t, want.Topic, got.Topic)
		require.Equal(t, want.Payload, got.Payload)
	}
}

func TestNotificationStreaming(t *testing.T) {
	var buf bytes.Buffer
	enc := protocol.NewEncoder(&buf)
	want := []protocol.Notification{
		protocol.Output([]byte("a")),
		protocol.Output([]byte("b")),
		protocol.Closed("bye"),
	}
	for _, n := range want {
		require.NoError(t, enc.EncodeNotification(n))
	}

	dec := protocol.NewDecoder(&buf)
	for _, expect := range want {
		got, err := dec.DecodeNotification()
		require.NoError(t, err)
		require.Equal(t, expect.Topic, got.Topic)
		require.Equal(t, expect.Payload, got.Payload)
	}
}

func TestDecodeUnknownRole(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, protocol.NewEncoder(&buf).EncodeJoinRequest(protocol.JoinRequest{
		Role:    "spectate",
		Channel: "default",
	}))

	_, err := protocol.NewDecoder(&buf).DecodeJoinRequest()
	require.ErrorIs(t, err, protocol.ErrUnknownMessage)
}

func TestDecodeUnknownTopic(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, protocol.NewEncoder(&buf).EncodeNotification(protocol.Notification{
		Topic:   "mystery",
		Payload: "x",
	}))

	_, err := protocol.NewDecoder(&buf).DecodeNotification()
	require.ErrorIs(t, err, protocol.ErrUnknownMessage)
}

func TestDecodeTruncatedStreamIsFatal(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, protocol.NewEncoder(&buf).EncodeNotification(protocol.Output([]byte("hi"))))

	truncated := bytes.NewReader(buf.Bytes()[:1])
	_, err := protocol.NewDecoder(truncated).DecodeNotification()
	require.Error(t, err)
}
