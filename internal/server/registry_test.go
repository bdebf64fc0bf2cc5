package server

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryFetchCreatesOnFirstReference(t *testing.T) {
	reg := NewRegistry(testLog())

	ch := reg.Fetch("room")
	require.NotNil(t, ch)
}

func TestRegistryFetchReturnsSameChannel(t *testing.T) {
	reg := NewRegistry(testLog())

	a := reg.Fetch("room")
	b := reg.Fetch("room")
	require.Same(t, a, b)
}

func TestRegistryFetchIsolatesDistinctChannels(t *testing.T) {
	reg := NewRegistry(testLog())

	a := reg.Fetch("room-a")
	b := reg.Fetch("room-b")
	require.NotSame(t, a, b)
}
