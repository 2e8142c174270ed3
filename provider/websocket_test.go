package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrowgate/llmgate/types"
)

func TestWebsocketTestAdapter_Invoke(t *testing.T) {
	a := NewWebsocketTestAdapter([]string{"hel", "lo", "!"})
	defer a.Close()

	resp, err := a.Invoke(context.Background(), testRequest(), time.Now().Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, "hello!", resp.Content)
}

func TestWebsocketTestAdapter_StreamAbandonClosesFast(t *testing.T) {
	a := NewWebsocketTestAdapter([]string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"})
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := a.Stream(ctx, testRequest(), time.Now().Add(2*time.Second))
	require.NoError(t, err)

	count := 0
	for evt := range ch {
		count++
		if count == 3 {
			cancel()
		}
		_ = evt
	}
	assert.GreaterOrEqual(t, count, 3)
	assert.Less(t, count, 10)
}

func TestEstimateTokensExact_FallsBackForUnknownModel(t *testing.T) {
	n, err := EstimateTokensExact("some-unknown-model", "hello world")
	require.NoError(t, err)
	assert.Greater(t, n, 0)
}
