package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRegistry_ClosedByDefault(t *testing.T) {
	r := NewRegistry(DefaultConfig(), zap.NewNop())
	assert.False(t, r.Skip("ep1"))
	assert.Equal(t, StateClosed, r.State("ep1"))
}

func TestRegistry_OpensAfterThreshold(t *testing.T) {
	r := NewRegistry(Config{Threshold: 2, ResetTimeout: time.Hour}, zap.NewNop())
	r.RecordFailure("ep1")
	assert.False(t, r.Skip("ep1"))
	r.RecordFailure("ep1")
	assert.True(t, r.Skip("ep1"))
	assert.Equal(t, StateOpen, r.State("ep1"))
}

func TestRegistry_SuccessResetsFailureCount(t *testing.T) {
	r := NewRegistry(Config{Threshold: 2, ResetTimeout: time.Hour}, zap.NewNop())
	r.RecordFailure("ep1")
	r.RecordSuccess("ep1")
	r.RecordFailure("ep1")
	assert.False(t, r.Skip("ep1"), "a single post-success failure must not reopen the breaker")
}

func TestRegistry_HalfOpenProbeAfterResetTimeout(t *testing.T) {
	r := NewRegistry(Config{Threshold: 1, ResetTimeout: 10 * time.Millisecond}, zap.NewNop())
	r.RecordFailure("ep1")
	assert.True(t, r.Skip("ep1"))

	time.Sleep(20 * time.Millisecond)
	assert.False(t, r.Skip("ep1"), "reset timeout elapsed, endpoint should be allowed through as a probe")
	assert.Equal(t, StateHalfOpen, r.State("ep1"))
}

func TestRegistry_HalfOpenFailureReopens(t *testing.T) {
	r := NewRegistry(Config{Threshold: 1, ResetTimeout: 10 * time.Millisecond}, zap.NewNop())
	r.RecordFailure("ep1")
	time.Sleep(20 * time.Millisecond)
	r.Skip("ep1") // transitions to half-open
	r.RecordFailure("ep1")
	assert.Equal(t, StateOpen, r.State("ep1"))
}

func TestRegistry_OpenedAtZeroWhenClosed(t *testing.T) {
	r := NewRegistry(DefaultConfig(), zap.NewNop())
	assert.True(t, r.OpenedAt("ep1").IsZero())
}

func TestRegistry_IndependentEndpoints(t *testing.T) {
	r := NewRegistry(Config{Threshold: 1, ResetTimeout: time.Hour}, zap.NewNop())
	r.RecordFailure("ep1")
	assert.True(t, r.Skip("ep1"))
	assert.False(t, r.Skip("ep2"))
}
