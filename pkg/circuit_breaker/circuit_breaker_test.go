package circuit_breaker_test

import (
	"errors"
	"testing"
	"time"

	"github.com/Astemirdum/bookshelf-service/pkg/circuit_breaker"
	"github.com/stretchr/testify/require"
)

var errService = errors.New("service error")

func ok() error   { return nil }
func fail() error { return errService }

func TestCircuitBreaker_Call(t *testing.T) {
	t.Parallel()
	cb := circuit_breaker.New(circuit_breaker.Config{
		RecordLength:     10,
		Timeout:          50 * time.Millisecond,
		Percentile:       0.3,
		RecoveryRequests: 2,
	})

	for i := 0; i < 20; i++ {
		require.NoError(t, cb.Call(ok))
	}
	require.Equal(t, circuit_breaker.Closed, cb.State())

	// 3 failures out of 10 reach the percentile.
	for i := 0; i < 3; i++ {
		require.ErrorIs(t, cb.Call(fail), errService)
	}
	require.Equal(t, circuit_breaker.Open, cb.State())
	require.ErrorIs(t, cb.Call(ok), circuit_breaker.ErrOpenCB)

	time.Sleep(80 * time.Millisecond)
	require.NoError(t, cb.Call(ok))
	require.Equal(t, circuit_breaker.HalfOpen, cb.State())
	require.NoError(t, cb.Call(ok))
	require.Equal(t, circuit_breaker.Closed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailure(t *testing.T) {
	t.Parallel()
	cb := circuit_breaker.New(circuit_breaker.Config{
		RecordLength:     2,
		Timeout:          20 * time.Millisecond,
		Percentile:       0.5,
		RecoveryRequests: 1,
	})
	require.Error(t, cb.Call(fail))
	require.Equal(t, circuit_breaker.Open, cb.State())

	time.Sleep(40 * time.Millisecond)
	require.ErrorIs(t, cb.Call(fail), errService)
	require.Equal(t, circuit_breaker.Open, cb.State())

	cb.Reset()
	require.Equal(t, circuit_breaker.Closed, cb.State())
	require.NoError(t, cb.Call(ok))
}
