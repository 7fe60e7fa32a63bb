package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterFailures(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.Timeout = time.Hour
	cb := New(cfg)
	boom := errors.New("boom")
	for i := 0; i < int(cfg.MinRequests); i++ {
		_, err := cb.Execute(func() (interface{}, error) { return nil, boom })
		require.ErrorIs(t, err, boom)
	}
	require.Equal(t, gobreaker.StateOpen, cb.State())
	_, err := cb.Execute(func() (interface{}, error) { return "ok", nil })
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestBreakerStaysClosedBelowMinRequests(t *testing.T) {
	cb := New(DefaultConfig("test"))
	_, _ = cb.Execute(func() (interface{}, error) { return nil, errors.New("x") })
	require.Equal(t, gobreaker.StateClosed, cb.State())
}
