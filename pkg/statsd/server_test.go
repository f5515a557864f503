package statsd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statsagg/statsagg"
	"github.com/statsagg/statsagg/internal/fixtures"
	"github.com/statsagg/statsagg/pkg/fakesocket"
)

func TestServerRunWithCustomSocket(t *testing.T) {
	t.Parallel()
	backend := &countingBackend{}
	s := NewServer()
	s.Backends = []statsagg.Backend{backend}
	s.FlushInterval = 10 * time.Millisecond
	s.MaxReaders = 2
	s.Logger = fixtures.NewTestLogger(t)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	err := s.RunWithCustomSocket(ctx, fakesocket.Factory)
	require.Equal(t, context.DeadlineExceeded, err)

	snapshots := backend.Snapshots()
	require.NotEmpty(t, snapshots)
	total := 0
	for _, snapshot := range snapshots {
		total += snapshot.NumStats()
	}
	assert.True(t, total > 0)
}

func TestServerDefaults(t *testing.T) {
	t.Parallel()
	s := NewServer()
	assert.Equal(t, statsagg.DefaultMetricsPort, s.MetricsPort)
	assert.Equal(t, statsagg.DefaultFlushInterval, s.FlushInterval)
	assert.Equal(t, statsagg.DefaultMaxNameLen, s.MaxNameLen)
	assert.NotNil(t, s.Viper)
}
