package null

import (
	"context"

	"github.com/spf13/viper"

	"github.com/statsagg/statsagg"
)

// BackendName is the name of this backend.
const BackendName = "null"

// client represents a discarding backend.
type client struct{}

// NewClientFromViper constructs a null backend.
func NewClientFromViper(v *viper.Viper) (statsagg.Backend, error) {
	return NewClient()
}

// NewClient constructs a client object.
func NewClient() (statsagg.Backend, error) {
	return client{}, nil
}

// SendMetricsAsync discards the metrics in a MetricSnapshot.
func (client client) SendMetricsAsync(ctx context.Context, snapshot *statsagg.MetricSnapshot, cb statsagg.SendCallback) {
	cb(nil)
}

// Name returns the name of the backend.
func (client client) Name() string {
	return BackendName
}
