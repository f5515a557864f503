package stdout

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/statsagg/statsagg"
)

// BackendName is the name of this backend.
const BackendName = "stdout"

// Client writes flushed metrics to the standard logger, one line per value.
type Client struct {
	writer io.Writer
}

// NewClientFromViper constructs a stdout backend.
func NewClientFromViper(v *viper.Viper) (statsagg.Backend, error) {
	return NewClient(logrus.StandardLogger().Writer())
}

// NewClient constructs a Client object writing to w.
func NewClient(w io.Writer) (statsagg.Backend, error) {
	return &Client{writer: w}, nil
}

// SendMetricsAsync prints the metrics in a MetricSnapshot.
func (client *Client) SendMetricsAsync(ctx context.Context, snapshot *statsagg.MetricSnapshot, cb statsagg.SendCallback) {
	buf := new(bytes.Buffer)
	snapshot.Each(func(m *statsagg.FlushedMetric) {
		fmt.Fprintf(buf, "%s %s %g\n", m.Type, m.Name, m.Value)
	})
	_, err := buf.WriteTo(client.writer)
	if err != nil {
		cb([]error{err})
		return
	}
	cb(nil)
}

// Name returns the name of the backend.
func (client *Client) Name() string {
	return BackendName
}
