package graphite

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"net"
	"regexp"
	"strconv"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/statsagg/statsagg"
	"github.com/statsagg/statsagg/internal/util"
)

const (
	// BackendName is the name of this backend.
	BackendName = "graphite"
	// DefaultAddress is the default address of the Graphite server.
	DefaultAddress = "localhost:2003"
	// DefaultDialTimeout is the default net.Dial timeout.
	DefaultDialTimeout = 5 * time.Second
	// DefaultWriteTimeout is the default socket write timeout.
	DefaultWriteTimeout = 30 * time.Second
	// DefaultGlobalPrefix is the default global prefix.
	DefaultGlobalPrefix = "stats"
	// DefaultPrefixCounter is the default counters prefix.
	DefaultPrefixCounter = "counters"
	// DefaultPrefixTimer is the default timers prefix.
	DefaultPrefixTimer = "timers"
	// DefaultPrefixGauge is the default gauges prefix.
	DefaultPrefixGauge = "gauges"
	// DefaultPrefixSet is the default sets prefix.
	DefaultPrefixSet = "sets"
)

var (
	regWhitespace  = regexp.MustCompile(`\s+`)
	regNonAlphaNum = regexp.MustCompile(`[^a-zA-Z\d_.-]`)
)

type stream struct {
	ctx context.Context
	cb  statsagg.SendCallback
	buf *bytes.Buffer
}

// Client is an object that is used to send messages to a Graphite server's TCP interface.
type Client struct {
	address      string
	dialTimeout  time.Duration
	writeTimeout time.Duration

	counterNamespace string
	timerNamespace   string
	gaugeNamespace   string
	setNamespace     string

	sink   chan stream
	logger logrus.FieldLogger
}

// NewClientFromViper constructs a Client object using configuration provided by viper.
func NewClientFromViper(v *viper.Viper) (statsagg.Backend, error) {
	g := util.GetSubViper(v, "graphite")
	g.SetDefault("address", DefaultAddress)
	g.SetDefault("dial_timeout", DefaultDialTimeout)
	g.SetDefault("write_timeout", DefaultWriteTimeout)
	g.SetDefault("global_prefix", DefaultGlobalPrefix)
	g.SetDefault("prefix_counter", DefaultPrefixCounter)
	g.SetDefault("prefix_timer", DefaultPrefixTimer)
	g.SetDefault("prefix_gauge", DefaultPrefixGauge)
	g.SetDefault("prefix_set", DefaultPrefixSet)
	return NewClient(
		g.GetString("address"),
		g.GetDuration("dial_timeout"),
		g.GetDuration("write_timeout"),
		g.GetString("global_prefix"),
		g.GetString("prefix_counter"),
		g.GetString("prefix_timer"),
		g.GetString("prefix_gauge"),
		g.GetString("prefix_set"),
	)
}

// NewClient constructs a Client object.
func NewClient(address string, dialTimeout, writeTimeout time.Duration, globalPrefix, prefixCounter, prefixTimer, prefixGauge, prefixSet string) (statsagg.Backend, error) {
	if address == "" {
		return nil, fmt.Errorf("[%s] address is required", BackendName)
	}
	if dialTimeout <= 0 {
		return nil, fmt.Errorf("[%s] dialTimeout must be positive", BackendName)
	}
	if writeTimeout < 0 {
		return nil, fmt.Errorf("[%s] writeTimeout must be non-negative", BackendName)
	}
	return &Client{
		address:          address,
		dialTimeout:      dialTimeout,
		writeTimeout:     writeTimeout,
		counterNamespace: joinPrefix(globalPrefix, prefixCounter),
		timerNamespace:   joinPrefix(globalPrefix, prefixTimer),
		gaugeNamespace:   joinPrefix(globalPrefix, prefixGauge),
		setNamespace:     joinPrefix(globalPrefix, prefixSet),
		sink:             make(chan stream, 1),
		logger:           logrus.WithField("backend", BackendName),
	}, nil
}

// Run sends the prepared payloads over a single TCP connection, re-dialing
// with exponential backoff after failures. Should be started in a goroutine.
func (client *Client) Run(ctx context.Context) {
	var conn net.Conn
	defer func() {
		if conn != nil {
			if err := conn.Close(); err != nil {
				client.logger.WithError(err).Warn("Error closing connection")
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case st := <-client.sink:
			var err error
			if conn == nil {
				conn, err = client.connect(st.ctx)
			}
			if err == nil {
				err = client.write(conn, st.buf)
				if err != nil {
					conn.Close()
					conn = nil
				}
			}
			if err != nil {
				st.cb([]error{err})
			} else {
				st.cb(nil)
			}
		}
	}
}

func (client *Client) connect(ctx context.Context) (net.Conn, error) {
	var conn net.Conn
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = client.dialTimeout * 3
	err := backoff.Retry(func() error {
		var errDial error
		conn, errDial = net.DialTimeout("tcp", client.address, client.dialTimeout)
		if errDial != nil {
			client.logger.WithError(errDial).Warnf("Failed to connect to %s", client.address)
		}
		return errDial
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return nil, fmt.Errorf("[%s] error connecting to %s: %v", BackendName, client.address, err)
	}
	return conn, nil
}

func (client *Client) write(conn net.Conn, buf *bytes.Buffer) error {
	if client.writeTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(client.writeTimeout)); err != nil {
			client.logger.WithError(err).Warn("Failed to set write deadline")
		}
	}
	_, err := buf.WriteTo(conn)
	return err
}

// SendMetricsAsync flushes the metrics to the Graphite server, preparing the
// payload synchronously but doing the send asynchronously.
func (client *Client) SendMetricsAsync(ctx context.Context, snapshot *statsagg.MetricSnapshot, cb statsagg.SendCallback) {
	buf := client.preparePayload(snapshot, time.Now())
	select {
	case <-ctx.Done():
		cb([]error{ctx.Err()})
	case client.sink <- stream{ctx: ctx, cb: cb, buf: buf}:
	}
}

func (client *Client) preparePayload(snapshot *statsagg.MetricSnapshot, ts time.Time) *bytes.Buffer {
	buf := new(bytes.Buffer)
	now := ts.Unix()
	snapshot.Each(func(m *statsagg.FlushedMetric) {
		if math.IsNaN(m.Value) {
			// a timer window with no samples has no value to report
			return
		}
		var namespace string
		switch m.Type {
		case statsagg.COUNTER:
			namespace = client.counterNamespace
		case statsagg.TIMER:
			namespace = client.timerNamespace
		case statsagg.GAUGE:
			namespace = client.gaugeNamespace
		case statsagg.SET:
			namespace = client.setNamespace
		default:
			return
		}
		fmt.Fprintf(buf, "%s.%s %s %d\n", namespace, normalizeMetricName(m.Name), strconv.FormatFloat(m.Value, 'f', -1, 64), now)
	})
	return buf
}

// Name returns the name of the backend.
func (client *Client) Name() string {
	return BackendName
}

func joinPrefix(global, prefix string) string {
	if global == "" {
		return prefix
	}
	if prefix == "" {
		return global
	}
	return global + "." + prefix
}

// normalizeMetricName replaces whitespace with "_", "/" with "-" and deletes
// any character that is not alphanumeric, "_", "." or "-".
func normalizeMetricName(s string) string {
	r1 := regWhitespace.ReplaceAllLiteral([]byte(s), []byte{'_'})
	r2 := bytes.Replace(r1, []byte{'/'}, []byte{'-'}, -1)
	return string(regNonAlphaNum.ReplaceAllLiteral(r2, nil))
}
