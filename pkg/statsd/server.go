package statsd

import (
	"context"
	"net"
	"time"

	"github.com/ash2k/stager/wait"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/statsagg/statsagg"
	"github.com/statsagg/statsagg/pkg/web"
)

// Server encapsulates all of the parameters necessary for starting up the
// aggregation agent. These can either be set via command line or directly.
type Server struct {
	Backends          []statsagg.Backend
	MetricsHost       string
	MetricsPort       string
	ConsoleAddr       string
	FlushInterval     time.Duration
	MaxReaders        int
	MaxNameLen        int
	ReusePort         bool
	BadLinesPerSecond float64
	DeleteCounters    bool
	DeleteTimers      bool
	DeleteGauges      bool
	DeleteSets        bool
	Logger            logrus.FieldLogger
	Viper             *viper.Viper
}

// NewServer will create a new Server with the default configuration.
func NewServer() *Server {
	return &Server{
		MetricsHost:       statsagg.DefaultMetricsHost,
		MetricsPort:       statsagg.DefaultMetricsPort,
		FlushInterval:     statsagg.DefaultFlushInterval,
		MaxReaders:        statsagg.DefaultMaxReaders,
		MaxNameLen:        statsagg.DefaultMaxNameLen,
		BadLinesPerSecond: statsagg.DefaultBadLinesPerSecond,
		Logger:            logrus.StandardLogger(),
		Viper:             viper.New(),
	}
}

// Run binds the sockets and runs the server until the context signals done.
// Binding failure on a candidate address is not fatal, zero bound sockets is.
func (s *Server) Run(ctx context.Context) error {
	conns, err := BindSockets(ctx, s.MetricsHost, s.MetricsPort, s.MaxReaders, s.ReusePort, s.logger())
	if err != nil {
		return err
	}
	return s.runWithSockets(ctx, conns)
}

// RunWithCustomSocket runs the server until the context signals done.
// The listening socket is created using sf.
func (s *Server) RunWithCustomSocket(ctx context.Context, sf SocketFactory) error {
	c, err := sf()
	if err != nil {
		return err
	}
	return s.runWithSockets(ctx, []net.PacketConn{c})
}

func (s *Server) runWithSockets(ctx context.Context, conns []net.PacketConn) error {
	logger := s.logger()

	store := NewMetricStore(EvictionPolicy{
		DeleteCounters: s.DeleteCounters,
		DeleteTimers:   s.DeleteTimers,
		DeleteGauges:   s.DeleteGauges,
		DeleteSets:     s.DeleteSets,
	}, logger)
	parser := NewDatagramParser(store, s.MaxNameLen, rate.NewLimiter(rate.Limit(s.BadLinesPerSecond), 1), logger)
	receiver := NewDatagramReceiver(parser, logger)
	flusher := NewMetricFlusher(s.FlushInterval, store, receiver, s.Backends, logger)

	var wg wait.Group
	defer wg.Wait() // Wait for all goroutines to finish
	defer closeSockets(conns, logger)

	// Start runnable backends
	for _, b := range s.Backends {
		if rb, ok := b.(statsagg.RunnableBackend); ok {
			wg.StartWithContext(ctx, rb.Run)
		}
	}

	// Start the receivers. Without SO_REUSEPORT all readers share each
	// socket, with it every socket has exactly one reader.
	for _, c := range conns {
		readers := 1
		if !s.ReusePort {
			readers = s.MaxReaders
		}
		for r := 0; r < readers; r++ {
			c := c
			wg.StartWithContext(ctx, func(ctx context.Context) {
				receiver.Receive(ctx, c)
			})
		}
	}

	// Start the flusher
	wg.StartWithContext(ctx, flusher.Run)

	// Start the web console
	if s.ConsoleAddr != "" {
		console := web.NewConsoleServer(s.ConsoleAddr, &statusSource{store: store, receiver: receiver, flusher: flusher}, logger)
		wg.StartWithContext(ctx, console.Run)
	}

	// Listen until done. Closing the sockets on the way out interrupts the
	// receivers' blocked reads.
	<-ctx.Done()
	return ctx.Err()
}

func (s *Server) logger() logrus.FieldLogger {
	if s.Logger != nil {
		return s.Logger
	}
	return logrus.StandardLogger()
}

func closeSockets(conns []net.PacketConn, logger logrus.FieldLogger) {
	for _, c := range conns {
		if err := c.Close(); err != nil {
			logger.WithError(err).Warn("Error closing socket")
		}
	}
}

// statusSource assembles the web console status from the live components.
type statusSource struct {
	store    *MetricStore
	receiver *DatagramReceiver
	flusher  *MetricFlusher
}

func (ss *statusSource) Status() web.Status {
	rs := ss.receiver.GetStats()
	fs := ss.flusher.GetStats()
	st := ss.store.Stats()
	return web.Status{
		PacketsReceived: rs.PacketsReceived,
		MetricsReceived: rs.MetricsReceived,
		BadLines:        rs.BadLines,
		LastPacket:      rs.LastPacket,
		LastFlush:       fs.LastFlush,
		LastFlushError:  fs.LastFlushError,
		Counters:        st.Counters,
		Timers:          st.Timers,
		Gauges:          st.Gauges,
		Sets:            st.Sets,
	}
}
