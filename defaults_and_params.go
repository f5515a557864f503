package statsagg

import (
	"runtime"
	"time"

	"github.com/spf13/pflag"
)

// DefaultMaxReaders is the default number of socket reading goroutines per bound address.
var DefaultMaxReaders = minInt(8, runtime.NumCPU())

const (
	// DefaultMetricsHost is the default host to bind to (empty means all local addresses).
	DefaultMetricsHost = ""
	// DefaultMetricsPort is the default port on which to listen for metrics.
	DefaultMetricsPort = "8125"
	// DefaultFlushInterval is the default metrics flush interval.
	DefaultFlushInterval = 1 * time.Second
	// DefaultMaxNameLen is the default bound on accepted metric name length.
	DefaultMaxNameLen = 256
	// DefaultDeleteCounters is the default eviction switch for idle counters.
	DefaultDeleteCounters = false
	// DefaultDeleteTimers is the default eviction switch for idle timers.
	DefaultDeleteTimers = false
	// DefaultDeleteGauges is the default eviction switch for idle gauges.
	DefaultDeleteGauges = false
	// DefaultDeleteSets is the default eviction switch for idle sets.
	DefaultDeleteSets = false
	// DefaultBackends is the default backend to dispatch flushed metrics to.
	DefaultBackends = "stdout"
	// DefaultBadLinesPerSecond is the default rate of parse failures logged at warning level.
	DefaultBadLinesPerSecond = 1.0
)

const (
	// ParamMetricsHost is the name of parameter with the host to bind to.
	ParamMetricsHost = "metrics-host"
	// ParamMetricsPort is the name of parameter with the port on which to listen for metrics.
	ParamMetricsPort = "metrics-port"
	// ParamFlushInterval is the name of parameter with metrics flush interval.
	ParamFlushInterval = "flush-interval"
	// ParamMaxReaders is the name of parameter with number of socket readers per address.
	ParamMaxReaders = "max-readers"
	// ParamMaxNameLen is the name of parameter with the bound on metric name length.
	ParamMaxNameLen = "max-name-len"
	// ParamDeleteCounters is the name of parameter enabling eviction of idle counters.
	ParamDeleteCounters = "delete-counters"
	// ParamDeleteTimers is the name of parameter enabling eviction of idle timers.
	ParamDeleteTimers = "delete-timers"
	// ParamDeleteGauges is the name of parameter enabling eviction of idle gauges.
	ParamDeleteGauges = "delete-gauges"
	// ParamDeleteSets is the name of parameter enabling eviction of idle sets.
	ParamDeleteSets = "delete-sets"
	// ParamBackends is the name of parameter with the list of backends.
	ParamBackends = "backends"
	// ParamConsoleAddr is the name of parameter with the address of the web console.
	ParamConsoleAddr = "console-addr"
	// ParamReusePort is the name of parameter enabling SO_REUSEPORT reader sockets.
	ParamReusePort = "reuse-port"
	// ParamBadLinesPerSecond is the name of parameter with the rate of logged parse failures.
	ParamBadLinesPerSecond = "bad-lines-per-second"
)

// AddFlags adds flags for the server to the specified FlagSet.
func AddFlags(fs *pflag.FlagSet) {
	fs.String(ParamMetricsHost, DefaultMetricsHost, "Host to bind to (empty for all local addresses)")
	fs.String(ParamMetricsPort, DefaultMetricsPort, "Port on which to listen for metrics")
	fs.Duration(ParamFlushInterval, DefaultFlushInterval, "How often to flush metrics to the backends")
	fs.Int(ParamMaxReaders, DefaultMaxReaders, "Maximum number of socket readers per bound address")
	fs.Int(ParamMaxNameLen, DefaultMaxNameLen, "Maximum accepted metric name length")
	fs.Bool(ParamDeleteCounters, DefaultDeleteCounters, "Delete counters that received no updates for one flush interval")
	fs.Bool(ParamDeleteTimers, DefaultDeleteTimers, "Delete timers that received no updates for one flush interval")
	fs.Bool(ParamDeleteGauges, DefaultDeleteGauges, "Delete gauges that received no updates for one flush interval")
	fs.Bool(ParamDeleteSets, DefaultDeleteSets, "Delete sets that received no updates for one flush interval")
	fs.String(ParamBackends, DefaultBackends, "Comma-separated list of backends")
	fs.String(ParamConsoleAddr, "", "If set, use as the address of the web-based console")
	fs.Bool(ParamReusePort, false, "Use SO_REUSEPORT to open one socket per reader")
	fs.Float64(ParamBadLinesPerSecond, DefaultBadLinesPerSecond, "How many parse failures to log per second (0 to disable)")
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
