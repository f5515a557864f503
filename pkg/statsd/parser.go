package statsd

import (
	"bytes"
	"errors"
	"math"
	"strconv"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/statsagg/statsagg"
)

var (
	errMissingKeySep        = errors.New("missing key separator")
	errEmptyKey             = errors.New("key zero len")
	errNameTooLong          = errors.New("name too long")
	errMissingValueSep      = errors.New("missing value separator")
	errInvalidType          = errors.New("invalid type")
	errInvalidSampleRate    = errors.New("invalid sample rate")
	errSampleRateNotAllowed = errors.New("sample rate only allowed on counters")
	errNonPositiveCounter   = errors.New("counter delta must be positive")
)

// Handler consumes decoded samples.
type Handler interface {
	// DispatchMetric applies a decoded sample.
	DispatchMetric(m *statsagg.Metric) error
}

// DatagramParser decodes datagram payloads into Metrics and feeds them to a Handler.
// One malformed line never prevents processing of its siblings.
type DatagramParser struct {
	// Counter fields below must be read/written only using atomic instructions.
	// 64-bit fields must be the first fields in the struct to guarantee proper memory alignment.
	// See https://golang.org/pkg/sync/atomic/#pkg-note-BUG
	badLines        uint64
	metricsReceived uint64

	maxNameLen     int
	handler        Handler
	badLineLimiter *rate.Limiter // limits how many parse failures hit the log at warning level
	logger         logrus.FieldLogger
}

// NewDatagramParser initialises a new DatagramParser.
func NewDatagramParser(handler Handler, maxNameLen int, badLineLimiter *rate.Limiter, logger logrus.FieldLogger) *DatagramParser {
	return &DatagramParser{
		maxNameLen:     maxNameLen,
		handler:        handler,
		badLineLimiter: badLineLimiter,
		logger:         logger,
	}
}

// HandleDatagram segments a datagram payload on CR/LF boundaries and parses
// and dispatches every line independently.
func (dp *DatagramParser) HandleDatagram(msg []byte) {
	var numMetrics uint16
	for {
		idx := bytes.IndexAny(msg, "\r\n")
		var line []byte
		// protocol does not require the last line to end in a newline
		if idx == -1 {
			if len(msg) == 0 {
				break
			}
			line = msg
			msg = nil
		} else {
			line = msg[:idx]
			msg = msg[idx+1:]
		}
		if len(line) == 0 {
			continue
		}
		metric, err := dp.parseLine(line)
		if err != nil {
			atomic.AddUint64(&dp.badLines, 1)
			if dp.badLineLimiter.Allow() {
				dp.logger.WithError(err).Warnf("Unable to parse line: %q", line)
			} else {
				dp.logger.WithError(err).Debugf("Unable to parse line: %q", line)
			}
			continue
		}
		numMetrics++
		if err := dp.handler.DispatchMetric(metric); err != nil {
			dp.logger.WithError(err).Warnf("Error dispatching metric %q", line)
		}
	}
	atomic.AddUint64(&dp.metricsReceived, uint64(numMetrics))
}

// parseLine decodes a single line of the form name ":" value "|" kind [ "|@" rate ].
func (dp *DatagramParser) parseLine(line []byte) (*statsagg.Metric, error) {
	pipe := bytes.IndexByte(line, '|')
	if pipe == -1 {
		return nil, errMissingValueSep
	}
	keyValue := line[:pipe]
	kind := line[pipe+1:]

	var extra []byte
	hasExtra := false
	if idx := bytes.IndexByte(kind, '|'); idx != -1 {
		extra = kind[idx+1:]
		kind = kind[:idx]
		hasExtra = true
	}

	// The name runs to the last colon, permitting colons embedded in it.
	colon := bytes.LastIndexByte(keyValue, ':')
	if colon == -1 {
		return nil, errMissingKeySep
	}
	if colon == 0 {
		return nil, errEmptyKey
	}
	if colon > dp.maxNameLen {
		return nil, errNameTooLong
	}
	name := string(keyValue[:colon])
	value := keyValue[colon+1:]

	switch {
	case len(kind) == 1 && kind[0] == 'c':
		return parseCounter(name, value, extra, hasExtra)
	case hasExtra:
		// the sample rate modifier is only valid for counters
		return nil, errSampleRateNotAllowed
	case len(kind) == 1 && kind[0] == 'g':
		return parseGauge(name, value)
	case len(kind) == 2 && kind[0] == 'm' && kind[1] == 's':
		v, err := strconv.ParseInt(string(value), 10, 64)
		if err != nil {
			return nil, err
		}
		return &statsagg.Metric{Name: name, Value: v, Rate: 1, Type: statsagg.TIMER}, nil
	case len(kind) == 1 && kind[0] == 's':
		return &statsagg.Metric{Name: name, StringValue: string(value), Rate: 1, Type: statsagg.SET}, nil
	default:
		return nil, errInvalidType
	}
}

func parseCounter(name string, value, extra []byte, hasExtra bool) (*statsagg.Metric, error) {
	sampling := float64(1)
	if hasExtra {
		if len(extra) == 0 || extra[0] != '@' {
			return nil, errInvalidSampleRate
		}
		v, err := strconv.ParseFloat(string(extra[1:]), 64)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 || v > 1 {
			return nil, errInvalidSampleRate
		}
		sampling = v
	}
	v, err := strconv.ParseInt(string(value), 10, 64)
	if err != nil {
		return nil, err
	}
	if v < 1 {
		return nil, errNonPositiveCounter
	}
	// Extrapolate a sampled counter back to an estimated true count.
	// Truncates toward zero after the floating divide.
	return &statsagg.Metric{
		Name:  name,
		Value: int64(float64(v) / sampling),
		Rate:  sampling,
		Type:  statsagg.COUNTER,
	}, nil
}

func parseGauge(name string, value []byte) (*statsagg.Metric, error) {
	v, err := strconv.ParseInt(string(value), 10, 64)
	if err != nil {
		return nil, err
	}
	// A leading sign means "adjust by this delta", bare digits mean "set".
	relative := value[0] == '+' || value[0] == '-'
	return &statsagg.Metric{Name: name, Value: v, Rate: 1, Relative: relative, Type: statsagg.GAUGE}, nil
}

// GetStats returns current parser stats. Safe for concurrent use.
func (dp *DatagramParser) GetStats() ParserStats {
	return ParserStats{
		BadLines:        atomic.LoadUint64(&dp.badLines),
		MetricsReceived: atomic.LoadUint64(&dp.metricsReceived),
	}
}

// ParserStats holds statistics for a DatagramParser.
type ParserStats struct {
	BadLines        uint64
	MetricsReceived uint64
}
