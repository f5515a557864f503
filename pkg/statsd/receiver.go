package statsd

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/libp2p/go-reuseport"
	"github.com/sirupsen/logrus"
)

// ip packet size is stored in two bytes and that is how big in theory the packet can be.
// In practice it is highly unlikely but still possible to get packets bigger than usual MTU of 1500.
const packetSizeUDP = 0xffff

// SocketFactory is an indirection layer over net.ListenPacket() to allow for different implementations.
type SocketFactory func() (net.PacketConn, error)

// DatagramReceiver reads datagrams from sockets and feeds their payloads to a
// DatagramParser. One instance is shared by all reader goroutines.
type DatagramReceiver struct {
	// Counter fields below must be read/written only using atomic instructions.
	// 64-bit fields must be the first fields in the struct to guarantee proper memory alignment.
	// See https://golang.org/pkg/sync/atomic/#pkg-note-BUG
	lastPacket      int64 // When last packet was received. Unix timestamp in nsec.
	packetsReceived uint64

	parser *DatagramParser
	logger logrus.FieldLogger
}

// NewDatagramReceiver initialises a new DatagramReceiver.
func NewDatagramReceiver(parser *DatagramParser, logger logrus.FieldLogger) *DatagramReceiver {
	return &DatagramReceiver{
		parser: parser,
		logger: logger,
	}
}

// ReceiverStats holds statistics for a DatagramReceiver.
type ReceiverStats struct {
	LastPacket      time.Time
	PacketsReceived uint64
	MetricsReceived uint64
	BadLines        uint64
}

// GetStats returns current receiver stats. Safe for concurrent use.
func (dr *DatagramReceiver) GetStats() ReceiverStats {
	ps := dr.parser.GetStats()
	return ReceiverStats{
		LastPacket:      time.Unix(0, atomic.LoadInt64(&dr.lastPacket)),
		PacketsReceived: atomic.LoadUint64(&dr.packetsReceived),
		MetricsReceived: ps.MetricsReceived,
		BadLines:        ps.BadLines,
	}
}

// Receive reads datagrams from c until the socket is closed. Transient read
// errors are logged and the read is retried; closing the socket is the wake
// mechanism that makes a blocked read observe shutdown.
func (dr *DatagramReceiver) Receive(ctx context.Context, c net.PacketConn) {
	buf := make([]byte, packetSizeUDP)
	for {
		// This will error out when the socket is closed.
		nbytes, _, err := c.ReadFrom(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Temporary() {
				dr.logger.WithError(err).Warn("Error reading from socket")
				continue
			}
			select {
			case <-ctx.Done():
			default:
				dr.logger.WithError(err).Error("Receiver terminated")
			}
			return
		}
		atomic.AddUint64(&dr.packetsReceived, 1)
		atomic.StoreInt64(&dr.lastPacket, time.Now().UnixNano())
		dr.parser.HandleDatagram(buf[:nbytes])
	}
}

// BindSockets opens one UDP socket per address the configured host resolves
// to (a single wildcard socket when the host is empty). With reusePort, each
// address gets `readers` SO_REUSEPORT sockets instead of one. A bind failure
// on one candidate is logged and skipped; zero bound sockets is an error.
func BindSockets(ctx context.Context, host, port string, readers int, reusePort bool, logger logrus.FieldLogger) ([]net.PacketConn, error) {
	var addrs []string
	if host == "" {
		addrs = []string{net.JoinHostPort("", port)}
	} else {
		ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("unable to resolve %q: %v", host, err)
		}
		for _, ip := range ips {
			addrs = append(addrs, net.JoinHostPort(ip.IP.String(), port))
		}
	}

	var conns []net.PacketConn
	for _, addr := range addrs {
		n := 1
		if reusePort && readers > 1 {
			n = readers
		}
		for i := 0; i < n; i++ {
			var c net.PacketConn
			var err error
			if reusePort {
				c, err = reuseport.ListenPacket("udp", addr)
			} else {
				c, err = net.ListenPacket("udp", addr)
			}
			if err != nil {
				logger.WithError(err).Warnf("Unable to bind %s", addr)
				break
			}
			logger.Infof("Listening on %s", c.LocalAddr())
			conns = append(conns, c)
		}
	}
	if len(conns) == 0 {
		return nil, fmt.Errorf("unable to create a listening socket for [%s]:%s", host, port)
	}
	return conns, nil
}
