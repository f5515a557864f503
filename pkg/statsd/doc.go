/*

Package statsd implements the statistics-aggregation core of the agent: a
server compatible with the statsd line protocol.
See https://github.com/b/statsd_spec for a description of the protocol.

The main components are DatagramReceiver, DatagramParser, MetricStore and
MetricFlusher. The receiver reads datagrams off UDP sockets and hands their
payloads to the parser, which decodes each line into a Metric and applies it
to the store. The store keeps one running aggregate per metric under a single
lock. At every FlushInterval the flusher snapshots and resets the store in one
locked pass and dispatches the finished values to the configured backends.

*/
package statsd
