package metrics

import (
	"strings"
	"time"

	"github.com/pzhenzhou/respcli/pkg/common"
	"github.com/pzhenzhou/respcli/pkg/respio"
)

const (
	ServerErrorType    = "server_error"
	ProtocolErrorType  = "protocol_error"
	TimeoutErrorType   = "timeout"
	TransportErrorType = "transport_error"
)

// ClientMetricsMiddleware records per-command metrics around client calls
type ClientMetricsMiddleware struct {
	collector            ClientMetricsCollector
	recordCommandLatency bool // Controls whether to record per-command latency metrics
}

func NewClientMetricsMiddleware(collector ClientMetricsCollector) *ClientMetricsMiddleware {
	return &ClientMetricsMiddleware{
		collector:            collector,
		recordCommandLatency: true,
	}
}

func NewClientMetricsMiddlewareWithOptions(collector ClientMetricsCollector, recordCommandLatency bool) *ClientMetricsMiddleware {
	return &ClientMetricsMiddleware{
		collector:            collector,
		recordCommandLatency: recordCommandLatency,
	}
}

func (m *ClientMetricsMiddleware) GetCollector() ClientMetricsCollector {
	return m.collector
}

func (m *ClientMetricsMiddleware) OnConnectionOpen() {
	m.collector.IncrementActiveConnections()
}

func (m *ClientMetricsMiddleware) OnConnectionClose() {
	m.collector.DecrementActiveConnections()
}

func (m *ClientMetricsMiddleware) TrackCommand(command string) {
	m.collector.IncrementCommandCounter(command)
}

// TrackLatency measures and records the round trip latency for a specific command
func (m *ClientMetricsMiddleware) TrackLatency(command string, start time.Time) {
	duration := time.Since(start)
	if m.recordCommandLatency {
		m.collector.RecordCommandLatency(command, duration)
	}
	m.collector.RecordOverallLatency(duration)
}

func (m *ClientMetricsMiddleware) TrackError(errorType string) {
	m.collector.IncrementErrorCounter(errorType)
}

// WrapCommand wraps one request/reply exchange with metrics
func (m *ClientMetricsMiddleware) WrapCommand(command string, fn func() error) error {
	command = strings.ToUpper(command)
	m.TrackCommand(command)
	start := time.Now()

	err := fn()

	m.TrackLatency(command, start)
	if err != nil {
		m.TrackError(ErrorType(err))
	}
	return err
}

// ErrorType maps a client error to the label used by the error counter.
func ErrorType(err error) string {
	switch {
	case respio.IsServerError(err):
		return ServerErrorType
	case respio.IsProtocolError(err):
		return ProtocolErrorType
	case common.IsTimeout(err):
		return TimeoutErrorType
	default:
		return TransportErrorType
	}
}
