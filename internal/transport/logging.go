// SPDX-License-Identifier: MIT
package transport

import (
	"strings"

	"ducker/internal/ducking"
	applog "ducker/internal/log"
)

// LoggingTransport implements the Transport interface by logging data.
// Volume changes log at info, everything else at debug.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	applog.Debugf("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs the received data.
func (lt *LoggingTransport) Send(data any) error {
	switch v := data.(type) {
	case ducking.Status:
		if v.Emitted {
			applog.Infof("Ducker: %s, volume %d (reasons: %s, gated %.1f dB)",
				v.Phase, v.Volume, reasons(v.Reasons), v.GatedDB)
			return nil
		}
		applog.Debugf("Ducker: %s, gated %.1f dB", v.Phase, v.GatedDB)
	default:
		applog.Debugf("LOG_TRANSPORT: Received (%T): %+v", data, data)
	}
	return nil // Logging transport never fails to "send"
}

func reasons(r []string) string {
	if len(r) == 0 {
		return "none"
	}
	return strings.Join(r, ",")
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	applog.Debugf("LOG_TRANSPORT: Close called.")
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
