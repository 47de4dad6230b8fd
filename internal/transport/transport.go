// SPDX-License-Identifier: MIT
package transport

import "errors"

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport: closed")

// Transport defines a generic interface for publishing ducker status.
// Implementations should be thread-safe and must not block the caller for
// longer than it takes to queue the data.
type Transport interface {
	Send(data any) error
	Close() error
}
