// Package timeouts defines shared timeout constants used across binaries.
// Centralizing these values prevents drift between service boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// ChannelSend caps one outbound channel side effect (push frame, SMTP
// exchange). A stalled send becomes a failed delivery attempt instead of
// blocking its caller.
const ChannelSend = 10 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long a server waits for in-flight requests during
// graceful shutdown.
const Shutdown = 5 * time.Second
