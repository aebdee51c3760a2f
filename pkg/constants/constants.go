// Package constants defines the default sizes and timeouts used throughout evohttp.
package constants

import "time"

// Staging buffer defaults.
const (
	// DefaultStagingCapacity is the size of the connection context's staging
	// buffer, allocated lazily on the first Recv after a Send.
	DefaultStagingCapacity = 256

	// HeaderTerminator marks the end of the header section of a request or
	// response message.
	HeaderTerminator = "\r\n\r\n"

	// PropertyDelimiter separates header lines within a message.
	PropertyDelimiter = "\r\n"
)

// Timeouts applied when a caller supplies zero, meaning "implementation
// default".
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultSendTimeout    = 20 * time.Second
	DefaultRecvTimeout    = 30 * time.Second
)
