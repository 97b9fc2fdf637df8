package constants

import (
	"time"
)

// Event bus sizing
const (
	// EventBusDefaultBuffer - default buffer size for event channels (1000)
	// Large enough to absorb a full query run's progress callbacks without drops.
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - maximum buffer size for high-throughput scenarios (5000)
	EventBusMaxBuffer = 5000
)

// Query/retrieve defaults
const (
	// DefaultCallingAETitle is used when neither config nor server overrides it.
	DefaultCallingAETitle = "RESCALE-QR"

	// DefaultStorageAETitle is the move destination advertised to remote servers.
	DefaultStorageAETitle = "RESCALE-STORE"

	// DefaultStoragePort is the local storage node port (DICOM registered port).
	DefaultStoragePort = 11112

	// DefaultDICOMwebPathPrefix is the DICOMweb service root on a server.
	DefaultDICOMwebPathPrefix = "/dicom-web"

	// DefaultRequestTimeout bounds a single query or retrieve call.
	DefaultRequestTimeout = 5 * time.Minute

	// ProgressPercentDivisor keeps a server's contribution strictly below the
	// next server's starting weight even when the operation reports 100.
	ProgressPercentDivisor = 101.0
)

// Destination storage
const (
	// MinFreeSpaceBytes - free space required before a local instance write (64 MB)
	MinFreeSpaceBytes = 64 * 1024 * 1024

	// DiskSpaceSafetyMargin - multiplier applied to required bytes (10% buffer)
	DiskSpaceSafetyMargin = 1.1
)

// HTTP Client Timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (60 seconds)
	HTTPTLSHandshakeTimeout = 60 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second
)
