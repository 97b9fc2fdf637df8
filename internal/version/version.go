// Package version holds build information shared by the CLI and the
// DICOMweb client's User-Agent.
package version

// Version and BuildTime are set from cmd/rescale-qr, which receives them
// through -ldflags.
var (
	Version   = "v0.3.0"
	BuildTime = "unknown"
)
