// Package destination stores retrieved DICOM instances.
//
// Keys are slash-separated relative paths, typically
// "<move destination AE>/<StudyInstanceUID>/<NNNN>.dcm". Backends map them to
// files under a directory, S3 object keys under a prefix, or Azure blob names.
package destination

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/rescale/rescale-qr/internal/config"
)

// Store receives retrieved instances.
type Store interface {
	// Put writes r under key. size is the payload length or -1 when unknown.
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	// Describe returns a human-readable location, e.g. "s3://bucket/prefix".
	Describe() string
}

// New builds the store selected by cfg.Destination.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Destination {
	case config.DestinationLocal, "":
		return NewLocal(cfg.DestinationPath)
	case config.DestinationS3:
		return NewS3(ctx, cfg)
	case config.DestinationAzure:
		return NewAzure(cfg)
	default:
		return nil, fmt.Errorf("unsupported destination: %s", cfg.Destination)
	}
}

// CleanKey validates key and returns it in canonical slash form.
// Absolute keys and keys escaping the root are rejected.
func CleanKey(key string) (string, error) {
	key = strings.ReplaceAll(key, `\`, "/")
	if key == "" || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid destination key %q", key)
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid destination key %q", key)
	}
	return cleaned, nil
}

// InstanceKey returns the key for the n-th instance (1-based) of a study.
func InstanceKey(aeTitle, studyUID string, n int) string {
	if aeTitle == "" {
		aeTitle = "_"
	}
	return fmt.Sprintf("%s/%s/%04d.dcm", aeTitle, studyUID, n)
}
