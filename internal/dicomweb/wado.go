package dicomweb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"strconv"
	"strings"

	"github.com/rescale/rescale-qr/internal/destination"
	"github.com/rescale/rescale-qr/internal/models"
)

const acceptMultipartDICOM = `multipart/related; type="application/dicom"`

// ErrEmptyStudy is returned when a retrieve response carries no instances.
var ErrEmptyStudy = errors.New("no instances returned")

// RetrieveStudy fetches every instance of the study in rc with WADO-RS and
// writes each one to dest under destination.InstanceKey.
func (c *Client) RetrieveStudy(ctx context.Context, rc *models.RetrieveContext, dest destination.Store) error {
	logger := c.logger.Child("server", rc.Server, "study", rc.StudyUID)
	rawURL := serviceURL(rc.Scheme, rc.Host, rc.Port, rc.PathPrefix) + "/studies/" + url.PathEscape(rc.StudyUID)

	resp, err := c.get(ctx, rc.Endpoint(), rawURL, acceptMultipartDICOM, rc.CallingAETitle)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return fmt.Errorf("invalid retrieve response content type: %w", err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		return fmt.Errorf("unexpected retrieve response content type %q", mediaType)
	}

	reader := multipart.NewReader(resp.Body, params["boundary"])
	n := 0
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read instance %d: %w", n+1, err)
		}
		n++

		size := int64(-1)
		if v := part.Header.Get("Content-Length"); v != "" {
			if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
				size = parsed
			}
		}

		key := destination.InstanceKey(rc.MoveDestinationAETitle, rc.StudyUID, n)
		if err := dest.Put(ctx, key, part, size); err != nil {
			part.Close()
			return fmt.Errorf("failed to store instance %d: %w", n, err)
		}
		part.Close()
	}

	if n == 0 {
		return ErrEmptyStudy
	}
	logger.Info().Int("instances", n).Str("destination", dest.Describe()).Msg("Study stored")
	return nil
}
