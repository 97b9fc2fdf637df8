package dicomweb

import (
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"

	"github.com/rescale/rescale-qr/internal/models"
	"github.com/rescale/rescale-qr/internal/qr"
)

const acceptDICOMJSON = "application/dicom+json"

// queryParams renders filters as QIDO-RS matching parameters.
func queryParams(f models.Filters) url.Values {
	q := url.Values{}
	set := func(key, v string) {
		if v = strings.TrimSpace(v); v != "" {
			q.Set(key, v)
		}
	}
	set("PatientName", f.PatientName)
	set("PatientID", f.PatientID)
	set("AccessionNumber", f.AccessionNumber)
	set("StudyDescription", f.StudyDescription)
	set("StudyInstanceUID", f.StudyInstanceUID)
	set("StudyDate", f.StudyDateRange())
	if len(f.Modalities) > 0 {
		set("ModalitiesInStudy", strings.Join(f.Modalities, ","))
	}
	q.Set("includefield", tagNumberOfInstances)
	return q
}

// Query runs a study-level QIDO-RS search against the server in qc and loads
// the matching studies into idx.
func (c *Client) Query(ctx context.Context, qc *models.QueryContext, idx qr.Index, progress qr.ProgressFunc) ([]string, error) {
	logger := c.logger.Child("server", qc.Server)
	rawURL := serviceURL(qc.Scheme, qc.Host, qc.Port, qc.PathPrefix) + "/studies"
	if params := queryParams(qc.Filters).Encode(); params != "" {
		rawURL += "?" + params
	}

	progress(0, "Connecting to "+qc.Server)
	logger.Debug().Str("url", rawURL).Msg("QIDO-RS query")

	resp, err := c.get(ctx, qc.Endpoint(), rawURL, acceptDICOMJSON, qc.CallingAETitle)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	progress(30, "Receiving results")
	var studies []models.Study
	if resp.StatusCode != nethttp.StatusNoContent {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read query response: %w", err)
		}
		if studies, err = decodeStudies(body); err != nil {
			return nil, err
		}
	}

	progress(60, fmt.Sprintf("Processing %d results", len(studies)))
	if err := idx.Load(ctx, qc.Server, studies); err != nil {
		return nil, fmt.Errorf("failed to stage results: %w", err)
	}

	uids := make([]string, 0, len(studies))
	for _, s := range studies {
		uids = append(uids, s.StudyInstanceUID)
	}
	logger.Info().Int("studies", len(uids)).Msg("Query complete")
	progress(100, "Query complete")
	return uids, nil
}
