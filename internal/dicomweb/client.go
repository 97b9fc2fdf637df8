// Package dicomweb implements study-level query (QIDO-RS) and study retrieve
// (WADO-RS) against DICOMweb archive nodes.
package dicomweb

import (
	"context"
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rescale/rescale-qr/internal/constants"
	qrhttp "github.com/rescale/rescale-qr/internal/http"
	"github.com/rescale/rescale-qr/internal/logging"
	"github.com/rescale/rescale-qr/internal/qr"
	"github.com/rescale/rescale-qr/internal/ratelimit"
	"github.com/rescale/rescale-qr/internal/version"
)

// maxErrorBody caps how much of an error response is kept in a StatusError.
const maxErrorBody = 512

// Client talks to DICOMweb servers. It is safe for concurrent use.
type Client struct {
	httpClient *nethttp.Client
	limits     *ratelimit.Registry
	logger     *logging.Logger
}

var (
	_ qr.Querier   = (*Client)(nil)
	_ qr.Retriever = (*Client)(nil)
)

// NewClient wraps httpClient. limits and logger may be nil.
func NewClient(httpClient *nethttp.Client, limits *ratelimit.Registry, logger *logging.Logger) *Client {
	if httpClient == nil {
		httpClient = nethttp.DefaultClient
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Client{httpClient: httpClient, limits: limits, logger: logger}
}

// serviceURL returns the DICOMweb root of a server, e.g.
// "http://10.0.0.5:8042/dicom-web".
func serviceURL(scheme, host string, port int, prefix string) string {
	if scheme == "" {
		scheme = "http"
	}
	if prefix == "" {
		prefix = constants.DefaultDICOMwebPathPrefix
	}
	prefix = "/" + strings.Trim(prefix, "/")
	if prefix == "/" {
		prefix = ""
	}
	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   prefix,
	}
	return u.String()
}

// get issues a GET and returns the response when the status is 2xx.
// Any other status is returned as a *qrhttp.StatusError.
func (c *Client) get(ctx context.Context, endpoint, rawURL, accept, callingAET string) (*nethttp.Response, error) {
	if err := c.limits.Wait(ctx, endpoint); err != nil {
		return nil, err
	}

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", accept)
	ua := "rescale-qr/" + version.Version
	if callingAET != "" {
		ua += " (" + callingAET + ")"
	}
	req.Header.Set("User-Agent", ua)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return nil, &qrhttp.StatusError{
		Method:     nethttp.MethodGet,
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}
