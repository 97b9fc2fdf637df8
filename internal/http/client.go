package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/net/http2"

	"github.com/rescale/rescale-qr/internal/config"
	"github.com/rescale/rescale-qr/internal/constants"
	"github.com/rescale/rescale-qr/internal/logging"
)

// retryLogger adapts logging.Logger to retryablehttp.LeveledLogger.
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg("[RETRY] " + msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	// Only log errors and warnings
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("[RETRY] " + msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg("[RETRY] " + msg)
}

// NewRetryClient returns the client used for DICOMweb requests: proxy settings
// from cfg, transport-level retries limited to cfg.HTTPRetries.
func NewRetryClient(cfg *config.Config, logger *logging.Logger) (*nethttp.Client, error) {
	httpClient, err := ConfigureHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.RequestTimeout > 0 {
		httpClient.Timeout = cfg.RequestTimeout
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = httpClient
	retryClient.RetryMax = cfg.HTTPRetries
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 30 * time.Second
	retryClient.CheckRetry = CheckRetry
	retryClient.Logger = &retryLogger{logger: logger}
	// Surface the last response instead of a generic "giving up" error
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return retryClient.StandardClient(), nil
}

// CreateOptimizedClient returns a client tuned for bulk object uploads to the
// S3 and Azure destinations. Proxy settings come from cfg.
func CreateOptimizedClient(cfg *config.Config) (*nethttp.Client, error) {
	route, err := resolveProxy(cfg)
	if err != nil {
		return nil, err
	}
	baseClient, err := ConfigureHTTPClient(cfg)
	if err != nil {
		return nil, err
	}

	tr, ok := baseClient.Transport.(*nethttp.Transport)
	if !ok {
		// NTLM wraps the transport; nothing to tune
		baseClient.Timeout = 0
		return baseClient, nil
	}

	tr.MaxIdleConns = 64
	tr.MaxIdleConnsPerHost = 16
	tr.MaxConnsPerHost = 16
	tr.IdleConnTimeout = constants.HTTPIdleConnTimeout
	tr.TLSHandshakeTimeout = constants.HTTPTLSHandshakeTimeout
	tr.ExpectContinueTimeout = constants.HTTPExpectContinueTimeout

	tr.DisableCompression = true
	tr.ForceAttemptHTTP2 = true
	_ = http2.ConfigureTransport(tr)

	// HTTP/1.1 behind a proxy, or everywhere with DISABLE_HTTP2=true
	if os.Getenv("DISABLE_HTTP2") == "true" || route.active() {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	baseClient.Transport = tr
	baseClient.Timeout = 0 // Uploads are bounded by context

	return baseClient, nil
}
