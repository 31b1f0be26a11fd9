package catalog

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultPublicationPath is GeoNetwork's transactional CSW endpoint.
	DefaultPublicationPath = "/srv/eng/csw-publication"

	// DefaultTimeout bounds a single insertion request.
	DefaultTimeout = 30 * time.Second

	maxErrorBody = 2048

	// maxResponseBytes caps how much of an insertion response is read.
	maxResponseBytes = 1 << 20
)

// Config configures a GeonetworkClient.
type Config struct {
	// URL is the GeoNetwork base URL, e.g. https://catalog.example.org/geonetwork.
	URL string

	Username string
	Password string

	PublicationPath string
	Timeout         time.Duration

	// RequestsPerSecond throttles insertions. Zero disables throttling.
	RequestsPerSecond float64
	Burst             int
}

// GeonetworkClient registers records through CSW-T Insert transactions.
type GeonetworkClient struct {
	base     *url.URL
	endpoint string
	username string
	password string
	client   *http.Client
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// Option customises a GeonetworkClient.
type Option func(*GeonetworkClient)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *GeonetworkClient) { g.client = c }
}

// NewGeonetworkClient validates cfg and returns a client. A nil logger
// disables logging.
func NewGeonetworkClient(cfg Config, logger *zap.Logger, opts ...Option) (*GeonetworkClient, error) {
	raw := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if raw == "" {
		return nil, fmt.Errorf("catalog: url is required")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("catalog: parse url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("catalog: url %q must be http or https", raw)
	}

	path := cfg.PublicationPath
	if path == "" {
		path = DefaultPublicationPath
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &GeonetworkClient{
		base:     base,
		endpoint: raw + "/" + strings.TrimLeft(path, "/"),
		username: cfg.Username,
		password: cfg.Password,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// MakeCSWRecordInsertion inserts rec and returns the URL at which the
// catalogue serves it.
func (g *GeonetworkClient) MakeCSWRecordInsertion(ctx context.Context, rec *Record) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("catalog: record is required")
	}
	body, err := MarshalInsert(rec)
	if err != nil {
		return "", fmt.Errorf("catalog: encode record: %w", err)
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("catalog: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml; charset=UTF-8")
	req.Header.Set("Accept", "application/xml")
	if g.username != "" {
		req.SetBasicAuth(g.username, g.password)
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("catalog: insert %s: %w", rec.FileIdentifier, err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return "", fmt.Errorf("catalog: read response: %w", err)
	}
	if len(payload) > maxResponseBytes {
		return "", fmt.Errorf("catalog: %w: response exceeds %d bytes", ErrUnexpectedResponse, maxResponseBytes)
	}

	id, err := parseInsertResponse(resp.StatusCode, payload)
	if err != nil {
		g.logger.Warn("catalog insertion failed",
			zap.String("file_identifier", rec.FileIdentifier),
			zap.Int("status", resp.StatusCode),
			zap.Error(err),
		)
		return "", err
	}

	link := g.RecordURL(id)
	g.logger.Info("catalog record inserted",
		zap.String("file_identifier", rec.FileIdentifier),
		zap.String("identifier", id),
		zap.String("url", link),
		zap.Duration("elapsed", time.Since(start)),
	)
	return link, nil
}

// RecordURL returns the catalogue search URL for a record identifier.
func (g *GeonetworkClient) RecordURL(identifier string) string {
	return strings.TrimRight(g.base.String(), "/") + "/srv/eng/catalog.search#/metadata/" + url.PathEscape(identifier)
}

func parseInsertResponse(status int, payload []byte) (string, error) {
	root, err := rootElement(payload)
	if err != nil {
		if status < 200 || status > 299 {
			return "", &StatusError{StatusCode: status, Body: truncate(string(payload))}
		}
		return "", fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}

	switch root {
	case "ExceptionReport":
		var report exceptionReport
		if err := xml.Unmarshal(payload, &report); err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
		}
		exc := &ExceptionError{}
		if len(report.Exceptions) > 0 {
			first := report.Exceptions[0]
			exc.Code = first.Code
			exc.Locator = first.Locator
			exc.Text = strings.TrimSpace(strings.Join(first.Texts, "; "))
		}
		return "", exc
	case "TransactionResponse":
		if status < 200 || status > 299 {
			return "", &StatusError{StatusCode: status, Body: truncate(string(payload))}
		}
		var tr transactionResponse
		if err := xml.Unmarshal(payload, &tr); err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
		}
		if tr.TotalInserted != 1 || len(tr.Identifiers) == 0 || strings.TrimSpace(tr.Identifiers[0]) == "" {
			return "", fmt.Errorf("%w: inserted %d records", ErrInsertRejected, tr.TotalInserted)
		}
		return strings.TrimSpace(tr.Identifiers[0]), nil
	default:
		if status < 200 || status > 299 {
			return "", &StatusError{StatusCode: status, Body: truncate(string(payload))}
		}
		return "", fmt.Errorf("%w: root element %s", ErrUnexpectedResponse, root)
	}
}

// rootElement returns the local name of the document element.
func rootElement(payload []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(payload))
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
