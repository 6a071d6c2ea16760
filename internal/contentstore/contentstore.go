// Package contentstore pins note files on a content-addressed network and
// builds gateway URLs for the returned content identifiers (CIDs).
//
// A Store validates uploads (non-empty, size limit, PDF only) and forwards
// them to a Pinner backend behind a circuit breaker. Backends:
//
//   - PinataPinner: Pinata pinFileToIPFS HTTP API
//   - S3Pinner: S3-compatible pinning gateways that report the CID as object metadata
//   - MemoryPinner: local CIDv1 computation for development and tests
package contentstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ipfs/go-cid"
	gobreaker "github.com/sony/gobreaker/v2"

	apperr "denote/internal/errors"
	"denote/internal/logging"
	"denote/internal/metrics"
)

const pdfMIME = "application/pdf"

// Pinner uploads a file to a pinning backend and returns its CID.
type Pinner interface {
	Pin(ctx context.Context, name string, data []byte) (string, error)
}

// PinnerFunc adapts a function to Pinner.
type PinnerFunc func(ctx context.Context, name string, data []byte) (string, error)

// Pin calls f.
func (f PinnerFunc) Pin(ctx context.Context, name string, data []byte) (string, error) {
	return f(ctx, name, data)
}

// Options configures a Store.
type Options struct {
	// Backend labels metrics and logs, e.g. "pinata".
	Backend    string
	GatewayURL string
	MaxBytes   int64
	// BreakerFailures consecutive failures open the circuit. Default 5.
	BreakerFailures uint32
	// BreakerTimeout is how long the circuit stays open. Default 30s.
	BreakerTimeout time.Duration
}

// Store is the content store client used by the notes service.
type Store struct {
	pinner   Pinner
	backend  string
	gateway  string
	maxBytes int64
	cb       *gobreaker.CircuitBreaker[string]
}

// New creates a Store around pinner.
func New(pinner Pinner, opts Options) *Store {
	if opts.Backend == "" {
		opts.Backend = "custom"
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerTimeout == 0 {
		opts.BreakerTimeout = 30 * time.Second
	}
	name := "contentstore-" + opts.Backend
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	failures := opts.BreakerFailures
	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
		// a caller going away says nothing about the backend
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &Store{
		pinner:   pinner,
		backend:  opts.Backend,
		gateway:  strings.TrimRight(opts.GatewayURL, "/"),
		maxBytes: opts.MaxBytes,
		cb:       cb,
	}
}

// Upload validates data and pins it, returning the CID. Rejected files fail
// with a validation error; backend failures with an upstream error.
func (s *Store) Upload(ctx context.Context, data []byte, filename string) (string, error) {
	if err := s.validate(data); err != nil {
		metrics.UploadsTotal.WithLabelValues(s.backend, "rejected").Inc()
		return "", err
	}

	cidStr, err := s.cb.Execute(func() (string, error) {
		c, err := s.pinner.Pin(ctx, filename, data)
		if err != nil {
			return "", err
		}
		if _, err := cid.Decode(c); err != nil {
			return "", fmt.Errorf("backend returned invalid cid %q: %w", c, err)
		}
		return c, nil
	})
	if err != nil {
		metrics.UploadsTotal.WithLabelValues(s.backend, "failure").Inc()
		logging.Error().Err(err).Str("backend", s.backend).Str("filename", filename).Msg("pin failed")
		return "", apperr.Upstream(err)
	}

	metrics.UploadsTotal.WithLabelValues(s.backend, "success").Inc()
	metrics.UploadBytes.Observe(float64(len(data)))
	return cidStr, nil
}

// ResolveURL builds the gateway URL of cid.
func (s *Store) ResolveURL(cidStr string) (string, error) {
	cidStr = strings.TrimSpace(cidStr)
	if err := ValidateCID(cidStr); err != nil {
		return "", err
	}
	return s.gateway + "/ipfs/" + cidStr, nil
}

// ValidateCID fails with a validation error unless s decodes as a CID.
func ValidateCID(s string) error {
	if _, err := cid.Decode(s); err != nil {
		return apperr.Validation("malformed content identifier")
	}
	return nil
}

func (s *Store) validate(data []byte) error {
	if len(data) == 0 {
		return apperr.Validation("file is empty")
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return apperr.Validation(fmt.Sprintf("file exceeds %d bytes", s.maxBytes))
	}
	if !mimetype.Detect(data).Is(pdfMIME) {
		return apperr.Validation("only PDF files are accepted")
	}
	return nil
}
