package contentstore

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "denote/internal/errors"
)

const (
	cidV0 = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"
	cidV1 = "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"
)

func samplePDF(body string) []byte {
	return []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<< /Title (" + body + ") >>\nendobj\ntrailer\n<< >>\n%%EOF\n")
}

func failOnCall(t *testing.T) Pinner {
	return PinnerFunc(func(ctx context.Context, name string, data []byte) (string, error) {
		t.Fatalf("pinner must not be called")
		return "", nil
	})
}

func TestStore_UploadRejectsInvalidFiles(t *testing.T) {
	store := New(failOnCall(t), Options{Backend: "test", GatewayURL: "https://gw.example", MaxBytes: 1024})

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"too large", append(samplePDF("x"), bytes.Repeat([]byte("a"), 2048)...)},
		{"not a pdf", []byte("PK\x03\x04 this is a zip archive")},
		{"plain text", []byte("hello world")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Upload(context.Background(), tt.data, "notes.pdf")
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
}

func TestStore_UploadMemoryAndResolve(t *testing.T) {
	pinner := NewMemoryPinner()
	store := New(pinner, Options{Backend: "memory", GatewayURL: "https://gateway.pinata.cloud/", MaxBytes: 1 << 20})

	data := samplePDF("Trees")
	c1, err := store.Upload(context.Background(), data, "trees.pdf")
	require.NoError(t, err)
	require.NoError(t, ValidateCID(c1))

	c2, err := store.Upload(context.Background(), data, "copy.pdf")
	require.NoError(t, err)
	assert.Equal(t, c1, c2, "content addressing")
	assert.Equal(t, 1, pinner.Len())

	stored, ok := pinner.Get(c1)
	require.True(t, ok)
	assert.Equal(t, data, stored)

	url, err := store.ResolveURL(c1)
	require.NoError(t, err)
	assert.Equal(t, "https://gateway.pinata.cloud/ipfs/"+c1, url)
}

func TestStore_ResolveURL(t *testing.T) {
	store := New(failOnCall(t), Options{GatewayURL: "https://gw.example"})

	for _, c := range []string{cidV0, cidV1} {
		url, err := store.ResolveURL(c)
		require.NoError(t, err)
		assert.Equal(t, "https://gw.example/ipfs/"+c, url)
	}

	for _, bad := range []string{"", "not-a-cid", "Qm123", "../../etc/passwd"} {
		_, err := store.ResolveURL(bad)
		assert.ErrorIs(t, err, apperr.ErrValidation, bad)
	}
}

func TestStore_UploadUpstreamFailure(t *testing.T) {
	cause := errors.New("connection reset by peer")
	store := New(PinnerFunc(func(ctx context.Context, name string, data []byte) (string, error) {
		return "", cause
	}), Options{Backend: "test", MaxBytes: 1 << 20})

	_, err := store.Upload(context.Background(), samplePDF("x"), "x.pdf")
	assert.ErrorIs(t, err, apperr.ErrUpstream)
	assert.ErrorIs(t, err, cause)
}

func TestStore_UploadRejectsInvalidCIDFromBackend(t *testing.T) {
	store := New(PinnerFunc(func(ctx context.Context, name string, data []byte) (string, error) {
		return "definitely-not-a-cid", nil
	}), Options{Backend: "test", MaxBytes: 1 << 20})

	_, err := store.Upload(context.Background(), samplePDF("x"), "x.pdf")
	assert.ErrorIs(t, err, apperr.ErrUpstream)
}

func TestStore_CircuitBreakerOpens(t *testing.T) {
	calls := 0
	store := New(PinnerFunc(func(ctx context.Context, name string, data []byte) (string, error) {
		calls++
		return "", errors.New("503 service unavailable")
	}), Options{Backend: "breaker-test", MaxBytes: 1 << 20, BreakerFailures: 3, BreakerTimeout: time.Hour})

	for i := 0; i < 5; i++ {
		_, err := store.Upload(context.Background(), samplePDF("x"), "x.pdf")
		assert.ErrorIs(t, err, apperr.ErrUpstream)
	}
	assert.Equal(t, 3, calls, "open circuit short-circuits the backend")
}

func TestStore_ValidationDoesNotTripBreaker(t *testing.T) {
	calls := 0
	store := New(PinnerFunc(func(ctx context.Context, name string, data []byte) (string, error) {
		calls++
		return cidV1, nil
	}), Options{Backend: "validation-test", MaxBytes: 1 << 20, BreakerFailures: 1, BreakerTimeout: time.Hour})

	for i := 0; i < 3; i++ {
		_, err := store.Upload(context.Background(), []byte("not a pdf"), "x.txt")
		assert.ErrorIs(t, err, apperr.ErrValidation)
	}

	c, err := store.Upload(context.Background(), samplePDF("x"), "x.pdf")
	require.NoError(t, err)
	assert.Equal(t, cidV1, c)
	assert.Equal(t, 1, calls)
}
