package fxrate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProviderLatest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/test-key/latest/NGN", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":"success","base_code":"NGN","conversion_rates":{"NGN":1,"USD":0.0012,"EUR":0.0011,"XXX":0}}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, "test-key", time.Second)
	rates, err := p.Latest(context.Background(), "NGN")
	require.NoError(t, err)

	assert.Equal(t, "0.0012", rates["USD"].String())
	assert.Equal(t, "0.0011", rates["EUR"].String())
	_, ok := rates["XXX"]
	assert.False(t, ok, "non-positive rates are dropped")
}

func TestHTTPProviderNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPProvider(srv.URL, "k", time.Second).Latest(context.Background(), "USD")
	assert.True(t, errors.Is(err, ErrProvider), "got %v", err)
}

func TestHTTPProviderErrorResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":"error","error-type":"invalid-key"}`))
	}))
	defer srv.Close()

	_, err := NewHTTPProvider(srv.URL, "k", time.Second).Latest(context.Background(), "USD")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProvider)
	assert.Contains(t, err.Error(), "invalid-key")
}

func TestHTTPProviderTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewHTTPProvider(srv.URL, "k", 50*time.Millisecond).Latest(context.Background(), "USD")
	assert.ErrorIs(t, err, ErrProvider)
}
