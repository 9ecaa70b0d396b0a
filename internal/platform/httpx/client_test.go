// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transportOf(t *testing.T, c *http.Client) *http.Transport {
	t.Helper()
	tr, ok := c.Transport.(*http.Transport)
	require.Truef(t, ok, "transport type = %T", c.Transport)
	return tr
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(0)
	assert.Equal(t, defaultClientTimeout, c.Timeout)

	tr := transportOf(t, c)
	assert.Equal(t, defaultMaxIdleConns, tr.MaxIdleConns)
	assert.Equal(t, defaultMaxIdleConnsPerHost, tr.MaxIdleConnsPerHost)
	assert.Equal(t, defaultIdleConnTimeout, tr.IdleConnTimeout)
}

func TestNewClient_Timeouts(t *testing.T) {
	tests := []struct {
		name       string
		timeout    time.Duration
		wantDial   time.Duration
		wantHeader time.Duration
	}{
		{"long timeout is capped", 10 * time.Second, maxDialTimeout, maxResponseHeaderTimeout},
		{"short timeout is used as given", 1500 * time.Millisecond, 1500 * time.Millisecond, 1500 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(tt.timeout)
			tr := transportOf(t, c)
			assert.Equal(t, tt.timeout, c.Timeout)
			assert.Equal(t, tt.wantDial, tr.TLSHandshakeTimeout)
			assert.Equal(t, tt.wantHeader, tr.ResponseHeaderTimeout)
		})
	}
}

func TestNewClient_ReturnsRedirects(t *testing.T) {
	srv := httptest.NewServer(http.RedirectHandler("/elsewhere", http.StatusFound))
	t.Cleanup(srv.Close)

	resp, err := NewClient(time.Second).Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/elsewhere", resp.Header.Get("Location"))
}

func TestWithUserAgent(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.UserAgent())
	}))
	t.Cleanup(srv.Close)

	c := NewClient(time.Second, WithUserAgent("offlinekit/test"), WithTracing())
	_, isPlain := c.Transport.(*http.Transport)
	assert.False(t, isPlain, "options wrap the base transport")

	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "custom")
	resp, err = c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, []string{"offlinekit/test", "custom"}, got)
}
