package netutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestShouldRetry(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"refused", fmt.Errorf("post: %w", syscall.ECONNREFUSED), true},
		{"reset", &net.OpError{Op: "read", Err: syscall.ECONNRESET}, true},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("no route")}, true},
		{"url timeout", &url.Error{Op: "Post", URL: "http://x", Err: timeoutErr{}}, true},
		{"plain", errors.New("Bad Request: chat not found (400)"), false},
		{"cancelled", context.Canceled, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ShouldRetry(tc.err))
		})
	}
}

type scripted struct {
	errs   []error
	calls  int
	bodies []string
}

func (s *scripted) RoundTrip(req *http.Request) (*http.Response, error) {
	s.calls++
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		s.bodies = append(s.bodies, string(b))
	}
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("ok")), Request: req}, nil
}

func TestRetryTransportReplaysBody(t *testing.T) {
	reset := &net.OpError{Op: "read", Err: syscall.ECONNRESET}
	base := &scripted{errs: []error{reset, reset}}
	rt := &RetryTransport{Base: base, Retries: 3, Backoff: time.Millisecond}

	req, err := http.NewRequest(http.MethodPost, "http://wallet.local/v3/owner", strings.NewReader(`{"id":1}`))
	require.NoError(t, err)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 3, base.calls)
	assert.Equal(t, []string{`{"id":1}`, `{"id":1}`, `{"id":1}`}, base.bodies)
}

func TestRetryTransportStopsOnPermanentError(t *testing.T) {
	boom := errors.New("tls: bad certificate")
	base := &scripted{errs: []error{boom}}
	rt := &RetryTransport{Base: base, Retries: 3, Backoff: time.Millisecond}

	req, err := http.NewRequest(http.MethodGet, "http://wallet.local/", nil)
	require.NoError(t, err)
	_, err = rt.RoundTrip(req)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, base.calls)
}

func TestRetryTransportGivesUp(t *testing.T) {
	refused := fmt.Errorf("dial: %w", syscall.ECONNREFUSED)
	base := &scripted{errs: []error{refused, refused, refused}}
	rt := &RetryTransport{Base: base, Retries: 2, Backoff: time.Millisecond}

	req, err := http.NewRequest(http.MethodGet, "http://wallet.local/", nil)
	require.NoError(t, err)
	_, err = rt.RoundTrip(req)
	assert.ErrorIs(t, err, syscall.ECONNREFUSED)
	assert.Equal(t, 3, base.calls)
}

func TestNewHTTPClientDefaults(t *testing.T) {
	c := NewHTTPClient(ClientOptions{})
	assert.Equal(t, 30*time.Second, c.Timeout)
	_, plain := c.Transport.(*http.Transport)
	assert.True(t, plain)

	c = NewHTTPClient(ClientOptions{Retries: 2})
	retry, ok := c.Transport.(*RetryTransport)
	require.True(t, ok)
	assert.Equal(t, 2, retry.Retries)
	assert.Equal(t, 2*time.Second, retry.Backoff)
}
