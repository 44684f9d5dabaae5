package update

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/robot-util/helpers"
	"github.com/temoto/robot-util/log2"
)

func TestTrigger(t *testing.T) {
	t.Parallel()

	type Case struct {
		name       string
		token      string
		header     string
		expectAuth string
		expectErr  string
	}
	cases := []Case{
		{"token", "secret", "", "Bearer secret", ""},
		{"anonymous", "", "", "", ""},
		{"status-error", "secret", "HTTP/1.0 403 Forbidden\r\n\r\n", "Bearer secret", "status=403 Forbidden"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			mock := &helpers.MockHTTP{}
			if c.header != "" {
				mock.Header = []byte(c.header)
			}
			u := New(Config{URL: "http://deploy.local/update", Token: c.token}, mock, log2.NewTest(t, log2.LDebug))
			require.True(t, u.Enabled())
			err := u.Trigger(context.Background())
			if c.expectErr == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), c.expectErr)
			}
			reqs := mock.Requests()
			require.Len(t, reqs, 1)
			assert.Equal(t, http.MethodGet, reqs[0].Method)
			assert.Equal(t, "/update", reqs[0].URL.Path)
			assert.Equal(t, c.expectAuth, reqs[0].Header.Get("Authorization"))
		})
	}
}

func TestTriggerTransportError(t *testing.T) {
	t.Parallel()

	mock := &helpers.MockHTTP{Err: fmt.Errorf("connection refused")}
	u := New(Config{URL: "http://deploy.local/update"}, mock, log2.NewTest(t, log2.LDebug))
	err := u.Trigger(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestTriggerServer(t *testing.T) {
	t.Parallel()

	auth := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth <- r.Header.Get("Authorization")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	u := New(Config{URL: server.URL, Token: "t1", TimeoutSec: 2}, nil, log2.NewTest(t, log2.LDebug))
	require.NoError(t, u.Trigger(context.Background()))
	assert.Equal(t, "Bearer t1", <-auth)
}

func TestDisabled(t *testing.T) {
	t.Parallel()

	u := New(Config{}, nil, nil)
	assert.Nil(t, u)
	assert.False(t, u.Enabled())
	assert.Error(t, u.Trigger(context.Background()))
}
