package api

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nhle/mailto/internal/mailbox"
	"github.com/nhle/mailto/internal/model"
)

const sessionJSON = `{"cname":{"nameString":["alice"]}}`

const statusBody = `{
	"modtime": "2014-03-02T17:04:05",
	"modby": "alice",
	"modwith": "mailto",
	"boxes": [
		{"type": "EXCHANGE", "address": "alice@EXCHANGE.MIT.EDU", "enabled": true},
		{"type": "IMAP", "address": "alice@PO12.MIT.EDU", "enabled": false},
		{"type": "WEIRD", "address": "alice@gmail.com", "enabled": true}
	]
}`

type recorded struct {
	method string
	path   string
	cred   string
}

func newTestClient(t *testing.T, status int, body string) (*Client, *recorded) {
	t.Helper()

	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.cred = r.URL.Query().Get("webathena")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	session, err := model.ParseSession([]byte(sessionJSON))
	require.NoError(t, err)

	return NewClient(srv.URL+"/api/v1/", session, 5*time.Second, zaptest.NewLogger(t)), rec
}

func TestStatus(t *testing.T) {
	c, rec := newTestClient(t, http.StatusOK, statusBody)

	status, err := c.Status(context.Background())
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, rec.method)
	assert.Equal(t, "/api/v1/alice", rec.path)

	cred, err := base64.StdEncoding.DecodeString(rec.cred)
	require.NoError(t, err)
	assert.JSONEq(t, sessionJSON, string(cred))

	assert.Equal(t, "alice", status.ModBy)
	assert.Equal(t, "mailto", status.ModWith)
	require.Len(t, status.Boxes, 3)
	assert.Equal(t, model.KindIMAP, status.Boxes[1].Kind)
	assert.False(t, status.Boxes[1].Enabled)
	assert.Equal(t, model.KindSMTP, status.Boxes[2].Kind, "unknown type falls back to classification")

	modified, ok := status.Modified()
	require.True(t, ok)
	assert.Equal(t, 2014, modified.Year())
}

func TestApplyBuildsOrderedPath(t *testing.T) {
	c, rec := newTestClient(t, http.StatusOK, statusBody)

	_, err := c.Apply(context.Background(), mailbox.Request{"alice@EXCHANGE.MIT.EDU", "alice@gmail.com"})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, rec.method)
	assert.Equal(t, "/api/v1/alice/alice@EXCHANGE.MIT.EDU/alice@gmail.com", rec.path)
}

func TestApplyEscapesSegments(t *testing.T) {
	c, rec := newTestClient(t, http.StatusOK, statusBody)

	_, err := c.Apply(context.Background(), mailbox.Request{"we/ird?@example.com"})
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/alice/we/ird?@example.com", rec.path)
}

func TestApplyEmptyRequestSkipsNetwork(t *testing.T) {
	c, rec := newTestClient(t, http.StatusOK, statusBody)

	_, err := c.Apply(context.Background(), nil)

	assert.True(t, errors.Is(err, ErrEmptyRequest))
	assert.Empty(t, rec.method)
}

func TestApplyRejectsReservedSegments(t *testing.T) {
	tests := []struct {
		name string
		req  mailbox.Request
	}{
		{"reset keyword", mailbox.Request{"reset"}},
		{"reset keyword upper case", mailbox.Request{"RESET"}},
		{"dot", mailbox.Request{"."}},
		{"parent", mailbox.Request{"alice@EXCHANGE.MIT.EDU", ".."}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newTestClient(t, http.StatusOK, statusBody)

			_, err := c.Apply(context.Background(), tt.req)

			assert.True(t, errors.Is(err, ErrReservedSegment))
			assert.False(t, IsNetworkError(err))
			assert.Empty(t, rec.method, "no request sent")
		})
	}
}

func TestApplyAllowsResetAlongsideAnotherAddress(t *testing.T) {
	c, rec := newTestClient(t, http.StatusOK, statusBody)

	_, err := c.Apply(context.Background(), mailbox.Request{"alice@EXCHANGE.MIT.EDU", "reset@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/alice/alice@EXCHANGE.MIT.EDU/reset@example.com", rec.path)
}

func TestReset(t *testing.T) {
	c, rec := newTestClient(t, http.StatusOK, statusBody)

	_, err := c.Reset(context.Background())
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, rec.method)
	assert.Equal(t, "/api/v1/alice/reset", rec.path)
}

func TestErrorStatuses(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		unauthorized bool
		notFound     bool
		message      string
	}{
		{"not found", http.StatusNotFound, "No such user", false, true, "No such user"},
		{"unauthorized", http.StatusUnauthorized, "", true, false, "401 Unauthorized"},
		{"forbidden", http.StatusForbidden, `{"error":"bad ticket"}`, true, false, "bad ticket"},
		{"server error html", http.StatusInternalServerError, "<html>boom</html>", false, false, "500 Internal Server Error"},
		{"bad request", http.StatusBadRequest, "Internal address cannot be type SMTP.", false, false, "Internal address cannot be type SMTP."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, tt.status, tt.body)

			status, err := c.Status(context.Background())
			assert.Nil(t, status)
			require.Error(t, err)
			assert.True(t, IsNetworkError(err))
			assert.Equal(t, tt.unauthorized, IsUnauthorized(err))
			assert.Equal(t, tt.notFound, IsNotFound(err))

			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.NotEmpty(t, UserMessage(err))
		})
	}
}

func TestMalformedBody(t *testing.T) {
	c, _ := newTestClient(t, http.StatusOK, "{")

	_, err := c.Status(context.Background())

	require.Error(t, err)
	assert.True(t, IsNetworkError(err))
}

func TestUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	session, err := model.ParseSession([]byte(sessionJSON))
	require.NoError(t, err)
	c := NewClient(url, session, time.Second, nil)

	_, err = c.Status(context.Background())
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Zero(t, apiErr.StatusCode)
	assert.Contains(t, UserMessage(err), "Could not reach")
}
