package sink

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockHTTPClient implements HTTPDoer for testing.
type mockHTTPClient struct {
	DoFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return m.DoFunc(req)
}

func respond(status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader("")),
	}
}

func TestNewHTTPHandler_URL(t *testing.T) {
	tests := []struct {
		name       string
		host       string
		rawURL     string
		method     string
		wantURL    string
		wantMethod string
	}{
		{"relative with host", "example.com:8080", "log", "post", "http://example.com:8080/log", http.MethodPost},
		{"relative without host", "", "/log", "", "http://localhost/log", http.MethodGet},
		{"absolute", "ignored", "https://logs.example.com/in", "GET", "https://logs.example.com/in", http.MethodGet},
		{"unknown method", "", "/log", "PUT", "http://localhost/log", http.MethodGet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHTTPHandler(tt.host, tt.rawURL, tt.method, nil)
			assert.Equal(t, tt.wantURL, h.URL())
			assert.Equal(t, tt.wantMethod, h.Method())
		})
	}
}

func TestHTTPHandler_Get(t *testing.T) {
	var captured *http.Request
	client := &mockHTTPClient{DoFunc: func(req *http.Request) (*http.Response, error) {
		captured = req
		return respond(http.StatusOK), nil
	}}

	h := NewHTTPHandler("example.com", "/log?app=x", http.MethodGet, client)
	require.NoError(t, h.Fire(newEntry(logrus.InfoLevel, "hello")))

	require.NotNil(t, captured)
	assert.Equal(t, http.MethodGet, captured.Method)
	assert.Equal(t, "/log", captured.URL.Path)

	q := captured.URL.Query()
	assert.Equal(t, "x", q.Get("app"))
	assert.Equal(t, "root", q.Get("name"))
	assert.Equal(t, "INFO", q.Get("levelname"))
	assert.Equal(t, "hello", q.Get("msg"))
	assert.Equal(t, "(*Job).Run", q.Get("funcName"))
	assert.Equal(t, "42", q.Get("lineno"))
	assert.Equal(t, "/src/app/worker/job.go", q.Get("pathname"))
	assert.Equal(t, "1741064767.008000", q.Get("created"))
}

func TestHTTPHandler_Post(t *testing.T) {
	var form url.Values
	var contentType string
	client := &mockHTTPClient{DoFunc: func(req *http.Request) (*http.Response, error) {
		contentType = req.Header.Get("Content-Type")
		body, _ := io.ReadAll(req.Body)
		form, _ = url.ParseQuery(string(body))
		return respond(http.StatusAccepted), nil
	}}

	h := NewHTTPHandler("example.com", "/log", http.MethodPost, client)
	h.SetFormatter(NewTemplateFormatter("heartbeat"))
	require.NoError(t, h.Fire(newEntry(logrus.ErrorLevel, "failed")))

	assert.Equal(t, "application/x-www-form-urlencoded", contentType)
	assert.Equal(t, "heartbeat", form.Get("name"))
	assert.Equal(t, "ERROR", form.Get("levelname"))
	assert.Equal(t, "failed", form.Get("msg"))
}

func TestHTTPHandler_Errors(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		h := NewHTTPHandler("", "/log", "", &mockHTTPClient{DoFunc: func(*http.Request) (*http.Response, error) {
			return respond(http.StatusInternalServerError), nil
		}})
		err := h.Fire(newEntry(logrus.InfoLevel, "hello"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "500")
	})

	t.Run("transport", func(t *testing.T) {
		boom := errors.New("connection refused")
		h := NewHTTPHandler("", "/log", "", &mockHTTPClient{DoFunc: func(*http.Request) (*http.Response, error) {
			return nil, boom
		}})
		assert.ErrorIs(t, h.Fire(newEntry(logrus.InfoLevel, "hello")), boom)
	})
}
