package sink

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultHTTPTimeout = 10 * time.Second

// HTTPHandler posts each record as a form to a web server.
type HTTPHandler struct {
	base

	url    string
	method string
	client HTTPDoer
}

// NewHTTPHandler creates an HTTP handler. A rawURL without a scheme is
// resolved against host ("localhost" when empty). method is GET or POST.
func NewHTTPHandler(host, rawURL, method string, client HTTPDoer) *HTTPHandler {
	target := rawURL
	if !strings.Contains(rawURL, "://") {
		if host == "" {
			host = "localhost"
		}
		if !strings.HasPrefix(target, "/") {
			target = "/" + target
		}
		target = "http://" + host + target
	}

	method = strings.ToUpper(method)
	if method != http.MethodPost {
		method = http.MethodGet
	}

	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}

	return &HTTPHandler{
		base:   base{name: KindHTTP},
		url:    target,
		method: method,
		client: client,
	}
}

// URL returns the resolved endpoint.
func (h *HTTPHandler) URL() string { return h.url }

// Method returns GET or POST.
func (h *HTTPHandler) Method() string { return h.method }

// fields builds the form sent for entry.
func (h *HTTPHandler) fields(entry *logrus.Entry) url.Values {
	name := "root"
	if f, ok := h.Formatter().(*TemplateFormatter); ok && f.Source != "" {
		name = f.Source
	}

	v := url.Values{}
	v.Set("name", name)
	v.Set("levelname", levelName(entry.Level))
	v.Set("msg", entry.Message)
	v.Set("created", strconv.FormatFloat(float64(entry.Time.UnixNano())/1e9, 'f', 6, 64))

	if frame := callerFrame(entry); frame != nil {
		v.Set("funcName", shortFunction(frame.Function))
		v.Set("lineno", strconv.Itoa(frame.Line))
		v.Set("pathname", frame.File)
	}
	return v
}

// Fire implements logrus.Hook.
func (h *HTTPHandler) Fire(entry *logrus.Entry) error {
	form := h.fields(entry).Encode()

	ctx := entry.Context
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		req *http.Request
		err error
	)
	if h.method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, h.url, strings.NewReader(form))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		sep := "?"
		if strings.Contains(h.url, "?") {
			sep = "&"
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, h.url+sep+form, nil)
	}
	if err != nil {
		return fmt.Errorf("creating http request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("http handler request failed with status: %d", resp.StatusCode)
	}
	return nil
}

// Close is a no-op.
func (h *HTTPHandler) Close() error {
	return nil
}
