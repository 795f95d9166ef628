package testgen

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/wbip/wbip/pkg/binder"
	"github.com/wbip/wbip/pkg/errcodes"
)

// NewEcho returns an echo instance wired with the service's binder and error
// handler, ready for routes to be registered on it.
func NewEcho(t *testing.T) *echo.Echo {
	t.Helper()
	e := echo.New()
	b, err := binder.New()
	if err != nil {
		t.Fatalf("failed to create binder: %v", err)
	}
	e.Binder = b
	e.HTTPErrorHandler = errcodes.NewHandler().Handle
	return e
}

// Do serves one request against e and returns the recorded response.
func Do(e *echo.Echo, method, target string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// JSONHeaders is a header set for JSON request bodies, merged with extra.
func JSONHeaders(extra map[string]string) map[string]string {
	h := map[string]string{echo.HeaderContentType: echo.MIMEApplicationJSON}
	for k, v := range extra {
		h[k] = v
	}
	return h
}

