package errcodes

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func handle(t *testing.T, method string, err error) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, "/", nil)
	rec := httptest.NewRecorder()
	NewHandler().Handle(err, e.NewContext(req, rec))
	return rec
}

func TestHandle(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", ValidationError(`"url" is required`), http.StatusBadRequest, "validation_error"},
		{"unauthorized", Unauthorized(), http.StatusUnauthorized, "unauthorized"},
		{"conflict", Conflict("Username is already registered."), http.StatusConflict, "conflict"},
		{"not found", NotFound("Document"), http.StatusNotFound, "not_found"},
		{"build failed", BuildFailed("Cannot build book 7."), http.StatusInternalServerError, "build_failed"},
		{"wrapped", errors.Wrap(NotFound("Bookmark"), "retrieving"), http.StatusNotFound, "not_found"},
		{"generic", errors.New("boom"), http.StatusInternalServerError, "internal_server_error"},
		{"echo", echo.ErrMethodNotAllowed, http.StatusMethodNotAllowed, "method_not_allowed"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := handle(t, http.MethodGet, tc.err)
			assert.Equal(t, tc.status, rec.Code)

			var body struct {
				Error struct {
					Code       string `json:"code"`
					Message    string `json:"message"`
					StatusCode int    `json:"status_code"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body.Error.Code)
			assert.Equal(t, tc.status, body.Error.StatusCode)
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}

func TestHandle_HeadHasNoBody(t *testing.T) {
	t.Parallel()

	rec := handle(t, http.MethodHead, NotFound("Bookmark"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

func TestError_Is(t *testing.T) {
	t.Parallel()

	err := errors.WithStack(Unauthorized())
	assert.True(t, errors.Is(err, Unauthorized()))
	assert.False(t, errors.Is(err, NotFound("Document")))
}
