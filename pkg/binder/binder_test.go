package binder

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type params struct {
	Hello string `json:"hello" mod:"trim" validate:"max=9"`
	Omit  string `json:"-"`
}

type linkParams struct {
	URL string `json:"url" form:"url" validate:"required,http_url"`
}

type pageParams struct {
	Page    int `query:"page" default:"1"`
	PerPage int `query:"perPage" default:"30" validate:"min=1,max=500"`
}

var (
	goodJSON             = `{"hello":" world "}`
	unknownFieldsErrJSON = `{"hello":"world","foo":"bar"}`
	typeErrJSON          = `{"hello":123}`
	validationErrJSON    = `{"hello":"0123456789"}`
)

func TestNew(t *testing.T) {
	t.Parallel()
	b, err := New()
	require.NoError(t, err)
	assert.NotNil(t, b)

	t.Run("only allows application/json and application/x-www-form-urlencoded", func(tt *testing.T) {
		c := newContext(goodJSON, echo.MIMEApplicationXML)
		p := params{}
		err = b.Bind(&p, c)
		assert.Contains(tt, err.Error(), "Unsupported Media Type")
	})

	t.Run("disallows unknown fields", func(tt *testing.T) {
		c := newContext(unknownFieldsErrJSON, echo.MIMEApplicationJSON)
		p := params{}
		err = b.Bind(&p, c)
		assert.Contains(tt, err.Error(), `Unknown Parameter "foo"`)
	})

	t.Run("returns a good message for type errors", func(tt *testing.T) {
		c := newContext(typeErrJSON, echo.MIMEApplicationJSON)
		p := params{}
		err = b.Bind(&p, c)
		assert.Contains(tt, err.Error(), `"hello" should be of type string`)
	})

	t.Run("use mod tag to modify params", func(tt *testing.T) {
		c := newContext(goodJSON, echo.MIMEApplicationJSON)
		p := params{}
		err = b.Bind(&p, c)
		require.NoError(tt, err)
		assert.Equal(tt, "world", p.Hello)
	})

	t.Run("use validate tag to validate params", func(tt *testing.T) {
		c := newContext(validationErrJSON, echo.MIMEApplicationJSON)
		p := params{}
		err = b.Bind(&p, c)
		assert.Contains(tt, err.Error(), "length must be less than or equal to 9 characters")
	})
}

func TestBind_Lenient(t *testing.T) {
	t.Parallel()
	b, err := New()
	require.NoError(t, err)

	t.Run("allows unknown fields when configured", func(tt *testing.T) {
		c := newContext(unknownFieldsErrJSON, echo.MIMEApplicationJSON)
		c.Set(ContextDisallowUnknownFields, false)
		p := params{}
		require.NoError(tt, b.Bind(&p, c))
		assert.Equal(tt, "world", p.Hello)
	})

	t.Run("allows an empty body when configured", func(tt *testing.T) {
		e := echo.New()
		req := httptest.NewRequest(http.MethodPatch, "/", nil)
		c := e.NewContext(req, httptest.NewRecorder())
		c.Set(ContextDisallowEmptyBody, false)
		p := params{}
		require.NoError(tt, b.Bind(&p, c))
	})

	t.Run("rejects an empty body by default", func(tt *testing.T) {
		e := echo.New()
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		c := e.NewContext(req, httptest.NewRecorder())
		p := params{}
		err := b.Bind(&p, c)
		assert.Contains(tt, err.Error(), "Request body can't be empty.")
	})

	t.Run("ignores unknown query params and applies defaults", func(tt *testing.T) {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/?perPage=12&sort=created&archive=0", nil)
		c := e.NewContext(req, httptest.NewRecorder())
		c.Set(ContextDisallowUnknownFields, false)
		p := pageParams{}
		require.NoError(tt, b.Bind(&p, c))
		assert.Equal(tt, 1, p.Page)
		assert.Equal(tt, 12, p.PerPage)
	})

	t.Run("rejects unknown query params by default", func(tt *testing.T) {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/?sort=created", nil)
		c := e.NewContext(req, httptest.NewRecorder())
		p := pageParams{}
		err := b.Bind(&p, c)
		assert.Contains(tt, err.Error(), `Unknown Parameter "sort"`)
	})
}

func TestBind_HTTPURL(t *testing.T) {
	t.Parallel()
	b, err := New()
	require.NoError(t, err)

	c := newContext(`{"url":"https://example.com/a"}`, echo.MIMEApplicationJSON)
	p := linkParams{}
	require.NoError(t, b.Bind(&p, c))

	c = newContext(`{"url":"ftp://example.com/a"}`, echo.MIMEApplicationJSON)
	err = b.Bind(&linkParams{}, c)
	assert.Contains(t, err.Error(), `"url" must be an http or https URL`)

	c = newContext(`url=https%3A%2F%2Fexample.com%2Fb`, echo.MIMEApplicationForm)
	p = linkParams{}
	require.NoError(t, b.Bind(&p, c))
	assert.Equal(t, "https://example.com/b", p.URL)
}

func newContext(payload, mime string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(echo.POST, "/", strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, mime)
	rr := httptest.NewRecorder()
	return e.NewContext(req, rr)
}
