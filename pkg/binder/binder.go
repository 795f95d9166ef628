package binder

import (
	"net/http"
	"net/url"
	"reflect"
	"regexp"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/mold/v4"
	"github.com/go-playground/mold/v4/modifiers"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/segmentio/encoding/json"
	"github.com/wbip/wbip/pkg/errcodes"
)

const (
	// ContextDisallowUnknownFields can be set to false on an echo context to
	// let clients send fields the payload struct doesn't declare.
	ContextDisallowUnknownFields = "disallow_unknown_fields"
	// ContextDisallowEmptyBody can be set to false on an echo context to allow
	// bodiless POST/PUT/PATCH requests.
	ContextDisallowEmptyBody = "disallow_empty_body"
)

var unknownFieldsRE = regexp.MustCompile(`unknown field "(.*)"`)

// Binder is a custom struct that implements the Echo Binder interface. It binds
// to a struct, uses mold to clean up the params, and validator to validate
// them.
type Binder struct {
	queryDecoder        *schema.Decoder
	formDecoder         *schema.Decoder
	lenientQueryDecoder *schema.Decoder
	lenientFormDecoder  *schema.Decoder
	conform             *mold.Transformer
	validate            *validator.Validate
}

func newDecoder(tag string, ignoreUnknown bool) *schema.Decoder {
	d := schema.NewDecoder()
	d.SetAliasTag(tag)
	d.IgnoreUnknownKeys(ignoreUnknown)
	return d
}

// New initializes a new Binder instance with the appropriate validation
// functions registered.
func New() (*Binder, error) {
	conform := modifiers.New()
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := validate.RegisterValidation(httpURL, httpURLValidator); err != nil {
		return nil, errors.WithStack(err)
	}

	return &Binder{
		queryDecoder:        newDecoder("query", false),
		formDecoder:         newDecoder("form", false),
		lenientQueryDecoder: newDecoder("query", true),
		lenientFormDecoder:  newDecoder("form", true),
		conform:             conform,
		validate:            validate,
	}, nil
}

// Bind binds, modifies, and validates payloads against the given struct.
func (b *Binder) Bind(i interface{}, c echo.Context) error {
	req := c.Request()
	log := logger.FromEchoContext(c)

	disallowEmptyBody := true
	if disallow, ok := c.Get(ContextDisallowEmptyBody).(bool); ok {
		disallowEmptyBody = disallow
	}
	disallowUnknownFields := true
	if disallow, ok := c.Get(ContextDisallowUnknownFields).(bool); ok {
		disallowUnknownFields = disallow
	}
	queryDecoder, formDecoder := b.queryDecoder, b.formDecoder
	if !disallowUnknownFields {
		queryDecoder, formDecoder = b.lenientQueryDecoder, b.lenientFormDecoder
	}

	if req.ContentLength != 0 && req.Body != nil && req.Body != http.NoBody {
		ctype := req.Header.Get(echo.HeaderContentType)
		switch {
		case strings.HasPrefix(ctype, echo.MIMEApplicationJSON):
			dec := json.NewDecoder(req.Body)
			if disallowUnknownFields {
				dec.DisallowUnknownFields()
			}
			defer req.Body.Close()
			if err := dec.Decode(i); err != nil {
				// return better error message when there are unknown fields
				if matches := unknownFieldsRE.FindStringSubmatch(err.Error()); len(matches) > 1 {
					return errcodes.UnknownParameter(matches[1])
				}

				// return better error message on type errors
				var typeErr *json.UnmarshalTypeError
				if errors.As(err, &typeErr) {
					return errcodes.ValidationTypeError(formatUnmarshalTypeError(typeErr))
				}

				log.Err(err).Warn("json decode error")

				return errcodes.MalformedPayload()
			}
		case strings.HasPrefix(ctype, echo.MIMEApplicationForm), strings.HasPrefix(ctype, echo.MIMEMultipartForm):
			params, err := c.FormParams()
			if err != nil {
				return errcodes.MalformedPayload()
			}
			if err := b.decodeQuery(i, params, formDecoder); err != nil {
				return errors.WithStack(err)
			}
		default:
			return errcodes.UnsupportedMediaType()
		}
	} else {
		if req.Method == http.MethodGet || req.Method == http.MethodHead || req.Method == http.MethodDelete {
			if err := b.decodeQuery(i, c.QueryParams(), queryDecoder); err != nil {
				return errors.WithStack(err)
			}
		} else if disallowEmptyBody {
			return errcodes.EmptyRequestBody()
		}
	}

	if err := b.conform.Struct(req.Context(), i); err != nil {
		return errors.WithStack(err)
	}

	if err := defaults.Set(i); err != nil {
		return errors.WithStack(err)
	}

	if err := b.validate.Struct(i); err != nil {
		var errs validator.ValidationErrors
		if !errors.As(err, &errs) || len(errs) == 0 {
			return errors.WithStack(err)
		}
		return errcodes.ValidationError(formatValidationError(errs[0]))
	}
	return nil
}

func (b *Binder) decodeQuery(i interface{}, params url.Values, decoder *schema.Decoder) error {
	if err := decoder.Decode(i, params); err != nil {
		if errs, ok := err.(schema.MultiError); ok {
			for _, err := range errs {
				if err, ok := err.(schema.ConversionError); ok {
					return errcodes.ValidationTypeError(formatSchemaConversionError(err))
				}
				if err, ok := err.(schema.UnknownKeyError); ok {
					return errcodes.UnknownParameter(err.Key)
				}
				return errors.WithStack(err)
			}
		}
		return errors.WithStack(err)
	}
	return nil
}

// Lenient lets the handler accept payload fields its struct doesn't declare.
func Lenient(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Set(ContextDisallowUnknownFields, false)
		return next(c)
	}
}

// AllowEmptyBody lets the handler accept POST/PUT/PATCH requests without a
// body.
func AllowEmptyBody(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Set(ContextDisallowEmptyBody, false)
		return next(c)
	}
}
