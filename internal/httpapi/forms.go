package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type dashboardActionForm struct {
	Action string `form:"action" validate:"required"`
}

type phoneForm struct {
	From      string `form:"from" validate:"required"`
	To        string `form:"to" validate:"required"`
	APISecret string `form:"apiSecret" validate:"required"`
}

type phoneActionForm struct {
	From      string `form:"from" validate:"required"`
	To        string `form:"to" validate:"required"`
	APISecret string `form:"apiSecret" validate:"required"`
	Action    string `form:"action" validate:"required"`
}

type requestReadForm struct {
	APISecret string `form:"apiSecret"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("form"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// bindForm decodes the url-encoded or multipart body of r into dst using the
// form struct tags, with surrounding whitespace trimmed, then validates it.  Validation failures come back as a
// VALIDATION error listing every offending field.
func (s *Server) bindForm(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := parseBody(w, r); err != nil {
		return errValidation.With(err)
	}
	if err := s.decoder.Decode(dst, trimmed(r.PostForm)); err != nil {
		return errValidation.With(err)
	}

	err := s.validate.Struct(dst)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return errValidation.With(err)
	}
	var b strings.Builder
	for _, fe := range fields {
		b.WriteString(fe.Field())
		switch fe.Tag() {
		case "required":
			b.WriteString(" is required\n")
		default:
			b.WriteString(" is invalid\n")
		}
	}
	e := *errValidation
	e.Message = b.String()
	e.Err = err
	return &e
}

func parseBody(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return r.ParseMultipartForm(maxRequestBody)
	}
	return r.ParseForm()
}

func trimmed(values url.Values) url.Values {
	out := make(url.Values, len(values))
	for k, vs := range values {
		t := make([]string, len(vs))
		for i, v := range vs {
			t[i] = strings.TrimSpace(v)
		}
		out[k] = t
	}
	return out
}
