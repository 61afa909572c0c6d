package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

// requestValidator validates request DTOs and renders failures as
// field -> message using JSON field names.
type requestValidator struct {
	validate   *validator.Validate
	translator ut.Translator
}

func newRequestValidator() *requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())

	english := en.New()
	uni := ut.New(english, english)
	translator, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, translator)

	// Use JSON tag names for errors instead of Go struct names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterTranslation("notblank", translator,
		func(t ut.Translator) error { return t.Add("notblank", "{0} must not be blank", true) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T("notblank", fe.Field())
			return s
		},
	)

	return &requestValidator{validate: v, translator: translator}
}

// requestError is a DTO validation failure.
type requestError struct {
	Fields map[string]string
}

func (e *requestError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = e.Fields[k]
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// Struct validates v and returns a *requestError for field failures.
func (rv *requestValidator) Struct(v any) error {
	err := rv.validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		key := strings.TrimPrefix(fe.Namespace(), reflect.TypeOf(v).Elem().Name()+".")
		fields[key] = fe.Translate(rv.translator)
	}
	return &requestError{Fields: fields}
}

// decodeJSON reads a JSON body into v and validates it.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return &requestError{Fields: map[string]string{"body": "request body is required"}}
		}
		return &requestError{Fields: map[string]string{"body": fmt.Sprintf("invalid JSON: %v", err)}}
	}
	return s.validate.Struct(v)
}

// presetRequest is the body of preset create and update.
type presetRequest struct {
	Name    string            `json:"name" validate:"notblank,max=100"`
	Headers []string          `json:"headers" validate:"required,min=1,max=500,dive,notblank"`
	Mapping map[string]string `json:"mapping" validate:"required,min=1"`
}

// importForm holds the non-file fields of an import upload.
type importForm struct {
	OrganisationID string            `json:"organisationId" validate:"required,max=64"`
	BranchID       string            `json:"branchId" validate:"omitempty,max=64"`
	Mapping        map[string]string `json:"mapping" validate:"required,min=1"`
	SkipDuplicates bool              `json:"skipDuplicates"`
	UpdateExisting bool              `json:"updateExisting"`
}

// previewForm holds the non-file fields of a preview upload.
type previewForm struct {
	Mapping map[string]string `json:"mapping" validate:"required,min=1"`
}
