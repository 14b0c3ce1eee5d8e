package checkout

import (
	"errors"
	"reflect"
	"strings"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/storefront-bff/internal/common"
)

// CustomerForm is the storefront's checkout form.
type CustomerForm struct {
	Nombre           string `json:"nombre" validate:"required,min=2,max=120"`
	Email            string `json:"email" validate:"required,email,max=254"`
	Telefono         string `json:"telefono" validate:"required,min=6,max=30"`
	Domicilio        string `json:"domicilio" validate:"required,max=200"`
	Localidad        string `json:"localidad" validate:"required,max=120"`
	Provincia        string `json:"provincia" validate:"required,max=120"`
	CodigoPostal     string `json:"codigoPostal" validate:"required,max=12"`
	NotasAdicionales string `json:"notasAdicionales" validate:"max=500"`
}

// Trimmed returns a copy with surrounding whitespace removed.
func (f CustomerForm) Trimmed() CustomerForm {
	return CustomerForm{
		Nombre:           strings.TrimSpace(f.Nombre),
		Email:            strings.TrimSpace(f.Email),
		Telefono:         strings.TrimSpace(f.Telefono),
		Domicilio:        strings.TrimSpace(f.Domicilio),
		Localidad:        strings.TrimSpace(f.Localidad),
		Provincia:        strings.TrimSpace(f.Provincia),
		CodigoPostal:     strings.TrimSpace(f.CodigoPostal),
		NotasAdicionales: strings.TrimSpace(f.NotasAdicionales),
	}
}

// FormValidator checks a customer form.
type FormValidator struct {
	v *validator.Validate
}

// NewFormValidator builds a validator reporting json field names.
func NewFormValidator() *FormValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &FormValidator{v: v}
}

// Validate checks the trimmed form, the same values ToCheckoutRequest sends,
// and returns an InvalidInput AppError whose details map each failing field to
// the rule it broke.
func (fv *FormValidator) Validate(form CustomerForm) error {
	err := fv.v.Struct(form.Trimmed())
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return common.KindError(common.KindInvalidInput, "invalid customer form", err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	appErr := common.KindError(common.KindInvalidInput, "invalid customer form", ErrInvalidForm)
	appErr.Details = map[string]any{"fields": fields}
	return appErr
}
