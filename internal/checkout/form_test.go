package checkout_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-bff/internal/checkout"
	"github.com/noah-isme/storefront-bff/internal/common"
)

func TestFormValidatorAcceptsCompleteForm(t *testing.T) {
	v := checkout.NewFormValidator()
	require.NoError(t, v.Validate(sampleForm().Trimmed()))
}

func TestFormValidatorReportsFields(t *testing.T) {
	v := checkout.NewFormValidator()
	form := sampleForm()
	form.Email = "not-an-email"
	form.CodigoPostal = ""

	err := v.Validate(form)
	require.ErrorIs(t, err, checkout.ErrInvalidForm)
	require.Equal(t, common.KindInvalidInput, common.KindOf(err))

	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	fields := appErr.Details.(map[string]any)["fields"].(map[string]string)
	require.Equal(t, "email", fields["email"])
	require.Equal(t, "required", fields["codigoPostal"])
	require.NotContains(t, fields, "nombre")
}

func TestFormValidatorRejectsBlankFields(t *testing.T) {
	v := checkout.NewFormValidator()
	form := sampleForm()
	form.Nombre = " A "
	form.Domicilio = "   "
	form.Localidad = "\t"
	form.Provincia = " \n "
	form.CodigoPostal = "  "

	err := v.Validate(form)
	require.ErrorIs(t, err, checkout.ErrInvalidForm)

	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	fields := appErr.Details.(map[string]any)["fields"].(map[string]string)
	require.Equal(t, map[string]string{
		"nombre":       "min",
		"domicilio":    "required",
		"localidad":    "required",
		"provincia":    "required",
		"codigoPostal": "required",
	}, fields)
}
