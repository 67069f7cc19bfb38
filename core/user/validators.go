package user

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/rapor/core"
)

var (
	allRolesTag  = "allroles"
	allRolesText = "invalid roles"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(allRolesTag, allRolesValidation)
	core.RegisterCustomTranslation(validate, translator, allRolesTag, allRolesText)
}

// allRolesValidation checks that every role in the slice is a known role.
func allRolesValidation(fl validator.FieldLevel) bool {
	roles, ok := fl.Field().Interface().([]string)
	if !ok {
		return false
	}
	for _, role := range roles {
		if !IsValidRole(role) {
			return false
		}
	}
	return true
}
