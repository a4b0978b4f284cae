package user

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/darasahq/darasa/core"
)

var (
	roleTag  = "role"
	roleText = "invalid role"

	// password policy
	pwdMinLen     = 8
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceText   = "password must not contain whitespace"
	pwdNotAllNumText = "password cannot be entirely numeric"

	pwdComplexityText = "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character"
	specialRegex      = regexp.MustCompile("[^A-Za-z0-9]")

	pwdMaxSim      = .7
	pwdAttrSimText = "password cannot be similar to user attributes"
)

func init() {
	_ = core.Validate.RegisterValidation(roleTag, roleValidation)
	core.RegisterCustomTranslation(core.Validate, core.Translator, roleTag, roleText)
}

// roleValidation checks that the provided role is known.
func roleValidation(fl validator.FieldLevel) bool {
	return IsValidRole(fl.Field().String())
}

// CheckPasswordStrength applies the password policy:
// - minLen: 8
// - no whitespace
// - no all numeric
// - complexity: 1 upper, 1 lower, 1 digit, 1 special
// - no user attrs similarity
func CheckPasswordStrength(pwd string, attrs ...string) error {
	pwdErr := func(text string) error {
		return core.NewValidationError(nil, core.FieldError{Field: "new_password", Error: text})
	}

	pwdLen := len(pwd)
	if pwdLen < pwdMinLen {
		return pwdErr(pwdMinLenText)
	}

	var digitCount int
	var hasUpper, hasLower bool
	for _, char := range pwd {
		if unicode.IsSpace(char) {
			return pwdErr(pwdNoSpaceText)
		}
		if unicode.IsDigit(char) {
			digitCount++
		}
		if !hasUpper && unicode.IsUpper(char) {
			hasUpper = true
		}
		if !hasLower && unicode.IsLower(char) {
			hasLower = true
		}
	}

	if digitCount == pwdLen {
		return pwdErr(pwdNotAllNumText)
	}
	if !(hasUpper && hasLower && digitCount > 0 && specialRegex.MatchString(pwd)) {
		return pwdErr(pwdComplexityText)
	}

	for _, attr := range attrs {
		if attr == "" {
			continue
		}
		ratio := difflib.NewMatcher(
			strings.Split(strings.ToLower(pwd), ""),
			strings.Split(strings.ToLower(attr), ""),
		).QuickRatio()
		if ratio >= pwdMaxSim {
			return pwdErr(pwdAttrSimText)
		}
	}
	return nil
}
