package user

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/darasa/core"
)

var (
	allRolesTag  = "allroles"
	allRolesText = "invalid roles"

	usernameOrEmailTag  = "username_or_email"
	usernameOrEmailText = "one of username or email is required"

	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = "password cannot be entirely numeric"

	pwdComplexityTag  = "pwdcplx"
	pwdComplexityText = "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character"
	specialRegex      = regexp.MustCompile("[^A-Za-z0-9]")

	pwdMaxSim      = .7
	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = "password cannot be similar to user attributes"
)

func init() {
	// register validators
	_ = core.Validate.RegisterValidation(allRolesTag, allRolesValidation)
	core.RegisterCustomTranslation(core.Validate, core.Translator, allRolesTag, allRolesText)

	core.Validate.RegisterStructValidation(userStructValidation, NewUser{})
	core.RegisterCustomTranslation(core.Validate, core.Translator, usernameOrEmailTag, usernameOrEmailText)
	core.RegisterCustomTranslation(core.Validate, core.Translator, pwdMinLenTag, pwdMinLenText)
	core.RegisterCustomTranslation(core.Validate, core.Translator, pwdNoSpaceTag, pwdNoSpaceText)
	core.RegisterCustomTranslation(core.Validate, core.Translator, pwdNotAllNumTag, pwdNotAllNumText)
	core.RegisterCustomTranslation(core.Validate, core.Translator, pwdComplexityTag, pwdComplexityText)
	core.RegisterCustomTranslation(core.Validate, core.Translator, pwdAttrSimTag, pwdAttrSimText)
}

// Custom Validators

// allRolesValidation checks that provided user roles are all in AllRoles
func allRolesValidation(fl validator.FieldLevel) bool {
	if roles, ok := fl.Field().Interface().([]string); ok {
		sort.Strings(AllRoles)
		for _, role := range roles {
			if idx := sort.SearchStrings(AllRoles, role); idx < len(AllRoles) {
				if match := AllRoles[idx]; role != match {
					return false
				}
			} else {
				return false
			}
		}
		return true
	}
	return false
}

// userStructValidation does struct level validation on the NewUser struct.
func userStructValidation(sl validator.StructLevel) {
	if nu, ok := sl.Current().Interface().(NewUser); ok {
		if len(nu.Username) == 0 && len(nu.Email) == 0 {
			sl.ReportError(nu.Username, "username", "Username", usernameOrEmailTag, "")
			sl.ReportError(nu.Email, "email", "Email", usernameOrEmailTag, "")
		}
		for tag := range validatePassword(nu.Password, nu.Name, nu.Username, nu.Email) {
			sl.ReportError(nu.Password, "password", "Password", tag, "")
		}
	}
}

// validatePassword applies the password policy and returns the set of
// violated tags.
func validatePassword(pwd string, attrs ...string) map[string]bool {
	failed := make(map[string]bool)

	if len(pwd) < pwdMinLen {
		failed[pwdMinLenTag] = true
	}
	if strings.IndexFunc(pwd, unicode.IsSpace) >= 0 {
		failed[pwdNoSpaceTag] = true
	}

	var hasUpper, hasLower, hasDigit, allNum bool
	allNum = true
	for _, r := range pwd {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
			allNum = false
		case unicode.IsLower(r):
			hasLower = true
			allNum = false
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			allNum = false
		}
	}
	if allNum && pwd != "" {
		failed[pwdNotAllNumTag] = true
	}
	if !(hasUpper && hasLower && hasDigit && specialRegex.MatchString(pwd)) {
		failed[pwdComplexityTag] = true
	}

	lowPwd := strings.ToLower(pwd)
	for _, attr := range attrs {
		if attr == "" {
			continue
		}
		matcher := difflib.NewMatcher(strings.Split(strings.ToLower(attr), ""), strings.Split(lowPwd, ""))
		if matcher.Ratio() > pwdMaxSim {
			failed[pwdAttrSimTag] = true
			break
		}
	}
	return failed
}

// validatePasswordString is validatePassword as a plain error, for callers
// outside struct validation (admin CLI password resets).
func validatePasswordString(pwd string, attrs ...string) error {
	failed := validatePassword(pwd, attrs...)
	if len(failed) == 0 {
		return nil
	}
	texts := map[string]string{
		pwdMinLenTag:     pwdMinLenText,
		pwdNoSpaceTag:    pwdNoSpaceText,
		pwdNotAllNumTag:  pwdNotAllNumText,
		pwdComplexityTag: pwdComplexityText,
		pwdAttrSimTag:    pwdAttrSimText,
	}
	flds := make([]core.FieldError, 0, len(failed))
	for tag := range failed {
		flds = append(flds, core.FieldError{Field: "password", Error: texts[tag]})
	}
	return core.NewValidationError(nil, flds...)
}
