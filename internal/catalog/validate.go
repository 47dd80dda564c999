package catalog

import (
	"regexp"
	"strings"

	"github.com/farellandr/cashback/internal/apperr"
	"github.com/farellandr/cashback/internal/validation"
)

var couponCode = regexp.MustCompile(`^[A-Z0-9]{3,32}$`)

func validateStruct(s interface{}) error {
	return validation.Struct(s)
}

// NormalizeCode upper-cases a coupon code and checks its alphabet.
func NormalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !couponCode.MatchString(code) {
		return "", apperr.Validation("code", "must be 3-32 uppercase letters or digits")
	}
	return code, nil
}
