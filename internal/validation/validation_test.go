package validation

import (
	"errors"
	"testing"

	"github.com/farellandr/cashback/internal/apperr"
)

type signup struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Internal string `json:"-"`
}

func TestStructNamesJSONField(t *testing.T) {
	tests := []struct {
		in    signup
		field string
	}{
		{signup{Password: "long-enough"}, "email"},
		{signup{Email: "nope", Password: "long-enough"}, "email"},
		{signup{Email: "a@b.co", Password: "short"}, "password"},
	}
	for _, tt := range tests {
		err := Struct(tt.in)
		if !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("Struct(%+v) = %v", tt.in, err)
		}
		if got := apperr.FieldOf(err); got != tt.field {
			t.Errorf("field = %q, want %q", got, tt.field)
		}
	}
	if err := Struct(signup{Email: "a@b.co", Password: "long-enough"}); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}
}

func TestFromValidatorNonValidatorError(t *testing.T) {
	err := FromValidator(errors.New("unexpected EOF"))
	if apperr.KindOf(err) != apperr.KindValidation || apperr.FieldOf(err) != "" {
		t.Fatalf("got %v", err)
	}
}
