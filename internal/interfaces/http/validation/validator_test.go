package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangmul/emotion-tracker/internal/domain/entry"
	apperrors "github.com/wangmul/emotion-tracker/internal/errors"
)

type credentials struct {
	Email    string `json:"email" validate:"required,notblank,email"`
	Password string `json:"password" validate:"required,min=6"`
}

func TestValidate(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name   string
		input  interface{}
		fields map[string]string
	}{
		{"valid", credentials{Email: "a@b.co", Password: "secret1"}, nil},
		{"blank email", credentials{Email: "   ", Password: "secret1"}, map[string]string{"email": "This field is required"}},
		{"bad email and short password", credentials{Email: "nope", Password: "x"}, map[string]string{
			"email":    "Must be a valid email address",
			"password": "Must be at least 6 characters",
		}},
		{"too many tasks", entry.StepTwoInput{MustDoTasks: []string{"a", "b", "c", "d"}}, map[string]string{
			"mustDoTasks": "Must be at most 3",
		}},
		{"long task text", entry.StepTwoInput{WantedButSkippedTasks: []string{"", strings.Repeat("x", 5000)}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.input)
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			ue, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.ErrorTypeValidation, ue.Type)
			got := map[string]string{}
			for _, f := range ue.Fields {
				got[f.Field] = f.Message
			}
			assert.Equal(t, tt.fields, got)
		})
	}
}

func TestGetValidatorIsShared(t *testing.T) {
	assert.Same(t, GetValidator(), GetValidator())
}
