package validator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type signupPayload struct {
	Username string `json:"username" validate:"required,min=3,max=32,username"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=128"`
}

func TestValidateStructSuccess(t *testing.T) {
	payload := signupPayload{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "secret1",
	}

	require.NoError(t, ValidateStruct(payload))
}

func TestValidateStructFailures(t *testing.T) {
	payload := signupPayload{
		Username: "al",
		Email:    "invalid",
		Password: "short",
	}

	err := ValidateStruct(payload)
	require.Error(t, err)

	vErrs, ok := err.(ValidationErrors)
	require.True(t, ok)
	require.Len(t, vErrs, 3)

	fields := make(map[string]string)
	for _, v := range vErrs {
		fields[v.Field] = v.Tag
	}
	require.Equal(t, "min", fields["username"])
	require.Equal(t, "email", fields["email"])
	require.Equal(t, "min", fields["password"])
}

func TestUsernameRule(t *testing.T) {
	type payload struct {
		Username string `json:"username" validate:"username"`
	}

	for _, name := range []string{"alice", "van.helsing", "guard_test", "a-b-c", "A1"} {
		require.NoError(t, ValidateStruct(payload{Username: name}), name)
	}
	for _, name := range []string{"bad name", "semi;colon", ".leading", "trailing.", "ünïcode"} {
		require.Error(t, ValidateStruct(payload{Username: name}), name)
	}
}

func TestValidationErrorsMessage(t *testing.T) {
	errs := ValidationErrors{{Field: "password", Tag: "min", Param: "6"}}
	require.Equal(t, "password failed on min=6", errs.Error())
}
