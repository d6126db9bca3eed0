package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "with code",
			err:  &Error{Type: ErrorTypeSubmission, Op: "update_followers", Code: 502, Message: "bad gateway"},
			want: "submission error in update_followers (code 502): bad gateway",
		},
		{
			name: "wrapped cause",
			err:  &Error{Type: ErrorTypeNavigation, Op: "navigate", Err: fmt.Errorf("net::ERR_TIMED_OUT")},
			want: "navigation error in navigate: net::ERR_TIMED_OUT",
		},
		{
			name: "message and cause",
			err:  &Error{Type: ErrorTypeAuth, Op: "login", Message: "form missing", Err: fmt.Errorf("timeout")},
			want: "auth error in login: form missing: timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestTypeOfThroughWrapping(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := fmt.Errorf("account 5: %w", Wrap(ErrorTypeSubmission, "save_posts", cause))

	assert.Equal(t, ErrorTypeSubmission, TypeOf(err))
	assert.True(t, Is(err, ErrorTypeSubmission))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrorTypeUnknown, TypeOf(cause))
	assert.False(t, Is(nil, ErrorTypeSubmission))
	assert.Nil(t, Wrap(ErrorTypeAuth, "login", nil))
}

func TestIsFatal(t *testing.T) {
	fatal := []ErrorType{ErrorTypeStartupConfig, ErrorTypeSessionInit, ErrorTypeAuth}
	contained := []ErrorType{ErrorTypeNavigation, ErrorTypeExtraction, ErrorTypeSubmission, ErrorTypeDiagnostics, ErrorTypeUnknown}

	for _, et := range fatal {
		assert.True(t, IsFatal(et), et)
	}
	for _, et := range contained {
		assert.False(t, IsFatal(et), et)
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(New(ErrorTypeStartupConfig, "config", "INSTAGRAM_USERNAME must be set")))
}
