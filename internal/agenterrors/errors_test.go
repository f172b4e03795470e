package agenterrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapAndUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(CodeNetworkTransient, "get failed", cause)

	require.Error(t, err)
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.Contains(t, err.Error(), "NETWORK_TRANSIENT")
	assert.Contains(t, err.Error(), "boom")
}

func TestIsAndCodeOf(t *testing.T) {
	err := StaleCsrf()
	assert.True(t, Is(err, CodeStaleCsrf))
	assert.False(t, Is(err, CodeSessionExpired))
	assert.Equal(t, CodeStaleCsrf, CodeOf(err))

	plain := errors.New("not an agent error")
	assert.False(t, Is(plain, CodeStaleCsrf))
	assert.Equal(t, Code(""), CodeOf(plain))
}

func TestConstructorsSetExpectedCodes(t *testing.T) {
	cases := []struct {
		err  error
		code Code
	}{
		{NetworkTransient(errors.New("x")), CodeNetworkTransient},
		{ServerMaintenance(), CodeServerMaintenance},
		{SessionExpired(), CodeSessionExpired},
		{StaleCsrf(), CodeStaleCsrf},
		{LoginFailed("bad creds", nil), CodeLoginFailed},
		{VacationMode(), CodeVacationMode},
		{CaptchaUnsolvable(), CodeCaptchaUnsolvable},
		{LockAcquireTimeout("acct:fast"), CodeLockAcquireTimeout},
		{RouteUnexpectedResponse("weird payload"), CodeRouteUnexpectedResp},
		{ModuleCrash("transport", errors.New("panic")), CodeModuleCrash},
		{NotInteractive(), CodeNotInteractive},
		{AntiBotBlocked(), CodeAntiBotBlocked},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.code), func(t *testing.T) {
			assert.Equal(t, tc.code, CodeOf(tc.err))
		})
	}
}

func TestErrorWithoutCause(t *testing.T) {
	err := New(CodeVacationMode, "account on vacation")
	assert.Nil(t, err.Unwrap())
	assert.Equal(t, "[VACATION_MODE] account on vacation", err.Error())
}
