// Package agenterrors provides unified error handling for the agent core.
package agenterrors

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure the core's recovery policy keys off of.
type Code string

const (
	CodeNetworkTransient    Code = "NETWORK_TRANSIENT"
	CodeServerMaintenance   Code = "SERVER_MAINTENANCE"
	CodeSessionExpired      Code = "SESSION_EXPIRED"
	CodeStaleCsrf           Code = "STALE_CSRF"
	CodeLoginFailed         Code = "LOGIN_FAILED"
	CodeVacationMode        Code = "VACATION_MODE"
	CodeCaptchaUnsolvable   Code = "CAPTCHA_UNSOLVABLE"
	CodeLockAcquireTimeout  Code = "LOCK_ACQUIRE_TIMEOUT"
	CodeRouteUnexpectedResp Code = "ROUTE_UNEXPECTED_RESPONSE"
	CodeModuleCrash         Code = "MODULE_CRASH"
	CodeNotInteractive      Code = "NOT_INTERACTIVE"
	CodeAntiBotBlocked      Code = "ANTI_BOT_BLOCKED"
)

// AgentError is a structured error carrying a recovery-relevant Code.
type AgentError struct {
	Code    Code
	Message string
	Err     error
}

func (e *AgentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AgentError) Unwrap() error {
	return e.Err
}

// New creates an AgentError with no underlying cause.
func New(code Code, message string) *AgentError {
	return &AgentError{Code: code, Message: message}
}

// Wrap attaches a Code to an existing error.
func Wrap(code Code, message string, err error) *AgentError {
	return &AgentError{Code: code, Message: message, Err: err}
}

// Is reports whether err (or any error it wraps) carries the given Code.
func Is(err error, code Code) bool {
	var ae *AgentError
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

// CodeOf returns the Code carried by err, or "" if err isn't an AgentError.
func CodeOf(err error) Code {
	var ae *AgentError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

func NetworkTransient(err error) *AgentError {
	return Wrap(CodeNetworkTransient, "network call failed", err)
}

func ServerMaintenance() *AgentError {
	return New(CodeServerMaintenance, "server reports maintenance/backup in progress")
}

func SessionExpired() *AgentError {
	return New(CodeSessionExpired, "session expired")
}

func StaleCsrf() *AgentError {
	return New(CodeStaleCsrf, "server rejected stale action-request token")
}

func LoginFailed(reason string, err error) *AgentError {
	return Wrap(CodeLoginFailed, "login failed: "+reason, err)
}

func VacationMode() *AgentError {
	return New(CodeVacationMode, "account is in vacation mode")
}

func CaptchaUnsolvable() *AgentError {
	return New(CodeCaptchaUnsolvable, "captcha could not be solved within the attempt budget")
}

func LockAcquireTimeout(key string) *AgentError {
	return New(CodeLockAcquireTimeout, fmt.Sprintf("could not acquire fleet lock %q within timeout", key))
}

func RouteUnexpectedResponse(detail string) *AgentError {
	return New(CodeRouteUnexpectedResp, "unexpected game response: "+detail)
}

func ModuleCrash(module string, err error) *AgentError {
	return Wrap(CodeModuleCrash, "module "+module+" crashed", err)
}

func NotInteractive() *AgentError {
	return New(CodeNotInteractive, "prompt required but running non-interactively")
}

func AntiBotBlocked() *AgentError {
	return New(CodeAntiBotBlocked, "anti-bot handshake was blocked")
}
