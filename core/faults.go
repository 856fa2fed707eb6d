package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// CategoryCancelled marks faults raised when the user or caller abandoned an
// operation. It is not one of the go-errors built-in categories.
const CategoryCancelled goerrors.Category = "cancelled"

const (
	FaultCodeUserCancel            = "user_cancel"
	FaultCodeTimeout               = "timeout"
	FaultCodeUnknown               = "unknown_error"
	FaultCodePanic                 = "unhandled_panic"
	FaultCodeInteractiveInProgress = "interactive_operation_in_progress"
	FaultCodeInvalidCommand        = "invalid_command"
)

var ErrInteractiveInProgress = errors.New("core: an interactive command is already in progress")

// NewServiceFault builds a fault returned by the identity service. status is
// the HTTP status of the response (0 when the transport never produced one)
// and code is the protocol error code, for example invalid_grant.
func NewServiceFault(status int, code string, message string) *goerrors.Error {
	code = strings.TrimSpace(code)
	if code == "" {
		code = FaultCodeUnknown
	}
	if strings.TrimSpace(message) == "" {
		message = "identity service returned " + code
	}
	fault := goerrors.New(message, goerrors.CategoryExternal).WithTextCode(code)
	fault.Code = status
	return fault
}

// NewLocalFault builds a client-side fault that never reached the service.
func NewLocalFault(code string, message string) *goerrors.Error {
	code = strings.TrimSpace(code)
	if code == "" {
		code = FaultCodeUnknown
	}
	if strings.TrimSpace(message) == "" {
		message = code
	}
	return goerrors.New(message, goerrors.CategoryOperation).WithTextCode(code)
}

func NewUserCancel(message string) *goerrors.Error {
	if strings.TrimSpace(message) == "" {
		message = "operation cancelled by user"
	}
	return goerrors.New(message, CategoryCancelled).WithTextCode(FaultCodeUserCancel)
}

func NewTimeout(waited time.Duration) *goerrors.Error {
	return goerrors.New(
		fmt.Sprintf("result not available after %s", waited),
		goerrors.CategoryOperation,
	).WithTextCode(FaultCodeTimeout).WithCode(http.StatusGatewayTimeout)
}

func newInteractiveInProgressFault() *goerrors.Error {
	return goerrors.Wrap(ErrInteractiveInProgress, goerrors.CategoryConflict, ErrInteractiveInProgress.Error()).
		WithTextCode(FaultCodeInteractiveInProgress)
}

// NewInvalidCommand reports a command that cannot be dispatched.
func NewInvalidCommand(field string, message string) *goerrors.Error {
	return goerrors.NewValidation(
		"invalid command",
		goerrors.FieldError{Field: field, Message: message},
	).WithTextCode(FaultCodeInvalidCommand)
}

// wrapUnknownFault converts a controller error without a rich envelope into a
// local fault, keeping the source for errors.Is checks.
func wrapUnknownFault(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich
	}
	fault := goerrors.Wrap(err, goerrors.CategoryOperation, err.Error())
	return fault.WithTextCode(FaultCodeUnknown)
}

func panicFault(recovered any) *goerrors.Error {
	if err, ok := recovered.(error); ok {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "command panicked").
			WithTextCode(FaultCodePanic)
	}
	return goerrors.New(fmt.Sprintf("command panicked: %v", recovered), goerrors.CategoryInternal).
		WithTextCode(FaultCodePanic)
}

// FaultCode returns the protocol or local error code carried by err.
func FaultCode(err error) string {
	if err == nil {
		return ""
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		if code := strings.TrimSpace(rich.TextCode); code != "" {
			return code
		}
		return string(rich.Category)
	}
	if errors.Is(err, context.Canceled) {
		return FaultCodeUserCancel
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FaultCodeTimeout
	}
	return FaultCodeUnknown
}

func IsServiceFault(err error) bool {
	return goerrors.IsCategory(err, goerrors.CategoryExternal)
}

// ServiceStatus returns the HTTP status of a service fault. ok is false for
// any other fault.
func ServiceStatus(err error) (status int, ok bool) {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryExternal {
		return 0, false
	}
	return rich.Code, true
}

func IsUserCancel(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.IsCategory(err, CategoryCancelled) {
		return true
	}
	return errors.Is(err, context.Canceled)
}

func IsTimeout(err error) bool {
	return FaultCode(err) == FaultCodeTimeout
}
