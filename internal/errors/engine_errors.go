package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory represents different types of errors that can occur
type ErrorCategory string

const (
	// Critical errors that must stop the engine
	ErrorCategoryFatal  ErrorCategory = "FATAL"
	ErrorCategoryConfig ErrorCategory = "CONFIG"
	ErrorCategoryLogic  ErrorCategory = "LOGIC"

	// Errors isolated to one account's broker connection
	ErrorCategoryExecutor ErrorCategory = "EXECUTOR"
)

// EngineError is a categorized error with component/operation context.
type EngineError struct {
	Category   ErrorCategory
	Component  string
	Operation  string
	Message    string
	Underlying error
}

func (e *EngineError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Category, e.Component, e.Operation, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Category, e.Component, e.Operation, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Underlying
}

// IsFatal returns whether this error should stop the engine.
func (e *EngineError) IsFatal() bool {
	return e.Category == ErrorCategoryFatal || e.Category == ErrorCategoryConfig
}

// NewEngineError creates a new categorized engine error
func NewEngineError(category ErrorCategory, component, operation, message string, underlying error) *EngineError {
	return &EngineError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    message,
		Underlying: underlying,
	}
}

// WrapError wraps an existing error with engine error context
func WrapError(err error, category ErrorCategory, component, operation, message string) *EngineError {
	if err == nil {
		return nil
	}
	return &EngineError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    message,
		Underlying: err,
	}
}

// NewConfigError reports malformed startup configuration. Fatal: the
// engine must refuse to start.
func NewConfigError(component, operation, message string) *EngineError {
	return NewEngineError(ErrorCategoryConfig, component, operation, message, nil)
}

// NewExecutorError reports a broker-side failure. Isolated to the failing
// account, never propagated across accounts.
func NewExecutorError(accountID string, err error) *EngineError {
	return WrapError(err, ErrorCategoryExecutor, "orchestrator", "execute",
		"account "+accountID)
}

// ErrInvalidStopDistance means a stop on the wrong side of, or equal to,
// the entry price reached the sizer. That is a logic bug upstream and is
// raised loudly, never swallowed.
var ErrInvalidStopDistance = errors.New("invalid stop distance")

// RejectionReason identifies why a tick produced no trade. Rejections are
// expected control flow on the overwhelming majority of ticks, so they are
// values, not errors.
type RejectionReason string

const (
	ReasonDataInsufficient   RejectionReason = "DATA_INSUFFICIENT"
	ReasonSignalRejected     RejectionReason = "SIGNAL_REJECTED"
	ReasonBelowMinimumSize   RejectionReason = "BELOW_MINIMUM_SIZE"
	ReasonRiskLimitExceeded  RejectionReason = "RISK_LIMIT_EXCEEDED"
	ReasonSessionClosed      RejectionReason = "SESSION_CLOSED"
	ReasonDailyCapReached    RejectionReason = "DAILY_CAP_REACHED"
	ReasonPositionCapReached RejectionReason = "POSITION_CAP_REACHED"
	ReasonExposureCapReached RejectionReason = "EXPOSURE_CAP_REACHED"
	ReasonAccountHalted      RejectionReason = "ACCOUNT_HALTED"
)

// Rejection is a typed "no trade this tick" outcome.
type Rejection struct {
	Reason RejectionReason
	Detail string
}

func NewRejection(reason RejectionReason, detail string) *Rejection {
	return &Rejection{Reason: reason, Detail: detail}
}

func (r *Rejection) String() string {
	if r.Detail == "" {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

// Is reports whether the rejection carries the given reason. Nil-safe.
func (r *Rejection) Is(reason RejectionReason) bool {
	return r != nil && r.Reason == reason
}
