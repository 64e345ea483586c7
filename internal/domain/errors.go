package domain

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"
)

// ErrorKind tags an error with the failure category it belongs to. The kind
// is set where the error is raised and drives healing strategy selection.
type ErrorKind string

const (
	KindUnknown      ErrorKind = "unknown"
	KindSyntax       ErrorKind = "syntax"
	KindAPIStatus    ErrorKind = "api_status"
	KindRateLimit    ErrorKind = "rate_limit"
	KindAuth         ErrorKind = "auth"
	KindTimeout      ErrorKind = "timeout"
	KindPermission   ErrorKind = "permission"
	KindCircuitOpen  ErrorKind = "circuit_open"
	KindNotFound     ErrorKind = "not_found"
	KindInvalidInput ErrorKind = "invalid_input"
	KindDependency   ErrorKind = "dependency"
	KindInternal     ErrorKind = "internal"
)

var (
	ErrNotFound         = errors.New("resource not found")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrTimeout          = errors.New("operation timeout")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnknownTool      = errors.New("unknown tool")
	ErrCircuitOpen      = errors.New("circuit breaker is open")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidGraph     = errors.New("invalid execution graph")
	ErrUnknownNodeType  = errors.New("unknown node type")
	ErrDependencyFailed = errors.New("dependency failed")
	ErrAllRoutesFailed  = errors.New("all generation routes failed")
	ErrClosed           = errors.New("store closed")
)

type KindError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *KindError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *KindError) Unwrap() error {
	return e.Err
}

func NewKindError(kind ErrorKind, op string, err error) *KindError {
	return &KindError{
		Kind: kind,
		Op:   op,
		Err:  err,
	}
}

// KindOf reports the kind of err. Explicitly tagged errors win; otherwise
// well-known sentinels are mapped, and anything else is KindUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var kindErr *KindError
	if errors.As(err, &kindErr) && kindErr.Kind != "" {
		return kindErr.Kind
	}

	var panicErr *PanicError
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return KindPermission
	case errors.Is(err, ErrCircuitOpen):
		return KindCircuitOpen
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrUnknownTool), errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrDependencyFailed):
		return KindDependency
	case errors.As(err, &panicErr):
		return KindInternal
	}
	return KindUnknown
}

type PermissionError struct {
	Tool   string
	Reason string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Tool)
}

func (e *PermissionError) Unwrap() error {
	return ErrPermissionDenied
}

func NewPermissionError(tool, reason string) *PermissionError {
	return &PermissionError{Tool: tool, Reason: reason}
}

type ToolError struct {
	Tool string
	Op   string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool[%s] %s: %v", e.Tool, e.Op, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

func NewToolError(tool, op string, err error) *ToolError {
	return &ToolError{
		Tool: tool,
		Op:   op,
		Err:  err,
	}
}

type ToolRegistrationError struct {
	ToolName string
	Reason   string
}

func (e *ToolRegistrationError) Error() string {
	return fmt.Sprintf("failed to register tool %s: %s", e.ToolName, e.Reason)
}

type GraphValidationError struct {
	NodeID string
	Reason string
}

func (e *GraphValidationError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("invalid execution graph: %s", e.Reason)
	}
	return fmt.Sprintf("invalid execution graph: node %s: %s", e.NodeID, e.Reason)
}

func (e *GraphValidationError) Unwrap() error {
	return ErrInvalidGraph
}

type DependencyFailedError struct {
	NodeID     string
	Dependency string
}

func (e *DependencyFailedError) Error() string {
	return fmt.Sprintf("node %s skipped: dependency %s failed", e.NodeID, e.Dependency)
}

func (e *DependencyFailedError) Unwrap() error {
	return ErrDependencyFailed
}

type PanicError struct {
	NodeID      string
	PanicValue  interface{}
	StackTrace  string
	RecoveredAt time.Time
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in node %s: %v", e.NodeID, e.PanicValue)
}

func NewPanicError(nodeID string, panicValue interface{}) *PanicError {
	return &PanicError{
		NodeID:      nodeID,
		PanicValue:  panicValue,
		StackTrace:  string(debug.Stack()),
		RecoveredAt: time.Now(),
	}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsTimeout(err error) bool {
	return KindOf(err) == KindTimeout
}

func IsPermission(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

func IsUnknownTool(err error) bool {
	return errors.Is(err, ErrUnknownTool)
}

func IsInvalidGraph(err error) bool {
	return errors.Is(err, ErrInvalidGraph)
}

func IsInvalidConfig(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}
