// Package execution wraps agent invocations with failure classification,
// bounded retry and a durable per-attempt execution log.
package execution

import (
	"errors"
	"fmt"
)

// Kind is the retry classification of an agent failure.
type Kind int

// Kind constants
const (
	KindTransient Kind = iota + 1
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against any *AgentError of the same kind.
var (
	ErrTransient = errors.New("transient agent failure")
	ErrFatal     = errors.New("fatal agent failure")
)

// AgentError is a classified agent failure.
type AgentError struct {
	Kind  Kind
	Agent string
	Err   error
}

// NewTransient tags err as retry-eligible.
func NewTransient(agent string, err error) *AgentError {
	return &AgentError{Kind: KindTransient, Agent: agent, Err: err}
}

// NewFatal tags err as not retryable.
func NewFatal(agent string, err error) *AgentError {
	return &AgentError{Kind: KindFatal, Agent: agent, Err: err}
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("%s failure in agent %s: %v", e.Kind, e.Agent, e.Err)
}

func (e *AgentError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrTransient) and errors.Is(err, ErrFatal) match by kind.
func (e *AgentError) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Kind == KindTransient
	case ErrFatal:
		return e.Kind == KindFatal
	}
	return false
}

// Retryable reports whether another attempt may succeed.
func (e *AgentError) Retryable() bool {
	return e.Kind == KindTransient
}

// SerializationError reports agent output that cannot be encoded or decoded
// into the stage payload. It is always fatal.
type SerializationError struct {
	Agent string
	Err   error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("failed to serialize %s output: %v", e.Agent, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}
