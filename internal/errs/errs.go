package errs

import (
	"errors"
	"fmt"
)

// Kind 错误类别
type Kind string

const (
	InvalidObservation  Kind = "invalid_observation"
	NumericOverflow     Kind = "numeric_overflow"
	InsufficientHistory Kind = "insufficient_history"
	PhaseTimeout        Kind = "phase_timeout"
	DetectorPoisoned    Kind = "detector_poisoned"
	Misconfiguration    Kind = "misconfiguration"
)

// 哨兵错误，配合 errors.Is 判断类别
var (
	ErrInvalidObservation  = &Error{Kind: InvalidObservation}
	ErrNumericOverflow     = &Error{Kind: NumericOverflow}
	ErrInsufficientHistory = &Error{Kind: InsufficientHistory}
	ErrPhaseTimeout        = &Error{Kind: PhaseTimeout}
	ErrDetectorPoisoned    = &Error{Kind: DetectorPoisoned}
	ErrMisconfiguration    = &Error{Kind: Misconfiguration}
)

// Error 带类别的领域错误
type Error struct {
	Kind Kind
	Op   string // 出错的操作，如 "ingest.validate"
	Err  error
}

// New 创建带类别的错误
func New(kind Kind, op string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap 为已有错误附加类别
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 同类别即视为匹配
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf 提取错误链上的类别，无类别时返回空字符串
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
