// Package ckerr defines the typed error kinds shared by every component of
// the key-recovery engine (transport, attacks, orchestrator, I/O).
//
// The engine never invents a new untyped error for a condition already
// named here: callers branch on kind with errors.Is/errors.As rather than
// string-matching messages, mirroring how the teacher library's device and
// transport layers expose sentinel errors plus a wrapping *TransportError.
package ckerr

import (
	"errors"
	"fmt"
)

// Kind enumerates the error categories a caller of this engine must be able
// to branch on.
type Kind int

const (
	KindUnknown Kind = iota
	KindNoTag
	KindSelectError
	KindAuthFail
	KindNotVulnerable
	KindTimeout
	KindUserAbort
	KindFileError
	KindInvalidArg
	KindOutOfMemory
	KindPartial
)

func (k Kind) String() string {
	switch k {
	case KindNoTag:
		return "no_tag"
	case KindSelectError:
		return "select_error"
	case KindAuthFail:
		return "auth_fail"
	case KindNotVulnerable:
		return "not_vulnerable"
	case KindTimeout:
		return "timeout"
	case KindUserAbort:
		return "user_abort"
	case KindFileError:
		return "file_error"
	case KindInvalidArg:
		return "invalid_arg"
	case KindOutOfMemory:
		return "out_of_memory"
	case KindPartial:
		return "partial"
	default:
		return "unknown"
	}
}

// Sentinel errors for conditions that carry no extra payload. Wrap these
// with fmt.Errorf("...: %w", ErrX) at call sites that need more context;
// errors.Is still matches through the wrap.
var (
	ErrNoTag       = errors.New("no tag present")
	ErrSelect      = errors.New("anticollision/select failed")
	ErrAuthFail    = errors.New("authentication failed")
	ErrTimeout     = errors.New("device did not respond in time")
	ErrUserAbort   = errors.New("cancelled by user")
	ErrInvalidArg  = errors.New("invalid argument")
	ErrOutOfMemory = errors.New("allocation failed")
	ErrNoSamples   = errors.New("acquisition produced no usable nonce samples")
)

// NotVulnerableWhy names the attack and reason an attack declined to run or
// could not recover a key, per spec section 4's NotVulnerable{Darkside|
// Nested|Static} family.
type NotVulnerableWhy int

const (
	WhyUnspecified NotVulnerableWhy = iota
	WhyNoNack
	WhyPrngUnpredictable
	WhyPrngAnomalous
	WhyNestedExhausted
	WhyStaticMismatch
)

func (w NotVulnerableWhy) String() string {
	switch w {
	case WhyNoNack:
		return "tag does not NACK on bad auth — not darkside-vulnerable"
	case WhyPrngUnpredictable:
		return "PRNG is hardened"
	case WhyPrngAnomalous:
		return "PRNG looked weak but produced an unexpected pattern"
	case WhyNestedExhausted:
		return "no plausible nested candidate survived retries"
	case WhyStaticMismatch:
		return "static-nonce relation did not match this tag"
	default:
		return "not vulnerable"
	}
}

// NotVulnerableError reports that an attack is inapplicable to the current
// tag; the orchestrator treats this as a routing signal, not a failure.
type NotVulnerableError struct {
	Attack string
	Why    NotVulnerableWhy
}

func (e *NotVulnerableError) Error() string {
	return fmt.Sprintf("%s: %s", e.Attack, e.Why)
}

func (*NotVulnerableError) Kind() Kind { return KindNotVulnerable }

// FileErrorReason distinguishes the ways a dump/dictionary/nonces file can
// be unusable.
type FileErrorReason int

const (
	FileNotFound FileErrorReason = iota
	FileMalformed
	FileWrongSize
)

func (r FileErrorReason) String() string {
	switch r {
	case FileNotFound:
		return "not found"
	case FileMalformed:
		return "malformed"
	case FileWrongSize:
		return "wrong size"
	default:
		return "unknown"
	}
}

// FileError wraps an I/O failure with its reason and the offending path.
type FileError struct {
	Path   string
	Reason FileErrorReason
	Err    error
}

func (e *FileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

func (e *FileError) Unwrap() error { return e.Err }
func (*FileError) Kind() Kind      { return KindFileError }

// PartialError reports that a run finished with some keys still unknown.
// Table is left as `any` here (a keytable.Table) to avoid an import cycle;
// callers in package autopwn use the concrete type directly instead of
// this error when they already have the table in hand — this exists for
// call sites that only have an error to propagate.
type PartialError struct {
	Table      any
	FoundCount int
	TotalCount int
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("partial recovery: %d/%d keys found", e.FoundCount, e.TotalCount)
}

func (*PartialError) Kind() Kind { return KindPartial }

// kinder is implemented by every typed error in this package so KindOf can
// recover a Kind without a type switch at every call site.
type kinder interface {
	Kind() Kind
}

// KindOf classifies err against the sentinels and typed errors above. It
// returns KindUnknown for anything it doesn't recognize.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var k kinder
	if errors.As(err, &k) {
		return k.Kind()
	}
	switch {
	case errors.Is(err, ErrNoTag):
		return KindNoTag
	case errors.Is(err, ErrSelect):
		return KindSelectError
	case errors.Is(err, ErrAuthFail):
		return KindAuthFail
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrUserAbort):
		return KindUserAbort
	case errors.Is(err, ErrInvalidArg):
		return KindInvalidArg
	case errors.Is(err, ErrOutOfMemory):
		return KindOutOfMemory
	default:
		return KindUnknown
	}
}

// IsRetryable reports whether a transport-level failure is worth retrying.
// Timeouts are; authentication failures, user aborts and invalid arguments
// are not — retrying them wastes a round trip the engine's single-command-
// in-flight transport can't spare.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTimeout:
		return true
	default:
		return false
	}
}
