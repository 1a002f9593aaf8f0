package proxyerr

import (
	"errors"
	"io"
	"os"
	"syscall"
)

// Kind classifies a failure.
type Kind int

const (
	Unknown Kind = iota
	ProxyUnreachable
	Timeout
	ProtocolViolation
	ConnectionRefused
	NotAllowed
	NetworkUnreachable
	HostUnreachable
	TTLExpired
	Aborted
	// MalformedMessage is unrecoverable: retrying the same query will not help.
	MalformedMessage
	// AnswerIncomplete is recoverable ("try again").
	AnswerIncomplete
	// ListOverflow reports saturation of an alias or address list. It is never
	// returned as a failure of a lookup.
	ListOverflow
)

var kindNames = [...]string{
	Unknown:            "unknown failure",
	ProxyUnreachable:   "proxy unreachable",
	Timeout:            "timeout",
	ProtocolViolation:  "protocol violation",
	ConnectionRefused:  "connection refused",
	NotAllowed:         "connection not allowed",
	NetworkUnreachable: "network unreachable",
	HostUnreachable:    "host unreachable",
	TTLExpired:         "ttl expired",
	Aborted:            "connection aborted",
	MalformedMessage:   "malformed message",
	AnswerIncomplete:   "answer incomplete",
	ListOverflow:       "list overflow",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[Unknown]
	}
	return kindNames[k]
}

// Error makes a Kind usable as an errors.Is target.
func (k Kind) Error() string {
	return k.String()
}

// Error is a classified failure. Stage names the step that failed, such as
// "socks5 auth" or "dns answer".
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

// New returns an *Error of kind k at stage wrapping err, which may be nil.
func New(k Kind, stage string, err error) *Error {
	return &Error{Kind: k, Stage: stage, Err: err}
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Stage != "" {
		s = e.Stage + ": " + s
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is e's Kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// Errno returns the errno a failed connect(2) should report for e.
func (e *Error) Errno() syscall.Errno {
	switch e.Kind {
	case ProxyUnreachable:
		var errno syscall.Errno
		if errors.As(e.Err, &errno) {
			return errno
		}
		return syscall.ECONNREFUSED
	case Timeout, TTLExpired:
		return syscall.ETIMEDOUT
	case ConnectionRefused:
		return syscall.ECONNREFUSED
	case NotAllowed:
		return syscall.ECONNRESET
	case NetworkUnreachable:
		return syscall.ENETUNREACH
	case HostUnreachable:
		return syscall.EHOSTUNREACH
	default:
		return syscall.ECONNABORTED
	}
}

// FromIO classifies a transport error raised during stage. Expired deadlines
// become Timeout; short reads, resets and everything else become
// ProtocolViolation.
func FromIO(stage string, err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	if isTimeout(err) {
		return New(Timeout, stage, err)
	}
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return New(ProtocolViolation, stage, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// KindOf returns the Kind of err, or Unknown when err is not classified.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return Unknown
}

// Errno maps any error to an errno. Unclassified errors that already wrap an
// errno keep it.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Errno()
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	if isTimeout(err) {
		return syscall.ETIMEDOUT
	}
	return syscall.ECONNABORTED
}
