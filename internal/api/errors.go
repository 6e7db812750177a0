package api

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a gateway call did not succeed
type FailureKind int

const (
	// Network means the request never produced a response: unreachable
	// host, timeout, canceled context.
	Network FailureKind = iota
	// Server means a response arrived but was not usable: non-2xx status
	// or a body that could not be decoded.
	Server
)

func (k FailureKind) String() string {
	switch k {
	case Network:
		return "network"
	case Server:
		return "server"
	default:
		return "unknown"
	}
}

// Failure is the only error type returned by Client calls
type Failure struct {
	Kind       FailureKind
	Op         string // "ask", "upload", "list documents", "health check"
	StatusCode int    // set for Server failures caused by an HTTP status
	Body       string // truncated response body, for diagnostics
	Err        error
}

func (f *Failure) Error() string {
	switch {
	case f.StatusCode != 0:
		return fmt.Sprintf("%s: %s failure: status %d", f.Op, f.Kind, f.StatusCode)
	case f.Err != nil:
		return fmt.Sprintf("%s: %s failure: %v", f.Op, f.Kind, f.Err)
	default:
		return fmt.Sprintf("%s: %s failure", f.Op, f.Kind)
	}
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// IsNetwork reports whether err is a network Failure
func IsNetwork(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == Network
}

// IsServer reports whether err is a server Failure
func IsServer(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == Server
}

func networkFailure(op string, err error) *Failure {
	return &Failure{Kind: Network, Op: op, Err: err}
}

func serverFailure(op string, err error) *Failure {
	return &Failure{Kind: Server, Op: op, Err: err}
}

func statusFailure(op string, code int, body string) *Failure {
	return &Failure{Kind: Server, Op: op, StatusCode: code, Body: body}
}
