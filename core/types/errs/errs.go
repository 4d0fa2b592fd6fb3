// Package errs implements the rollup's error taxonomy (§7): a Kind and a
// wrapping error type, so callers can dispatch on an error's category
// without string-matching. Components return their own sentinel errors
// unwrapped; cmd/quids and rollup.WrapError apply the Kind. The
// BatchProcessor does not retry or back off on IOFailure errors.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies which of the §7 error categories an error belongs to.
type Kind uint8

const (
	// InvalidTransaction: failed invariants, bad signature, malformed fields.
	InvalidTransaction Kind = iota + 1
	// StateRule: nonce mismatch, insufficient balance.
	StateRule
	// ProofFailure: ZK verify below thresholds, fidelity/confidence insufficient.
	ProofFailure
	// ConsensusFailure: insufficient witness signatures within timeout.
	ConsensusFailure
	// Overload: queue full, admission rejected.
	Overload
	// IOFailure: persistence or network subsystem error.
	IOFailure
	// Fatal: invariant violation inside core; causes process abort.
	Fatal
)

// String returns the taxonomy name of the kind.
func (k Kind) String() string {
	switch k {
	case InvalidTransaction:
		return "InvalidTransaction"
	case StateRule:
		return "StateRule"
	case ProofFailure:
		return "ProofFailure"
	case ConsensusFailure:
		return "ConsensusFailure"
	case Overload:
		return "Overload"
	case IOFailure:
		return "IOFailure"
	case Fatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// QuidsError wraps an underlying error with its taxonomy Kind and
// optional structured fields for logging.
type QuidsError struct {
	Kind   Kind
	Err    error
	Fields map[string]interface{}
}

func (e *QuidsError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *QuidsError) Unwrap() error { return e.Err }

// Wrap produces a *QuidsError of the given kind around err. Returns nil
// if err is nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &QuidsError{Kind: kind, Err: err}
}

// WithFields attaches structured fields to a QuidsError (or wraps err
// fresh with a Fatal kind if it isn't already one, since only Fatal
// errors are expected to need ad-hoc diagnostic fields at the call site).
func WithFields(err error, fields map[string]interface{}) error {
	var qe *QuidsError
	if errors.As(err, &qe) {
		qe.Fields = fields
		return qe
	}
	return &QuidsError{Kind: Fatal, Err: err, Fields: fields}
}

// KindOf extracts the Kind from err, or 0 if err is not (or does not
// wrap) a *QuidsError.
func KindOf(err error) Kind {
	var qe *QuidsError
	if errors.As(err, &qe) {
		return qe.Kind
	}
	return 0
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
