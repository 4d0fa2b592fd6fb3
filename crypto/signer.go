// Package crypto implements the external signing oracle (§6): sign/verify
// over transaction hashes, with the default scheme selectable per
// transaction class between classical Ed25519 and a post-quantum scheme
// identifier reserved for a future Dilithium5/Falcon512 backend.
package crypto

import (
	"crypto/ed25519"
	"errors"

	"github.com/quids/quids/core/types"
)

// Scheme identifies the signature algorithm used for a transaction class.
// The spec leaves the concrete post-quantum library unspecified (§1); this
// package only fixes the *selector* and provides the Ed25519 backend,
// matching the teacher's PQSecurityLevel pattern (consensus/pq_chain_security.go)
// of tracking enforcement without hard-coding a single PQ library choice.
type Scheme uint8

const (
	// SchemeEd25519 is the default classical signing scheme.
	SchemeEd25519 Scheme = iota
	// SchemeDilithium5 identifies NIST ML-DSA-87 (Dilithium5) signatures.
	// No concrete backend ships in this module; selecting this scheme
	// requires registering an Oracle via RegisterScheme.
	SchemeDilithium5
	// SchemeFalcon512 identifies Falcon-512 signatures. Same caveat as
	// SchemeDilithium5.
	SchemeFalcon512
)

// Oracle is the external signing oracle interface (§6): sign a message
// with raw private-key bytes, verify a signature against raw public-key
// bytes.
type Oracle interface {
	Sign(privateKey, message []byte) ([]byte, error)
	Verify(publicKey, message, sig []byte) bool
}

// Signing oracle errors.
var (
	ErrUnknownScheme  = errors.New("crypto: no oracle registered for scheme")
	ErrMalformedKey   = errors.New("crypto: malformed private key material")
	ErrMalformedInput = errors.New("crypto: malformed signature or public key")
)

// ed25519Oracle is the default Scheme-Ed25519 oracle backed by stdlib
// crypto/ed25519. Stdlib use here is an intentional, justified exception
// (see DESIGN.md): Ed25519 is a settled standard-library primitive with
// no idiomatic third-party replacement in the example pack.
type ed25519Oracle struct{}

func (ed25519Oracle) Sign(privateKey, message []byte) ([]byte, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, ErrMalformedKey
	}
	return ed25519.Sign(ed25519.PrivateKey(privateKey), message), nil
}

func (ed25519Oracle) Verify(publicKey, message, sig []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), message, sig)
}

// registry maps a Scheme to its Oracle implementation. Populated with the
// default Ed25519 oracle; additional schemes are wired with
// RegisterScheme by the embedder once a PQ backend is chosen.
var registry = map[Scheme]Oracle{
	SchemeEd25519: ed25519Oracle{},
}

// RegisterScheme installs (or replaces) the Oracle used for scheme.
func RegisterScheme(scheme Scheme, oracle Oracle) {
	registry[scheme] = oracle
}

// SignTransaction signs tx's hash with the given scheme and private key,
// populating tx.Signature. Fails if the private key is malformed or no
// oracle is registered for scheme.
func SignTransaction(tx *types.Transaction, scheme Scheme, privateKey []byte) error {
	oracle, ok := registry[scheme]
	if !ok {
		return ErrUnknownScheme
	}
	h := tx.Hash()
	sig, err := oracle.Sign(privateKey, h[:])
	if err != nil {
		return err
	}
	if len(sig) != types.SignatureLength {
		return ErrMalformedInput
	}
	copy(tx.Signature[:], sig)
	return nil
}

// VerifyTransaction verifies tx.Signature against the recomputed hash
// using the given scheme and public key.
func VerifyTransaction(tx *types.Transaction, scheme Scheme, publicKey []byte) bool {
	oracle, ok := registry[scheme]
	if !ok {
		return false
	}
	h := tx.Hash()
	return oracle.Verify(publicKey, h[:], tx.Signature[:])
}

// VerifyRaw verifies sig over an arbitrary message (not necessarily a
// transaction hash) against publicKey using scheme's oracle. Used by
// components that sign domain objects other than transactions, such as
// BatchConsensus witness votes over a batch hash.
func VerifyRaw(scheme Scheme, publicKey, message, sig []byte) bool {
	oracle, ok := registry[scheme]
	if !ok {
		return false
	}
	return oracle.Verify(publicKey, message, sig)
}

// SignRaw signs an arbitrary message with scheme's oracle.
func SignRaw(scheme Scheme, privateKey, message []byte) ([]byte, error) {
	oracle, ok := registry[scheme]
	if !ok {
		return nil, ErrUnknownScheme
	}
	return oracle.Sign(privateKey, message)
}

// GenerateEd25519Key creates a fresh Ed25519 keypair for testing and CLI
// key-generation flows.
func GenerateEd25519Key() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(nil)
}
