package types

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"

	"github.com/holiman/uint256"
	"golang.org/x/crypto/blake2b"
)

// Gas bounds and domain-separation constants (§3).
const (
	MinGasLimit = 21_000
	MaxGasLimit = 15_000_000

	// hashContextTag domain-separates transaction hashing from any other
	// use of the keyed hash within the rollup.
	hashContextTag = "QUIDS-TX-V1"

	domainSender    byte = 0x01
	domainRecipient byte = 0x02
	domainAmount    byte = 0x03
	domainNonce     byte = 0x04
	domainGasLimit  byte = 0x05
	domainGasPrice  byte = 0x06
	domainTimestamp byte = 0x07
)

// Transaction errors.
var (
	ErrTxEmptySender    = errors.New("types: sender address is empty")
	ErrTxEmptyRecipient = errors.New("types: recipient address is empty")
	ErrTxZeroAmount     = errors.New("types: amount must be non-zero")
	ErrTxGasLimitBounds = errors.New("types: gas limit outside [MinGasLimit, MaxGasLimit]")
	ErrTxZeroGasPrice   = errors.New("types: gas price must be non-zero")
	ErrTxBadSignature   = errors.New("types: signature has wrong length")
	ErrTxUnsigned       = errors.New("types: transaction has no signature")
	ErrTxBadPrivateKey  = errors.New("types: malformed private key material")
	ErrTxCostOverflow   = errors.New("types: total cost overflows uint64")
)

// Transaction is the canonical, immutable transaction record (§3).
//
// Construct with NewTransaction; field values should not be mutated after
// that, since Hash() and Sign() are defined over the fields as given.
type Transaction struct {
	Sender    Address
	Recipient Address
	Amount    uint64
	Nonce     uint64
	GasLimit  uint64
	GasPrice  uint64
	Timestamp uint64
	Signature [SignatureLength]byte
}

// NewTransaction constructs an unsigned Transaction.
func NewTransaction(sender, recipient Address, amount, nonce, gasLimit, gasPrice, timestamp uint64) *Transaction {
	return &Transaction{
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
		Nonce:     nonce,
		GasLimit:  gasLimit,
		GasPrice:  gasPrice,
		Timestamp: timestamp,
	}
}

// Hash computes the keyed, domain-separated digest of the transaction's
// fields, excluding the signature. Two transactions hash-equal iff all
// fields are equal.
//
// The hash is blake2b-256 keyed with a fixed context tag, taken over
// each field prefixed with a single-byte domain code; blake2b is used as
// the keyed-hash stand-in for the spec's "Blake3-style" requirement since
// it natively supports a key, unlike plain SHA-family hashes.
func (tx *Transaction) Hash() Hash {
	h, err := blake2b.New256([]byte(hashContextTag))
	if err != nil {
		// Only returns an error for an over-length key, which is a
		// compile-time invariant here.
		panic(err)
	}

	var buf [9]byte
	write := func(domain byte, v uint64) {
		buf[0] = domain
		binary.BigEndian.PutUint64(buf[1:], v)
		h.Write(buf[:])
	}

	h.Write([]byte{domainSender})
	h.Write(tx.Sender[:])
	h.Write([]byte{domainRecipient})
	h.Write(tx.Recipient[:])
	write(domainAmount, tx.Amount)
	write(domainNonce, tx.Nonce)
	write(domainGasLimit, tx.GasLimit)
	write(domainGasPrice, tx.GasPrice)
	write(domainTimestamp, tx.Timestamp)

	return BytesToHash(h.Sum(nil))
}

// TotalCost returns amount + gas_limit*gas_price, checked for uint64
// overflow via uint256 intermediate arithmetic.
func (tx *Transaction) TotalCost() (uint64, error) {
	gasCost, overflow := new(uint256.Int).MulOverflow(
		uint256.NewInt(tx.GasLimit), uint256.NewInt(tx.GasPrice))
	if overflow {
		return 0, ErrTxCostOverflow
	}
	total, overflow := new(uint256.Int).AddOverflow(gasCost, uint256.NewInt(tx.Amount))
	if overflow || !total.IsUint64() {
		return 0, ErrTxCostOverflow
	}
	return total.Uint64(), nil
}

// GasCost returns gas_limit*gas_price, checked for overflow.
func (tx *Transaction) GasCost() (uint64, error) {
	gasCost, overflow := new(uint256.Int).MulOverflow(
		uint256.NewInt(tx.GasLimit), uint256.NewInt(tx.GasPrice))
	if overflow || !gasCost.IsUint64() {
		return 0, ErrTxCostOverflow
	}
	return gasCost.Uint64(), nil
}

// Sign computes the transaction hash and signs it with the given Ed25519
// private key, populating Signature. Fails if the private key is
// malformed.
func (tx *Transaction) Sign(privateKey ed25519.PrivateKey) error {
	if len(privateKey) != ed25519.PrivateKeySize {
		return ErrTxBadPrivateKey
	}
	h := tx.Hash()
	sig := ed25519.Sign(privateKey, h[:])
	if len(sig) != SignatureLength {
		return ErrTxBadSignature
	}
	copy(tx.Signature[:], sig)
	return nil
}

// Verify checks tx.Signature against the recomputed hash using the given
// public key.
func (tx *Transaction) Verify(publicKey ed25519.PublicKey) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	h := tx.Hash()
	return ed25519.Verify(publicKey, h[:], tx.Signature[:])
}

// IsValid checks all §3 field invariants plus signature-length. Per
// Design Notes' resolved Open Question, an all-zero signature (i.e. an
// unsigned transaction) is rejected: admission requires a valid
// signature.
func (tx *Transaction) IsValid() error {
	if tx.Sender.IsZero() {
		return ErrTxEmptySender
	}
	if tx.Recipient.IsZero() {
		return ErrTxEmptyRecipient
	}
	if tx.Amount == 0 {
		return ErrTxZeroAmount
	}
	if tx.GasLimit < MinGasLimit || tx.GasLimit > MaxGasLimit {
		return ErrTxGasLimitBounds
	}
	if tx.GasPrice == 0 {
		return ErrTxZeroGasPrice
	}
	if tx.Signature == ([SignatureLength]byte{}) {
		return ErrTxUnsigned
	}
	return nil
}

// Serialize produces a deterministic, fixed-width encoding of tx: sender,
// recipient, the five uint64 fields big-endian, then the signature. The
// encoding carries no length prefix.
func (tx *Transaction) Serialize() []byte {
	buf := make([]byte, 0, AddressLength*2+8*5+SignatureLength)
	buf = append(buf, tx.Sender[:]...)
	buf = append(buf, tx.Recipient[:]...)
	buf = appendUint64(buf, tx.Amount)
	buf = appendUint64(buf, tx.Nonce)
	buf = appendUint64(buf, tx.GasLimit)
	buf = appendUint64(buf, tx.GasPrice)
	buf = appendUint64(buf, tx.Timestamp)
	buf = append(buf, tx.Signature[:]...)
	return buf
}

// DeserializeTransaction reverses Serialize. Round-trips exactly for any
// valid encoding produced by Serialize.
func DeserializeTransaction(data []byte) (*Transaction, error) {
	const fixedLen = AddressLength*2 + 8*5 + SignatureLength
	if len(data) != fixedLen {
		return nil, errors.New("types: transaction encoding has wrong length")
	}
	tx := &Transaction{}
	off := 0
	copy(tx.Sender[:], data[off:off+AddressLength])
	off += AddressLength
	copy(tx.Recipient[:], data[off:off+AddressLength])
	off += AddressLength
	tx.Amount, off = readUint64(data, off)
	tx.Nonce, off = readUint64(data, off)
	tx.GasLimit, off = readUint64(data, off)
	tx.GasPrice, off = readUint64(data, off)
	tx.Timestamp, off = readUint64(data, off)
	copy(tx.Signature[:], data[off:off+SignatureLength])
	return tx, nil
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func readUint64(data []byte, off int) (uint64, int) {
	return binary.BigEndian.Uint64(data[off : off+8]), off + 8
}
