// Package compress implements the DataCompressor (C3): a lossless codec
// over a transaction sequence with an integrity hash, backed by Zstandard
// (github.com/klauspost/compress/zstd), the algorithm the spec
// recommends.
package compress

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/klauspost/compress/zstd"
	"github.com/quids/quids/core/types"
	"github.com/quids/quids/crypto"
)

// DataCompressor errors.
var (
	ErrHashMismatch     = errors.New("compress: blob hash does not match recorded hash")
	ErrSizeMismatch     = errors.New("compress: decompressed size does not match recorded original size")
	ErrEmptyTransactions = errors.New("compress: transaction sequence is empty")
)

// CompressedBatch is the result of compressing a transaction sequence
// (§4.3): the compressed payload, its uncompressed size, and a SHA-256
// integrity hash over the compressed blob.
type CompressedBatch struct {
	CompressedBlob []byte
	OriginalSize   uint64
	Hash           types.Hash
}

// Compressor wraps a pair of pooled zstd encoder/decoder, safe for
// concurrent use.
type Compressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// New creates a Compressor with default Zstandard parameters.
func New() (*Compressor, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &Compressor{encoder: enc, decoder: dec}, nil
}

// Close releases the decoder's background goroutines.
func (c *Compressor) Close() {
	c.decoder.Close()
}

// Compress serializes each transaction (length-prefixed) and compresses
// the concatenation, recording the pre-compression size and a SHA-256
// hash over the resulting blob.
func (c *Compressor) Compress(txs []*types.Transaction) (*CompressedBatch, error) {
	if len(txs) == 0 {
		return nil, ErrEmptyTransactions
	}

	var raw bytes.Buffer
	var lenBuf [4]byte
	for _, tx := range txs {
		encoded := tx.Serialize()
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(encoded)))
		raw.Write(lenBuf[:])
		raw.Write(encoded)
	}

	compressed := c.encoder.EncodeAll(raw.Bytes(), nil)
	return &CompressedBatch{
		CompressedBlob: compressed,
		OriginalSize:   uint64(raw.Len()),
		Hash:           crypto.SHA256Hash(compressed),
	}, nil
}

// Decompress verifies the integrity hash and recorded size, then expands
// and deserializes the transaction sequence. decompress(compress(xs)) ==
// xs for all xs (property 3); any mutation of CompressedBlob or Hash is
// detected.
func (c *Compressor) Decompress(batch *CompressedBatch) ([]*types.Transaction, error) {
	if crypto.SHA256Hash(batch.CompressedBlob) != batch.Hash {
		return nil, ErrHashMismatch
	}

	raw, err := c.decoder.DecodeAll(batch.CompressedBlob, nil)
	if err != nil {
		return nil, err
	}
	if uint64(len(raw)) != batch.OriginalSize {
		return nil, ErrSizeMismatch
	}

	var txs []*types.Transaction
	for off := 0; off < len(raw); {
		if off+4 > len(raw) {
			return nil, errors.New("compress: truncated length prefix")
		}
		n := int(binary.BigEndian.Uint32(raw[off : off+4]))
		off += 4
		if off+n > len(raw) {
			return nil, errors.New("compress: truncated transaction payload")
		}
		tx, err := types.DeserializeTransaction(raw[off : off+n])
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
		off += n
	}
	return txs, nil
}
