package pow

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// BlockSize is the XDR encoding of the uint32 block number.
	BlockSize = 4
	// NonceSize is the XDR int128 slot holding the nonce.
	NonceSize = 16
	// NonceOffset is the position of the nonce slot inside a message built
	// by Prepare.
	NonceOffset = BlockSize
	// MaxMessageSize is the longest message the OpenCL kernel hashes
	// (MAX_MESSAGE in kernel.cl).
	MaxMessageSize = 256
)

// ErrMessageTooLong is returned by Prepare when the entropy makes the
// message longer than MaxMessageSize.
var ErrMessageTooLong = errors.New("message too long")

// Work describes one mining puzzle.
type Work struct {
	Block uint32
	// Entropy is the base64 encoded hash of the previous block.
	Entropy string
	// Miner is the account address (G... strkey) credited with the block.
	Miner string
}

// Prepare builds the hashed message:
//
//	block (4, big-endian) | nonce (16, big-endian) | entropy | miner key (32)
//
// and returns it with the offset of the nonce slot.
func Prepare(w Work, nonce uint64) ([]byte, int, error) {
	entropy, err := base64.StdEncoding.DecodeString(w.Entropy)
	if err != nil {
		return nil, 0, fmt.Errorf("decode entropy: %w", err)
	}
	key, err := DecodeAccountID(w.Miner)
	if err != nil {
		return nil, 0, fmt.Errorf("decode miner address: %w", err)
	}
	if size := BlockSize + NonceSize + len(entropy) + len(key); size > MaxMessageSize {
		return nil, 0, fmt.Errorf("%w: %d bytes of entropy give a %d byte message, limit %d",
			ErrMessageTooLong, len(entropy), size, MaxMessageSize)
	}

	msg := make([]byte, 0, BlockSize+NonceSize+len(entropy)+len(key))
	msg = binary.BigEndian.AppendUint32(msg, w.Block)
	msg = append(msg, make([]byte, NonceSize)...)
	msg = append(msg, entropy...)
	msg = append(msg, key[:]...)

	if err := PutNonce(msg, NonceOffset, nonce); err != nil {
		return nil, 0, err
	}
	return msg, NonceOffset, nil
}

// PutNonce writes nonce as a 16-byte big-endian integer at offset.
func PutNonce(msg []byte, offset int, nonce uint64) error {
	if offset < 0 || offset+NonceSize > len(msg) {
		return fmt.Errorf("nonce slot [%d,%d) outside message of %d bytes", offset, offset+NonceSize, len(msg))
	}
	clear(msg[offset : offset+8])
	binary.BigEndian.PutUint64(msg[offset+8:offset+NonceSize], nonce)
	return nil
}

// NonceAt reads the nonce written by PutNonce.
func NonceAt(msg []byte, offset int) (uint64, error) {
	if offset < 0 || offset+NonceSize > len(msg) {
		return 0, fmt.Errorf("nonce slot [%d,%d) outside message of %d bytes", offset, offset+NonceSize, len(msg))
	}
	return binary.BigEndian.Uint64(msg[offset+8 : offset+NonceSize]), nil
}
