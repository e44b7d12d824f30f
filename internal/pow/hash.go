// Package pow implements the proof-of-work puzzle: message layout, Keccak-256
// hashing and the leading-zero difficulty rule shared by every backend.
package pow

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

// DigestSize is the length of a Keccak-256 digest.
const DigestSize = 32

// MaxDifficulty is the largest satisfiable difficulty (64 zero nibbles).
const MaxDifficulty = DigestSize * 2

// Keccak256 hashes data with the original Keccak padding (0x01), not the
// FIPS-202 SHA3 padding.
func Keccak256(data []byte) [DigestSize]byte {
	var out [DigestSize]byte
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	h.Sum(out[:0])
	return out
}

// LeadingZeroNibbles counts leading zero hex digits of digest.
func LeadingZeroNibbles(digest [DigestSize]byte) int {
	zeros := 0
	for _, b := range digest {
		if b == 0 {
			zeros += 2
			continue
		}
		if b&0xF0 == 0 {
			zeros++
		}
		break
	}
	return zeros
}

// MeetsDifficulty reports whether digest starts with at least difficulty
// zero hex digits.
func MeetsDifficulty(digest [DigestSize]byte, difficulty int) bool {
	return LeadingZeroNibbles(digest) >= difficulty
}

// Verify recomputes the digest of msg with nonce placed at offset and checks
// it against digest and difficulty. The recomputation goes through an
// independent Keccak implementation from the one used by Keccak256.
func Verify(msg []byte, offset int, nonce uint64, difficulty int, digest [DigestSize]byte) error {
	candidate := bytes.Clone(msg)
	if err := PutNonce(candidate, offset, nonce); err != nil {
		return err
	}
	got := crypto.Keccak256(candidate)
	if !bytes.Equal(got, digest[:]) {
		return fmt.Errorf("digest mismatch for nonce %d: device reported %s, host computed %s",
			nonce, hex.EncodeToString(digest[:]), hex.EncodeToString(got))
	}
	if !MeetsDifficulty(digest, difficulty) {
		return fmt.Errorf("digest %s does not meet difficulty %d", hex.EncodeToString(digest[:]), difficulty)
	}
	return nil
}
