package pow

import (
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	strkeyLength = 56
	// versionAccountID is the strkey version byte for G... addresses.
	versionAccountID byte = 6 << 3
)

var (
	ErrInvalidAddress = errors.New("invalid account address")
)

// DecodeAccountID returns the raw ed25519 key of a G... account strkey.
func DecodeAccountID(address string) ([32]byte, error) {
	var key [32]byte
	if len(address) != strkeyLength {
		return key, fmt.Errorf("%w: length %d, want %d", ErrInvalidAddress, len(address), strkeyLength)
	}
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(address)
	if err != nil {
		return key, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	if len(raw) != 1+len(key)+2 {
		return key, fmt.Errorf("%w: decoded %d bytes", ErrInvalidAddress, len(raw))
	}
	if raw[0] != versionAccountID {
		return key, fmt.Errorf("%w: version byte %#x is not an account id", ErrInvalidAddress, raw[0])
	}
	payload, sum := raw[:len(raw)-2], binary.LittleEndian.Uint16(raw[len(raw)-2:])
	if crc16XModem(payload) != sum {
		return key, fmt.Errorf("%w: checksum mismatch", ErrInvalidAddress)
	}
	copy(key[:], payload[1:])
	return key, nil
}

// EncodeAccountID is the inverse of DecodeAccountID.
func EncodeAccountID(key [32]byte) string {
	payload := make([]byte, 0, 1+len(key)+2)
	payload = append(payload, versionAccountID)
	payload = append(payload, key[:]...)
	payload = binary.LittleEndian.AppendUint16(payload, crc16XModem(payload))
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(payload)
}

func crc16XModem(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
