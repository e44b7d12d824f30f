package pow

import (
	"bytes"
	"context"
)

// cancelCheckInterval is how many nonces Search tries between context checks.
const cancelCheckInterval = 4096

// Solution is a nonce whose digest meets the difficulty.
type Solution struct {
	Nonce  uint64
	Digest [DigestSize]byte
}

// Search tries nonces start, start+1, ... start+count-1 on the CPU and
// returns the first one meeting difficulty. msg is not modified.
func Search(ctx context.Context, msg []byte, offset int, start, count uint64, difficulty int) (Solution, bool, error) {
	buf := bytes.Clone(msg)
	for i := uint64(0); i < count; i++ {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return Solution{}, false, err
			}
		}
		nonce := start + i
		if err := PutNonce(buf, offset, nonce); err != nil {
			return Solution{}, false, err
		}
		digest := Keccak256(buf)
		if MeetsDifficulty(digest, difficulty) {
			return Solution{Nonce: nonce, Digest: digest}, true, nil
		}
	}
	return Solution{}, false, nil
}
