package miner

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
)

// NotFoundMessage is printed when a run ends without a solution.
const NotFoundMessage = "No valid hash found."

// Output is the JSON form of a solution.
type Output struct {
	Hash  string `json:"hash"`
	Nonce uint64 `json:"nonce"`
}

// WriteResult prints res as indented JSON, or NotFoundMessage.
func WriteResult(w io.Writer, res Result) error {
	if !res.Found {
		_, err := fmt.Fprintln(w, NotFoundMessage)
		return err
	}
	data, err := json.MarshalIndent(Output{
		Hash:  hex.EncodeToString(res.Solution.Digest[:]),
		Nonce: res.Solution.Nonce,
	}, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
