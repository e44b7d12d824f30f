// Package kernels ships the OpenCL sources of the nonce search.
//
// utils/keccak.cl holds the Keccak-256 primitive and kernel.cl the "run"
// entry point that consumes it. The files are embedded so the binary works
// from any directory; a directory on disk can be used instead to iterate on
// the kernels without rebuilding.
package kernels

import "embed"

// FS contains kernel.cl and utils/keccak.cl.
//
//go:embed kernel.cl utils/keccak.cl
var FS embed.FS
