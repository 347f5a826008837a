package providers

import (
	"io"
)

// maxResponseBytes bounds provider response bodies (audio blobs included).
const maxResponseBytes = 64 << 20

func readAllLimited(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxResponseBytes))
}
