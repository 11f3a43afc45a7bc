package copyUtil

import (
	"errors"
	"io"
)

const (
	chunkSize = 4 * 1024 * 1024 // 4MB per chunk
	maxChunks = 64              // Up to 256MB per entry
)

// CopyWithLimit copies from an archive entry to a file in limited-size
// chunks and returns the number of bytes written. Entries larger than the
// chunk budget fail rather than filling the disk.
func CopyWithLimit(dst io.Writer, src io.Reader) (int64, error) {
	var written int64
	var totalChunks int

	for {
		if totalChunks >= maxChunks {
			return written, errors.New("copy limit exceeded")
		}

		n, err := io.CopyN(dst, src, chunkSize)
		written += n
		totalChunks++

		if err != nil {
			if errors.Is(err, io.EOF) {
				break // Copy complete
			}
			return written, err
		}

		if n < chunkSize {
			break // No more data left
		}
	}

	return written, nil
}
