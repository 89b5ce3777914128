package stream

import (
	"errors"
	"io"
)

// DefaultChunkSize is the read size for Pump. 4KB aligns with typical pipe
// buffer sizes.
const DefaultChunkSize = 4096

// Pump reads from src in chunks of at most size bytes and calls emit with each
// non-empty chunk until src returns an error. The slice passed to emit is owned
// by emit. io.EOF is reported as a nil error.
func Pump(src io.Reader, size int, emit func([]byte)) error {
	if size <= 0 {
		size = DefaultChunkSize
	}

	// TODO: If sessions are opened and closed at a high rate, a sync.Pool of
	// read buffers might be worth it. Needs profiling.
	buffer := make([]byte, size)

	for {
		n, err := src.Read(buffer)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buffer[:n])

			emit(chunk)
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			return err
		}
	}
}
