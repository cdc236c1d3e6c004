package driver

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
)

// writeKeysFile stores keys in the format [uvarint length][key bytes]
// repeating.
func writeKeysFile(path string, keys iter.Seq[string]) (n int64, err error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create keys file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close keys file: %w", cerr)
		}
	}()

	w := bufio.NewWriter(file)
	var lenBuf [binary.MaxVarintLen64]byte
	for key := range keys {
		l := binary.PutUvarint(lenBuf[:], uint64(len(key)))
		if _, err := w.Write(lenBuf[:l]); err != nil {
			return n, fmt.Errorf("failed to write key length: %w", err)
		}
		if _, err := w.WriteString(key); err != nil {
			return n, fmt.Errorf("failed to write key bytes: %w", err)
		}
		n++
	}
	if err := w.Flush(); err != nil {
		return n, fmt.Errorf("failed to flush keys file: %w", err)
	}
	return n, nil
}

// loadKeysFromFile reads a file written by writeKeysFile.
func loadKeysFromFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open keys file: %w", err)
	}
	defer file.Close()

	var keys []string
	r := bufio.NewReader(file)
	for {
		n, err := binary.ReadUvarint(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return keys, nil
			}
			return nil, fmt.Errorf("failed to read key length: %w", err)
		}

		key := make([]byte, n)
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, fmt.Errorf("failed to read key bytes: %w", err)
		}
		keys = append(keys, string(key))
	}
}
