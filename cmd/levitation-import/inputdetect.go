// SPDX-FileCopyrightText: 2022 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/ulikunitz/xz"
)

var (
	bzip2Magic = []byte{0x42, 0x5a, 0x68} // "BZh"
	xzMagic    = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
)

// detectInput sniffs the first bytes of r for a bzip2 or xz magic
// sequence and, if found, transparently wraps r in the matching
// decompressor. r is wrapped in a bufio.Reader first so the sniff does
// not consume bytes the caller still needs; an uncompressed (or already
// externally decompressed, e.g. via a `bzcat` pipe) stream passes
// through unchanged, since it has neither magic sequence.
func detectInput(r io.Reader) (io.Reader, error) {
	br := bufio.NewReaderSize(r, 4096)
	head, err := br.Peek(len(xzMagic))
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, fmt.Errorf("sniffing input: %w", err)
	}

	switch {
	case bytes.HasPrefix(head, bzip2Magic):
		zr, err := bzip2.NewReader(br, &bzip2.ReaderConfig{})
		if err != nil {
			return nil, fmt.Errorf("opening bzip2 stream: %w", err)
		}
		return zr, nil
	case bytes.HasPrefix(head, xzMagic):
		zr, err := xz.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("opening xz stream: %w", err)
		}
		return zr, nil
	default:
		return br, nil
	}
}
