// SPDX-FileCopyrightText: 2022 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"unicode/utf8"
)

// fixedRecordStore is a random-access file of equal-size records indexed
// by a non-negative integer id. It is the shared plumbing behind MetaStore
// and StringStore: both just pack/unpack a different fixed-size record
// on top of it.
//
// There is no cross-process locking. The caller guarantees there is a
// single writer and that writes to distinct ids never overlap.
type fixedRecordStore struct {
	file       *os.File
	recordSize int
}

// openFixedRecordStore opens path for reading and writing, creating it
// if it does not exist yet. Unlike a plain os.Create, this never
// truncates an existing file, so a second run without --overwrite can
// resume from where a previous run left off.
func openFixedRecordStore(path string, recordSize int) (*fixedRecordStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return &fixedRecordStore{file: f, recordSize: recordSize}, nil
}

// writeAt writes one record at the given id, overwriting in place.
func (s *fixedRecordStore) writeAt(id uint64, record []byte) error {
	if len(record) != s.recordSize {
		return fmt.Errorf("record has %d bytes, want %d", len(record), s.recordSize)
	}
	off := int64(id) * int64(s.recordSize)
	if _, err := s.file.WriteAt(record, off); err != nil {
		return fmt.Errorf("writing record %d to %s: %w", id, s.file.Name(), err)
	}
	return nil
}

// readAt reads the record at the given id. When the slot has never been
// written -- the file is shorter than the target extent, or a short read
// hits EOF partway through the record -- it returns ok=false.
func (s *fixedRecordStore) readAt(id uint64) (record []byte, ok bool, err error) {
	buf := make([]byte, s.recordSize)
	off := int64(id) * int64(s.recordSize)
	n, err := s.file.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return nil, false, fmt.Errorf("reading record %d from %s: %w", id, s.file.Name(), err)
	}
	if n < s.recordSize {
		return buf, false, nil
	}
	return buf, true, nil
}

// size returns how many whole records the underlying file currently holds.
func (s *fixedRecordStore) size() (uint64, error) {
	info, err := s.file.Stat()
	if err != nil {
		return 0, err
	}
	return uint64(info.Size()) / uint64(s.recordSize), nil
}

func (s *fixedRecordStore) truncate() error {
	return s.file.Truncate(0)
}

func (s *fixedRecordStore) Close() error {
	return s.file.Close()
}

// Revision flag bits, per the fixed 29-byte revision record.
type revisionFlags uint8

const (
	flagMinor revisionFlags = 1 << iota
	flagIsIP
	flagIsDeleted
	flagIsUpload
)

// metaRecordSize is 4 (rev_id) + 4 (epoch) + 4 (page_id) + 8 (author_hi)
// + 8 (author_lo) + 1 (flags) = 29 bytes, matching the original Python
// source's `struct.Struct('=LLLQQB')`; see DESIGN.md for the reasoning.
const metaRecordSize = 4 + 4 + 4 + 8 + 8 + 1

// MetaRecord is the per-revision metadata stored by MetaStore: author
// identity, page, timestamp and flags, keyed by revision (or upload) id.
type MetaRecord struct {
	RevID    uint32
	Epoch    uint32 // UTC seconds
	PageID   uint32
	AuthorHi uint64 // high 64 bits of a 128-bit author id (numeric user id or packed IP)
	AuthorLo uint64 // low 64 bits
	Flags    revisionFlags
}

// Exists reports whether this is a populated slot. RevID 0 is the
// "never written" sentinel, since wiki revision and upload ids are
// always positive; MetaStore.Write refuses to write RevID 0 to guard
// this invariant at the source.
func (r MetaRecord) Exists() bool { return r.RevID != 0 }

func (r MetaRecord) Minor() bool      { return r.Flags&flagMinor != 0 }
func (r MetaRecord) IsIP() bool       { return r.Flags&flagIsIP != 0 }
func (r MetaRecord) IsDeleted() bool  { return r.Flags&flagIsDeleted != 0 }
func (r MetaRecord) IsUpload() bool   { return r.Flags&flagIsUpload != 0 }
func (r MetaRecord) AuthorID() uint128 {
	return uint128{hi: r.AuthorHi, lo: r.AuthorLo}
}

// MetaStore is a FixedRecordStore specialization for per-revision
// metadata, indexed by revision (or, for the upload-meta file, upload) id.
type MetaStore struct {
	store *fixedRecordStore
}

func OpenMetaStore(path string) (*MetaStore, error) {
	s, err := openFixedRecordStore(path, metaRecordSize)
	if err != nil {
		return nil, err
	}
	return &MetaStore{store: s}, nil
}

// encodeMetaRecord packs rec into the 29-byte on-disk layout. Exposed
// (rather than kept private to Write) so epochsort.go can carry a
// MetaRecord through extsort's byte-oriented SortType without
// duplicating the field order.
func encodeMetaRecord(rec MetaRecord) []byte {
	buf := make([]byte, metaRecordSize)
	binary.LittleEndian.PutUint32(buf[0:4], rec.RevID)
	binary.LittleEndian.PutUint32(buf[4:8], rec.Epoch)
	binary.LittleEndian.PutUint32(buf[8:12], rec.PageID)
	binary.LittleEndian.PutUint64(buf[12:20], rec.AuthorHi)
	binary.LittleEndian.PutUint64(buf[20:28], rec.AuthorLo)
	buf[28] = byte(rec.Flags)
	return buf
}

func decodeMetaRecord(buf []byte) MetaRecord {
	return MetaRecord{
		RevID:    binary.LittleEndian.Uint32(buf[0:4]),
		Epoch:    binary.LittleEndian.Uint32(buf[4:8]),
		PageID:   binary.LittleEndian.Uint32(buf[8:12]),
		AuthorHi: binary.LittleEndian.Uint64(buf[12:20]),
		AuthorLo: binary.LittleEndian.Uint64(buf[20:28]),
		Flags:    revisionFlags(buf[28]),
	}
}

func (m *MetaStore) Write(id uint64, rec MetaRecord) error {
	if rec.RevID == 0 {
		return fmt.Errorf("meta store: rev_id 0 is the empty-slot sentinel, refusing to write it at slot %d", id)
	}
	return m.store.writeAt(id, encodeMetaRecord(rec))
}

// Read returns the record at id. If the slot was never written, it
// returns a zero MetaRecord (RevID 0, Exists() == false) and no error.
func (m *MetaStore) Read(id uint64) (MetaRecord, error) {
	buf, ok, err := m.store.readAt(id)
	if err != nil {
		return MetaRecord{}, err
	}
	if !ok {
		return MetaRecord{}, nil
	}
	return decodeMetaRecord(buf), nil
}

func (m *MetaStore) Size() (uint64, error) { return m.store.size() }
func (m *MetaStore) Truncate() error       { return m.store.truncate() }
func (m *MetaStore) Close() error          { return m.store.Close() }

// stringRecordSize is 1 (len) + 4 (flags) + 255 (text) = 260 bytes, as
// specced for comment, user and page records.
const stringRecordSize = 1 + 4 + 255

// StringRecord is a bounded-length piece of UTF-8 text plus a caller-
// defined flags word (pages repurpose it to hold a namespace id).
type StringRecord struct {
	Text  string
	Flags uint32
}

// StringStore is a FixedRecordStore specialization for short bounded
// text: revision comments, usernames, and page titles.
type StringStore struct {
	store *fixedRecordStore
}

func OpenStringStore(path string) (*StringStore, error) {
	s, err := openFixedRecordStore(path, stringRecordSize)
	if err != nil {
		return nil, err
	}
	return &StringStore{store: s}, nil
}

// Write encodes text as UTF-8 and trims it, if necessary, to the largest
// prefix whose byte length is at most 255 without splitting a Unicode
// scalar value. Trimming drops trailing code points one at a time, never
// trailing bytes, so the stored text is always valid UTF-8 (invariant
// I5). flags is stored verbatim; callers repurpose it to hold a page's
// namespace id, or pass 1 for comment/username records that have no use
// for it, mirroring the original source's convention.
func (s *StringStore) Write(id uint64, text string, flags uint32) error {
	truncated, truncatedBytes := truncateUTF8(text, 255)
	if truncatedBytes < len(text) {
		progressf("warning: trimming %d byte comment/title to %d bytes", len(text), truncatedBytes)
	}

	buf := make([]byte, stringRecordSize)
	buf[0] = byte(len(truncated))
	binary.LittleEndian.PutUint32(buf[1:5], flags)
	copy(buf[5:260], truncated)
	return s.store.writeAt(id, buf)
}

// Read returns the text and flags stored at id. A never-written slot
// reads back as an empty string with flags 0 and no error, matching the
// source's StringStore.read behavior for a short read at EOF.
func (s *StringStore) Read(id uint64) (StringRecord, error) {
	buf, ok, err := s.store.readAt(id)
	if err != nil {
		return StringRecord{}, err
	}
	if !ok {
		return StringRecord{}, nil
	}
	n := int(buf[0])
	if n > 255 {
		n = 255
	}
	flags := binary.LittleEndian.Uint32(buf[1:5])
	return StringRecord{Text: string(buf[5 : 5+n]), Flags: flags}, nil
}

func (s *StringStore) Truncate() error { return s.store.truncate() }
func (s *StringStore) Close() error    { return s.store.Close() }

// truncateUTF8 returns the largest prefix of s whose UTF-8 encoding is
// at most maxBytes long, cutting only at rune boundaries.
func truncateUTF8(s string, maxBytes int) (string, int) {
	if len(s) <= maxBytes {
		return s, len(s)
	}
	for len(s) > maxBytes {
		_, size := utf8.DecodeLastRuneInString(s)
		s = s[:len(s)-size]
	}
	return s, len(s)
}
