// SPDX-FileCopyrightText: 2022 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/klauspost/compress/zstd"
)

// GlobalState is the dump-wide state that is produced by Pass 1 and
// consumed by Pass 2: the wiki's domain, its bijective namespace-id/name
// map, and the running counter used to synthesize upload ids.
type GlobalState struct {
	Domain      string
	IDToNS      map[int32]string
	NSToID      map[string]int32
	MaxUploadID uint64
}

// jsonGlobalState is GlobalState's on-disk wire shape. JSON object keys
// must be strings, so IDToNS's int32 keys round-trip through strconv at
// the boundary; NSToID is the inverse map and is redundant on disk, but
// storing both keeps loading a single Unmarshal instead of a rebuild
// pass, and keeps the bijection between the two maps visibly true of
// the file itself.
type jsonGlobalState struct {
	Domain      string            `json:"domain"`
	IDToNS      map[string]string `json:"id_to_ns"`
	NSToID      map[string]int32  `json:"ns_to_id"`
	MaxUploadID uint64            `json:"max_upload_id"`
}

func NewGlobalState() *GlobalState {
	return &GlobalState{
		Domain: "unknown.invalid",
		IDToNS: make(map[int32]string),
		NSToID: make(map[string]int32),
	}
}

// AddNamespace records the bijective mapping between a namespace id and
// its name.
func (s *GlobalState) AddNamespace(id int32, name string) {
	s.IDToNS[id] = name
	s.NSToID[name] = id
}

// SaveGlobalState writes the dump-wide state to path as zstd-compressed
// JSON, a self-describing encoding that replaces an opaque pickle blob
// with something any later reader can decode without this program.
func SaveGlobalState(path string, s *GlobalState) error {
	wire := jsonGlobalState{
		Domain:      s.Domain,
		IDToNS:      make(map[string]string, len(s.IDToNS)),
		NSToID:      s.NSToID,
		MaxUploadID: s.MaxUploadID,
	}
	for k, v := range s.IDToNS {
		wire.IDToNS[strconv.Itoa(int(k))] = v
	}

	data, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("encoding global state: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	defer f.Close()

	w, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("compressing %s: %w", path, err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return w.Close()
}

// LoadGlobalState reads global state previously written by
// SaveGlobalState. A missing file is not an error: it means this is the
// first run, and the caller gets a freshly initialized GlobalState, the
// same resume-by-reusing-existing-sidecars behavior as the other stores.
func LoadGlobalState(path string) (*GlobalState, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return NewGlobalState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	defer f.Close()

	r, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", path, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		// A zero-length or truncated file, e.g. left behind by a run
		// that crashed before Pass 1 finished writing it, is treated
		// the same as a missing file.
		return NewGlobalState(), nil
	}

	var wire jsonGlobalState
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	s := &GlobalState{
		Domain:      wire.Domain,
		IDToNS:      make(map[int32]string, len(wire.IDToNS)),
		NSToID:      wire.NSToID,
		MaxUploadID: wire.MaxUploadID,
	}
	if s.NSToID == nil {
		s.NSToID = make(map[string]int32)
	}
	for k, v := range wire.IDToNS {
		id, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: bad namespace id %q: %w", path, k, err)
		}
		s.IDToNS[int32(id)] = v
	}
	if s.Domain == "" {
		s.Domain = "unknown.invalid"
	}
	return s, nil
}
