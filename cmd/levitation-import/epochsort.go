// SPDX-FileCopyrightText: 2022 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/lanrat/extsort"
)

// sortableRevision is the extsort.SortType carrier for one MetaRecord
// plus enough context (its id and whether it came from the upload
// store) to rebuild a revisionInfo after the external sort.
//
// This is the repository's implementation of the original Python
// source's `TODO: Avoid reading all infos into memory, sort them on
// disk instead.` The sort key is the 12-byte big-endian pair
// (epoch, id): sorting on the wire bytes directly, rather than decoding
// first, would also sort correctly since both fields are fixed-width
// big-endian, but extsort's Less callback is given decoded values, so
// there's no need to rely on that.
type sortableRevision struct {
	epoch    uint32
	id       uint64
	isUpload bool
	rec      MetaRecord
}

func (s sortableRevision) ToBytes() []byte {
	buf := make([]byte, 4+8+1+metaRecordSize)
	binary.BigEndian.PutUint32(buf[0:4], s.epoch)
	binary.BigEndian.PutUint64(buf[4:12], s.id)
	if s.isUpload {
		buf[12] = 1
	}
	copy(buf[13:], encodeMetaRecord(s.rec))
	return buf
}

func sortableRevisionFromBytes(b []byte) extsort.SortType {
	return sortableRevision{
		epoch:    binary.BigEndian.Uint32(b[0:4]),
		id:       binary.BigEndian.Uint64(b[4:12]),
		isUpload: b[12] == 1,
		rec:      decodeMetaRecord(b[13 : 13+metaRecordSize]),
	}
}

func sortableRevisionLess(a, b extsort.SortType) bool {
	aa, bb := a.(sortableRevision), b.(sortableRevision)
	if aa.epoch != bb.epoch {
		return aa.epoch < bb.epoch
	}
	return aa.id < bb.id
}

// sortByEpoch re-orders infos stably by epoch ascending (ties broken by
// id) without holding the whole sequence in memory twice: it streams
// infos into extsort's input channel as the caller produces them and
// returns the sorted results as they come off extsort's output channel.
func sortByEpoch(ctx context.Context, infos <-chan revisionInfo) (<-chan revisionInfo, <-chan error) {
	in := make(chan extsort.SortType, 1024)
	config := extsort.DefaultConfig()
	sorter, outChan, errChan := extsort.New(in, sortableRevisionFromBytes, sortableRevisionLess, config)

	go func() {
		defer close(in)
		for info := range infos {
			select {
			case in <- sortableRevision{epoch: info.rec.Epoch, id: info.id, isUpload: info.isUpload, rec: info.rec}:
			case <-ctx.Done():
				return
			}
		}
	}()

	out := make(chan revisionInfo, 1024)
	mergedErr := make(chan error, 1)
	go func() {
		defer close(out)
		sorter.Sort(ctx)
		for s := range outChan {
			sr := s.(sortableRevision)
			select {
			case out <- revisionInfo{id: sr.id, isUpload: sr.isUpload, rec: sr.rec}:
			case <-ctx.Done():
			}
		}
		if err := <-errChan; err != nil {
			mergedErr <- fmt.Errorf("sorting revisions by epoch: %w", err)
			return
		}
		mergedErr <- nil
	}()
	return out, mergedErr
}
