// SPDX-FileCopyrightText: 2022 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

// git fast-import(1) marks are shared across every object kind (blobs,
// commits, ...) in a single stream. RevisionMark, UploadMark and
// CommitMark partition the positive integers into three residues mod 3
// so that wiki revision ids, upload ids and dense 0-indexed commit
// numbers can never collide, no matter how large the wiki-side ids get.
//
//	blob for page revision R  -> 1 + 3*R
//	blob for upload U         -> 3 + 3*U
//	commit number C (0-based) -> 2 + 3*C

// RevisionMark returns the blob mark for a page revision id.
func RevisionMark(revID uint64) int64 {
	return 1 + 3*int64(revID)
}

// UploadMark returns the blob mark for an upload id.
func UploadMark(uploadID uint64) int64 {
	return 3 + 3*int64(uploadID)
}

// CommitMark returns the mark for the commit at 0-indexed position num.
func CommitMark(num int64) int64 {
	return 2 + 3*num
}
