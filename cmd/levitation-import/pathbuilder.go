// SPDX-FileCopyrightText: 2022 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import (
	"encoding/hex"
	"fmt"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	mainNamespaceID = 0
	fileNamespaceID = 6
)

// DirStruct selects one of PathBuilder's two path-construction policies.
type DirStruct int

const (
	DirStructLevitation DirStruct = iota
	DirStructGitHub
)

func ParseDirStruct(s string) (DirStruct, error) {
	switch s {
	case "levitation":
		return DirStructLevitation, nil
	case "github":
		return DirStructGitHub, nil
	default:
		return 0, fmt.Errorf("unknown directory structure %q, want \"levitation\" or \"github\"", s)
	}
}

// PathBuilder produces the git tree path for a page revision or upload,
// given its namespace id and title.
type PathBuilder struct {
	Style    DirStruct
	Deepness int
	idToNS   map[int32]string
}

func NewPathBuilder(style DirStruct, deepness int, idToNS map[int32]string) *PathBuilder {
	return &PathBuilder{Style: style, Deepness: deepness, idToNS: idToNS}
}

// sanitize replaces the one character that would otherwise be
// interpreted as a path separator inside a single path component.
func sanitize(s string) string {
	return strings.ReplaceAll(s, "/", "\x1c")
}

// Path builds the tree path for (nsID, title, upload).
func (p *PathBuilder) Path(nsID int32, title string, upload bool) (string, error) {
	switch p.Style {
	case DirStructLevitation:
		return p.levitationPath(nsID, title, upload), nil
	case DirStructGitHub:
		return p.githubPath(nsID, title, upload), nil
	default:
		return "", fmt.Errorf("unknown directory structure %v", p.Style)
	}
}

func (p *PathBuilder) levitationPath(nsID int32, title string, upload bool) string {
	dir := sanitize(fmt.Sprintf("%d-%s", nsID, p.idToNS[nsID]))

	codepoints := normalizedCodepoints(title)
	depth := p.Deepness
	if depth > len(codepoints) {
		depth = len(codepoints)
	}

	parts := make([]string, 0, depth+2)
	parts = append(parts, dir)
	for i := 0; i < depth; i++ {
		parts = append(parts, hex.EncodeToString([]byte(codepoints[i])))
	}

	leaf := sanitize(norm.NFC.String(title))
	if !upload {
		leaf += ".mediawiki"
	}
	parts = append(parts, leaf)

	return path.Clean(strings.Join(parts, "/"))
}

func (p *PathBuilder) githubPath(nsID int32, title string, upload bool) string {
	nsName := p.idToNS[nsID]
	var result string
	switch {
	case upload:
		result = fmt.Sprintf("%s:%s", nsName, title)
	case nsID == mainNamespaceID:
		result = fmt.Sprintf("%s.mediawiki", title)
	case nsID == fileNamespaceID:
		result = fmt.Sprintf(":%s:%s.mediawiki", nsName, title)
	default:
		result = fmt.Sprintf("%s:%s.mediawiki", nsName, title)
	}
	result = strings.NewReplacer("/", "-", " ", "-").Replace(result)
	return path.Clean(result)
}

// normalizedCodepoints splits an NFC-normalized title into its
// individual Unicode scalar values, each returned as its own UTF-8
// encoded string. Normalizing first keeps path construction stable for
// titles that are canonically equivalent but byte-distinct, e.g. a
// precomposed accented letter versus a base letter followed by a
// combining mark.
func normalizedCodepoints(title string) []string {
	var it norm.Iter
	it.InitString(norm.NFC, title)
	result := make([]string, 0, len(title))
	for !it.Done() {
		// Next yields a whole normalization segment (a starter plus any
		// combining marks that did not compose into it); split it further.
		for _, r := range string(it.Next()) {
			result = append(result, string(r))
		}
	}
	return result
}
