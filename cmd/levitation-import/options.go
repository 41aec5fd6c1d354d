// SPDX-FileCopyrightText: 2022 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import "flag"

// Options is the parsed command-line configuration for an import run.
type Options struct {
	Max          int
	Deepness     int
	Committer    string
	WikiTime     bool
	AuthorDomain string
	Sort         bool
	DirStruct    DirStruct
	OnlyBlobs    bool
	Overwrite    bool
	NoLxml       bool

	dirStructName string

	MetaPath  string
	CommPath  string
	UploPath  string
	UpcoPath  string
	UserPath  string
	PagePath  string
	StatePath string
}

// ParseOptions parses args (typically os.Args[1:]) into an Options. It
// is a function rather than relying on the package-level flag.* state
// so it can be exercised from a test with an arbitrary argument list.
func ParseOptions(args []string) (*Options, error) {
	fs := flag.NewFlagSet("levitation-import", flag.ContinueOnError)
	opts := &Options{}

	fs.IntVar(&opts.Max, "max", -1, "stop after importing this many pages; -1 means no limit")
	fs.IntVar(&opts.Deepness, "deepness", 1, "number of hex-encoded title code points used as intermediate directories")
	fs.StringVar(&opts.Committer, "committer", "Levitation <levitation@invalid>", `committer identity, "Name <email>"`)
	fs.BoolVar(&opts.WikiTime, "wikitime", false, "use each revision's own wiki timestamp as the commit time, instead of wall-clock time")
	fs.StringVar(&opts.AuthorDomain, "author-domain", "", `domain for synthesized author emails; defaults to "git."+<wiki domain>`)
	fs.BoolVar(&opts.Sort, "sort", false, "sort commits by wiki timestamp instead of streaming them in sidecar order")
	fs.StringVar(&opts.dirStructName, "directory-structure", "levitation", `tree layout policy: "levitation" or "github"`)
	fs.BoolVar(&opts.OnlyBlobs, "only-blobs", false, "do not commit yet, more files are expected: read a dump from stdin, emit its blobs and populate sidecars, then exit without reading the sidecars back. Run this once per dump chunk, then run without --only-blobs (and no stdin) to emit the accumulated commits")
	fs.BoolVar(&opts.Overwrite, "overwrite", false, "truncate existing sidecars instead of resuming from them")
	fs.BoolVar(&opts.NoLxml, "no-lxml", false, "accepted for compatibility with the original tool; this implementation always uses encoding/xml")

	fs.StringVar(&opts.MetaPath, "meta-path", "import-meta", "path to the revision metadata sidecar")
	fs.StringVar(&opts.CommPath, "comm-path", "import-comm", "path to the revision comment sidecar")
	fs.StringVar(&opts.UploPath, "uplo-path", "import-uplo", "path to the upload metadata sidecar")
	fs.StringVar(&opts.UpcoPath, "upco-path", "import-upco", "path to the upload comment sidecar")
	fs.StringVar(&opts.UserPath, "user-path", "import-user", "path to the username sidecar")
	fs.StringVar(&opts.PagePath, "page-path", "import-page", "path to the page title sidecar")
	fs.StringVar(&opts.StatePath, "state-path", "import-pkl", "path to the serialized global state")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	dirStruct, err := ParseDirStruct(opts.dirStructName)
	if err != nil {
		return nil, err
	}
	opts.DirStruct = dirStruct

	return opts, nil
}
