// SPDX-FileCopyrightText: 2022 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import "testing"

func TestParseOptionsDefaults(t *testing.T) {
	opts, err := ParseOptions(nil)
	if err != nil {
		t.Fatal(err)
	}
	if opts.Max != -1 {
		t.Errorf("Max = %d, want -1", opts.Max)
	}
	if opts.Deepness != 1 {
		t.Errorf("Deepness = %d, want 1", opts.Deepness)
	}
	if opts.DirStruct != DirStructLevitation {
		t.Errorf("DirStruct = %v, want DirStructLevitation", opts.DirStruct)
	}
	if opts.MetaPath != "import-meta" {
		t.Errorf("MetaPath = %q, want \"import-meta\"", opts.MetaPath)
	}
}

func TestParseOptionsOverrides(t *testing.T) {
	opts, err := ParseOptions([]string{
		"--max", "10",
		"--deepness", "3",
		"--sort",
		"--wikitime",
		"--directory-structure", "github",
		"--committer", "Bot <bot@example.org>",
	})
	if err != nil {
		t.Fatal(err)
	}
	if opts.Max != 10 || opts.Deepness != 3 || !opts.Sort || !opts.WikiTime {
		t.Errorf("opts = %+v", opts)
	}
	if opts.DirStruct != DirStructGitHub {
		t.Errorf("DirStruct = %v, want DirStructGitHub", opts.DirStruct)
	}
	if opts.Committer != "Bot <bot@example.org>" {
		t.Errorf("Committer = %q", opts.Committer)
	}
}

func TestParseOptionsRejectsUnknownDirStruct(t *testing.T) {
	if _, err := ParseOptions([]string{"--directory-structure", "bogus"}); err == nil {
		t.Error("ParseOptions with an unknown --directory-structure succeeded, want an error")
	}
}
