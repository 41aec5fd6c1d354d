// SPDX-FileCopyrightText: 2022 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

// Command levitation-import reads a MediaWiki XML Export 0.10 dump from
// standard input and writes a git fast-import stream to standard
// output: one blob and one commit per page revision (and, optionally,
// per file upload), with tree paths that encode namespace and title.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
)

// logger writes diagnostic lines to a log file, independent of the
// `progress ...` protocol lines progressf also writes to standard
// output.
var logger *log.Logger

// progressOut is where progressf writes its `progress ...` lines; a
// package variable so tests can redirect it without touching os.Stdout.
var progressOut io.Writer = os.Stdout

// progressf writes a `progress <msg>` line to progressOut -- part of
// the fast-import stream protocol, readable by any consumer of this
// tool's standard output -- and, if a log file is open, the same
// message to it.
func progressf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(progressOut, "progress %s\n", msg)
	if logger != nil {
		logger.Println(msg)
	}
}

func main() {
	opts, err := ParseOptions(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	logfile, err := os.OpenFile("levitation-import.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "levitation-import: opening log file: %v\n", err)
		os.Exit(1)
	}
	defer logfile.Close()
	logger = log.New(logfile, "", log.Ldate|log.Ltime|log.LUTC|log.Lshortfile)
	logger.Printf("levitation-import starting up")

	if err := run(opts); err != nil {
		logger.Printf("levitation-import failed: %v", err)
		fmt.Fprintf(os.Stderr, "levitation-import: %v\n", err)
		os.Exit(1)
	}
	logger.Printf("levitation-import exiting")
}

// run opens the seven sidecars and then runs exactly one of the two
// passes: with --only-blobs, BlobWriter reads standard input and
// populates the sidecars (the workflow is to run this repeatedly, once
// per dump chunk, accumulating sidecars across invocations); otherwise
// Committer alone replays the already-populated sidecars into a commit
// stream, without touching standard input at all. The two passes are
// never run in the same invocation.
func run(opts *Options) error {
	c := &closer{}
	defer c.Close()

	meta, err := OpenMetaStore(opts.MetaPath)
	if err != nil {
		return err
	}
	c.add(meta)
	if opts.Overwrite {
		if err := meta.Truncate(); err != nil {
			return err
		}
	}

	comm, err := OpenStringStore(opts.CommPath)
	if err != nil {
		return err
	}
	c.add(comm)
	if opts.Overwrite {
		if err := comm.Truncate(); err != nil {
			return err
		}
	}

	uplo, err := OpenMetaStore(opts.UploPath)
	if err != nil {
		return err
	}
	c.add(uplo)
	if opts.Overwrite {
		if err := uplo.Truncate(); err != nil {
			return err
		}
	}

	upco, err := OpenStringStore(opts.UpcoPath)
	if err != nil {
		return err
	}
	c.add(upco)
	if opts.Overwrite {
		if err := upco.Truncate(); err != nil {
			return err
		}
	}

	user, err := OpenStringStore(opts.UserPath)
	if err != nil {
		return err
	}
	c.add(user)
	if opts.Overwrite {
		if err := user.Truncate(); err != nil {
			return err
		}
	}

	page, err := OpenStringStore(opts.PagePath)
	if err != nil {
		return err
	}
	c.add(page)
	if opts.Overwrite {
		if err := page.Truncate(); err != nil {
			return err
		}
	}

	var state *GlobalState
	if opts.Overwrite {
		state = NewGlobalState()
	} else {
		state, err = LoadGlobalState(opts.StatePath)
		if err != nil {
			return err
		}
	}

	stores := &Stores{Meta: meta, Comm: comm, Uplo: uplo, Upco: upco, User: user, Page: page, State: state}

	if opts.OnlyBlobs {
		input, err := detectInput(os.Stdin)
		if err != nil {
			return err
		}

		bw := NewBlobWriter(stores, os.Stdout, opts.Max)
		if err := bw.Parse(input); err != nil {
			return fmt.Errorf("pass 1 (blob writer): %w", err)
		}
		progressf("pass 1 complete: %d pages imported", bw.Imported())

		return SaveGlobalState(opts.StatePath, state)
	}

	committer := NewCommitter(stores, os.Stdout, CommitterOptions{
		Sort:         opts.Sort,
		Deepness:     opts.Deepness,
		DirStruct:    opts.DirStruct,
		Committer:    opts.Committer,
		WikiTime:     opts.WikiTime,
		AuthorDomain: opts.AuthorDomain,
	})
	if err := committer.Run(context.Background()); err != nil {
		return fmt.Errorf("pass 2 (committer): %w", err)
	}
	progressf("pass 2 complete")
	return nil
}
