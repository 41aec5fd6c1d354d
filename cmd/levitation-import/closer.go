// SPDX-FileCopyrightText: 2022 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import (
	"io"

	"golang.org/x/sync/errgroup"
)

// closer collects the io.Closers acquired while opening the six
// record-store sidecar files and closes them together on every exit
// path, reporting the first failure even if more than one handle fails
// to close. The global-state file is not among them: LoadGlobalState
// and SaveGlobalState open and close it themselves.
type closer struct {
	closers []io.Closer
}

func (c *closer) add(cl io.Closer) {
	c.closers = append(c.closers, cl)
}

func (c *closer) Close() error {
	var g errgroup.Group
	for _, cl := range c.closers {
		cl := cl
		g.Go(cl.Close)
	}
	return g.Wait()
}
