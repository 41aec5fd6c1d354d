// SPDX-FileCopyrightText: 2022 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// revisionInfo is one unit of Pass 2 work: a revision or upload's fixed
// metadata plus which store (and therefore mark class) it came from.
type revisionInfo struct {
	id       uint64
	isUpload bool
	rec      MetaRecord
}

// CommitterOptions is the Pass-2-relevant slice of the CLI surface.
type CommitterOptions struct {
	Sort         bool
	Deepness     int
	DirStruct    DirStruct
	Committer    string // the --committer flag, verbatim "Name <email>"
	WikiTime     bool
	AuthorDomain string
}

// Committer drives Pass 2: a linear scan over the sidecars BlobWriter
// populated that reconstructs each revision's context and emits the
// corresponding commit records.
type Committer struct {
	stores *Stores
	out    io.Writer
	opts   CommitterOptions
	paths  *PathBuilder
}

func NewCommitter(stores *Stores, out io.Writer, opts CommitterOptions) *Committer {
	return &Committer{
		stores: stores,
		out:    out,
		opts:   opts,
		paths:  NewPathBuilder(opts.DirStruct, opts.Deepness, stores.State.IDToNS),
	}
}

// Run emits one commit per revision and upload info, chained in
// emission order. Without --sort it streams lazily in store order;
// with --sort it routes through epochsort.go's external merge sort.
func (c *Committer) Run(ctx context.Context) error {
	if !c.opts.Sort {
		return c.runSequential()
	}
	return c.runSorted(ctx)
}

func (c *Committer) runSequential() error {
	num := int64(0)
	emit := func(info revisionInfo) error {
		if err := c.emit(info, num); err != nil {
			return err
		}
		num++
		return nil
	}
	if err := c.scanStore(c.stores.Meta, false, emit); err != nil {
		return err
	}
	return c.scanStore(c.stores.Uplo, true, emit)
}

// scanStore walks store from id 0 up to its current size, skipping
// slots that were never written. The store's size (file length /
// record size) is itself the bound on ids ever written, since writeAt
// never extends the file past the highest id it has written.
func (c *Committer) scanStore(store *MetaStore, isUpload bool, emit func(revisionInfo) error) error {
	size, err := store.Size()
	if err != nil {
		return fmt.Errorf("reading store size: %w", err)
	}
	for id := uint64(0); id < size; id++ {
		rec, err := store.Read(id)
		if err != nil {
			return fmt.Errorf("reading record %d: %w", id, err)
		}
		if !rec.Exists() {
			continue
		}
		if err := emit(revisionInfo{id: id, isUpload: isUpload, rec: rec}); err != nil {
			return err
		}
	}
	return nil
}

// runSorted materializes the revision sequence through extsort so Pass
// 2 never has to hold every revision's metadata in memory at once, then
// streams the sorted result, assigning commit numbers in sorted order.
func (c *Committer) runSorted(ctx context.Context) error {
	produced := make(chan revisionInfo, 1024)
	scanErrCh := make(chan error, 1)
	go func() {
		defer close(produced)
		send := func(info revisionInfo) error {
			produced <- info
			return nil
		}
		if err := c.scanStore(c.stores.Meta, false, send); err != nil {
			scanErrCh <- err
			return
		}
		if err := c.scanStore(c.stores.Uplo, true, send); err != nil {
			scanErrCh <- err
			return
		}
		scanErrCh <- nil
	}()

	sorted, sortErrCh := sortByEpoch(ctx, produced)
	num := int64(0)
	for info := range sorted {
		if err := c.emit(info, num); err != nil {
			return err
		}
		num++
	}
	if err := <-sortErrCh; err != nil {
		return err
	}
	return <-scanErrCh
}

// emit reconstructs one revision's context and writes its commit
// record.
func (c *Committer) emit(info revisionInfo, num int64) error {
	page, err := c.stores.Page.Read(uint64(info.rec.PageID))
	if err != nil {
		return fmt.Errorf("reading page %d: %w", info.rec.PageID, err)
	}
	nsID := int32(page.Flags)

	path, err := c.paths.Path(nsID, page.Text, info.isUpload)
	if err != nil {
		return fmt.Errorf("building path for page %d: %w", info.rec.PageID, err)
	}

	commStore := c.stores.Comm
	blobMark := RevisionMark(info.id)
	if info.isUpload {
		commStore = c.stores.Upco
		blobMark = UploadMark(info.id)
	}
	commentRec, err := commStore.Read(info.id)
	if err != nil {
		return fmt.Errorf("reading comment %d: %w", info.id, err)
	}

	author, email, err := c.resolveAuthorEmail(info.rec)
	if err != nil {
		return err
	}

	message := c.composeMessage(info, commentRec.Text)
	committime, offset := c.commitTime(info.rec.Epoch)
	commitMark := CommitMark(num)

	var buf strings.Builder
	fmt.Fprintf(&buf, "commit refs/heads/master\n")
	fmt.Fprintf(&buf, "mark :%d\n", commitMark)
	fmt.Fprintf(&buf, "author %s <%s> %d +0000\n", author, email, info.rec.Epoch)
	fmt.Fprintf(&buf, "committer %s %d %s\n", c.opts.Committer, committime, offset)
	fmt.Fprintf(&buf, "data %d\n%s\n", len(message), message)
	if num > 0 {
		fmt.Fprintf(&buf, "from :%d\n", CommitMark(num-1))
	}
	fmt.Fprintf(&buf, "M 100644 :%d %s\n\n", blobMark, path)

	if _, err := io.WriteString(c.out, buf.String()); err != nil {
		return fmt.Errorf("writing commit %d: %w", num, err)
	}
	return nil
}

// resolveAuthorEmail turns a revision's author record into a commit
// "author" display name and a synthesized, stable email address.
func (c *Committer) resolveAuthorEmail(rec MetaRecord) (author, email string, err error) {
	domain := c.opts.AuthorDomain
	if domain == "" {
		domain = "git." + c.stores.State.Domain
	}

	var uid string
	switch {
	case rec.IsIP():
		author = rec.AuthorID().IP()
		uid = "ip-" + author
	case rec.IsDeleted():
		author = "[deleted user]"
		uid = "deleted"
	default:
		userID := rec.AuthorID().Uint64()
		userRec, readErr := c.stores.User.Read(userID)
		if readErr != nil {
			return "", "", fmt.Errorf("reading user %d: %w", userID, readErr)
		}
		author = userRec.Text
		uid = fmt.Sprintf("uid-%d", userID)
	}
	return author, uid + "@" + domain, nil
}

// composeMessage builds the commit message body for a revision or
// upload, preserving the wiki edit comment and noting provenance. The
// page is identified by its numeric id, not its title, matching the
// original source's info['page'].
func (c *Committer) composeMessage(info revisionInfo, comment string) string {
	if info.isUpload {
		return fmt.Sprintf("%s\n\nLevitation import of an upload for page %d", comment, info.rec.PageID)
	}
	minor := ""
	if info.rec.Minor() {
		minor = " (minor)"
	}
	return fmt.Sprintf("%s\n\nLevitation import of page %d rev %d%s.\n", comment, info.rec.PageID, info.id, minor)
}

// commitTime picks the committer timestamp: the revision's own wiki
// epoch under --wikitime, otherwise wall-clock time.
func (c *Committer) commitTime(epoch uint32) (int64, string) {
	if c.opts.WikiTime {
		return int64(epoch), "+0000"
	}
	now := time.Now()
	_, offsetSeconds := now.Zone()
	return now.Unix(), formatTZOffset(offsetSeconds)
}

// formatTZOffset renders a signed UTC offset in seconds as a
// git-fast-import-compatible "+HHMM"/"-HHMM" string. time.Time.Zone
// never errors; an unknown zone reports an offset of 0, which formats
// here as "+0000" without a separate fallback code path.
func formatTZOffset(seconds int) string {
	sign := "+"
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	return fmt.Sprintf("%s%02d%02d", sign, seconds/3600, (seconds%3600)/60)
}
