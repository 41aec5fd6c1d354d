// SPDX-FileCopyrightText: 2022 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// mediawikiNamespace is the one XML namespace this tool understands.
const mediawikiNamespace = "http://www.mediawiki.org/xml/export-0.10/"

// Stores bundles the seven sidecar handles BlobWriter populates during
// Pass 1 and Committer later reads during Pass 2. It is the Go shape of
// the original source's `meta` dict.
type Stores struct {
	Meta  *MetaStore   // import-meta: per-revision metadata
	Comm  *StringStore // import-comm: revision comments
	Uplo  *MetaStore   // import-uplo: per-upload metadata
	Upco  *StringStore // import-upco: upload comments
	User  *StringStore // import-user: usernames, keyed by numeric user id
	Page  *StringStore // import-page: page titles, keyed by page id
	State *GlobalState
}

// pageInProgress tracks the single page that may be alive at a time.
type pageInProgress struct {
	id        uint64
	idSet     bool
	nsID      int32
	title     string
	fullTitle string
}

// setTitle splits on the first ':'; a recognized namespace prefix routes
// the page there, otherwise it belongs to the main namespace (whichever
// namespace id maps from the empty-string name).
func (p *pageInProgress) setTitle(title string, state *GlobalState) {
	p.fullTitle = title
	if idx := strings.IndexByte(title, ':'); idx >= 0 {
		if nsID, ok := state.NSToID[title[:idx]]; ok {
			p.nsID, p.title = nsID, title[idx+1:]
			return
		}
	}
	p.nsID, p.title = state.NSToID[""], title
}

// saveTitle writes the page's StringStore record once both its id and a
// non-empty title are known. The record's repurposed flags field holds
// the namespace id.
func (p *pageInProgress) saveTitle(store *StringStore) error {
	if !p.idSet || p.title == "" {
		return nil
	}
	return store.Write(p.id, p.title, uint32(p.nsID))
}

// BlobWriter orchestrates Pass 1: it drives a HandlerStack over the
// dump, emitting a `blob` record per revision or upload to out, and
// populating Stores as it goes.
type BlobWriter struct {
	stores    *Stores
	out       io.Writer
	importMax int
	imported  int

	stack *HandlerStack
	err   error
	page  *pageInProgress
}

func NewBlobWriter(stores *Stores, out io.Writer, importMax int) *BlobWriter {
	return &BlobWriter{stores: stores, out: out, importMax: importMax}
}

// Imported returns how many pages were fully processed. Used by the
// IMPORT_MAX acceptance test (property P7).
func (bw *BlobWriter) Imported() int { return bw.imported }

// Parse drives bw over r. It returns nil on a clean EOF and nil on an
// IMPORT_MAX cancellation alike; any other error is fatal.
func (bw *BlobWriter) Parse(r io.Reader) error {
	bw.stack = NewHandlerStack(frame{onStart: bw.startRoot})
	if err := NewXmlEventSource(bw.stack).Run(r); err != nil {
		return err
	}
	return bw.err
}

// fail records a fatal error and raises the cancellation signal so
// XmlEventSource.Run stops; it returns a null frame so call sites can
// write `return bw.fail(err)` directly from a startHandler.
func (bw *BlobWriter) fail(err error) frame {
	bw.failCB(err)
	return frame{}
}

// failCB is fail's counterpart for callbacks (SubtreeCapture callbacks,
// onEnd handlers) that don't return a frame.
func (bw *BlobWriter) failCB(err error) {
	if bw.err == nil {
		bw.err = err
	}
	bw.stack.Cancel()
}

func (bw *BlobWriter) startRoot(name xml.Name, attrs Attrs) frame {
	if name.Space != mediawikiNamespace {
		return bw.fail(fmt.Errorf("malformed XML: document needs to be in MediaWiki Export Format 0.10"))
	}
	if name.Local != "mediawiki" {
		return bw.fail(fmt.Errorf("malformed XML: document tag is not <mediawiki>"))
	}
	return frame{onStart: cases{
		"siteinfo": bw.startSiteinfo,
		"page":     bw.startPage,
	}.dispatch}
}

func (bw *BlobWriter) startSiteinfo(name xml.Name, attrs Attrs) frame {
	return frame{onStart: cases{
		"base":       NewSubtreeCapture(bw.captureBase).Start,
		"namespaces": bw.startNamespaces,
	}.dispatch}
}

func (bw *BlobWriter) startNamespaces(name xml.Name, attrs Attrs) frame {
	return frame{onStart: cases{
		"namespace": func(n xml.Name, a Attrs) frame {
			return NewSubtreeCapture(bw.captureNamespace).Start(n, a)
		},
	}.dispatch}
}

func (bw *BlobWriter) captureBase(node *Node) {
	text, err := singleText(node)
	if err != nil {
		bw.failCB(err)
		return
	}
	u, err := url.Parse(text)
	if err != nil {
		bw.failCB(fmt.Errorf("malformed XML: <base>%s</base>: %w", text, err))
		return
	}
	bw.stores.State.Domain = u.Hostname()
}

func (bw *BlobWriter) captureNamespace(node *Node) {
	keyAttr, ok := node.Attrs[xml.Name{Local: "key"}]
	if !ok {
		bw.failCB(fmt.Errorf("malformed XML: <namespace> is missing its key attribute"))
		return
	}
	key, err := strconv.Atoi(keyAttr)
	if err != nil {
		bw.failCB(fmt.Errorf("malformed XML: <namespace key=%q>: %w", keyAttr, err))
		return
	}
	name, err := singleText(node)
	if err != nil {
		bw.failCB(err)
		return
	}
	bw.stores.State.AddNamespace(int32(key), name)
}

func (bw *BlobWriter) startPage(name xml.Name, attrs Attrs) frame {
	if bw.page != nil {
		return bw.fail(fmt.Errorf("malformed XML: <page> capture requested while already in progress"))
	}
	bw.page = &pageInProgress{}
	return frame{
		onStart: cases{
			"title":    NewSubtreeCapture(bw.captureTitle).Start,
			"id":       NewSubtreeCapture(bw.capturePageID).Start,
			"revision": NewSubtreeCapture(bw.captureRevision).Start,
			"upload":   NewSubtreeCapture(bw.captureUpload).Start,
		}.dispatch,
		onEnd: bw.endPage,
	}
}

func (bw *BlobWriter) endPage(xml.Name) {
	if bw.page == nil {
		bw.failCB(fmt.Errorf("malformed XML: </page> without a matching <page>"))
		return
	}
	bw.page = nil
	bw.imported++
	if bw.importMax > 0 && bw.imported >= bw.importMax {
		bw.stack.Cancel()
	}
}

func (bw *BlobWriter) captureTitle(node *Node) {
	text, err := singleText(node)
	if err != nil {
		bw.failCB(err)
		return
	}
	bw.page.setTitle(text, bw.stores.State)
	progressf("   %s", bw.page.fullTitle)
}

func (bw *BlobWriter) capturePageID(node *Node) {
	text, err := singleText(node)
	if err != nil {
		bw.failCB(err)
		return
	}
	id, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		bw.failCB(fmt.Errorf("malformed XML: <page><id>%s</id>: %w", text, err))
		return
	}
	bw.page.id, bw.page.idSet = id, true
	if err := bw.page.saveTitle(bw.stores.Page); err != nil {
		bw.failCB(err)
	}
}

func (bw *BlobWriter) captureRevision(node *Node) { bw.addRevision(node, false) }
func (bw *BlobWriter) captureUpload(node *Node)   { bw.addRevision(node, true) }

// parsedRevision is the intermediate shape filled in while walking a
// <revision> or <upload> subtree, before it is turned into store writes
// and a blob.
type parsedRevision struct {
	hasID       bool
	id          uint64
	timestamp   time.Time
	contributor parsedContributor
	minor       bool
	comment     string
	contents    []byte
}

type parsedContributor struct {
	username  string
	userID    uint64
	ip        string
	hasIP     bool
	isDeleted bool
}

func parseRevisionNode(node *Node) (parsedRevision, error) {
	var p parsedRevision
	for _, c := range node.Children {
		child, ok := c.(*Node)
		if !ok {
			continue
		}
		switch child.Name.Local {
		case "id":
			text, err := singleText(child)
			if err != nil {
				return p, err
			}
			id, err := strconv.ParseUint(text, 10, 64)
			if err != nil {
				return p, fmt.Errorf("malformed XML: <id>%s</id>: %w", text, err)
			}
			p.id, p.hasID = id, true
		case "timestamp":
			text, err := singleText(child)
			if err != nil {
				return p, err
			}
			ts, err := time.Parse("2006-01-02T15:04:05Z", text)
			if err != nil {
				return p, fmt.Errorf("malformed XML: <timestamp>%s</timestamp>: %w", text, err)
			}
			p.timestamp = ts
		case "contributor":
			contributor, err := parseContributor(child)
			if err != nil {
				return p, err
			}
			p.contributor = contributor
		case "minor":
			p.minor = true
		case "comment":
			text, err := singleText(child)
			if err != nil {
				return p, err
			}
			p.comment = text
		case "text":
			text, err := singleText(child)
			if err != nil {
				return p, err
			}
			p.contents = []byte(text)
		case "contents":
			text, err := singleText(child)
			if err != nil {
				return p, err
			}
			decoded, err := base64.StdEncoding.DecodeString(text)
			if err != nil {
				return p, fmt.Errorf("malformed XML: <contents> is not valid base64: %w", err)
			}
			p.contents = decoded
		}
	}
	return p, nil
}

func parseContributor(node *Node) (parsedContributor, error) {
	var c parsedContributor
	if v, ok := node.Attrs[xml.Name{Local: "deleted"}]; ok && v == "deleted" {
		c.isDeleted = true
	}
	for _, ch := range node.Children {
		child, ok := ch.(*Node)
		if !ok {
			continue
		}
		switch child.Name.Local {
		case "username":
			text, err := singleText(child)
			if err != nil {
				return c, err
			}
			c.username = text
		case "id":
			text, err := singleText(child)
			if err != nil {
				return c, err
			}
			id, err := strconv.ParseUint(text, 10, 64)
			if err != nil {
				return c, fmt.Errorf("malformed XML: <contributor><id>%s</id>: %w", text, err)
			}
			c.userID = id
		case "ip":
			text, err := singleText(child)
			if err != nil {
				return c, err
			}
			c.ip, c.hasIP = text, true
		}
	}
	return c, nil
}

// resolvedAuthor is the tagged union a revision's author resolves to:
// either a numeric wiki user id, a packed IP address, or a marker for a
// deleted user, discriminated by isIP/isDeleted.
type resolvedAuthor struct {
	id        uint128
	isIP      bool
	isDeleted bool
	name      string
}

func resolveAuthor(c parsedContributor) (resolvedAuthor, error) {
	if c.isDeleted {
		return resolvedAuthor{isDeleted: true}, nil
	}
	if c.hasIP {
		ip := net.ParseIP(c.ip)
		if ip == nil {
			return resolvedAuthor{}, fmt.Errorf("malformed XML: <contributor><ip>%s</ip> is not a valid IP address", c.ip)
		}
		packed, err := uint128FromIP(ip)
		if err != nil {
			return resolvedAuthor{}, err
		}
		return resolvedAuthor{id: packed, isIP: true}, nil
	}
	return resolvedAuthor{id: uint128FromUint64(c.userID), name: c.username}, nil
}

// addRevision handles the common core of <revision> and <upload>: parse
// children, resolve the author, write the MetaStore/StringStore
// records, and emit the blob.
func (bw *BlobWriter) addRevision(node *Node, upload bool) {
	if bw.page == nil {
		bw.failCB(fmt.Errorf("malformed XML: <%s> outside of <page>", node.Name.Local))
		return
	}

	parsed, err := parseRevisionNode(node)
	if err != nil {
		bw.failCB(err)
		return
	}

	author, err := resolveAuthor(parsed.contributor)
	if err != nil {
		bw.failCB(err)
		return
	}

	var id uint64
	var metaStore *MetaStore
	var commStore *StringStore
	if upload {
		if parsed.hasID {
			id = parsed.id
			if id > bw.stores.State.MaxUploadID {
				bw.stores.State.MaxUploadID = id
			}
		} else {
			bw.stores.State.MaxUploadID++
			id = bw.stores.State.MaxUploadID
		}
		metaStore, commStore = bw.stores.Uplo, bw.stores.Upco
	} else {
		id = parsed.id
		metaStore, commStore = bw.stores.Meta, bw.stores.Comm
	}

	flags := revisionFlags(0)
	if parsed.minor {
		flags |= flagMinor
	}
	if author.isIP {
		flags |= flagIsIP
	}
	if author.isDeleted {
		flags |= flagIsDeleted
	}
	if upload {
		flags |= flagIsUpload
	}

	rec := MetaRecord{
		RevID:    uint32(id),
		Epoch:    uint32(parsed.timestamp.Unix()),
		PageID:   uint32(bw.page.id),
		AuthorHi: author.id.hi,
		AuthorLo: author.id.lo,
		Flags:    flags,
	}
	if err := metaStore.Write(id, rec); err != nil {
		bw.failCB(err)
		return
	}

	if parsed.comment != "" {
		if err := commStore.Write(id, parsed.comment, 1); err != nil {
			bw.failCB(err)
			return
		}
	}

	if !author.isIP && !author.isDeleted {
		if err := bw.stores.User.Write(author.id.Uint64(), author.name, 1); err != nil {
			bw.failCB(err)
			return
		}
	}

	mark := RevisionMark(id)
	if upload {
		mark = UploadMark(id)
	}
	if _, err := fmt.Fprintf(bw.out, "blob\nmark :%d\ndata %d\n", mark, len(parsed.contents)); err != nil {
		bw.failCB(err)
		return
	}
	if _, err := bw.out.Write(parsed.contents); err != nil {
		bw.failCB(err)
		return
	}
	if _, err := bw.out.Write([]byte("\n")); err != nil {
		bw.failCB(err)
		return
	}
}
