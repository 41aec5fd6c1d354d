// SPDX-FileCopyrightText: 2022 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import (
	"path/filepath"
	"strings"
	"testing"
)

func newTestStores(t *testing.T) *Stores {
	t.Helper()
	dir := t.TempDir()
	meta, err := OpenMetaStore(filepath.Join(dir, "meta"))
	if err != nil {
		t.Fatal(err)
	}
	comm, err := OpenStringStore(filepath.Join(dir, "comm"))
	if err != nil {
		t.Fatal(err)
	}
	uplo, err := OpenMetaStore(filepath.Join(dir, "uplo"))
	if err != nil {
		t.Fatal(err)
	}
	upco, err := OpenStringStore(filepath.Join(dir, "upco"))
	if err != nil {
		t.Fatal(err)
	}
	user, err := OpenStringStore(filepath.Join(dir, "user"))
	if err != nil {
		t.Fatal(err)
	}
	page, err := OpenStringStore(filepath.Join(dir, "page"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		meta.Close()
		comm.Close()
		uplo.Close()
		upco.Close()
		user.Close()
		page.Close()
	})
	return &Stores{Meta: meta, Comm: comm, Uplo: uplo, Upco: upco, User: user, Page: page, State: NewGlobalState()}
}

const scenario1Dump = `<mediawiki xmlns="http://www.mediawiki.org/xml/export-0.10/">
  <siteinfo>
    <base>https://example.org/wiki/Main_Page</base>
    <namespaces>
      <namespace key="0"></namespace>
      <namespace key="6">File</namespace>
    </namespaces>
  </siteinfo>
  <page>
    <title>Foo</title>
    <id>1</id>
    <revision>
      <id>7</id>
      <timestamp>2020-01-02T03:04:05Z</timestamp>
      <contributor>
        <username>alice</username>
        <id>3</id>
      </contributor>
      <comment>init</comment>
      <text>hello</text>
    </revision>
  </page>
</mediawiki>`

func TestBlobWriterScenario1(t *testing.T) {
	stores := newTestStores(t)
	var out strings.Builder
	bw := NewBlobWriter(stores, &out, -1)

	if err := bw.Parse(strings.NewReader(scenario1Dump)); err != nil {
		t.Fatal(err)
	}

	if bw.Imported() != 1 {
		t.Errorf("Imported() = %d, want 1", bw.Imported())
	}

	want := "blob\nmark :22\ndata 5\nhello\n"
	if out.String() != want {
		t.Errorf("blob output = %q, want %q", out.String(), want)
	}

	rec, err := stores.Meta.Read(7)
	if err != nil {
		t.Fatal(err)
	}
	if !rec.Exists() {
		t.Fatal("revision 7 was not recorded")
	}
	if rec.Epoch != 1577934245 {
		t.Errorf("Epoch = %d, want 1577934245", rec.Epoch)
	}
	if rec.PageID != 1 {
		t.Errorf("PageID = %d, want 1", rec.PageID)
	}
	if rec.AuthorID().Uint64() != 3 {
		t.Errorf("AuthorID = %d, want 3", rec.AuthorID().Uint64())
	}
	if rec.IsIP() || rec.IsDeleted() || rec.IsUpload() {
		t.Errorf("unexpected flags on rec: %+v", rec)
	}

	comment, err := stores.Comm.Read(7)
	if err != nil {
		t.Fatal(err)
	}
	if comment.Text != "init" {
		t.Errorf("comment = %q, want \"init\"", comment.Text)
	}

	user, err := stores.User.Read(3)
	if err != nil {
		t.Fatal(err)
	}
	if user.Text != "alice" {
		t.Errorf("user = %q, want \"alice\"", user.Text)
	}

	page, err := stores.Page.Read(1)
	if err != nil {
		t.Fatal(err)
	}
	if page.Text != "Foo" || int32(page.Flags) != 0 {
		t.Errorf("page = %+v, want {Foo 0}", page)
	}

	if stores.State.Domain != "example.org" {
		t.Errorf("Domain = %q, want \"example.org\"", stores.State.Domain)
	}
	if stores.State.NSToID["File"] != 6 {
		t.Errorf("NSToID[File] = %d, want 6", stores.State.NSToID["File"])
	}
}

func TestBlobWriterImportMaxCancelsCleanly(t *testing.T) {
	dump := `<mediawiki xmlns="http://www.mediawiki.org/xml/export-0.10/">` +
		`<page><title>A</title><id>1</id></page>` +
		`<page><title>B</title><id>2</id></page>` +
		`<page><title>C</title><id>3</id></page>` +
		`</mediawiki>`

	stores := newTestStores(t)
	var out strings.Builder
	bw := NewBlobWriter(stores, &out, 2)

	if err := bw.Parse(strings.NewReader(dump)); err != nil {
		t.Fatal(err)
	}
	if bw.Imported() != 2 {
		t.Errorf("Imported() = %d, want 2 (IMPORT_MAX should stop, not error)", bw.Imported())
	}
}

func TestBlobWriterRejectsWrongRoot(t *testing.T) {
	stores := newTestStores(t)
	var out strings.Builder
	bw := NewBlobWriter(stores, &out, -1)

	err := bw.Parse(strings.NewReader(`<notmediawiki/>`))
	if err == nil {
		t.Error("Parse with a non-<mediawiki> root succeeded, want an error")
	}
}

func TestBlobWriterIPContributor(t *testing.T) {
	dump := `<mediawiki xmlns="http://www.mediawiki.org/xml/export-0.10/">
<page><title>Foo</title><id>1</id>
<revision><id>9</id><timestamp>2020-01-02T03:04:05Z</timestamp>
<contributor><ip>192.0.2.1</ip></contributor>
<text>x</text></revision>
</page></mediawiki>`

	stores := newTestStores(t)
	var out strings.Builder
	bw := NewBlobWriter(stores, &out, -1)
	if err := bw.Parse(strings.NewReader(dump)); err != nil {
		t.Fatal(err)
	}

	rec, err := stores.Meta.Read(9)
	if err != nil {
		t.Fatal(err)
	}
	if !rec.IsIP() {
		t.Error("IsIP() = false, want true")
	}
	if rec.AuthorID().IP() != "192.0.2.1" {
		t.Errorf("AuthorID().IP() = %q, want \"192.0.2.1\"", rec.AuthorID().IP())
	}
}
