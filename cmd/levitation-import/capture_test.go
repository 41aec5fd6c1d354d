// SPDX-FileCopyrightText: 2022 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import (
	"encoding/xml"
	"strings"
	"testing"
)

func TestSubtreeCaptureMaterializesNode(t *testing.T) {
	var captured *Node
	capture := NewSubtreeCapture(func(n *Node) { captured = n })

	stack := NewHandlerStack(frame{onStart: cases{
		"page": func(name xml.Name, attrs Attrs) frame {
			return frame{onStart: cases{"revision": capture.Start}.dispatch}
		},
	}.dispatch})

	source := NewXmlEventSource(stack)
	xmlDoc := `<page><revision><id>7</id><comment>init</comment></revision></page>`
	if err := source.Run(strings.NewReader(xmlDoc)); err != nil {
		t.Fatal(err)
	}

	if captured == nil {
		t.Fatal("capture callback was never invoked")
	}
	if captured.Name.Local != "revision" {
		t.Errorf("captured.Name.Local = %q, want \"revision\"", captured.Name.Local)
	}
	idNode := captured.Child("id")
	if idNode == nil {
		t.Fatal("captured has no <id> child")
	}
	text, err := singleText(idNode)
	if err != nil {
		t.Fatal(err)
	}
	if text != "7" {
		t.Errorf("<id> text = %q, want \"7\"", text)
	}
}

func TestSubtreeCaptureNestedPanics(t *testing.T) {
	capture := NewSubtreeCapture(func(n *Node) {})
	capture.Start(xml.Name{Local: "revision"}, nil)

	defer func() {
		if recover() == nil {
			t.Error("starting a nested capture on the same value did not panic")
		}
	}()
	capture.Start(xml.Name{Local: "revision"}, nil)
}

func TestSingleTextRejectsElementChild(t *testing.T) {
	n := &Node{
		Name: xml.Name{Local: "title"},
		Children: []any{
			"text",
			&Node{Name: xml.Name{Local: "nested"}},
		},
	}
	if _, err := singleText(n); err == nil {
		t.Error("singleText with an element child succeeded, want an error")
	}
}

func TestChildrenNamed(t *testing.T) {
	n := &Node{Children: []any{
		&Node{Name: xml.Name{Local: "namespace"}},
		"text",
		&Node{Name: xml.Name{Local: "namespace"}},
	}}
	if got := len(n.ChildrenNamed("namespace")); got != 2 {
		t.Errorf("ChildrenNamed(\"namespace\") returned %d nodes, want 2", got)
	}
}
