// SPDX-FileCopyrightText: 2022 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// Node is one element of a subtree materialized by SubtreeCapture:
// its qualified name, its attributes, and its ordered children, each
// either a *Node (child element) or a string (a run of character data).
// Text children are appended as separate entries, not coalesced, so
// Children preserves exactly the sequence of events the parser saw.
type Node struct {
	Name     xml.Name
	Attrs    Attrs
	Children []any
}

// Child returns the first child element with the given local name, or
// nil if there is none.
func (n *Node) Child(local string) *Node {
	for _, c := range n.Children {
		if child, ok := c.(*Node); ok && child.Name.Local == local {
			return child
		}
	}
	return nil
}

// ChildrenNamed returns every child element with the given local name,
// in document order.
func (n *Node) ChildrenNamed(local string) []*Node {
	var result []*Node
	for _, c := range n.Children {
		if child, ok := c.(*Node); ok && child.Name.Local == local {
			result = append(result, child)
		}
	}
	return result
}

// singleText concatenates n's children and requires every one of them
// to be character data; an element child is a malformed-XML error. This
// is the Go equivalent of the original source's singletext() helper,
// used for leaf elements like <title>, <id>, <timestamp>, <comment>.
func singleText(n *Node) (string, error) {
	var b strings.Builder
	for _, c := range n.Children {
		switch v := c.(type) {
		case string:
			b.WriteString(v)
		case *Node:
			return "", fmt.Errorf("malformed XML: <%s> child <%s> is not text", n.Name.Local, v.Name.Local)
		}
	}
	return b.String(), nil
}

// SubtreeCapture is a reusable HandlerStack frame that materializes an
// entire subtree into a Node tree and, on the subtree's end tag, invokes
// cb with the root. Only one capture may be active through a given
// SubtreeCapture value at a time; starting a nested capture through the
// same value is a programming error (the original source raises
// XMLError "Capture requested while already in progress").
type SubtreeCapture struct {
	cb      func(*Node)
	root    *Node
	current *Node
	active  bool
}

func NewSubtreeCapture(cb func(*Node)) *SubtreeCapture {
	return &SubtreeCapture{cb: cb}
}

// Start is the startHandler to install on whatever frame should trigger
// this capture, e.g. cases{"title": capture.Start}.
func (c *SubtreeCapture) Start(name xml.Name, attrs Attrs) frame {
	if c.active {
		panic("SubtreeCapture: capture requested while already in progress")
	}
	c.active = true
	c.root = &Node{Name: name, Attrs: attrs}
	c.current = c.root
	return frame{onStart: c.startChild, onEnd: c.endRoot, onText: c.text}
}

func (c *SubtreeCapture) startChild(name xml.Name, attrs Attrs) frame {
	child := &Node{Name: name, Attrs: attrs}
	c.current.Children = append(c.current.Children, child)
	parent := c.current
	c.current = child
	return frame{
		onStart: c.startChild,
		onEnd:   func(xml.Name) { c.current = parent },
		onText:  c.text,
	}
}

func (c *SubtreeCapture) text(content string) {
	c.current.Children = append(c.current.Children, content)
}

func (c *SubtreeCapture) endRoot(name xml.Name) {
	root := c.root
	c.active, c.root, c.current = false, nil, nil
	if c.cb != nil {
		c.cb(root)
	}
}
