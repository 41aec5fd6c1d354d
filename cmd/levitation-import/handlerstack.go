// SPDX-FileCopyrightText: 2022 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import (
	"encoding/xml"
	"errors"
)

// ErrUnbalancedXML is returned when an end-element event arrives with no
// matching frame left on the stack.
var ErrUnbalancedXML = errors.New("malformed XML: more closing tags than opening tags")

// Attrs maps a namespace-qualified attribute name to its string value.
type Attrs map[xml.Name]string

// startHandler is called on the start of a sub-element of the currently
// active frame. It returns the frame that becomes active for the
// duration of that sub-element.
type startHandler func(name xml.Name, attrs Attrs) frame

// endHandler is called on the end of the element that pushed the active
// frame, just before it is popped.
type endHandler func(name xml.Name)

// textHandler is called for each run of character data inside the
// active frame's element.
type textHandler func(content string)

// frame is the (start, end, text) triple HandlerStack dispatches to.
// Any of the three may be nil, in which case that event is either
// ignored (onText) or the subtree is absorbed into a null frame
// (onStart: nested elements are walked but dispatch nowhere).
type frame struct {
	onStart startHandler
	onEnd   endHandler
	onText  textHandler
}

// HandlerStack is the central state machine driving Pass 1. Sub-parsers
// are values: a start handler returns the next frame to become active,
// and HandlerStack keeps the previously active frames on an explicit
// stack. This lets the whole dump be walked with O(1) extra state per
// page, rather than with ad-hoc depth counters.
type HandlerStack struct {
	active   frame
	stack    []frame
	canceled bool
}

// NewHandlerStack creates a HandlerStack whose initial active frame is
// root. root.onEnd is only called by an end event that arrives with
// nothing left to pop, which EndElement then reports as
// ErrUnbalancedXML.
func NewHandlerStack(root frame) *HandlerStack {
	return &HandlerStack{active: root, stack: make([]frame, 0, 8)}
}

// Cancel raises the internal, non-error cancellation signal: a handler
// calls this (instead of returning an error) when it wants the driving
// XmlEventSource to stop reading after the current token, without that
// being treated as a failure. This is how BlobWriter implements
// IMPORT_MAX.
func (h *HandlerStack) Cancel() { h.canceled = true }

// Canceled reports whether Cancel has been called.
func (h *HandlerStack) Canceled() bool { return h.canceled }

// StartElement processes the start of an element.
func (h *HandlerStack) StartElement(name xml.Name, attrs Attrs) {
	var next frame
	if h.active.onStart != nil {
		next = h.active.onStart(name, attrs)
	}
	h.stack = append(h.stack, h.active)
	h.active = next
}

// EndElement processes the end of an element: it calls the active
// frame's end handler, then pops back to the frame that was active
// before the matching StartElement.
func (h *HandlerStack) EndElement(name xml.Name) error {
	if h.active.onEnd != nil {
		h.active.onEnd(name)
	}
	if len(h.stack) == 0 {
		return ErrUnbalancedXML
	}
	n := len(h.stack) - 1
	h.active = h.stack[n]
	h.stack = h.stack[:n]
	return nil
}

// CharData processes a text node, dispatching to the active frame's
// text handler if there is one, discarding it otherwise.
func (h *HandlerStack) CharData(content string) {
	if h.active.onText != nil {
		h.active.onText(content)
	}
}

// Depth returns how many frames are currently on the stack, for tests
// and diagnostics only.
func (h *HandlerStack) Depth() int {
	return len(h.stack)
}

// cases dispatches a start event to one of several handlers by the
// element's local name, ignoring (pushing a null frame for) anything
// else. This is the Go shape of the original source's Cases class.
type cases map[string]startHandler

func (c cases) dispatch(name xml.Name, attrs Attrs) frame {
	if h, ok := c[name.Local]; ok {
		return h(name, attrs)
	}
	return frame{}
}
