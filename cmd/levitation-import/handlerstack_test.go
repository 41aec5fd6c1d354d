// SPDX-FileCopyrightText: 2022 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import (
	"encoding/xml"
	"errors"
	"testing"
)

func TestHandlerStackDispatchesNested(t *testing.T) {
	var events []string
	inner := frame{
		onStart: func(name xml.Name, attrs Attrs) frame {
			events = append(events, "start:"+name.Local)
			return frame{}
		},
		onEnd: func(name xml.Name) {
			events = append(events, "end:"+name.Local)
		},
		onText: func(content string) {
			events = append(events, "text:"+content)
		},
	}
	root := frame{onStart: func(name xml.Name, attrs Attrs) frame {
		events = append(events, "start:"+name.Local)
		return inner
	}}

	stack := NewHandlerStack(root)
	stack.StartElement(xml.Name{Local: "page"}, nil)
	stack.StartElement(xml.Name{Local: "title"}, nil)
	stack.CharData("Foo")
	if err := stack.EndElement(xml.Name{Local: "title"}); err != nil {
		t.Fatal(err)
	}
	if err := stack.EndElement(xml.Name{Local: "page"}); err != nil {
		t.Fatal(err)
	}

	// <title> gets the null frame inner.onStart returned, so "Foo" is
	// discarded; inner is <page>'s frame, so its onEnd sees </page>.
	want := []string{"start:page", "start:title", "end:page"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}

func TestHandlerStackUnbalancedEnd(t *testing.T) {
	stack := NewHandlerStack(frame{})
	err := stack.EndElement(xml.Name{Local: "x"})
	if !errors.Is(err, ErrUnbalancedXML) {
		t.Errorf("EndElement on empty stack = %v, want ErrUnbalancedXML", err)
	}
}

func TestHandlerStackCancel(t *testing.T) {
	stack := NewHandlerStack(frame{})
	if stack.Canceled() {
		t.Fatal("Canceled() = true before Cancel()")
	}
	stack.Cancel()
	if !stack.Canceled() {
		t.Fatal("Canceled() = false after Cancel()")
	}
}

func TestCasesDispatchesByLocalName(t *testing.T) {
	var called string
	c := cases{
		"title": func(name xml.Name, attrs Attrs) frame {
			called = "title"
			return frame{}
		},
		"id": func(name xml.Name, attrs Attrs) frame {
			called = "id"
			return frame{}
		},
	}
	c.dispatch(xml.Name{Local: "id"}, nil)
	if called != "id" {
		t.Errorf("dispatch picked %q, want \"id\"", called)
	}

	called = ""
	c.dispatch(xml.Name{Local: "unknown"}, nil)
	if called != "" {
		t.Errorf("dispatch on unknown element called %q, want no-op", called)
	}
}
