package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/sheikhcoders/opensheikh/conversation"
	"github.com/sheikhcoders/opensheikh/notice"
	"github.com/sheikhcoders/opensheikh/status"
)

const roleWidth = 10

// printTimeline writes one block per timeline entry.
func printTimeline(w io.Writer, entries []notice.Entry) {
	for _, e := range entries {
		switch {
		case e.Message != nil:
			printMessage(w, *e.Message)
		case e.Notice != nil:
			printNotice(w, *e.Notice)
		}
	}
}

func printMessage(w io.Writer, m conversation.Message) {
	header := runewidth.FillRight(string(m.Role), roleWidth)
	if ts := m.CreatedAt(); !ts.IsZero() {
		header += ts.Format(time.TimeOnly) + "  "
	}
	fmt.Fprintf(w, "%s%s\n", header, m.ID)
	for _, p := range m.Parts {
		if line := partLine(p, m.Metadata); line != "" {
			fmt.Fprintf(w, "%s%s\n", strings.Repeat(" ", roleWidth), line)
		}
	}
	if m.Metadata != nil && m.Metadata.Error != "" {
		fmt.Fprintf(w, "%s! %s\n", strings.Repeat(" ", roleWidth), m.Metadata.Error)
	}
}

func partLine(p conversation.Part, meta *conversation.Metadata) string {
	switch p.Type {
	case conversation.PartTypeText:
		return strings.TrimSpace(p.Text)
	case conversation.PartTypeReasoning:
		if text := strings.TrimSpace(p.Text); text != "" {
			return "~ " + status.Truncate(text, 120)
		}
	case conversation.PartTypeTool:
		return status.ContextualToolStatus(p, meta)
	}
	return ""
}

func printNotice(w io.Writer, n notice.Notice) {
	marker := "•"
	if n.Kind == notice.KindError {
		marker = "!"
	}
	fmt.Fprintf(w, "%s%s %s\n", runewidth.FillRight("", roleWidth), marker, n.Text)
}
