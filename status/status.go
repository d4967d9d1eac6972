// Package status derives user-facing status text from the tool execution
// state carried by messages and parts. Every function is pure and total:
// any message, including one without tool parts, maps to a defined value.
package status

import (
	"fmt"

	"github.com/sheikhcoders/opensheikh/conversation"
)

// Progress counts tool parts of a message by state.
type Progress struct {
	Total     int
	Pending   int
	Running   int
	Completed int
	Errored   int
}

// Finished is the number of tools in a terminal state.
func (p Progress) Finished() int {
	return p.Completed + p.Errored
}

// ToolProgress counts the tool parts of m.
func ToolProgress(m conversation.Message) Progress {
	return progressOf(m.Parts)
}

func progressOf(parts []conversation.Part) Progress {
	var p Progress
	for _, part := range parts {
		if !part.IsTool() {
			continue
		}
		p.Total++
		switch part.State.Status {
		case conversation.ToolStatusPending:
			p.Pending++
		case conversation.ToolStatusRunning:
			p.Running++
		case conversation.ToolStatusCompleted:
			p.Completed++
		case conversation.ToolStatusError:
			p.Errored++
		}
	}
	return p
}

// HasActiveToolExecution reports whether any tool part of m is running.
func HasActiveToolExecution(m conversation.Message) bool {
	for _, part := range m.Parts {
		if part.Status() == conversation.ToolStatusRunning {
			return true
		}
	}
	return false
}

// OverallToolStatus summarises a message's tool parts. The most advanced
// unfinished tool wins (running over pending, latest over earlier); when
// nothing is unfinished the finished count is reported. No tool parts
// yields "".
func OverallToolStatus(parts []conversation.Part) string {
	progress := progressOf(parts)
	if progress.Total == 0 {
		return ""
	}

	var lead *conversation.Part
	for i := range parts {
		p := &parts[i]
		switch p.Status() {
		case conversation.ToolStatusRunning:
			lead = p
		case conversation.ToolStatusPending:
			if lead == nil || lead.Status() != conversation.ToolStatusRunning {
				lead = p
			}
		}
	}

	if lead == nil {
		return CompletedSummary(progress)
	}

	text := ContextualToolStatus(*lead, nil)
	if progress.Total > 1 {
		text = fmt.Sprintf("%s (%d/%d done)", text, progress.Finished(), progress.Total)
	}
	return text
}

// MessageStatus is OverallToolStatus over the parts of m.
func MessageStatus(m conversation.Message) string {
	return OverallToolStatus(m.Parts)
}

// CompletedSummary renders the finished-tools line, or "" when there are
// no tools.
func CompletedSummary(p Progress) string {
	if p.Total == 0 {
		return ""
	}
	text := fmt.Sprintf("✓ Completed %d tool%s", p.Total, plural(p.Total))
	if p.Errored > 0 {
		text += fmt.Sprintf(" (%d failed)", p.Errored)
	}
	return text
}

// ContextualToolStatus describes a single part's current state. meta, when
// given, supplies server-assigned tool titles. Non-tool parts yield "".
func ContextualToolStatus(p conversation.Part, meta *conversation.Metadata) string {
	if !p.IsTool() {
		return ""
	}
	label := partLabel(p, meta)
	switch p.State.Status {
	case conversation.ToolStatusPending:
		return fmt.Sprintf("Preparing %s...", label)
	case conversation.ToolStatusRunning:
		return fmt.Sprintf("Running %s...", label)
	case conversation.ToolStatusCompleted:
		return fmt.Sprintf("✓ %s completed", label)
	case conversation.ToolStatusError:
		if p.State.Error != "" {
			return fmt.Sprintf("✗ %s failed: %s", label, Truncate(p.State.Error, maxCommandWidth))
		}
		return fmt.Sprintf("✗ %s failed", label)
	case "":
		return label
	default:
		return fmt.Sprintf("%s: %s", label, p.State.Status)
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
