package status

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/sheikhcoders/opensheikh/conversation"
)

const (
	maxPathWidth    = 60
	maxCommandWidth = 50
	maxArgWidth     = 40
)

// ToolLabel creates a short display label for a tool invocation from its
// name and whichever well-known argument it carries.
func ToolLabel(name string, args map[string]interface{}) string {
	if name == "" {
		name = "tool"
	}
	if args == nil {
		return name
	}

	switch strings.ToLower(name) {
	case "read", "list":
		if path := firstString(args, "filePath", "file_path", "path"); path != "" {
			return fmt.Sprintf("%s %s", name, truncatePath(path))
		}
	case "write", "edit", "patch":
		if path := firstString(args, "filePath", "file_path", "path"); path != "" {
			return fmt.Sprintf("%s → %s", name, truncatePath(path))
		}
	case "bash":
		if cmd := firstString(args, "command"); cmd != "" {
			return fmt.Sprintf("%s: %s", name, Truncate(cmd, maxCommandWidth))
		}
	case "glob", "grep":
		if pattern := firstString(args, "pattern"); pattern != "" {
			return fmt.Sprintf("%s %s", name, Truncate(pattern, maxArgWidth))
		}
	case "webfetch", "fetch":
		if url := firstString(args, "url"); url != "" {
			return fmt.Sprintf("%s %s", name, Truncate(url, maxPathWidth))
		}
	case "task":
		if desc := firstString(args, "description"); desc != "" {
			return fmt.Sprintf("%s: %s", name, Truncate(desc, maxArgWidth))
		}
	}
	if q := firstString(args, "query", "q"); q != "" {
		return fmt.Sprintf("%s: %s", name, Truncate(q, maxArgWidth))
	}
	return name
}

// partLabel prefers a server-supplied title over the derived label.
// Metadata summaries are keyed by call ID, or by part ID when there is none.
func partLabel(p conversation.Part, meta *conversation.Metadata) string {
	if p.State != nil && p.State.Title != "" {
		return p.State.Title
	}
	if meta != nil {
		for _, key := range []string{p.CallID, p.ID} {
			if summary, ok := meta.Tool[key]; key != "" && ok && summary.Title != "" {
				return summary.Title
			}
		}
	}
	var args map[string]interface{}
	if p.State != nil {
		args = p.State.Args
	}
	return ToolLabel(p.Tool, args)
}

// Truncate shortens s to at most width display cells, appending "..." when
// anything was cut. Wide runes count as two cells.
func Truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 3 {
		return runewidth.Truncate(s, width, "")
	}
	return runewidth.Truncate(s, width, "...")
}

// truncatePath keeps the file name visible when shortening long paths.
func truncatePath(path string) string {
	if runewidth.StringWidth(path) <= maxPathWidth {
		return path
	}
	if i := strings.LastIndexByte(path, '/'); i > 0 && runewidth.StringWidth(path[i:]) <= maxPathWidth-10 {
		return "..." + path[i:]
	}
	return Truncate(path, maxPathWidth)
}

func firstString(args map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := args[k].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
