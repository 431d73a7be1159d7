package chatcmder

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/papercomputeco/uistream/pkg/cliui"
	"github.com/papercomputeco/uistream/pkg/llm"
	"github.com/papercomputeco/uistream/pkg/utils"
)

// renderer prints an assistant message incrementally as snapshots of it
// arrive. Text is printed as it grows; tool calls get a line per state.
type renderer struct {
	out io.Writer

	mu        sync.Mutex
	messageID string
	printed   int
	tools     map[string]llm.ToolState
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out, tools: map[string]llm.ToolState{}}
}

// reset forgets the previous message. A continued message is printed from
// its current text on.
func (r *renderer) reset(continued *llm.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messageID = ""
	r.printed = 0
	r.tools = map[string]llm.ToolState{}

	if continued != nil {
		r.messageID = continued.ID
		r.printed = len(continued.GetText())
		for _, p := range continued.Parts {
			if p.Type == llm.PartTool {
				r.tools[p.ToolCallID] = p.State
			}
		}
	}
}

func (r *renderer) render(msg *llm.Message) {
	if msg == nil || msg.Role != llm.RoleAssistant {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID != r.messageID {
		r.messageID = msg.ID
		r.printed = 0
		r.tools = map[string]llm.ToolState{}
	}

	for _, p := range msg.Parts {
		if p.Type != llm.PartTool || r.tools[p.ToolCallID] == p.State {
			continue
		}
		r.tools[p.ToolCallID] = p.State

		switch p.State {
		case llm.ToolInputAvailable:
			fmt.Fprintf(r.out, "\n  %s %s %s\n",
				cliui.ToolStyle.Render("⚙"),
				cliui.NameStyle.Render(p.ToolName),
				cliui.DimStyle.Render(summarize(p.Input)),
			)
		case llm.ToolOutputAvailable:
			fmt.Fprintf(r.out, "  %s %s\n",
				cliui.SuccessMark,
				cliui.DimStyle.Render(summarize(p.Output)),
			)
		}
	}

	text := msg.GetText()
	if len(text) > r.printed {
		fmt.Fprint(r.out, text[r.printed:])
		r.printed = len(text)
	}
}

func summarize(v any) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return utils.Truncate(string(data), 80)
}
