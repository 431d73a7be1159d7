package mockserver

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/papercomputeco/uistream/pkg/safejson"
	"github.com/papercomputeco/uistream/pkg/sse"
)

// Event is one scripted server-sent event. It satisfies eventsource.Event.
type Event struct {
	EventID   string
	EventName string
	Payload   string
}

func (e Event) Id() string    { return e.EventID } //nolint:revive // eventsource.Event method name
func (e Event) Event() string { return e.EventName }
func (e Event) Data() string  { return e.Payload }

// Chunks builds a script with one event per chunk, each marshaled as JSON.
func Chunks(chunks ...map[string]any) ([]Event, error) {
	script := make([]Event, 0, len(chunks))
	for i, chunk := range chunks {
		data, err := json.Marshal(chunk)
		if err != nil {
			return nil, fmt.Errorf("marshaling chunk %d: %w", i, err)
		}
		script = append(script, Event{Payload: string(data)})
	}
	return script, nil
}

// LoadScript reads a recorded stream, such as one captured with
// "uistream chat --record", into a script. A trailing [DONE] is dropped since
// the server terminates every replay itself.
func LoadScript(r io.Reader) ([]Event, error) {
	reader := sse.NewReader(r)

	var script []Event
	for {
		ev, err := reader.Next()
		if err != nil {
			return nil, fmt.Errorf("reading script: %w", err)
		}
		if ev == nil {
			break
		}
		if ev.Data == safejson.Done {
			continue
		}
		script = append(script, Event{EventID: ev.ID, EventName: ev.Type, Payload: ev.Data})
	}

	return script, nil
}

// TextScript streams deltas as a single text part.
func TextScript(deltas ...string) []Event {
	const id = "txt_0"

	script := []Event{
		{Payload: `{"type":"start"}`},
		{Payload: `{"type":"start-step"}`},
		{Payload: fmt.Sprintf(`{"type":"text-start","id":%q}`, id)},
	}
	for _, d := range deltas {
		data, _ := json.Marshal(map[string]string{"type": "text-delta", "id": id, "delta": d})
		script = append(script, Event{Payload: string(data)})
	}
	return append(script,
		Event{Payload: fmt.Sprintf(`{"type":"text-end","id":%q}`, id)},
		Event{Payload: `{"type":"finish-step"}`},
		Event{Payload: `{"type":"finish"}`},
	)
}

const (
	docSearchCallID = "call_jFrdRc717iF2Gnlvad2uHHXM"
	docSearchItemID = "fc_68cb85ea53a08190b1352cd71cf50ca906103c2373a96432"
	docSearchTextID = "msg_68cb85ebac18819087ee4662504e730906103c2373a96432"
)

// DocSearchScript is a recorded assistant reply: a searchIndex tool call
// with streamed arguments and its output, followed by a streamed answer.
func DocSearchScript() []Event {
	meta := fmt.Sprintf(`"providerMetadata":{"openai":{"itemId":%q}}`, docSearchItemID)

	script := []Event{
		{Payload: `{"type":"start"}`},
		{Payload: `{"type":"start-step"}`},
		{Payload: fmt.Sprintf(`{"type":"tool-input-start","toolCallId":%q,"toolName":"searchIndex"}`, docSearchCallID)},
	}
	for _, d := range []string{"Wha", "t is D", "ocSearch"} {
		script = append(script, Event{Payload: fmt.Sprintf(
			`{"type":"tool-input-delta","toolCallId":%q,"toolName":"searchIndex","inputTextDelta":%q,%s}`,
			docSearchCallID, d, meta,
		)})
	}
	script = append(script,
		Event{Payload: fmt.Sprintf(
			`{"type":"tool-input-available","toolCallId":%q,"toolName":"searchIndex","input":{"query":"What is DocSearch"},%s}`,
			docSearchCallID, meta,
		)},
		Event{Payload: fmt.Sprintf(
			`{"type":"tool-output-available","toolCallId":%q,"output":{"hits":[], "query": "What is DocSearch?"}}`,
			docSearchCallID,
		)},
		Event{Payload: fmt.Sprintf(
			`{"type":"text-start","id":%q,"providerMetadata":{"openai":{"itemId":%q}}}`,
			docSearchTextID, docSearchTextID,
		)},
	)
	for _, d := range []string{"Ce", "rt", "ain", "ly", " I", " w", "ill", " sea", "rch ", "and get that answer for you"} {
		script = append(script, Event{Payload: fmt.Sprintf(`{"type":"text-delta","id":%q,"delta":%q}`, docSearchTextID, d)})
	}
	return append(script,
		Event{Payload: fmt.Sprintf(`{"type":"text-end","id":%q}`, docSearchTextID)},
		Event{Payload: `{"type":"finish-step"}`},
		Event{Payload: `{"type":"finish"}`},
	)
}
