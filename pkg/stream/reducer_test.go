package stream_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/papercomputeco/uistream/pkg/llm"
	"github.com/papercomputeco/uistream/pkg/stream"
	"github.com/papercomputeco/uistream/pkg/tools"
)

const callID = "call_jFrdRc717iF2Gnlvad2uHHXM"

var _ = Describe("Reducer", func() {
	var (
		reducer *stream.Reducer
		rec     *recorder
		logs    *observer.ObservedLogs
	)

	apply := func(chunks ...*llm.Chunk) error {
		for _, c := range chunks {
			if err := reducer.Apply(c, rec); err != nil {
				return err
			}
		}
		return nil
	}

	inputStart := &llm.Chunk{Type: llm.ChunkToolInputStart, ToolCallID: callID, ToolName: tools.SearchIndexName}
	inputDelta := func(delta string) *llm.Chunk {
		return &llm.Chunk{Type: llm.ChunkToolInputDelta, ToolCallID: callID, ToolName: tools.SearchIndexName, InputTextDelta: delta}
	}
	inputAvailable := &llm.Chunk{
		Type:       llm.ChunkToolInputAvailable,
		ToolCallID: callID,
		ToolName:   tools.SearchIndexName,
		Input:      map[string]any{"query": "What is DocSearch"},
	}
	outputAvailable := &llm.Chunk{
		Type:       llm.ChunkToolOutputAvailable,
		ToolCallID: callID,
		Output:     map[string]any{"hits": []any{}, "query": "What is DocSearch?"},
	}

	BeforeEach(func() {
		var core zapcore.Core
		core, logs = observer.New(zapcore.DebugLevel)

		rec = &recorder{}
		reducer = stream.NewReducer(&stream.ReducerConfig{
			MessageID: "assistant-1",
			Logger:    zap.New(core),
		})
	})

	Describe("start", func() {
		It("adopts a server assigned message id", func() {
			Expect(apply(&llm.Chunk{Type: llm.ChunkStart, MessageID: ptr("server-id")})).To(Succeed())
			Expect(reducer.Message().ID).To(Equal("server-id"))
			Expect(rec.Count()).To(Equal(1))
		})

		It("keeps the local id when none is assigned", func() {
			Expect(apply(&llm.Chunk{Type: llm.ChunkStart})).To(Succeed())
			Expect(reducer.Message().ID).To(Equal("assistant-1"))
			Expect(reducer.Message().Role).To(Equal(llm.RoleAssistant))
			Expect(rec.Count()).To(BeZero())
		})
	})

	Describe("tool calls", func() {
		It("ends in input-available with the exact final input", func() {
			Expect(apply(
				inputStart,
				inputDelta("Wha"),
				inputDelta("t is D"),
				inputDelta("ocSearch"),
				inputAvailable,
			)).To(Succeed())

			msg := reducer.Message()
			Expect(msg.Parts).To(HaveLen(1))
			Expect(msg.Parts[0].Type).To(Equal(llm.PartTool))
			Expect(msg.Parts[0].ToolName).To(Equal(tools.SearchIndexName))
			Expect(msg.Parts[0].State).To(Equal(llm.ToolInputAvailable))
			Expect(msg.Parts[0].Input).To(Equal(tools.SearchIndexInput{Query: "What is DocSearch"}))
			Expect(rec.Count()).To(Equal(5))
		})

		It("exposes repaired partial input while arguments stream", func() {
			Expect(apply(
				inputStart,
				inputDelta(`{"query":"What is`),
			)).To(Succeed())

			part := reducer.Message().Parts[0]
			Expect(part.State).To(Equal(llm.ToolInputStart))
			Expect(part.Input).To(Equal(tools.SearchIndexInput{Query: "What is"}))
		})

		It("leaves the input absent when repair fails", func() {
			Expect(apply(inputStart, inputDelta("Wha"))).To(Succeed())
			Expect(reducer.Message().Parts[0].Input).To(BeNil())
		})

		It("keeps one part per tool call id", func() {
			Expect(apply(inputStart, inputDelta(`{"q`), inputAvailable, outputAvailable)).To(Succeed())
			Expect(reducer.Message().Parts).To(HaveLen(1))
		})

		It("stores a typed output after input-available", func() {
			Expect(apply(inputStart, inputAvailable, outputAvailable)).To(Succeed())

			part := reducer.Message().Parts[0]
			Expect(part.State).To(Equal(llm.ToolOutputAvailable))
			out, ok := part.Output.(tools.SearchIndexOutput)
			Expect(ok).To(BeTrue())
			Expect(out.Hits).To(BeEmpty())
			Expect(out.Query).To(Equal("What is DocSearch?"))
		})

		It("rejects output for an unknown tool call without mutating the message", func() {
			Expect(apply(&llm.Chunk{Type: llm.ChunkTextStart, ID: "t1"})).To(Succeed())
			before := reducer.Message()
			writes := rec.Count()

			err := apply(outputAvailable)
			Expect(err).To(MatchError(stream.ErrProtocolViolation))

			var protoErr *stream.ProtocolError
			Expect(errors.As(err, &protoErr)).To(BeTrue())
			Expect(protoErr.ID).To(Equal(callID))
			Expect(protoErr.Chunk).To(Equal(llm.ChunkToolOutputAvailable))

			Expect(reducer.Message()).To(Equal(before))
			Expect(rec.Count()).To(Equal(writes))
		})

		It("rejects output while input is still streaming", func() {
			Expect(apply(inputStart)).To(Succeed())
			Expect(apply(outputAvailable)).To(MatchError(stream.ErrProtocolViolation))
			Expect(reducer.Message().Parts[0].State).To(Equal(llm.ToolInputStart))
		})

		It("never moves a tool part backwards", func() {
			Expect(apply(inputStart, inputAvailable, outputAvailable)).To(Succeed())

			Expect(apply(inputStart)).To(MatchError(stream.ErrProtocolViolation))
			Expect(apply(inputAvailable)).To(MatchError(stream.ErrProtocolViolation))
			Expect(apply(inputDelta("x"))).To(MatchError(stream.ErrProtocolViolation))
			Expect(reducer.Message().Parts[0].State).To(Equal(llm.ToolOutputAvailable))
		})

		It("names both states when a tool part would move backwards", func() {
			Expect(apply(inputStart, inputAvailable)).To(Succeed())

			err := apply(inputStart)
			Expect(err).To(MatchError(stream.ErrProtocolViolation))
			Expect(err).To(MatchError(ContainSubstring("from input-available to input-start")))
		})

		It("rejects a second output for the same tool call", func() {
			Expect(apply(inputStart, inputAvailable, outputAvailable)).To(Succeed())
			writes := rec.Count()

			Expect(apply(outputAvailable)).To(MatchError(ContainSubstring("found output-available")))
			Expect(rec.Count()).To(Equal(writes))
		})

		It("keeps the raw input and warns when the final input fails validation", func() {
			bad := &llm.Chunk{
				Type:       llm.ChunkToolInputAvailable,
				ToolCallID: callID,
				ToolName:   tools.SearchIndexName,
				Input:      map[string]any{"other": 1},
			}
			Expect(apply(inputStart, bad)).To(Succeed())

			Expect(reducer.Message().Parts[0].Input).To(Equal(map[string]any{"other": 1}))
			Expect(logs.FilterLevelExact(zapcore.WarnLevel).Len()).To(Equal(1))
		})

		It("passes inputs of unknown tools through untyped", func() {
			Expect(apply(&llm.Chunk{
				Type:       llm.ChunkToolInputAvailable,
				ToolCallID: "call_2",
				ToolName:   "weather",
				Input:      map[string]any{"city": "Paris"},
			})).To(Succeed())

			part := reducer.Message().Parts[0]
			Expect(part.State).To(Equal(llm.ToolInputAvailable))
			Expect(part.Input).To(Equal(map[string]any{"city": "Paris"}))
		})

		It("rejects a delta after finish-step cleared the accumulator", func() {
			Expect(apply(inputStart, &llm.Chunk{Type: llm.ChunkFinishStep})).To(Succeed())
			Expect(apply(inputDelta(`{}`))).To(MatchError(stream.ErrProtocolViolation))
		})
	})

	Describe("text and reasoning", func() {
		It("concatenates deltas in arrival order", func() {
			Expect(apply(
				&llm.Chunk{Type: llm.ChunkTextStart, ID: "t1"},
				&llm.Chunk{Type: llm.ChunkTextDelta, ID: "t1", Delta: "Hello"},
				&llm.Chunk{Type: llm.ChunkTextDelta, ID: "t1", Delta: ", world"},
				&llm.Chunk{Type: llm.ChunkTextEnd, ID: "t1"},
			)).To(Succeed())

			Expect(reducer.Message().GetText()).To(Equal("Hello, world"))
		})

		It("tracks interleaved parts by id", func() {
			Expect(apply(
				&llm.Chunk{Type: llm.ChunkReasoningStart, ID: "r1"},
				&llm.Chunk{Type: llm.ChunkTextStart, ID: "t1"},
				&llm.Chunk{Type: llm.ChunkReasoningDelta, ID: "r1", Delta: "thinking"},
				&llm.Chunk{Type: llm.ChunkTextDelta, ID: "t1", Delta: "answer"},
			)).To(Succeed())

			parts := reducer.Message().Parts
			Expect(parts).To(HaveLen(2))
			Expect(parts[0]).To(Equal(llm.Part{Type: llm.PartReasoning, Text: "thinking"}))
			Expect(parts[1]).To(Equal(llm.Part{Type: llm.PartText, Text: "answer"}))
		})

		It("rejects a text delta without a text start", func() {
			err := apply(&llm.Chunk{Type: llm.ChunkTextDelta, ID: "t1", Delta: "x"})
			Expect(err).To(MatchError(stream.ErrProtocolViolation))
			Expect(reducer.Message().Parts).To(BeEmpty())
		})

		It("rejects a delta after the part ended", func() {
			Expect(apply(
				&llm.Chunk{Type: llm.ChunkTextStart, ID: "t1"},
				&llm.Chunk{Type: llm.ChunkTextEnd, ID: "t1"},
			)).To(Succeed())
			Expect(apply(&llm.Chunk{Type: llm.ChunkTextDelta, ID: "t1", Delta: "x"})).To(MatchError(stream.ErrProtocolViolation))
		})

		It("rejects a reasoning delta after finish-step", func() {
			Expect(apply(
				&llm.Chunk{Type: llm.ChunkReasoningStart, ID: "r1"},
				&llm.Chunk{Type: llm.ChunkFinishStep},
			)).To(Succeed())
			Expect(apply(&llm.Chunk{Type: llm.ChunkReasoningDelta, ID: "r1", Delta: "x"})).To(MatchError(stream.ErrProtocolViolation))
		})
	})

	Describe("lifecycle", func() {
		It("terminates with the upstream error text", func() {
			err := apply(&llm.Chunk{Type: llm.ChunkError, ErrorText: "rate limited"})

			var upstream *stream.UpstreamError
			Expect(errors.As(err, &upstream)).To(BeTrue())
			Expect(upstream.Text).To(Equal("rate limited"))
		})

		It("ignores chunks after finish", func() {
			Expect(apply(
				&llm.Chunk{Type: llm.ChunkFinish},
				&llm.Chunk{Type: llm.ChunkTextDelta, ID: "nope", Delta: "x"},
			)).To(Succeed())

			Expect(reducer.Finished()).To(BeTrue())
			Expect(reducer.Message().Parts).To(BeEmpty())
		})

		It("logs and skips unknown chunk types", func() {
			Expect(apply(&llm.Chunk{Type: "source-url"})).To(Succeed())
			Expect(logs.FilterMessage("unhandled chunk").Len()).To(Equal(1))
		})

		It("continues an existing message", func() {
			existing := &llm.Message{
				ID:    "prev",
				Role:  llm.RoleAssistant,
				Parts: []llm.Part{{Type: llm.PartText, Text: "before"}},
			}
			reducer = stream.NewReducer(&stream.ReducerConfig{Message: existing})

			Expect(apply(
				&llm.Chunk{Type: llm.ChunkTextStart, ID: "t1"},
				&llm.Chunk{Type: llm.ChunkTextDelta, ID: "t1", Delta: " after"},
			)).To(Succeed())

			Expect(reducer.Message().ID).To(Equal("prev"))
			Expect(reducer.Message().GetText()).To(Equal("before after"))
			Expect(existing.Parts).To(HaveLen(1))
		})
	})
})
