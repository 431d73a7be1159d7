package sse

import (
	"bytes"
	"errors"
	"strings"
	"testing/iotest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Reader", func() {
	var dst *bytes.Buffer

	BeforeEach(func() {
		dst = &bytes.Buffer{}
	})

	Describe("Next", func() {
		Context("with UI message stream events", func() {
			It("parses a single event", func() {
				r := NewReader(strings.NewReader("data: {\"type\":\"start\"}\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal(`{"type":"start"}`))
				Expect(ev.Type).To(BeEmpty())
				Expect(ev.ID).To(BeEmpty())

				ev, err = r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev).To(BeNil())
			})

			It("parses multiple events including the done sentinel", func() {
				input := "data: {\"type\":\"text-delta\",\"id\":\"t1\",\"delta\":\"Hel\"}\n\n" +
					"data: {\"type\":\"text-delta\",\"id\":\"t1\",\"delta\":\"lo\"}\n\n" +
					"data: [DONE]\n\n"
				r := NewReader(strings.NewReader(input))

				var data []string
				for {
					ev, err := r.Next()
					Expect(err).NotTo(HaveOccurred())
					if ev == nil {
						break
					}
					data = append(data, ev.Data)
				}

				Expect(data).To(Equal([]string{
					`{"type":"text-delta","id":"t1","delta":"Hel"}`,
					`{"type":"text-delta","id":"t1","delta":"lo"}`,
					"[DONE]",
				}))
			})
		})

		Context("with small reads", func() {
			It("reassembles events from one-byte reads", func() {
				input := "event: e\r\ndata: a\r\ndata: b\r\n\r\n"
				r := NewReader(iotest.OneByteReader(strings.NewReader(input)))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(*ev).To(Equal(Event{Type: "e", Data: "a\nb"}))
			})

			It("honours the configured read size", func() {
				input := "data: 0123456789\n\n"
				r := NewReader(strings.NewReader(input), WithReadSize(3), WithTee(dst))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("0123456789"))
				Expect(dst.String()).To(Equal(input))
			})
		})

		Context("verbatim byte forwarding", func() {
			It("forwards all bytes including delimiters and comments to the tee", func() {
				input := ": comment\r\ndata: first\n\ndata: second\r\n\r\n"
				r := NewReader(strings.NewReader(input), WithTee(dst))

				for {
					ev, err := r.Next()
					Expect(err).NotTo(HaveOccurred())
					if ev == nil {
						break
					}
				}

				Expect(dst.String()).To(Equal(input))
			})

			It("surfaces tee write failures", func() {
				boom := errors.New("disk full")
				r := NewReader(strings.NewReader("data: x\n\n"), WithTee(failingWriter{err: boom}))

				_, err := r.Next()
				Expect(err).To(MatchError(boom))
			})
		})

		Context("edge cases", func() {
			It("returns nil on empty input", func() {
				r := NewReader(strings.NewReader(""))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev).To(BeNil())
			})

			It("returns nil on input with only blank lines", func() {
				r := NewReader(strings.NewReader("\n\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev).To(BeNil())
			})

			It("drops an event the stream never terminated", func() {
				r := NewReader(strings.NewReader("data: complete\n\ndata: unterminated"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("complete"))

				ev, err = r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev).To(BeNil())
			})

			It("dispatches a final event terminated by lone carriage returns", func() {
				r := NewReader(strings.NewReader("data: x\r\r"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("x"))
			})

			It("propagates source read errors", func() {
				boom := errors.New("connection reset")
				r := NewReader(iotest.ErrReader(boom))

				_, err := r.Next()
				Expect(err).To(MatchError(boom))
			})

			It("yields earlier events before a later read fails", func() {
				src := iotest.TimeoutReader(strings.NewReader("data: a\n\ndata: b\n\n"))
				r := NewReader(src, WithReadSize(9))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("a"))

				_, err = r.Next()
				Expect(err).To(MatchError(iotest.ErrTimeout))
			})
		})
	})
})

type failingWriter struct {
	err error
}

func (w failingWriter) Write([]byte) (int, error) {
	return 0, w.err
}
