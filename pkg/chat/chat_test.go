package chat_test

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/uistream/pkg/chat"
	"github.com/papercomputeco/uistream/pkg/llm"
	"github.com/papercomputeco/uistream/pkg/stream"
	"github.com/papercomputeco/uistream/pkg/tools"
	"github.com/papercomputeco/uistream/pkg/transport"
)

var _ = Describe("Chat", func() {
	var (
		fake     *fakeTransport
		c        *chat.Chat
		statuses []chat.Status
		statusMu sync.Mutex
		finished []*llm.Message
		finishMu sync.Mutex
	)

	newChat := func(store *chat.Store) {
		c = chat.New(&chat.Config{
			Transport: fake,
			Store:     store,
			OnFinish: func(msg *llm.Message, err error) {
				finishMu.Lock()
				defer finishMu.Unlock()
				finished = append(finished, msg)
			},
		})
		c.Store().OnStatus(func() {
			statusMu.Lock()
			defer statusMu.Unlock()
			statuses = append(statuses, c.Status())
		})
	}

	recordedStatuses := func() []chat.Status {
		statusMu.Lock()
		defer statusMu.Unlock()
		return append([]chat.Status(nil), statuses...)
	}

	BeforeEach(func() {
		fake = &fakeTransport{}
		statuses = nil
		finished = nil
		newChat(nil)
	})

	AfterEach(func() {
		c.Close()
	})

	It("reconstructs the assistant reply next to the user message", func() {
		raw, err := os.ReadFile("../stream/testdata/docsearch.sse")
		Expect(err).NotTo(HaveOccurred())
		fake.open = respond(string(raw))

		Expect(c.SendMessage(context.Background(), "What is DocSearch?")).To(Succeed())

		messages := c.Messages()
		Expect(messages).To(HaveLen(2))

		Expect(messages[0].Role).To(Equal(llm.RoleUser))
		Expect(messages[0].GetText()).To(Equal("What is DocSearch?"))

		reply := messages[1]
		Expect(reply.Role).To(Equal(llm.RoleAssistant))
		Expect(reply.Parts).To(HaveLen(2))
		Expect(reply.Parts[0].State).To(Equal(llm.ToolOutputAvailable))
		Expect(reply.Parts[0].Output).To(BeAssignableToTypeOf(tools.SearchIndexOutput{}))
		Expect(reply.GetText()).To(Equal("Certainly I will search and get that answer for you"))

		Expect(recordedStatuses()).To(Equal([]chat.Status{chat.StatusPreparing, chat.StatusStreaming, chat.StatusReady}))
		Expect(c.Err()).NotTo(HaveOccurred())
		Expect(finished).To(HaveLen(1))
		Expect(finished[0]).To(Equal(reply))
	})

	It("sends the conversation with the user message id", func() {
		fake.open = respond(sseData(`{"type":"finish"}`))

		Expect(c.SendMessage(context.Background(), "hi")).To(Succeed())

		reqs := fake.Requests()
		Expect(reqs).To(HaveLen(1))
		Expect(reqs[0].ChatID).To(Equal(c.ID()))
		Expect(reqs[0].Trigger).To(Equal(transport.TriggerSubmitMessage))
		Expect(reqs[0].Messages).To(HaveLen(1))
		Expect(reqs[0].MessageID).To(Equal(reqs[0].Messages[0].ID))
	})

	It("appends one assistant message per request", func() {
		fake.open = respond(sseData(
			`{"type":"text-start","id":"t"}`,
			`{"type":"text-delta","id":"t","delta":"answer"}`,
			`{"type":"finish"}`,
		))

		Expect(c.SendMessage(context.Background(), "first")).To(Succeed())
		Expect(c.SendMessage(context.Background(), "second")).To(Succeed())

		roles := []llm.Role{}
		for _, m := range c.Messages() {
			roles = append(roles, m.Role)
		}
		Expect(roles).To(Equal([]llm.Role{llm.RoleUser, llm.RoleAssistant, llm.RoleUser, llm.RoleAssistant}))
		Expect(c.Messages()[1].ID).NotTo(Equal(c.Messages()[3].ID))
	})

	It("continues a trailing assistant message on Resume", func() {
		user := llm.NewTextMessage("u1", llm.RoleUser, "hello")
		assistant := llm.NewTextMessage("a1", llm.RoleAssistant, "Hello")
		newChat(chat.NewStore(&user, &assistant))

		fake.open = respond(sseData(
			`{"type":"text-start","id":"t"}`,
			`{"type":"text-delta","id":"t","delta":" again"}`,
		))

		Expect(c.Resume(context.Background())).To(Succeed())

		messages := c.Messages()
		Expect(messages).To(HaveLen(2))
		Expect(messages[1].ID).To(Equal("a1"))
		Expect(messages[1].GetText()).To(Equal("Hello again"))
	})

	It("surfaces transport failures and returns to ready", func() {
		failure := &transport.RequestError{Err: errors.New("connection refused")}
		fake.open = func(context.Context, *transport.Request) (io.ReadCloser, error) {
			return nil, failure
		}

		err := c.SendMessage(context.Background(), "hi")
		Expect(err).To(MatchError(transport.ErrRequest))
		Expect(c.Err()).To(MatchError(transport.ErrRequest))
		Expect(c.Status()).To(Equal(chat.StatusReady))
		Expect(c.Messages()).To(HaveLen(1))
		Expect(finished).To(Equal([]*llm.Message{nil}))
	})

	It("surfaces protocol violations", func() {
		fake.open = respond(sseData(
			`{"type":"text-start","id":"t"}`,
			`{"type":"tool-output-available","toolCallId":"unknown","output":{}}`,
		))

		err := c.SendMessage(context.Background(), "hi")
		Expect(err).To(MatchError(stream.ErrProtocolViolation))
		Expect(c.Err()).To(MatchError(stream.ErrProtocolViolation))
		Expect(c.Status()).To(Equal(chat.StatusReady))
	})

	It("clears the previous error on the next request", func() {
		fake.open = respond(sseData(`{"type":"error","errorText":"overloaded"}`))
		Expect(c.SendMessage(context.Background(), "hi")).NotTo(Succeed())
		Expect(c.Err()).To(HaveOccurred())

		fake.open = respond(sseData(`{"type":"finish"}`))
		Expect(c.SendMessage(context.Background(), "again")).To(Succeed())
		Expect(c.Err()).NotTo(HaveOccurred())
	})

	Context("with a stream that stays open", func() {
		var (
			pw   *io.PipeWriter
			done chan error
		)

		BeforeEach(func() {
			var pr *io.PipeReader
			pr, pw = io.Pipe()
			fake.open = func(context.Context, *transport.Request) (io.ReadCloser, error) {
				return pr, nil
			}

			done = make(chan error, 1)
			go func() {
				done <- c.SendMessage(context.Background(), "hi")
			}()

			_, err := io.WriteString(pw, sseData(
				`{"type":"text-start","id":"t"}`,
				`{"type":"text-delta","id":"t","delta":"partial"}`,
			))
			Expect(err).NotTo(HaveOccurred())
			Eventually(c.Status).Should(Equal(chat.StatusStreaming))
			Eventually(func() string {
				messages := c.Messages()
				return messages[len(messages)-1].GetText()
			}).Should(Equal("partial"))
		})

		It("rejects a second request while the first is active", func() {
			Expect(c.SendMessage(context.Background(), "again")).To(MatchError(chat.ErrBusy))
			Expect(c.Resume(context.Background())).To(MatchError(chat.ErrBusy))

			_ = pw.Close()
			Eventually(done).Should(Receive(BeNil()))
		})

		It("stops without surfacing an error or writing again", func() {
			version := c.Store().Version()
			c.Stop()

			go func() {
				_, _ = io.WriteString(pw, sseData(`{"type":"text-delta","id":"t","delta":" more"}`))
			}()

			Eventually(done, time.Second).Should(Receive(BeNil()))
			Expect(c.Status()).To(Equal(chat.StatusReady))
			Expect(c.Err()).NotTo(HaveOccurred())

			Consistently(c.Store().Version, 100*time.Millisecond).Should(Equal(version))
			Expect(c.Messages()[1].GetText()).To(Equal("partial"))
			Expect(recordedStatuses()).To(Equal([]chat.Status{chat.StatusPreparing, chat.StatusStreaming, chat.StatusReady}))
		})
	})

	It("accepts the next request as soon as ready is observed", func() {
		fake.open = respond(sseData(`{"type":"finish"}`))

		next := make(chan error, 1)
		var once sync.Once
		c.Store().OnStatus(func() {
			if c.Status() != chat.StatusReady {
				return
			}
			once.Do(func() {
				go func() { next <- c.SendMessage(context.Background(), "follow-up") }()
			})
		})

		Expect(c.SendMessage(context.Background(), "hi")).To(Succeed())
		Eventually(next).Should(Receive(BeNil()))
		Expect(fake.Requests()).To(HaveLen(2))
	})

	It("ignores Stop when no request is active", func() {
		c.Stop()
		Expect(c.Status()).To(Equal(chat.StatusReady))
		Expect(recordedStatuses()).To(BeEmpty())
	})

	It("clears the conversation when switching transports", func() {
		fake.open = respond(sseData(`{"type":"finish"}`))
		Expect(c.SendMessage(context.Background(), "hi")).To(Succeed())

		Expect(c.UpdateTransport(&fakeTransport{})).To(Succeed())
		Expect(c.Messages()).To(BeEmpty())
	})
})
