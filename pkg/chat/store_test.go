package chat

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/uistream/pkg/llm"
)

var errTest = errors.New("test failure")

var _ = Describe("Store", func() {
	var store *Store

	text := func(id, s string) *llm.Message {
		m := llm.NewTextMessage(id, llm.RoleAssistant, s)
		return &m
	}

	BeforeEach(func() {
		store = NewStore()
	})

	It("starts ready and empty", func() {
		Expect(store.Status()).To(Equal(StatusReady))
		Expect(store.Messages()).To(BeEmpty())
		Expect(store.Err()).NotTo(HaveOccurred())
	})

	It("never modifies a returned message slice", func() {
		idx := store.push(text("a", "one"))
		before := store.Messages()

		store.replace(idx, text("a", "two"))
		store.push(text("b", "three"))

		Expect(before).To(HaveLen(1))
		Expect(before[0].GetText()).To(Equal("one"))
		Expect(store.Messages()).To(HaveLen(2))
		Expect(store.Messages()[0].GetText()).To(Equal("two"))
		Expect(store.Version()).To(Equal(uint64(3)))
	})

	It("notifies message observers until unsubscribed", func() {
		calls := 0
		unsubscribe := store.OnMessages(func() { calls++ })

		store.push(text("a", "x"))
		store.replace(0, text("a", "y"))
		unsubscribe()
		store.push(text("b", "z"))

		Expect(calls).To(Equal(2))
	})

	It("lets observers read the store", func() {
		var seen []int
		store.OnMessages(func() { seen = append(seen, len(store.Messages())) })

		store.push(text("a", "x"))
		store.push(text("b", "y"))

		Expect(seen).To(Equal([]int{1, 2}))
	})

	It("notifies in subscription order", func() {
		var order []string
		store.OnStatus(func() { order = append(order, "first") })
		store.OnStatus(func() { order = append(order, "second") })

		store.setStatus(StatusPreparing)
		Expect(order).To(Equal([]string{"first", "second"}))
	})

	It("skips status notifications when nothing changed", func() {
		calls := 0
		store.OnStatus(func() { calls++ })

		store.setStatus(StatusStreaming)
		store.setStatus(StatusStreaming)
		store.setStatus(StatusReady)

		Expect(calls).To(Equal(2))
	})

	It("notifies error observers", func() {
		calls := 0
		store.OnError(func() { calls++ })

		store.setError(nil)
		store.setError(errTest)
		Expect(store.Err()).To(MatchError(errTest))
		store.setError(nil)

		Expect(calls).To(Equal(2))
		Expect(store.Err()).NotTo(HaveOccurred())
	})

	It("copies initial and replacement messages", func() {
		m := text("a", "x")
		store = NewStore(m)
		m.Parts[0].Text = "mutated"
		Expect(store.Messages()[0].GetText()).To(Equal("x"))

		store.SetMessages(nil)
		Expect(store.Messages()).To(BeEmpty())
	})
})
