package safejson_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/uistream/pkg/safejson"
)

var _ = Describe("Parse", func() {
	It("decodes a protocol chunk", func() {
		res := safejson.Parse(`{"type":"text-delta","id":"t1","delta":"Ce"}`)
		Expect(res.OK()).To(BeTrue())
		Expect(res.Value).To(Equal(map[string]any{
			"type":  "text-delta",
			"id":    "t1",
			"delta": "Ce",
		}))
	})

	It("decodes scalars", func() {
		Expect(safejson.Parse(`42`).Value).To(Equal(float64(42)))
		Expect(safejson.Parse(`"x"`).Value).To(Equal("x"))
		Expect(safejson.Parse(`null`).OK()).To(BeTrue())
	})

	It("reports malformed text as a parse error", func() {
		res := safejson.Parse(`{"type":`)
		Expect(res.OK()).To(BeFalse())
		Expect(res.Raw).To(Equal(`{"type":`))

		var perr *safejson.ParseError
		Expect(errors.As(res.Err, &perr)).To(BeTrue())
		Expect(perr.Error()).To(HavePrefix(`error parsing "{\"type\":" into JSON`))
	})

	It("reports the done sentinel as unparseable", func() {
		Expect(safejson.Parse(safejson.Done).OK()).To(BeFalse())
	})

	Context("with prototype-shaped documents", func() {
		It("rejects a top-level __proto__ key", func() {
			res := safejson.Parse(`{"__proto__": {"polluted": true}}`)
			Expect(res.Err).To(MatchError(safejson.ErrForbiddenPrototype))
		})

		It("rejects a nested __proto__ key inside arrays", func() {
			res := safejson.Parse(`{"hits":[{"a":1},{"b":{"__proto__":{}}}]}`)
			Expect(res.Err).To(MatchError(safejson.ErrForbiddenPrototype))
		})

		It("rejects a constructor object owning a prototype", func() {
			res := safejson.Parse(`{"x":{"constructor":{"prototype":{"polluted":true}}}}`)
			Expect(res.Err).To(MatchError(safejson.ErrForbiddenPrototype))
		})

		It("accepts a harmless constructor value", func() {
			res := safejson.Parse(`{"constructor":"Widget","meta":{"constructor":{"name":"x"}}}`)
			Expect(res.OK()).To(BeTrue())
		})

		It("accepts __proto__ appearing only inside string values", func() {
			res := safejson.Parse(`{"text":"\"__proto__\": is how you pollute"}`)
			Expect(res.OK()).To(BeTrue())
		})
	})
})
