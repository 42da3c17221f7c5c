package hooking

import (
	"bytes"
	"log"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("HookableBase", func() {
	var (
		base *HookableBase
		pos  = &HookPos{Name: "Pos"}
	)

	BeforeEach(func() {
		base = NewHookableBase()
	})

	It("should invoke hooks in registration order", func() {
		order := []int{}
		base.AcceptHook(NewHookFunc(func(HookCtx) { order = append(order, 1) }))
		base.AcceptHook(NewHookFunc(func(HookCtx) { order = append(order, 2) }))

		base.InvokeHook(HookCtx{Domain: base, Pos: pos})

		Expect(base.NumHooks()).To(Equal(2))
		Expect(order).To(Equal([]int{1, 2}))
	})

	It("should panic on duplicated hooks", func() {
		h := NewHookFunc(func(HookCtx) {})
		base.AcceptHook(h)

		Expect(func() { base.AcceptHook(h) }).To(Panic())
	})
})

var _ = Describe("LogHook", func() {
	var (
		buf    *bytes.Buffer
		logged = &HookPos{Name: "Logged"}
		other  = &HookPos{Name: "Other"}
	)

	BeforeEach(func() {
		buf = new(bytes.Buffer)
	})

	It("should only log selected positions", func() {
		h := NewLogHook(log.New(buf, "", 0), logged)

		h.Func(HookCtx{Pos: other, Item: "skip"})
		h.Func(HookCtx{Pos: logged, Item: "keep", Detail: 3})

		Expect(buf.String()).To(Equal("[Logged] keep (3)\n"))
	})

	It("should log everything without a filter", func() {
		h := NewLogHook(log.New(buf, "", 0))

		h.Func(HookCtx{Pos: other, Item: 1})

		Expect(buf.String()).To(ContainSubstring("[Other] 1"))
	})
})
