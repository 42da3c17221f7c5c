package timing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

var _ = Describe("TickScheduler", func() {
	var (
		mockCtrl *gomock.Controller
		engine   *SerialEngine
		handler  *MockHandler
		ticker   *TickScheduler
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		engine = NewSerialEngine()
		handler = NewMockHandler(mockCtrl)
		ticker = NewTickScheduler("poll", handler, engine)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should merge ticks that are already covered", func() {
		handler.EXPECT().
			Handle(&TickEvent{Name: "poll", Time: 10 * Millisecond}).
			Return(nil)

		ticker.TickAfter(10 * Millisecond)
		ticker.TickAfter(15 * Millisecond)

		Expect(ticker.Pending()).To(BeTrue())
		Expect(engine.Run()).To(Succeed())
		Expect(ticker.Pending()).To(BeFalse())
	})

	It("should schedule an earlier tick", func() {
		handler.EXPECT().
			Handle(&TickEvent{Name: "poll", Time: 0}).
			Return(nil)
		handler.EXPECT().
			Handle(&TickEvent{Name: "poll", Time: 10 * Millisecond}).
			Return(nil)

		ticker.TickAfter(10 * Millisecond)
		ticker.TickNow()

		Expect(engine.Run()).To(Succeed())
	})

	It("should allow re-arming from the handler", func() {
		count := 0
		handler.EXPECT().Handle(gomock.Any()).
			DoAndReturn(func(any) error {
				count++
				if count < 3 {
					ticker.TickAfter(10 * Millisecond)
				}
				return nil
			}).Times(3)

		ticker.TickNow()

		Expect(engine.Run()).To(Succeed())
		Expect(engine.CurrentTime()).To(Equal(20 * Millisecond))
	})
})
