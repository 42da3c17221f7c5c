package timing

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

type labelEvent struct {
	label string
}

type recordingHandler struct {
	engine *SerialEngine
	calls  []string
	then   map[string][]ScheduledEvent
}

func (h *recordingHandler) Handle(event any) error {
	evt := event.(*labelEvent)
	h.calls = append(h.calls, evt.label)

	for _, next := range h.then[evt.label] {
		h.engine.Schedule(next)
	}

	return nil
}

var _ = Describe("SerialEngine", func() {
	var (
		mockCtrl *gomock.Controller
		engine   *SerialEngine
		handler  *recordingHandler
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		engine = NewSerialEngine()
		handler = &recordingHandler{
			engine: engine,
			then:   map[string][]ScheduledEvent{},
		}
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	schedule := func(label string, t VTimeInNs) ScheduledEvent {
		return ScheduledEvent{
			Event:   &labelEvent{label: label},
			Time:    t,
			Handler: handler,
		}
	}

	It("should run events in time order", func() {
		engine.Schedule(schedule("b", 2*Millisecond))
		engine.Schedule(schedule("a", 1*Millisecond))

		Expect(engine.Run()).To(Succeed())

		Expect(handler.calls).To(Equal([]string{"a", "b"}))
		Expect(engine.CurrentTime()).To(Equal(2 * Millisecond))
	})

	It("should keep first-in first-out order for equal times", func() {
		engine.Schedule(schedule("first", 5))
		engine.Schedule(schedule("second", 5))
		engine.Schedule(schedule("third", 5))

		Expect(engine.Run()).To(Succeed())

		Expect(handler.calls).To(Equal([]string{"first", "second", "third"}))
	})

	It("should run secondary events after primary events", func() {
		secondary := schedule("secondary", 3)
		secondary.IsSecondary = true
		engine.Schedule(secondary)
		engine.Schedule(schedule("primary", 3))

		Expect(engine.Run()).To(Succeed())

		Expect(handler.calls).To(Equal([]string{"primary", "secondary"}))
	})

	It("should run events scheduled by handlers", func() {
		handler.then["a"] = []ScheduledEvent{schedule("b", 10)}
		engine.Schedule(schedule("a", 1))

		Expect(engine.Run()).To(Succeed())

		Expect(handler.calls).To(Equal([]string{"a", "b"}))
	})

	It("should panic when scheduling in the past", func() {
		engine.Schedule(schedule("a", 10))
		Expect(engine.Run()).To(Succeed())

		Expect(func() { engine.Schedule(schedule("late", 5)) }).To(Panic())
	})

	It("should deliver posted events at the current time", func() {
		engine.Schedule(schedule("a", 7))
		Expect(engine.Run()).To(Succeed())

		engine.Post(handler, &labelEvent{label: "posted"})
		Expect(engine.Posted()).To(Equal(1))

		Expect(engine.Run()).To(Succeed())

		Expect(handler.calls).To(Equal([]string{"a", "posted"}))
		Expect(engine.CurrentTime()).To(Equal(VTimeInNs(7)))
	})

	It("should accept posts from other goroutines", func() {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				engine.Post(handler, &labelEvent{label: "x"})
			}()
		}
		wg.Wait()

		Expect(engine.Run()).To(Succeed())

		Expect(handler.calls).To(HaveLen(8))
	})

	It("should stop at the deadline", func() {
		engine.Schedule(schedule("a", 1*Millisecond))
		engine.Schedule(schedule("b", 20*Millisecond))

		Expect(engine.RunUntil(10 * Millisecond)).To(Succeed())

		Expect(handler.calls).To(Equal([]string{"a"}))
		Expect(engine.CurrentTime()).To(Equal(10 * Millisecond))

		Expect(engine.Run()).To(Succeed())
		Expect(handler.calls).To(Equal([]string{"a", "b"}))
	})

	It("should return handler errors", func() {
		mockHandler := NewMockHandler(mockCtrl)
		mockHandler.EXPECT().Handle(gomock.Any()).Return(errors.New("boom"))

		engine.Schedule(ScheduledEvent{
			Event:   &labelEvent{label: "a"},
			Time:    1,
			Handler: mockHandler,
		})

		err := engine.Run()

		Expect(err).To(MatchError(ContainSubstring("boom")))
	})
})

type namedHandler struct{}

func (namedHandler) Name() string {
	return "GPU"
}

func (namedHandler) Handle(any) error {
	return nil
}

type quietHandler struct{}

func (*quietHandler) Handle(any) error {
	return nil
}

var _ = Describe("EventLogger", func() {
	It("should print the events the engine handles", func() {
		var buf bytes.Buffer

		engine := NewSerialEngine()
		engine.AcceptHook(NewEventLogger(log.New(&buf, "", 0)))

		engine.Schedule(ScheduledEvent{
			Event:   &labelEvent{label: "a"},
			Time:    1500,
			Handler: namedHandler{},
		})
		engine.Schedule(ScheduledEvent{
			Event:   &TickEvent{Name: "fence-poll", Time: 2000},
			Time:    2000,
			Handler: &quietHandler{},
		})

		Expect(engine.Run()).To(Succeed())

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		Expect(lines).To(HaveLen(2))
		Expect(lines[0]).To(HaveSuffix("1.500us GPU *timing.labelEvent"))
		Expect(lines[1]).To(HaveSuffix("2.000us *timing.quietHandler tick fence-poll"))
	})
})
