package timing

import (
	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/kairos-sim/kairos/sim/vtime"
)

var _ = ginkgo.Describe("TickScheduler", func() {
	var (
		mockCtrl  *gomock.Controller
		ticker    *MockTicker
		engine    *SerialEngine
		scheduler *TickScheduler
		tickTimes []vtime.VTime
	)

	ginkgo.BeforeEach(func() {
		mockCtrl = gomock.NewController(ginkgo.GinkgoT())
		ticker = NewMockTicker(mockCtrl)
		engine = NewSerialEngine()
		scheduler = NewTickScheduler(ticker, engine, 1*vtime.GHz)
		tickTimes = nil
	})

	ginkgo.AfterEach(func() {
		mockCtrl.Finish()
	})

	progress := func(results ...bool) {
		i := 0
		ticker.EXPECT().Tick().DoAndReturn(func() bool {
			tickTimes = append(tickTimes, engine.Now())
			r := results[i]
			i++
			return r
		}).Times(len(results))
	}

	ginkgo.It("should keep ticking while the ticker makes progress", func() {
		progress(true, true, false)

		scheduler.TickNow()

		Expect(engine.Run()).To(Succeed())
		Expect(tickTimes).To(Equal([]vtime.VTime{0, 1, 2}))
		Expect(scheduler.IsTicking()).To(BeFalse())
	})

	ginkgo.It("should not schedule the same tick twice", func() {
		progress(false)

		scheduler.TickNow()
		scheduler.TickNow()

		Expect(engine.PendingCount()).To(Equal(1))
		Expect(engine.Run()).To(Succeed())
	})

	ginkgo.It("should tick later on the next cycle", func() {
		progress(false)

		engine.ScheduleAt(5, Func(scheduler.TickLater))

		Expect(engine.Run()).To(Succeed())
		Expect(tickTimes).To(Equal([]vtime.VTime{6}))
	})

	ginkgo.It("should align to the frequency", func() {
		scheduler.Freq = 1 * vtime.MHz
		progress(true, false)

		engine.ScheduleAt(1500, Func(scheduler.TickNow))

		Expect(engine.Run()).To(Succeed())
		Expect(tickTimes).To(Equal([]vtime.VTime{2000, 3000}))
	})

	ginkgo.It("should stop ticking", func() {
		scheduler.TickNow()
		scheduler.TickLater()
		Expect(scheduler.IsTicking()).To(BeTrue())

		scheduler.Stop()

		Expect(scheduler.IsTicking()).To(BeFalse())
		Expect(engine.Run()).To(Succeed())
		Expect(engine.EventCount()).To(Equal(uint64(0)))
	})
})
