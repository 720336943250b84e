package timing

import (
	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

var _ = ginkgo.Describe("EventLogger", func() {
	var (
		engine  *SerialEngine
		logHook *test.Hook
	)

	ginkgo.BeforeEach(func() {
		var logger *logrus.Logger
		logger, logHook = test.NewNullLogger()
		logger.SetLevel(logrus.DebugLevel)

		engine = NewSerialEngine()
		engine.AcceptHook(NewEventLogger(logger))
	})

	ginkgo.It("should log every dispatched event", func() {
		engine.ScheduleAt(10, Func(func() {}))
		engine.ScheduleWithContext(3, 20, Func(func() {}))

		Expect(engine.Run()).To(Succeed())

		entries := logHook.AllEntries()
		Expect(entries).To(HaveLen(2))
		Expect(entries[0].Message).To(Equal("event"))
		Expect(entries[0].Level).To(Equal(logrus.InfoLevel))
		Expect(entries[0].Data).To(HaveKeyWithValue("time", "+10ns"))
		Expect(entries[0].Data).To(HaveKeyWithValue("uid", uint64(1)))
		Expect(entries[0].Data).NotTo(HaveKey("context"))
		Expect(entries[1].Data).To(HaveKeyWithValue("context", uint32(3)))
	})

	ginkgo.It("should log at the chosen level", func() {
		logger, hook := test.NewNullLogger()
		logger.SetLevel(logrus.DebugLevel)
		engine.AcceptHook(NewEventLogger(logger).WithLevel(logrus.DebugLevel))

		engine.ScheduleAt(1, Func(func() {}))
		Expect(engine.Run()).To(Succeed())

		Expect(hook.LastEntry().Level).To(Equal(logrus.DebugLevel))
	})
})
