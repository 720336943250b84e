package timing

import (
	"errors"
	"math/rand"
	"time"

	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/kairos-sim/kairos/sim/hooking"
	"github.com/kairos-sim/kairos/sim/queue"
	"github.com/kairos-sim/kairos/sim/vtime"
)

var errBoom = errors.New("boom")

var _ = ginkgo.Describe("SerialEngine", func() {
	for _, kind := range queue.Kinds() {
		ginkgo.Describe("with "+string(kind)+" backend", func() {
			var (
				mockCtrl *gomock.Controller
				engine   *SerialEngine
				trace    []string
			)

			record := func(name string) Callback {
				return Func(func() {
					trace = append(trace, name)
				})
			}

			ginkgo.BeforeEach(func() {
				mockCtrl = gomock.NewController(ginkgo.GinkgoT())
				engine = MakeSerialEngineBuilder().WithBackend(kind).Build()
				trace = nil
			})

			ginkgo.AfterEach(func() {
				mockCtrl.Finish()
			})

			ginkgo.It("should report its backend", func() {
				Expect(engine.Backend()).To(Equal(kind))
				Expect(engine.Name()).To(Equal("SerialEngine"))
			})

			ginkgo.It("should dispatch in time order, FIFO within a time", func() {
				engine.ScheduleAt(10, record("A"))
				engine.ScheduleAt(10, record("B"))
				engine.ScheduleAt(5, record("C"))

				Expect(engine.Run()).To(Succeed())

				Expect(trace).To(Equal([]string{"C", "A", "B"}))
				Expect(engine.Now()).To(Equal(vtime.VTime(10)))
				Expect(engine.EventCount()).To(Equal(uint64(3)))
				Expect(engine.IsFinished()).To(BeTrue())
			})

			ginkgo.It("should not fire a cancelled event", func() {
				id := engine.ScheduleAt(10, record("E"))

				engine.Cancel(id)
				engine.Cancel(id)
				id.Cancel()

				Expect(id.IsExpired()).To(BeTrue())
				Expect(engine.PendingCount()).To(Equal(0))
				Expect(engine.Run()).To(Succeed())
				Expect(trace).To(BeEmpty())
				Expect(engine.EventCount()).To(Equal(uint64(0)))
			})

			ginkgo.It("should panic when scheduling in the past", func() {
				engine.ScheduleAt(10, func() error {
					Expect(func() {
						engine.ScheduleAt(5, record("late"))
					}).To(Panic())
					return nil
				})

				Expect(engine.Run()).To(Succeed())
				Expect(trace).To(BeEmpty())
			})

			ginkgo.It("should panic on negative delays and nil callbacks", func() {
				Expect(func() { engine.Schedule(-1, record("x")) }).To(Panic())
				Expect(func() { engine.Schedule(1, nil) }).To(Panic())
				Expect(func() { engine.ScheduleDestroy(nil) }).To(Panic())
				Expect(engine.PendingCount()).To(Equal(0))
			})

			ginkgo.It("should panic when the event time overflows", func() {
				engine.ScheduleAt(10, func() error {
					Expect(func() {
						engine.Schedule(vtime.Max, record("x"))
					}).To(Panic())
					return nil
				})

				Expect(engine.Run()).To(Succeed())
			})

			ginkgo.It("should run same-time events scheduled later after earlier ones", func() {
				engine.ScheduleAt(10, record("t10"))
				engine.ScheduleAt(30, func() error {
					trace = append(trace, "X")
					engine.ScheduleNow(record("Z"))
					engine.Schedule(10, record("t40"))
					return nil
				})
				engine.ScheduleAt(30, record("Y"))
				engine.ScheduleAt(20, record("t20"))

				Expect(engine.Run()).To(Succeed())

				Expect(trace).To(Equal(
					[]string{"t10", "t20", "X", "Y", "Z", "t40"}))
			})

			ginkgo.It("should keep the clock monotonic under random rescheduling", func() {
				rng := rand.New(rand.NewSource(3))
				remaining := 5000
				last := vtime.VTime(-1)

				var hold Callback
				hold = func() error {
					now := engine.Now()
					Expect(now).To(BeNumerically(">=", last))
					last = now

					remaining--
					if remaining > 0 {
						engine.Schedule(vtime.VTime(rng.Int63n(50)), hold)
					}

					if rng.Intn(4) == 0 {
						victim := engine.Schedule(vtime.VTime(rng.Int63n(50)), hold)
						victim.Cancel()
					}

					return nil
				}

				for i := 0; i < 100; i++ {
					engine.Schedule(vtime.VTime(rng.Int63n(50)), hold)
				}

				Expect(engine.Run()).To(Succeed())
				Expect(engine.PendingCount()).To(Equal(0))
				Expect(engine.events.live()).To(Equal(0))
			})

			ginkgo.It("should support recursive scheduling", func() {
				depth := 0

				var recurse Callback
				recurse = func() error {
					depth++
					if depth < 100 {
						engine.ScheduleNow(recurse)
					}
					return nil
				}

				engine.ScheduleNow(recurse)

				Expect(engine.Run()).To(Succeed())
				Expect(depth).To(Equal(100))
				Expect(engine.Now()).To(Equal(vtime.VTime(0)))
			})

			ginkgo.It("should expire the handle of the running event", func() {
				var self EventID

				self = engine.ScheduleAt(5, func() error {
					Expect(self.IsExpired()).To(BeTrue())
					self.Cancel()
					return nil
				})

				Expect(self.IsPending()).To(BeTrue())
				Expect(engine.Run()).To(Succeed())
				Expect(engine.EventCount()).To(Equal(uint64(1)))
			})

			ginkgo.It("should let a callback cancel a later event", func() {
				later := engine.ScheduleAt(20, record("later"))
				engine.ScheduleAt(10, func() error {
					later.Cancel()
					return nil
				})

				Expect(engine.Run()).To(Succeed())
				Expect(trace).To(BeEmpty())
				Expect(engine.Now()).To(Equal(vtime.VTime(10)))
			})

			ginkgo.It("should keep old handles inert when slots are reused", func() {
				first := engine.ScheduleAt(1, record("first"))
				Expect(engine.Run()).To(Succeed())

				second := engine.ScheduleAt(2, record("second"))
				Expect(second.slot).To(Equal(first.slot))

				first.Cancel()

				Expect(first.IsExpired()).To(BeTrue())
				Expect(second.IsPending()).To(BeTrue())
				Expect(engine.Run()).To(Succeed())
				Expect(trace).To(Equal([]string{"first", "second"}))
			})

			ginkgo.It("should treat zero and foreign handles as expired", func() {
				other := NewSerialEngine()
				foreign := other.ScheduleAt(1, record("foreign"))

				Expect(EventID{}.IsExpired()).To(BeTrue())
				Expect(EventID{}.SameEngine(engine.ScheduleAt(1, record("x")))).To(BeFalse())
				EventID{}.Cancel()
				Expect(engine.IsExpired(foreign)).To(BeTrue())

				engine.Cancel(foreign)

				Expect(foreign.IsPending()).To(BeTrue())
			})

			ginkgo.It("should report the delay left", func() {
				id := engine.ScheduleAt(30, record("x"))
				engine.ScheduleAt(10, func() error {
					Expect(engine.DelayLeft(id)).To(Equal(vtime.VTime(20)))
					return nil
				})

				Expect(engine.DelayLeft(id)).To(Equal(vtime.VTime(30)))
				Expect(engine.Run()).To(Succeed())
				Expect(engine.DelayLeft(id)).To(Equal(vtime.VTime(0)))
				Expect(engine.MaximumSimulationTime()).To(Equal(vtime.Max))
			})

			ginkgo.It("should carry contexts", func() {
				Expect(engine.Context()).To(Equal(NoContext))

				engine.ScheduleWithContext(7, 5, func() error {
					Expect(engine.Context()).To(Equal(uint32(7)))

					id := engine.Schedule(1, func() error {
						Expect(engine.Context()).To(Equal(uint32(7)))
						trace = append(trace, "inherited")
						return nil
					})
					Expect(id.Context()).To(Equal(uint32(7)))

					engine.ScheduleWithContext(9, 1, func() error {
						Expect(engine.Context()).To(Equal(uint32(9)))
						trace = append(trace, "switched")
						return nil
					})

					return nil
				})

				Expect(engine.Run()).To(Succeed())
				Expect(trace).To(Equal([]string{"inherited", "switched"}))
				Expect(engine.Context()).To(Equal(NoContext))
			})

			ginkgo.It("should return callback errors and resume later", func() {
				failing := engine.ScheduleAt(10, func() error { return errBoom })
				engine.ScheduleAt(20, record("after"))

				err := engine.Run()

				Expect(err).To(MatchError(errBoom))
				var cbErr *CallbackError
				Expect(errors.As(err, &cbErr)).To(BeTrue())
				Expect(cbErr.ID).To(Equal(failing))
				Expect(failing.IsExpired()).To(BeTrue())
				Expect(engine.Now()).To(Equal(vtime.VTime(10)))
				Expect(engine.PendingCount()).To(Equal(1))

				Expect(engine.Run()).To(Succeed())
				Expect(trace).To(Equal([]string{"after"}))
			})

			ginkgo.It("should keep bookkeeping consistent when a callback panics", func() {
				id := engine.ScheduleAt(10, func() error { panic("model bug") })
				engine.ScheduleAt(20, record("after"))

				Expect(func() { _ = engine.Run() }).To(Panic())

				Expect(id.IsExpired()).To(BeTrue())
				Expect(engine.PendingCount()).To(Equal(1))
				Expect(engine.Run()).To(Succeed())
				Expect(trace).To(Equal([]string{"after"}))
			})

			ginkgo.It("should stop after the current event", func() {
				engine.ScheduleAt(10, func() error {
					trace = append(trace, "stopper")
					engine.Stop()
					return nil
				})
				engine.ScheduleAt(10, record("same-time"))
				engine.ScheduleAt(20, record("later"))

				Expect(engine.Run()).To(Succeed())
				Expect(trace).To(Equal([]string{"stopper"}))
				Expect(engine.IsFinished()).To(BeTrue())

				Expect(engine.Run()).To(Succeed())
				Expect(trace).To(Equal([]string{"stopper", "same-time", "later"}))
			})

			ginkgo.It("should stop at a given time", func() {
				engine.ScheduleAt(10, record("10"))
				engine.ScheduleAt(25, record("25"))
				engine.ScheduleAt(30, record("30"))
				engine.StopAt(25)

				Expect(engine.Run()).To(Succeed())
				Expect(trace).To(Equal([]string{"10", "25"}))
				Expect(engine.Now()).To(Equal(vtime.VTime(25)))
				Expect(engine.PendingCount()).To(Equal(1))

				engine.StopAfter(100)
				Expect(engine.Run()).To(Succeed())
				Expect(trace).To(Equal([]string{"10", "25", "30"}))
				Expect(engine.Now()).To(Equal(vtime.VTime(125)))
			})

			ginkgo.It("should ignore Stop called before Run", func() {
				engine.ScheduleAt(10, record("x"))
				engine.Stop()

				Expect(engine.Run()).To(Succeed())
				Expect(trace).To(Equal([]string{"x"}))
			})

			ginkgo.It("should panic on reentrant Run", func() {
				engine.ScheduleAt(1, func() error {
					Expect(engine.IsRunning()).To(BeTrue())
					Expect(func() { _ = engine.Run() }).To(Panic())
					return nil
				})

				Expect(engine.Run()).To(Succeed())
				Expect(engine.IsRunning()).To(BeFalse())
			})

			ginkgo.It("should start one background run at a time", func() {
				release := make(chan struct{})
				engine.ScheduleAt(1, Func(func() { <-release }))
				engine.ScheduleAt(2, record("after"))

				done, ok := engine.Start()
				Expect(ok).To(BeTrue())
				Expect(engine.IsRunning()).To(BeTrue())

				_, again := engine.Start()
				Expect(again).To(BeFalse())

				close(release)
				Eventually(done).Should(Receive(BeNil()))
				Eventually(done).Should(BeClosed())
				Expect(trace).To(Equal([]string{"after"}))
				Expect(engine.IsRunning()).To(BeFalse())
			})

			ginkgo.It("should not start a destroyed engine", func() {
				Expect(engine.Destroy()).To(Succeed())

				done, ok := engine.Start()
				Expect(ok).To(BeFalse())
				Expect(done).To(BeNil())
			})

			ginkgo.It("should drop pending events and run destroy events on Destroy", func() {
				pending := engine.ScheduleAt(10, record("never"))
				engine.ScheduleDestroy(record("d1"))
				cancelled := engine.ScheduleDestroy(record("d2"))
				engine.ScheduleDestroy(func() error {
					trace = append(trace, "d3")
					engine.ScheduleDestroy(record("d4"))
					return nil
				})
				cancelled.Cancel()

				Expect(engine.Destroy()).To(Succeed())

				Expect(trace).To(Equal([]string{"d1", "d3", "d4"}))
				Expect(pending.IsExpired()).To(BeTrue())
				Expect(engine.IsDestroyed()).To(BeTrue())
				Expect(engine.PendingCount()).To(Equal(0))
				Expect(engine.Destroy()).To(Succeed())
				Expect(trace).To(HaveLen(3))

				Expect(func() { engine.ScheduleAt(20, record("x")) }).To(Panic())
				Expect(func() { engine.ScheduleDestroy(record("x")) }).To(Panic())
				Expect(func() { _ = engine.Run() }).To(Panic())
			})

			ginkgo.It("should report destroy event errors", func() {
				engine.ScheduleDestroy(func() error { return errBoom })
				engine.ScheduleDestroy(record("still runs"))

				err := engine.Destroy()

				Expect(err).To(MatchError(errBoom))
				Expect(trace).To(Equal([]string{"still runs"}))
			})

			ginkgo.It("should stop dispatching when destroyed from a callback", func() {
				engine.ScheduleAt(10, func() error {
					trace = append(trace, "destroyer")
					Expect(engine.Destroy()).To(Succeed())
					return nil
				})
				engine.ScheduleAt(10, record("never"))
				engine.ScheduleAt(20, record("never either"))

				Expect(engine.Run()).To(Succeed())
				Expect(trace).To(Equal([]string{"destroyer"}))
			})

			ginkgo.It("should invoke hooks around events", func() {
				hook := NewMockHook(mockCtrl)
				engine.AcceptHook(hook)

				id := engine.ScheduleAt(10, record("x"))

				gomock.InOrder(
					hook.EXPECT().Func(hooking.HookCtx{
						Domain: engine,
						Pos:    HookPosBeforeEvent,
						Item:   id,
					}).Do(func(ctx hooking.HookCtx) {
						Expect(engine.Now()).To(Equal(vtime.VTime(10)))
						Expect(trace).To(BeEmpty())
					}),
					hook.EXPECT().Func(hooking.HookCtx{
						Domain: engine,
						Pos:    HookPosAfterEvent,
						Item:   id,
						Detail: error(nil),
					}).Do(func(ctx hooking.HookCtx) {
						Expect(trace).To(Equal([]string{"x"}))
						Expect(id.IsExpired()).To(BeTrue())
					}),
				)

				Expect(engine.Run()).To(Succeed())
			})

			ginkgo.It("should pass callback errors to after-event hooks", func() {
				hook := NewMockHook(mockCtrl)
				engine.AcceptHook(hook)

				engine.ScheduleAt(10, func() error { return errBoom })

				hook.EXPECT().Func(gomock.Any()).Do(func(ctx hooking.HookCtx) {
					if ctx.Pos == HookPosAfterEvent {
						Expect(ctx.Detail).To(MatchError(errBoom))
					}
				}).Times(2)

				Expect(engine.Run()).To(MatchError(errBoom))
			})

			ginkgo.It("should invoke hooks on cancellation", func() {
				hook := NewMockHook(mockCtrl)
				engine.AcceptHook(hook)

				id := engine.ScheduleAt(10, record("x"))

				hook.EXPECT().Func(hooking.HookCtx{
					Domain: engine,
					Pos:    HookPosEventCancelled,
					Item:   id,
				})

				id.Cancel()
				id.Cancel()
			})

			ginkgo.It("should pause and continue", func() {
				engine.ScheduleAt(10, record("x"))
				engine.Pause()
				engine.Pause()

				done := make(chan error, 1)
				go func() {
					done <- engine.Run()
				}()

				Consistently(done, 50*time.Millisecond).ShouldNot(Receive())

				engine.Continue()
				engine.Continue()

				Eventually(done).Should(Receive(BeNil()))
				Expect(trace).To(Equal([]string{"x"}))
			})
		})
	}
})

var _ = ginkgo.Describe("EventState", func() {
	ginkgo.It("should have readable names", func() {
		Expect(Pending.String()).To(Equal("Pending"))
		Expect(Running.String()).To(Equal("Running"))
		Expect(Executed.String()).To(Equal("Executed"))
		Expect(Cancelled.String()).To(Equal("Cancelled"))
		Expect(EventState(9).String()).To(Equal("EventState(9)"))
	})

	ginkgo.It("should expire handles on both terminal transitions", func() {
		mockCtrl := gomock.NewController(ginkgo.GinkgoT())
		engine := NewSerialEngine()
		hook := NewMockHook(mockCtrl)
		engine.AcceptHook(hook)

		var outcomes []string
		hook.EXPECT().Func(gomock.Any()).Do(func(ctx hooking.HookCtx) {
			switch ctx.Pos {
			case HookPosAfterEvent:
				outcomes = append(outcomes, Executed.String())
			case HookPosEventCancelled:
				outcomes = append(outcomes, Cancelled.String())
			}
		}).AnyTimes()

		var executed EventID
		executed = engine.ScheduleAt(1, Func(func() {
			Expect(executed.IsExpired()).To(BeTrue())
		}))
		cancelled := engine.ScheduleAt(2, Func(func() {}))
		Expect(executed.IsPending()).To(BeTrue())

		engine.Cancel(cancelled)
		Expect(engine.Run()).To(Succeed())

		Expect(executed.IsExpired()).To(BeTrue())
		Expect(cancelled.IsExpired()).To(BeTrue())
		Expect(outcomes).To(Equal([]string{"Cancelled", "Executed"}))
	})
})
