package queue_test

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kairos-sim/kairos/sim/queue"
	"github.com/kairos-sim/kairos/sim/vtime"
)

func entry(t vtime.VTime, uid uint64) queue.Entry {
	return queue.Entry{
		Key:  queue.Key{Time: t, UID: uid},
		Slot: uint32(uid),
	}
}

// referenceQueue is the obviously-correct model every backend must match.
type referenceQueue struct {
	entries map[uint64]queue.Entry
}

func (r *referenceQueue) insert(e queue.Entry) {
	r.entries[e.Key.UID] = e
}

func (r *referenceQueue) min() (queue.Entry, bool) {
	var best queue.Entry
	found := false

	for _, e := range r.entries {
		if !found || e.Key.Less(best.Key) {
			best = e
			found = true
		}
	}

	return best, found
}

func (r *referenceQueue) any(rng *rand.Rand) (queue.Entry, bool) {
	if len(r.entries) == 0 {
		return queue.Entry{}, false
	}

	skip := rng.Intn(len(r.entries))
	for _, e := range r.entries {
		if skip == 0 {
			return e, true
		}
		skip--
	}

	return queue.Entry{}, false
}

var _ = Describe("Key", func() {
	It("should order by time, then by UID", func() {
		Expect(queue.Key{Time: 1, UID: 9}.Less(queue.Key{Time: 2, UID: 1})).
			To(BeTrue())
		Expect(queue.Key{Time: 2, UID: 1}.Less(queue.Key{Time: 2, UID: 2})).
			To(BeTrue())
		Expect(queue.Key{Time: 2, UID: 2}.Less(queue.Key{Time: 2, UID: 2})).
			To(BeFalse())
	})
})

var _ = Describe("Kind", func() {
	It("should parse known kinds", func() {
		for _, k := range queue.Kinds() {
			parsed, err := queue.ParseKind(" " + string(k) + " ")
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed).To(Equal(k))
		}
	})

	It("should reject unknown kinds", func() {
		_, err := queue.ParseKind("skiplist")
		Expect(err).To(MatchError(queue.ErrUnknownKind))
		Expect(func() { queue.New("skiplist") }).To(Panic())
	})
})

var _ = Describe("Backends", func() {
	for _, kind := range queue.Kinds() {
		Describe(string(kind), func() {
			var q queue.Queue

			BeforeEach(func() {
				q = queue.New(kind)
			})

			It("should start empty", func() {
				_, ok := q.PeekMin()
				Expect(ok).To(BeFalse())
				Expect(q.IsEmpty()).To(BeTrue())
				Expect(q.Len()).To(Equal(0))
				Expect(func() { q.PopMin() }).To(Panic())
			})

			It("should pop in order", func() {
				rng := rand.New(rand.NewSource(1))
				numEntries := 1000

				for i := 0; i < numEntries; i++ {
					q.Insert(entry(vtime.VTime(rng.Int63n(500)), uint64(i+1)))
				}
				Expect(q.Len()).To(Equal(numEntries))

				prev := queue.Key{Time: -1}
				for i := 0; i < numEntries; i++ {
					peeked, ok := q.PeekMin()
					Expect(ok).To(BeTrue())

					e := q.PopMin()
					Expect(e).To(Equal(peeked))
					Expect(prev.Less(e.Key)).To(BeTrue())
					prev = e.Key
				}

				Expect(q.IsEmpty()).To(BeTrue())
			})

			It("should pop equal times in UID order", func() {
				for _, uid := range []uint64{3, 1, 4, 2, 5} {
					q.Insert(entry(10, uid))
				}

				for uid := uint64(1); uid <= 5; uid++ {
					Expect(q.PopMin().Key.UID).To(Equal(uid))
				}
			})

			It("should remove arbitrary entries", func() {
				for i := uint64(1); i <= 5; i++ {
					q.Insert(entry(vtime.VTime(i*10), i))
				}

				Expect(q.Remove(entry(30, 3))).To(BeTrue())
				Expect(q.Remove(entry(30, 3))).To(BeFalse())
				Expect(q.Remove(entry(40, 6))).To(BeFalse())
				Expect(q.Len()).To(Equal(4))

				var uids []uint64
				for !q.IsEmpty() {
					uids = append(uids, q.PopMin().Key.UID)
				}
				Expect(uids).To(Equal([]uint64{1, 2, 4, 5}))
			})

			It("should not remove an entry with a stale key", func() {
				q.Insert(entry(10, 1))

				stale := queue.Entry{Key: queue.Key{Time: 20, UID: 7}, Slot: 1}

				Expect(q.Remove(stale)).To(BeFalse())
				Expect(q.Len()).To(Equal(1))
			})

			It("should clear", func() {
				for i := uint64(1); i <= 100; i++ {
					q.Insert(entry(vtime.VTime(i), i))
				}

				q.Clear()

				Expect(q.IsEmpty()).To(BeTrue())
				_, ok := q.PeekMin()
				Expect(ok).To(BeFalse())

				q.Insert(entry(5, 101))
				Expect(q.PopMin().Key.UID).To(Equal(uint64(101)))
			})

			It("should match the reference under a hold workload", func() {
				rng := rand.New(rand.NewSource(42))
				ref := &referenceQueue{entries: make(map[uint64]queue.Entry)}
				now := vtime.VTime(0)
				nextUID := uint64(1)
				freeSlots := []uint32{}
				nextSlot := uint32(0)

				allocSlot := func() uint32 {
					if n := len(freeSlots); n > 0 {
						s := freeSlots[n-1]
						freeSlots = freeSlots[:n-1]
						return s
					}
					nextSlot++
					return nextSlot - 1
				}

				insert := func() {
					e := queue.Entry{
						Key: queue.Key{
							Time: now + vtime.VTime(rng.Int63n(100)),
							UID:  nextUID,
						},
						Slot: allocSlot(),
					}
					nextUID++
					q.Insert(e)
					ref.insert(e)
				}

				for i := 0; i < 200; i++ {
					insert()
				}

				for step := 0; step < 5000; step++ {
					switch r := rng.Intn(10); {
					case r < 5:
						expected, ok := ref.min()
						if !ok {
							continue
						}
						e := q.PopMin()
						Expect(e).To(Equal(expected))
						delete(ref.entries, e.Key.UID)
						freeSlots = append(freeSlots, e.Slot)
						now = e.Key.Time
					case r < 7:
						victim, ok := ref.any(rng)
						if !ok {
							continue
						}
						Expect(q.Remove(victim)).To(BeTrue())
						delete(ref.entries, victim.Key.UID)
						freeSlots = append(freeSlots, victim.Slot)
					default:
						insert()
					}

					Expect(q.Len()).To(Equal(len(ref.entries)))
				}

				for !q.IsEmpty() {
					expected, _ := ref.min()
					Expect(q.PopMin()).To(Equal(expected))
					delete(ref.entries, expected.Key.UID)
				}
				Expect(ref.entries).To(BeEmpty())
			})

			It("should stay ordered when entries arrive out of order", func() {
				rng := rand.New(rand.NewSource(7))
				ref := &referenceQueue{entries: make(map[uint64]queue.Entry)}

				for i := uint64(1); i <= 300; i++ {
					e := entry(vtime.VTime(rng.Int63n(10000)), i)
					q.Insert(e)
					ref.insert(e)

					if i%3 == 0 {
						expected, _ := ref.min()
						peeked, _ := q.PeekMin()
						Expect(peeked).To(Equal(expected))
					}

					if i%5 == 0 {
						expected, _ := ref.min()
						Expect(q.PopMin()).To(Equal(expected))
						delete(ref.entries, expected.Key.UID)
					}
				}
			})
		})
	}
})

var _ = Describe("CalendarQueue", func() {
	It("should grow and shrink the number of buckets", func() {
		q := queue.NewCalendarQueue()
		Expect(q.NumBuckets()).To(Equal(2))

		for i := uint64(1); i <= 1000; i++ {
			q.Insert(entry(vtime.VTime(i*7), i))
		}
		Expect(q.NumBuckets()).To(BeNumerically(">=", 256))
		Expect(q.Width()).To(BeNumerically(">=", 1))

		for i := 0; i < 995; i++ {
			q.PopMin()
		}
		Expect(q.NumBuckets()).To(BeNumerically("<=", 16))
		Expect(q.PopMin().Key.UID).To(Equal(uint64(996)))
	})

	It("should find far-future entries", func() {
		q := queue.NewCalendarQueue()

		q.Insert(entry(vtime.Max, 1))
		q.Insert(entry(5, 2))
		q.Insert(entry(vtime.Max-1, 3))

		Expect(q.PopMin().Key.UID).To(Equal(uint64(2)))
		Expect(q.PopMin().Key.UID).To(Equal(uint64(3)))
		Expect(q.PopMin().Key.UID).To(Equal(uint64(1)))
	})

	It("should reject negative times", func() {
		q := queue.NewCalendarQueue()

		Expect(func() { q.Insert(entry(-1, 1)) }).To(Panic())
	})
})
