package receipt_test

import (
	"fmt"
	"sync"
	"testing"

	receipt "github.com/okian/trustledger/internal/domain/receipt"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCache(t *testing.T) {
	Convey("Given a new receipt cache", t, func() {
		Convey("When created with default options", func() {
			c := receipt.New()

			Convey("Then it should be empty with the default capacity", func() {
				So(c.Len(), ShouldEqual, 0)
				So(c.Capacity(), ShouldEqual, receipt.DefaultCapacity)
			})
		})

		Convey("When an invalid capacity is given", func() {
			c := receipt.New(receipt.WithCapacity(0))
			So(c.Capacity(), ShouldEqual, receipt.DefaultCapacity)
		})

		Convey("When putting and getting a receipt", func() {
			c := receipt.New()
			c.Put("task-1", "sig-1")

			sig, ok := c.Get("task-1")
			So(ok, ShouldBeTrue)
			So(sig, ShouldEqual, "sig-1")

			_, ok = c.Get("task-2")
			So(ok, ShouldBeFalse)
		})

		Convey("When 101 receipts are put into a cache of 100", func() {
			c := receipt.New(receipt.WithCapacity(100))
			for i := 0; i < 101; i++ {
				c.Put(fmt.Sprintf("task-%d", i), fmt.Sprintf("sig-%d", i))
			}

			Convey("Then the first receipt should be evicted", func() {
				So(c.Len(), ShouldEqual, 100)
				_, ok := c.Get("task-0")
				So(ok, ShouldBeFalse)

				sig, ok := c.Get("task-1")
				So(ok, ShouldBeTrue)
				So(sig, ShouldEqual, "sig-1")

				_, ok = c.Get("task-100")
				So(ok, ShouldBeTrue)
			})
		})

		Convey("When capacity+k receipts are put", func() {
			const capacity, k = 10, 4
			c := receipt.New(receipt.WithCapacity(capacity))
			for i := 0; i < capacity+k; i++ {
				c.Put(fmt.Sprintf("task-%d", i), "sig")
			}

			Convey("Then exactly the k oldest should be gone", func() {
				So(c.Len(), ShouldEqual, capacity)
				for i := 0; i < capacity+k; i++ {
					_, ok := c.Get(fmt.Sprintf("task-%d", i))
					So(ok, ShouldEqual, i >= k)
				}
			})
		})

		Convey("When reads happen before eviction", func() {
			c := receipt.New(receipt.WithCapacity(2))
			c.Put("a", "1")
			c.Put("b", "2")
			_, _ = c.Get("a")
			c.Put("c", "3")

			Convey("Then eviction should still follow insertion order", func() {
				_, ok := c.Get("a")
				So(ok, ShouldBeFalse)
				_, ok = c.Get("b")
				So(ok, ShouldBeTrue)
			})
		})

		Convey("When an existing task ID is put again", func() {
			c := receipt.New(receipt.WithCapacity(2))
			c.Put("a", "1")
			c.Put("b", "2")
			c.Put("a", "1b")

			Convey("Then the value should update without changing its position", func() {
				So(c.Len(), ShouldEqual, 2)
				sig, _ := c.Get("a")
				So(sig, ShouldEqual, "1b")

				c.Put("c", "3")
				_, ok := c.Get("a")
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When used concurrently", func() {
			c := receipt.New(receipt.WithCapacity(50))
			var wg sync.WaitGroup
			for w := 0; w < 8; w++ {
				wg.Add(1)
				go func(w int) {
					defer wg.Done()
					for i := 0; i < 100; i++ {
						id := fmt.Sprintf("w%d-%d", w, i)
						c.Put(id, id)
						_, _ = c.Get(id)
					}
				}(w)
			}
			wg.Wait()

			Convey("Then the size should never exceed the capacity", func() {
				So(c.Len(), ShouldEqual, 50)
			})
		})
	})
}
