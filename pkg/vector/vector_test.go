package vector_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/vecindex/pkg/vector"
	"github.com/papercomputeco/vecindex/pkg/vector/inmemory"
	"github.com/papercomputeco/vecindex/pkg/vector/unimplemented"
)

var _ = Describe("Registry", func() {
	It("resolves registered drivers", func() {
		r := vector.NewRegistry(inmemory.NewDriver("memory"), unimplemented.NewDriver("opensearch"))

		d, err := r.Get("memory")
		Expect(err).NotTo(HaveOccurred())
		Expect(d.ID()).To(Equal("memory"))
		Expect(r.IDs()).To(Equal([]string{"memory", "opensearch"}))
	})

	It("fails unknown ids with ErrDriverNotRegistered", func() {
		r := vector.NewRegistry()
		_, err := r.Get("nope")
		Expect(err).To(MatchError(vector.ErrDriverNotRegistered))
		Expect(err.Error()).To(ContainSubstring(`"nope"`))
	})
})

var _ = Describe("unimplemented driver", func() {
	It("fails every operation loudly", func() {
		ctx := context.Background()
		d := unimplemented.NewDriver("opensearch")

		errs := []error{
			d.EnsureReady(ctx),
			d.Upsert(ctx, vector.Document{}),
			d.Delete(ctx, "e", "r", "t"),
			d.Purge(ctx, "e", "t"),
		}
		_, _, err := d.GetChecksum(ctx, "e", "r", "t")
		errs = append(errs, err)
		_, err = d.Query(ctx, nil, 1, vector.QueryFilter{})
		errs = append(errs, err)
		_, err = d.List(ctx, vector.ListParams{})
		errs = append(errs, err)

		for _, err := range errs {
			Expect(err).To(MatchError(vector.ErrDriverNotImplemented))

			var nie *vector.NotImplementedError
			Expect(errors.As(err, &nie)).To(BeTrue())
			Expect(nie.DriverID).To(Equal("opensearch"))
		}
		Expect(d.Close()).To(Succeed())
	})
})

var _ = Describe("ReadyOnce", func() {
	It("runs setup exactly once for concurrent first callers", func() {
		var (
			once  vector.ReadyOnce
			calls atomic.Int32
			wg    sync.WaitGroup
		)

		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				err := once.Do(context.Background(), func(context.Context) error {
					calls.Add(1)
					time.Sleep(10 * time.Millisecond)
					return nil
				})
				Expect(err).NotTo(HaveOccurred())
			}()
		}
		wg.Wait()

		Expect(calls.Load()).To(Equal(int32(1)))
		Expect(once.Done()).To(BeTrue())
	})

	It("retries after a failed attempt", func() {
		var once vector.ReadyOnce
		boom := errors.New("boom")

		Expect(once.Do(context.Background(), func(context.Context) error { return boom })).To(MatchError(boom))
		Expect(once.Done()).To(BeFalse())

		Expect(once.Do(context.Background(), func(context.Context) error { return nil })).To(Succeed())
		Expect(once.Done()).To(BeTrue())
	})

	It("keeps setup running for other callers when the first caller cancels", func() {
		var once vector.ReadyOnce
		started := make(chan struct{})
		release := make(chan struct{})
		setupErr := make(chan error, 1)

		setup := func(ctx context.Context) error {
			close(started)
			<-release
			setupErr <- ctx.Err()
			return ctx.Err()
		}

		firstCtx, cancelFirst := context.WithCancel(context.Background())
		firstDone := make(chan error, 1)
		go func() { firstDone <- once.Do(firstCtx, setup) }()
		Eventually(started).Should(BeClosed())

		secondDone := make(chan error, 1)
		go func() {
			secondDone <- once.Do(context.Background(), func(context.Context) error {
				return errors.New("second attempt should share the first")
			})
		}()

		cancelFirst()
		Eventually(firstDone).Should(Receive(MatchError(context.Canceled)))

		close(release)
		Eventually(secondDone).Should(Receive(BeNil()))
		Expect(<-setupErr).NotTo(HaveOccurred())
		Expect(once.Done()).To(BeTrue())
	})

	It("bounds a setup attempt with its timeout", func() {
		once := vector.ReadyOnce{Timeout: 20 * time.Millisecond}
		err := once.Do(context.Background(), func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
		Expect(err).To(MatchError(context.DeadlineExceeded))
		Expect(once.Done()).To(BeFalse())
	})
})

var _ = Describe("Similarity", func() {
	It("maps cosine distance so identical vectors score 1", func() {
		Expect(vector.Similarity(vector.DistanceCosine, 0)).To(BeNumerically("==", 1))
		Expect(vector.Similarity(vector.DistanceCosine, 0.25)).To(BeNumerically("~", 0.75, 1e-6))
	})

	It("keeps l2 scores in (0, 1]", func() {
		Expect(vector.Similarity(vector.DistanceL2, 0)).To(BeNumerically("==", 1))
		Expect(vector.Similarity(vector.DistanceL2, 1)).To(BeNumerically("~", 0.5, 1e-6))
	})
})
