// Package pipeline runs producers and consumers around one bounded buffer.
//
// Producers receive a buffer.Distributor and push items; consumers receive
// an Iterator built from the buffer's Feed and an Adapter. Run owns the
// buffer, the shared cancellation and the task pool, and returns only after
// every task has stopped.
//
// # Adapters
//
//   - Identity: one item per Next
//   - List: batches of up to maxSize items, the last one possibly short
//
// # Usage
//
//	batches, _ := pipeline.List[int](10)
//	err := pipeline.Run(ctx,
//	    pipeline.Config{Producers: 2, Consumers: 3, Capacity: 5},
//	    batches,
//	    func(i int) pipeline.Producer[int] {
//	        return func(ctx context.Context, out buffer.Distributor[int]) error {
//	            for n := range 50 {
//	                if err := out.Distribute(ctx, n); err != nil {
//	                    return err
//	                }
//	            }
//	            return nil
//	        }
//	    },
//	    func(i int) pipeline.Consumer[[]int] {
//	        return func(ctx context.Context, in pipeline.Iterator[[]int]) error {
//	            return pipeline.ForEach(ctx, in, store)
//	        }
//	    },
//	)
package pipeline
