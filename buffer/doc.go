// Package buffer provides the bounded blocking queue at the centre of a
// producer/consumer pipeline, and the two capability views task code is
// given instead of the queue itself.
//
// Producers receive a Distributor and can only add items; consumers receive
// a Feed and can only remove them. Neither can complete, close or inspect
// the shared Buffer, which stays owned by whoever created it.
//
//	buf, _ := buffer.New[int](ctx, 5)
//	defer buf.Close()
//	out := buffer.DistributorOf(buf)
//	in := buffer.FeedOf(buf)
package buffer
