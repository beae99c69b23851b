// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package majordomo

import "container/heap"

// expiryQueue holds idle workers ordered by expiry, soonest first.
// It implements heap.Interface; use add, remove and fix.
type expiryQueue []*BrokerWorker

func (q expiryQueue) Len() int { return len(q) }

func (q expiryQueue) Less(i, j int) bool {
	return q[i].Expiry.Before(q[j].Expiry)
}

func (q expiryQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *expiryQueue) Push(x interface{}) {
	w := x.(*BrokerWorker)
	w.index = len(*q)
	*q = append(*q, w)
}

func (q *expiryQueue) Pop() interface{} {
	old := *q
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*q = old[:n-1]
	return w
}

func (q *expiryQueue) add(w *BrokerWorker) {
	if w.index >= 0 {
		heap.Fix(q, w.index)
		return
	}
	heap.Push(q, w)
}

func (q *expiryQueue) remove(w *BrokerWorker) {
	if w.index < 0 {
		return
	}
	heap.Remove(q, w.index)
}

func (q *expiryQueue) fix(w *BrokerWorker) {
	if w.index >= 0 {
		heap.Fix(q, w.index)
	}
}

func (q expiryQueue) peek() *BrokerWorker {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}
