// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package majordomo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpiryQueue(t *testing.T) {
	base := time.Unix(1000, 0)
	worker := func(name string, offset time.Duration) *BrokerWorker {
		return &BrokerWorker{Identity: name, Address: []byte(name), Expiry: base.Add(offset), index: -1}
	}

	var q expiryQueue
	a, b, c := worker("a", 3*time.Second), worker("b", time.Second), worker("c", 2*time.Second)
	q.add(a)
	q.add(b)
	q.add(c)
	require.Equal(t, 3, q.Len())
	assert.Same(t, b, q.peek())
	assert.True(t, a.Idle())

	b.Expiry = base.Add(5 * time.Second)
	q.fix(b)
	assert.Same(t, c, q.peek())

	q.remove(c)
	assert.False(t, c.Idle())
	assert.Same(t, a, q.peek())

	// removing a worker that is not queued is a no-op
	q.remove(c)
	assert.Equal(t, 2, q.Len())

	q.remove(a)
	q.remove(b)
	assert.Nil(t, q.peek())
}
