// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package testutil

import (
	"bytes"
	"sync"

	"github.com/go-zeromq/zmq4"
)

// FrameRecorder stands in for a socket's send side and keeps every
// message sent through it.
type FrameRecorder struct {
	mu       sync.Mutex
	messages [][][]byte
	err      error
}

// Send records msg. It returns the error set by FailWith, if any.
func (r *FrameRecorder) Send(msg zmq4.Msg) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	frames := make([][]byte, len(msg.Frames))
	for i, f := range msg.Frames {
		frames[i] = append([]byte{}, f...)
	}
	r.messages = append(r.messages, frames)
	return nil
}

// FailWith makes every following Send return err.
func (r *FrameRecorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Messages returns every recorded message.
func (r *FrameRecorder) Messages() [][][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][][]byte(nil), r.messages...)
}

// Take returns the recorded messages and forgets them.
func (r *FrameRecorder) Take() [][][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.messages
	r.messages = nil
	return out
}

// To returns the recorded messages whose routing frame is address.
func (r *FrameRecorder) To(address []byte) [][][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out [][][]byte
	for _, m := range r.messages {
		if len(m) > 0 && bytes.Equal(m[0], address) {
			out = append(out, m)
		}
	}
	return out
}
