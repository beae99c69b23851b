// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package majordomo

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

var dumpRule = strings.Repeat("-", 40)

// Dump writes every frame of a message to w, one "[size] data" line per
// frame. Binary frames are written as hex.
func Dump(w io.Writer, frames [][]byte) {
	fmt.Fprintln(w, dumpRule)
	for _, frame := range frames {
		fmt.Fprintf(w, "[%03d] %s\n", len(frame), printable(frame))
	}
}

// printable renders a frame as text when it is valid UTF-8 without control
// characters, and as hex otherwise.
func printable(frame []byte) string {
	if !utf8.Valid(frame) {
		return hex.EncodeToString(frame)
	}
	for _, r := range string(frame) {
		if r < 0x20 || r == 0x7f {
			return hex.EncodeToString(frame)
		}
	}
	return string(frame)
}
