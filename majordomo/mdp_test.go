// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package majordomo

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceName(t *testing.T) {
	validNames := []ServiceName{"echo", "calculator", "file-service", "service.with.dots", ServiceName(strings.Repeat("x", 255))}
	for _, name := range validNames {
		assert.NoError(t, name.Validate(), "valid service name %q", name)
	}

	invalidNames := []ServiceName{"", ServiceName(strings.Repeat("x", 256))}
	for _, name := range invalidNames {
		assert.Error(t, name.Validate(), "invalid service name %q", name)
	}

	assert.True(t, ServiceName("mmi.service").IsInternal())
	assert.True(t, ServiceName("mmi.").IsInternal())
	assert.False(t, ServiceName("mmi").IsInternal())
	assert.False(t, ServiceName("echo.mmi.").IsInternal())
}

func TestCommand(t *testing.T) {
	tests := []struct {
		cmd   Command
		name  string
		valid bool
	}{
		{CommandReady, "READY", true},
		{CommandRequest, "REQUEST", true},
		{CommandReply, "REPLY", true},
		{CommandHeartbeat, "HEARTBEAT", true},
		{CommandDisconnect, "DISCONNECT", true},
		{Command(0x00), "UNKNOWN(0x00)", false},
		{Command(0x06), "UNKNOWN(0x06)", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.name, tt.cmd.String())
		assert.Equal(t, tt.valid, tt.cmd.Valid(), tt.name)
	}

	_, err := parseCommand([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrUnknownCommand)
	_, err = parseCommand(nil)
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestHeader(t *testing.T) {
	assert.Equal(t, HeaderClient, parseHeader([]byte("MDPC01")))
	assert.Equal(t, HeaderWorker, parseHeader([]byte("MDPW01")))
	assert.Equal(t, HeaderUnknown, parseHeader([]byte("MDPC02")))
	assert.Equal(t, "MDPW01", HeaderWorker.String())
	assert.Equal(t, "UNKNOWN", HeaderUnknown.String())
}

// TestMajordomoProtocolCompliance checks frame layouts against RFC 7/MDP
func TestMajordomoProtocolCompliance(t *testing.T) {
	t.Run("WorkerRequestFormat", func(t *testing.T) {
		frames := encodeWorker([]byte("W1"), CommandRequest, []byte("C1"), []byte{}, []byte("hello"))
		want := [][]byte{[]byte("W1"), {}, []byte("MDPW01"), {0x02}, []byte("C1"), {}, []byte("hello")}
		assert.Equal(t, want, frames)
	})

	t.Run("WorkerDealerFormat", func(t *testing.T) {
		frames := encodeWorker(nil, CommandReady, []byte("echo"))
		want := [][]byte{{}, []byte("MDPW01"), {0x01}, []byte("echo")}
		assert.Equal(t, want, frames)
	})

	t.Run("ClientReplyFormat", func(t *testing.T) {
		frames := encodeClient([]byte("C1"), "echo", []byte("a"), []byte("b"))
		want := [][]byte{[]byte("C1"), {}, []byte("MDPC01"), []byte("echo"), []byte("a"), []byte("b")}
		assert.Equal(t, want, frames)
	})

	t.Run("HeartbeatHasNoBody", func(t *testing.T) {
		frames := encodeWorker([]byte("W1"), CommandHeartbeat)
		assert.Len(t, frames, 4)
	})
}

func TestDecode(t *testing.T) {
	t.Run("Client", func(t *testing.T) {
		msg, err := Decode([][]byte{[]byte("C1"), {}, []byte("MDPC01"), []byte("echo"), []byte("a"), []byte("b")})
		require.NoError(t, err)
		assert.Equal(t, []byte("C1"), msg.Sender)
		assert.Equal(t, HeaderClient, msg.Header)
		assert.Equal(t, ServiceName("echo"), msg.Service)
		assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, msg.Body)
	})

	t.Run("ClientWithoutBody", func(t *testing.T) {
		msg, err := Decode([][]byte{[]byte("C1"), {}, []byte("MDPC01"), []byte("echo")})
		require.NoError(t, err)
		assert.Empty(t, msg.Body)
	})

	t.Run("Worker", func(t *testing.T) {
		msg, err := Decode([][]byte{[]byte("W1"), {}, []byte("MDPW01"), {0x03}, []byte("C1"), {}, []byte("ok")})
		require.NoError(t, err)
		assert.Equal(t, HeaderWorker, msg.Header)
		assert.Equal(t, CommandReply, msg.Command)
		assert.Equal(t, [][]byte{[]byte("C1"), {}, []byte("ok")}, msg.Body)
	})

	tests := []struct {
		name   string
		frames [][]byte
		err    error
	}{
		{"Empty", nil, ErrMalformed},
		{"EmptySender", [][]byte{{}, {}, []byte("MDPC01"), []byte("echo")}, ErrMalformed},
		{"TooShort", [][]byte{[]byte("C1"), {}, []byte("MDPC01")}, ErrMalformed},
		{"NoDelimiter", [][]byte{[]byte("C1"), []byte("x"), []byte("MDPC01"), []byte("echo")}, ErrMalformed},
		{"EmptyService", [][]byte{[]byte("C1"), {}, []byte("MDPC01"), {}}, ErrMalformed},
		{"UnknownHeader", [][]byte{[]byte("C1"), {}, []byte("MDPX01"), []byte("echo")}, ErrUnknownHeader},
		{"UnknownCommand", [][]byte{[]byte("W1"), {}, []byte("MDPW01"), {0x09}}, ErrUnknownCommand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.frames)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestDump(t *testing.T) {
	var buf bytes.Buffer
	Dump(&buf, [][]byte{[]byte("hello"), {}, {0x01}, {0xff, 0xfe}})

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, strings.Repeat("-", 40), lines[0])
	assert.Equal(t, "[005] hello", lines[1])
	assert.Equal(t, "[000] ", lines[2])
	assert.Equal(t, "[001] 01", lines[3])
	assert.Equal(t, "[002] fffe", lines[4])
}
