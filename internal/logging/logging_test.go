// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"error":   LevelError,
		"WARN":    LevelWarn,
		"warning": LevelWarn,
		"":        LevelInfo,
		"Info":    LevelInfo,
		"debug":   LevelDebug,
		" trace ": LevelTrace,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "TRACE", LevelTrace.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelWarn)

	log.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	log.Warn().Str("worker", "w1").Msg("expired")
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "w1", entry["worker"])
	assert.Equal(t, "expired", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestNop(t *testing.T) {
	log := Nop()
	log.Error().Msg("nothing")
	assert.False(t, log.Debug().Enabled())
}
