// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconfigureWritesServiceAndComponent(t *testing.T) {
	var buf bytes.Buffer
	Reconfigure(Config{Level: "debug", Output: &buf, Service: "jfplay-test", Version: "v0.0.1"})

	l := WithComponent("streamchoice")
	l.Info().Str(FieldEvent, "audio.chosen").Msg("chose audio")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "jfplay-test", entry["service"])
	assert.Equal(t, "v0.0.1", entry["version"])
	assert.Equal(t, "streamchoice", entry[FieldComponent])
	assert.Equal(t, "audio.chosen", entry[FieldEvent])
}

func TestWithContextAddsIdentifiers(t *testing.T) {
	var buf bytes.Buffer
	Reconfigure(Config{Level: "info", Output: &buf})

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithPlaySession(ctx, "ps-9")
	ctx = ContextWithItemID(ctx, "item-3")

	FromContext(ctx).Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-1", entry[FieldRequestID])
	assert.Equal(t, "ps-9", entry[FieldPlaySessionID])
	assert.Equal(t, "item-3", entry[FieldItemID])
}

func TestContextHelpersTolerateNil(t *testing.T) {
	//nolint:staticcheck
	assert.Empty(t, RequestIDFromContext(nil))
	//nolint:staticcheck
	ctx := ContextWithItemID(nil, "x")
	assert.Equal(t, "x", ItemIDFromContext(ctx))
}
