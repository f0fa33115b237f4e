// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Enabled: false, ServiceName: "jfplay"})
	require.NoError(t, err)
	assert.Nil(t, provider.tp)

	_, span := otel.Tracer("test").Start(context.Background(), "noop-check")
	assert.False(t, span.IsRecording())
	span.End()

	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProvider_InvalidExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, ServiceName: "jfplay", ExporterType: "invalid"})
	require.Error(t, err)
	assert.Equal(t, "unsupported exporter type: invalid (supported: grpc, http)", err.Error())
}

func TestPlaybackAttributesOmitEmpty(t *testing.T) {
	attrs := PlaybackAttributes("item", "", "DirectPlay", "")
	require.Len(t, attrs, 2)
	assert.Equal(t, PlaybackItemKey, string(attrs[0].Key))
	assert.Equal(t, "DirectPlay", attrs[1].Value.AsString())
}

func TestErrorAttributes(t *testing.T) {
	attrs := ErrorAttributes(errors.New("boom"), "playback_info")
	require.Len(t, attrs, 2)
	assert.True(t, attrs[0].Value.AsBool())
	assert.Equal(t, "playback_info", attrs[1].Value.AsString())
}

func TestStreamAttributesIncludeOptionalFields(t *testing.T) {
	audio := 2
	attrs := StreamAttributes("ps1", &audio, "disabled", 1500*time.Millisecond, true)
	require.Len(t, attrs, 5)
	assert.Equal(t, "disabled", attrs[0].Value.AsString())
	assert.Equal(t, int64(1500), attrs[1].Value.AsInt64())
	assert.True(t, attrs[2].Value.AsBool())
	assert.Equal(t, "ps1", attrs[3].Value.AsString())
	assert.Equal(t, int64(2), attrs[4].Value.AsInt64())

	assert.Len(t, StreamAttributes("", nil, "unset", 0, false), 3)
}

func TestResourceAttributesCarryDevice(t *testing.T) {
	attrs := resourceAttributes(Config{ServiceName: "jfplay", ServiceVersion: "1.0.0", DeviceID: "dev-1", DeviceName: "den"})
	require.Len(t, attrs, 4)
	assert.Equal(t, "dev-1", attrs[2].Value.AsString())
	assert.Equal(t, DeviceNameKey, string(attrs[3].Key))

	assert.Len(t, resourceAttributes(Config{ServiceName: "jfplay"}), 2)
}
