package mcu

import (
	"fmt"
	"strings"

	"github.com/nerrad567/edusat-bridge/internal/infrastructure/config"
	"github.com/nerrad567/edusat-bridge/internal/telemetry"
)

// LayoutFromConfig builds the channel layout declared in the protocol config.
// An empty channel list yields the default layout.
func LayoutFromConfig(cfg config.ProtocolConfig) telemetry.Layout {
	if len(cfg.Channels) == 0 {
		return telemetry.DefaultLayout()
	}
	layout := make(telemetry.Layout, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		spec := telemetry.ChannelSpec{Name: ch.Name, Size: ch.Size}
		if ch.Tag != "" {
			spec.Tag = ch.Tag[0]
		}
		layout = append(layout, spec)
	}
	return layout
}

// ParserOptionsFromConfig converts the protocol config to parser options.
func ParserOptionsFromConfig(cfg config.ProtocolConfig) telemetry.ParserOptions {
	return telemetry.ParserOptions{
		Layout:        LayoutFromConfig(cfg),
		FieldOrder:    telemetry.FieldOrder(cfg.FieldOrder),
		FieldFormat:   telemetry.FieldFormat(cfg.FieldFormat),
		MaxFrameBytes: cfg.MaxFrameBytes,
	}
}

// reconnectMessage renders the reconnect notice for attempt.
// Templates without a %d verb get the count appended.
func reconnectMessage(template string, attempt int) string {
	if strings.Contains(template, "%d") {
		return fmt.Sprintf(template, attempt)
	}
	return fmt.Sprintf("%s %d", template, attempt)
}
