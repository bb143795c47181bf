// Package audio inspects the PulseAudio playback sink that countdown cues play on.
package audio

import (
	"context"
	"errors"
	"fmt"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

// Sink describes one Pulse playback sink.
type Sink struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

// Selection is the sink cues will use plus an optional warning.
type Selection struct {
	Sink    Sink
	Warning string
}

// ListSinks returns Pulse playback sinks with default/availability metadata.
func ListSinks(_ context.Context) ([]Sink, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("powerctl"),
		pulse.ClientApplicationIconName("system-shutdown"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	defaultSink, err := client.DefaultSink()
	if err != nil {
		return nil, fmt.Errorf("read default sink: %w", err)
	}
	defaultID := defaultSink.ID()

	var sinkInfos pulseproto.GetSinkInfoListReply
	if err := client.RawRequest(&pulseproto.GetSinkInfoList{}, &sinkInfos); err != nil {
		return nil, fmt.Errorf("list sinks: %w", err)
	}

	sinks := make([]Sink, 0, len(sinkInfos))
	for _, info := range sinkInfos {
		if info == nil {
			continue
		}
		sinks = append(sinks, Sink{
			ID:          info.SinkName,
			Description: info.Device,
			State:       sinkStateString(info.State),
			Available:   sinkAvailable(info),
			Muted:       info.Mute,
			Default:     info.SinkName == defaultID,
		})
	}
	return sinks, nil
}

// SelectSink resolves the sink cues will play on.
func SelectSink(ctx context.Context) (Selection, error) {
	sinks, err := ListSinks(ctx)
	if err != nil {
		return Selection{}, err
	}
	return selectSinkFromList(sinks)
}

// selectSinkFromList prefers the default sink and warns when it cannot be heard.
func selectSinkFromList(sinks []Sink) (Selection, error) {
	if len(sinks) == 0 {
		return Selection{}, errors.New("no audio output sinks found")
	}

	var chosen *Sink
	for i := range sinks {
		if sinks[i].Default {
			chosen = &sinks[i]
			break
		}
	}
	if chosen == nil {
		return Selection{}, errors.New("default audio sink is unavailable")
	}

	switch {
	case !chosen.Available:
		return Selection{Sink: *chosen, Warning: fmt.Sprintf("default sink %q is unplugged; cues will not be heard", chosen.ID)}, nil
	case chosen.Muted:
		return Selection{Sink: *chosen, Warning: fmt.Sprintf("default sink %q is muted; cues will not be heard", chosen.ID)}, nil
	}
	return Selection{Sink: *chosen}, nil
}

// sinkStateString maps Pulse sink state constants to human-readable values.
func sinkStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// sinkAvailable maps Pulse sink port availability to a simple boolean.
func sinkAvailable(sink *pulseproto.GetSinkInfoReply) bool {
	if sink == nil {
		return false
	}
	if len(sink.Ports) == 0 {
		return true
	}
	for _, port := range sink.Ports {
		if port.Name != sink.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available == 0 || port.Available == 2
	}
	return true
}
