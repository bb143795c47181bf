package indicator

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jfreymuth/pulse"
)

type cueKind int

const (
	cueTick cueKind = iota + 1
	cueTickFinal
	cueExecute
	cueCancel
	cueError
)

const (
	cueSampleRate = 16000
	cueGap        = 22 * time.Millisecond
	cueRamp       = 5 * time.Millisecond
)

// tone is one segment of a cue. endHz differs from startHz for a glide.
type tone struct {
	startHz float64
	endHz   float64
	dur     time.Duration
	gain    float64
}

func steady(hz float64, dur time.Duration, gain float64) tone {
	return tone{startHz: hz, endHz: hz, dur: dur, gain: gain}
}

// Rising glides read as "go", falling ones as "stopped".
var cueBank = sync.OnceValue(func() map[cueKind][]int16 {
	return map[cueKind][]int16{
		cueTick:      synthesizeCue([]tone{steady(660, 45*time.Millisecond, 0.14)}),
		cueTickFinal: synthesizeCue([]tone{steady(990, 60*time.Millisecond, 0.18)}),
		cueExecute: synthesizeCue([]tone{
			steady(740, 65*time.Millisecond, 0.18),
			{startHz: 740, endHz: 1180, dur: 140 * time.Millisecond, gain: 0.18},
		}),
		cueCancel: synthesizeCue([]tone{
			{startHz: 520, endHz: 340, dur: 160 * time.Millisecond, gain: 0.18},
		}),
		cueError: synthesizeCue([]tone{
			steady(300, 110*time.Millisecond, 0.2),
			steady(300, 110*time.Millisecond, 0.2),
		}),
	}
})

func cueSamples(kind cueKind) []int16 {
	return cueBank()[kind]
}

func emitCue(ctx context.Context, kind cueKind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	samples := cueSamples(kind)
	if len(samples) == 0 {
		return nil
	}
	return speaker.play(samples)
}

// pulseSpeaker keeps one Pulse connection for the life of the process so
// one-second ticks do not pay a connect each time.
type pulseSpeaker struct {
	mu     sync.Mutex
	client *pulse.Client
}

var speaker = &pulseSpeaker{}

func (s *pulseSpeaker) play(samples []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		client, err := pulse.NewClient(
			pulse.ClientApplicationName("powerctl"),
			pulse.ClientApplicationIconName("system-shutdown"),
		)
		if err != nil {
			return fmt.Errorf("connect pulse server: %w", err)
		}
		s.client = client
	}

	if err := playOn(s.client, samples); err != nil {
		// The server may have restarted; reconnect on the next cue.
		s.client.Close()
		s.client = nil
		return err
	}
	return nil
}

func playOn(client *pulse.Client, samples []int16) error {
	cursor := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if cursor >= len(samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples[cursor:])
		cursor += n
		if cursor >= len(samples) {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(cueSampleRate),
		pulse.PlaybackLatency(0.02),
		pulse.PlaybackMediaName("powerctl countdown cue"),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play cue stream: %w", err)
	}
	return nil
}

func synthesizeCue(parts []tone) []int16 {
	var pcm []int16
	gap := samplesForDuration(cueGap)
	for i, part := range parts {
		if i > 0 {
			pcm = append(pcm, make([]int16, gap)...)
		}
		pcm = append(pcm, synthesizeTone(part)...)
	}
	return pcm
}

// synthesizeTone renders a sine segment with a raised-cosine fade at both ends.
// Phase is accumulated so glides stay continuous.
func synthesizeTone(t tone) []int16 {
	n := samplesForDuration(t.dur)
	if n <= 0 || t.startHz <= 0 || t.endHz <= 0 || t.gain <= 0 {
		return nil
	}

	ramp := min(n/10, samplesForDuration(cueRamp))
	ramp = max(ramp, 1)

	pcm := make([]int16, n)
	phase := 0.0
	for i := range n {
		progress := float64(i) / float64(n)
		hz := t.startHz + (t.endHz-t.startHz)*progress

		envelope := 1.0
		if edge := min(i, n-i-1); edge < ramp {
			envelope = 0.5 - 0.5*math.Cos(math.Pi*float64(edge)/float64(ramp))
		}

		pcm[i] = int16(math.Round(math.Sin(phase) * t.gain * envelope * 32767))
		phase += 2 * math.Pi * hz / cueSampleRate
	}
	return pcm
}

func samplesForDuration(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}
