package indicator

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCueSamplesPresent(t *testing.T) {
	for _, kind := range []cueKind{cueTick, cueTickFinal, cueExecute, cueCancel, cueError} {
		require.NotEmpty(t, cueSamples(kind), kind)
	}
	require.Empty(t, cueSamples(cueKind(99)))
}

func TestSynthesizeToneLengthAndFades(t *testing.T) {
	got := synthesizeTone(steady(440, 100*time.Millisecond, 0.2))
	require.Len(t, got, samplesForDuration(100*time.Millisecond))
	require.Zero(t, got[0])
	require.Zero(t, got[len(got)-1])

	peak := 0
	for _, s := range got {
		peak = max(peak, int(math.Abs(float64(s))))
	}
	require.InDelta(t, 0.2*32767, peak, 200)
}

func TestSynthesizeToneInvalidSpecReturnsEmpty(t *testing.T) {
	require.Empty(t, synthesizeTone(steady(0, 100*time.Millisecond, 0.2)))
	require.Empty(t, synthesizeTone(steady(440, 0, 0.2)))
	require.Empty(t, synthesizeTone(steady(440, 100*time.Millisecond, 0)))
	require.Empty(t, synthesizeTone(tone{startHz: 440, endHz: 0, dur: time.Second, gain: 0.2}))
}

func TestGlideCrossesZeroMoreOftenAtHigherPitch(t *testing.T) {
	rising := synthesizeTone(tone{startHz: 300, endHz: 1200, dur: 200 * time.Millisecond, gain: 0.2})
	half := len(rising) / 2
	require.Greater(t, zeroCrossings(rising[half:]), zeroCrossings(rising[:half]))
}

func TestSynthesizeCueInsertsGaps(t *testing.T) {
	single := synthesizeCue([]tone{steady(440, 50*time.Millisecond, 0.2)})
	double := synthesizeCue([]tone{
		steady(440, 50*time.Millisecond, 0.2),
		steady(440, 50*time.Millisecond, 0.2),
	})
	require.Len(t, double, 2*len(single)+samplesForDuration(cueGap))
}

func TestSamplesForDuration(t *testing.T) {
	require.Equal(t, 0, samplesForDuration(0))
	require.Equal(t, 400, samplesForDuration(25*time.Millisecond))
}

func TestEmitCueRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := emitCue(ctx, cueTick)
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
}

func zeroCrossings(pcm []int16) int {
	n := 0
	for i := 1; i < len(pcm); i++ {
		if (pcm[i-1] < 0) != (pcm[i] < 0) {
			n++
		}
	}
	return n
}
