// Package indicator turns dispatch events into audio cues and desktop notifications.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/powerctl/internal/config"
	"github.com/rbright/powerctl/internal/protocol"
)

// Cues implements dispatch.Observer.
type Cues struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages
	play     func(context.Context, cueKind) error

	mu                    sync.Mutex
	desktopNotificationID uint32
	soundMu               sync.Mutex
	pending               sync.WaitGroup
}

// New creates an indicator from config.
func New(cfg config.IndicatorConfig, logger *slog.Logger) *Cues {
	return &Cues{
		cfg:      cfg,
		logger:   logger,
		messages: indicatorMessagesFromEnv(),
		play:     emitCue,
	}
}

// OnTick sounds one countdown tick; the last three use a higher tone.
func (c *Cues) OnTick(action protocol.Action, remaining int) {
	kind := cueTick
	if remaining <= 3 {
		kind = cueTickFinal
	}
	c.playCue(kind)
	c.show(c.messages.countdownText(action, remaining))
}

// OnExecute signals that the action is being sent.
func (c *Cues) OnExecute(action protocol.Action) {
	c.playCue(cueExecute)
	c.show(c.messages.executingText(action))
}

// OnCancel signals a countdown that ended without sending.
func (c *Cues) OnCancel(action protocol.Action) {
	c.playCue(cueCancel)
	c.show(c.messages.cancelledText(action))
}

// OnResult reports failures; successful results just clear the notification.
func (c *Cues) OnResult(action protocol.Action, _ protocol.Response, err error) {
	if err != nil {
		c.playCue(cueError)
		c.show(c.messages.failedText(action, protocol.Describe(err)))
		return
	}
	c.dismiss()
}

// Wait blocks until queued cues have played.
func (c *Cues) Wait() {
	c.pending.Wait()
}

// show sends a replaceable desktop notification when enabled.
func (c *Cues) show(text string) {
	if !c.cfg.DesktopEnable {
		return
	}
	c.run(func(ctx context.Context) error {
		c.mu.Lock()
		replaceID := c.desktopNotificationID
		c.mu.Unlock()

		appName := strings.TrimSpace(c.cfg.DesktopAppName)
		if appName == "" {
			appName = "powerctl"
		}

		id, err := desktopNotify(ctx, appName, replaceID, text, c.timeoutMS())
		if err != nil {
			return err
		}

		c.mu.Lock()
		c.desktopNotificationID = id
		c.mu.Unlock()
		return nil
	})
}

// dismiss closes the current desktop notification ID when present.
func (c *Cues) dismiss() {
	if !c.cfg.DesktopEnable {
		return
	}
	c.mu.Lock()
	id := c.desktopNotificationID
	c.desktopNotificationID = 0
	c.mu.Unlock()

	if id == 0 {
		return
	}
	c.run(func(ctx context.Context) error {
		return desktopDismiss(ctx, id)
	})
}

func (c *Cues) timeoutMS() int {
	if c.cfg.TimeoutMS <= 0 {
		return 1500
	}
	return c.cfg.TimeoutMS
}

// run executes an indicator operation with a bounded timeout.
func (c *Cues) run(fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()
	if err := fn(ctx); err != nil {
		c.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (c *Cues) playCue(kind cueKind) {
	if !c.cfg.SoundEnable {
		return
	}
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		c.soundMu.Lock()
		defer c.soundMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.play(ctx, kind); err != nil {
			c.log("indicator audio cue failed", err)
		}
	}()
}

// log emits debug-only indicator failures to the runtime logger.
func (c *Cues) log(message string, err error) {
	if c.logger == nil || err == nil {
		return
	}
	c.logger.Debug(message, "error", err.Error())
}
