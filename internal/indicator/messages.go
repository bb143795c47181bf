package indicator

import (
	"fmt"
	"os"
	"strings"

	"github.com/rbright/powerctl/internal/protocol"
)

type locale string

const (
	localeEnglish locale = "en"
)

type messages struct {
	countdown string
	executing string
	cancelled string
	failed    string
}

func indicatorMessagesFromEnv() messages {
	return indicatorMessages(resolveLocale(os.Getenv("LANG")))
}

func resolveLocale(raw string) locale {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(raw, "en") {
		return localeEnglish
	}
	return localeEnglish
}

func indicatorMessages(tag locale) messages {
	switch tag {
	case localeEnglish:
		fallthrough
	default:
		return messages{
			countdown: "%s in %ds",
			executing: "%s…",
			cancelled: "%s cancelled",
			failed:    "%s failed: %s",
		}
	}
}

func (m messages) countdownText(action protocol.Action, remaining int) string {
	return fmt.Sprintf(m.countdown, actionTitle(action), remaining)
}

func (m messages) executingText(action protocol.Action) string {
	return fmt.Sprintf(m.executing, actionTitle(action))
}

func (m messages) cancelledText(action protocol.Action) string {
	return fmt.Sprintf(m.cancelled, actionTitle(action))
}

func (m messages) failedText(action protocol.Action, reason string) string {
	return fmt.Sprintf(m.failed, actionTitle(action), reason)
}

func actionTitle(action protocol.Action) string {
	name := string(action)
	if name == "" {
		return ""
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
