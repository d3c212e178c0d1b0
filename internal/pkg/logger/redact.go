package logger

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}

// RedactPhone keeps only the last two digits of a phone number.
// "+15551234567" → "***67"
func RedactPhone(phone string) string {
	digits := make([]rune, 0, len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) <= 2 {
		return "***"
	}
	return "***" + string(digits[len(digits)-2:])
}

var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

type redactHook struct {
	enabled atomic.Bool
}

func newRedactHook(enabled bool) *redactHook {
	h := &redactHook{}
	h.enabled.Store(enabled)
	return h
}

func (h *redactHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *redactHook) Fire(e *logrus.Entry) error {
	if !h.enabled.Load() {
		return nil
	}
	for key, val := range e.Data {
		s, ok := val.(string)
		if !ok {
			if _, isErr := val.(error); !isErr {
				continue
			}
			s = fmt.Sprintf("%v", val)
		}
		e.Data[key] = redactValue(key, s)
	}
	e.Message = emailRegex.ReplaceAllStringFunc(e.Message, RedactEmail)
	return nil
}

func redactValue(key, val string) string {
	k := strings.ToLower(key)
	switch {
	case strings.Contains(k, "email"):
		return RedactEmail(val)
	case strings.Contains(k, "phone"):
		return RedactPhone(val)
	}
	return emailRegex.ReplaceAllStringFunc(val, RedactEmail)
}
