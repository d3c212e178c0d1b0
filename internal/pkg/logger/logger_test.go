package logger

import (
	"bytes"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetRedactPII(true)
		SetLevel("info")
	})
	return &buf
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "jo***@example.com", RedactEmail("john.doe@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
}

func TestRedactPhone(t *testing.T) {
	assert.Equal(t, "***67", RedactPhone("+1 (555) 123-4567"))
	assert.Equal(t, "***", RedactPhone("7"))
}

func TestInfoRedactsFields(t *testing.T) {
	buf := capture(t)

	Info("dispatch sent", "email", "ana@studio.com", "phone", "+15551234567", "note", "cc maria@studio.com", "step", 2)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "dispatch sent", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "an***@studio.com", entry["email"])
	assert.Equal(t, "***67", entry["phone"])
	assert.Equal(t, "cc ma***@studio.com", entry["note"])
	assert.EqualValues(t, 2, entry["step"])
}

func TestRedactionCanBeDisabled(t *testing.T) {
	buf := capture(t)
	SetRedactPII(false)

	Warn("raw", "email", "ana@studio.com")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ana@studio.com", entry["email"])
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t)
	SetLevel("warn")

	Info("hidden")
	assert.Zero(t, buf.Len())

	Error("shown", "err", assert.AnError)
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), assert.AnError.Error())
}

func TestSetRedactPIIWhileLogging(t *testing.T) {
	capture(t)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				Info("tick", "email", "ana@studio.com")
			}
		}()
	}
	for j := 0; j < 50; j++ {
		SetRedactPII(j%2 == 0)
	}
	wg.Wait()
}
