package triggers_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/studio-automation/internal/domain"
	"github.com/ignite/studio-automation/internal/triggers"
)

func TestRunnerRegistersScans(t *testing.T) {
	f := newFixture(t)
	r := triggers.NewRunner(nil, time.UTC, time.Minute)

	err := r.AddScans(f.engine, map[domain.TriggerKind]string{
		domain.TriggerClassReminder:    "*/5 * * * *",
		domain.TriggerClassPassHotLead: "",
	})
	require.NoError(t, err)

	jobs := r.Jobs()
	assert.Len(t, jobs, len(triggers.ScanKinds)-1)
	assert.Contains(t, jobs, "trigger:class_reminder")
	assert.NotContains(t, jobs, "trigger:classpass_hot_lead")
}

func TestRunnerRejectsBadSpec(t *testing.T) {
	r := triggers.NewRunner(nil, nil, 0)
	err := r.AddJob("reconcile", "every tuesday", func(context.Context) error { return nil })
	assert.Error(t, err)
	assert.Empty(t, r.Jobs())
}

func TestRunnerStartStop(t *testing.T) {
	r := triggers.NewRunner(nil, nil, 0)
	require.NoError(t, r.AddJob("noop", "@every 1h", func(context.Context) error { return nil }))
	r.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Stop(ctx)
}
