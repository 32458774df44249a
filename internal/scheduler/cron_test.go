package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStartInvalidExpression(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler("not a cron spec")
	err := s.Start(context.Background(), func(time.Time) {})
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid cron expression")
}

func TestStartNilJob(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler("* * * * *")
	require.NoError(t, s.Start(context.Background(), nil))
	require.NoError(t, s.Stop(context.Background()))
}

func TestJobFires(t *testing.T) {
	t.Parallel()

	fired := make(chan time.Time, 1)

	s := NewCronScheduler("@every 10ms")
	require.NoError(t, s.Start(context.Background(), func(now time.Time) {
		select {
		case fired <- now:
		default:
		}
	}))
	defer s.Stop(context.Background())

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("job never fired")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler("* * * * *")
	require.NoError(t, s.Start(context.Background(), func(time.Time) {}))
	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
}
