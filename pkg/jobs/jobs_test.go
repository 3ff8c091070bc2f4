package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/taskhub/pkg/observability"
)

type fakePurger struct {
	calls atomic.Int32
	n     int64
	err   error
}

func (p *fakePurger) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	p.calls.Add(1)
	return p.n, p.err
}

func TestTokenJanitor_Run(t *testing.T) {
	logger, hook := test.NewNullLogger()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	purger := &fakePurger{n: 7}

	require.NoError(t, NewTokenJanitor(purger, logger, metrics).Run(context.Background()))

	assert.Equal(t, float64(7), testutil.ToFloat64(metrics.TokensPurgedTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.JobRunsTotal.WithLabelValues(JobTokenJanitor, "success")))
	assert.Equal(t, int64(7), hook.LastEntry().Data["purged"])
}

func TestTokenJanitor_Failure(t *testing.T) {
	logger, _ := test.NewNullLogger()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	purger := &fakePurger{err: errors.New("connection refused")}

	err := NewTokenJanitor(purger, logger, metrics).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.JobRunsTotal.WithLabelValues(JobTokenJanitor, "failure")))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.TokensPurgedTotal))
}

func TestTokenJanitor_NilMetrics(t *testing.T) {
	logger, _ := test.NewNullLogger()
	assert.NoError(t, NewTokenJanitor(&fakePurger{n: 1}, logger, nil).Run(context.Background()))
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	logger, _ := test.NewNullLogger()
	s := NewScheduler(logger, nil)
	assert.Error(t, s.AddTokenJanitor("not a schedule", &fakePurger{}))
}

func TestScheduler_RunsJanitor(t *testing.T) {
	logger, hook := test.NewNullLogger()
	s := NewScheduler(logger, nil)
	purger := &fakePurger{err: errors.New("db down")}

	require.NoError(t, s.AddTokenJanitor("@every 1s", purger))
	s.Start()
	require.Eventually(t, func() bool { return purger.calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))

	var failed bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Data["job"] == JobTokenJanitor {
			failed = true
		}
	}
	assert.True(t, failed)
}
