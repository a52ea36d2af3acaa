package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStartup(maxAttempts int) *Startup {
	s := NewStartup(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}), maxAttempts)
	s.unit = time.Millisecond
	return s
}

func recorder(log *[]string, name string, requires ...string) *Dependency {
	return &Dependency{
		Name:     name,
		Requires: requires,
		StartFunc: func(context.Context) error {
			*log = append(*log, "start "+name)
			return nil
		},
		StopFunc: func(context.Context) error {
			*log = append(*log, "stop "+name)
			return nil
		},
	}
}

func TestStartup_Order(t *testing.T) {
	var log []string
	s := newStartup(1)
	s.AddDependency(recorder(&log, "http", "importer"))
	s.AddDependency(recorder(&log, "database"))
	s.AddDependency(recorder(&log, "importer", "database", "redis"))
	s.AddDependency(recorder(&log, "redis"))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"start database", "start redis", "start importer", "start http"}, log)
	assert.Equal(t, StartupStatusStarted, s.Status("http"))

	log = nil
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"stop http", "stop importer", "stop redis", "stop database"}, log)
	assert.Equal(t, StartupStatusStopped, s.Status("database"))
}

func TestStartup_Retry(t *testing.T) {
	t.Run("recovers on a later attempt", func(t *testing.T) {
		calls := 0
		s := newStartup(3)
		s.AddDependency(&Dependency{Name: "database", StartFunc: func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("connection refused")
			}
			return nil
		}})

		require.NoError(t, s.Start(context.Background()))
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		s := newStartup(2)
		s.AddDependency(&Dependency{Name: "database", StartFunc: func(context.Context) error {
			return errors.New("connection refused")
		}})

		err := s.Start(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "startup failed after 2 attempts")
		assert.Equal(t, StartupStatusFailed, s.Status("database"))
	})

	t.Run("started dependencies are not restarted", func(t *testing.T) {
		dbStarts := 0
		attempts := 0
		s := newStartup(2)
		s.AddDependency(&Dependency{Name: "database", StartFunc: func(context.Context) error {
			dbStarts++
			return nil
		}})
		s.AddDependency(&Dependency{Name: "kafka", StartFunc: func(context.Context) error {
			attempts++
			if attempts == 1 {
				return errors.New("no brokers")
			}
			return nil
		}})

		require.NoError(t, s.Start(context.Background()))
		assert.Equal(t, 1, dbStarts)
	})
}

func TestStartup_BadGraph(t *testing.T) {
	t.Run("unknown dependency", func(t *testing.T) {
		s := newStartup(1)
		s.AddDependency(&Dependency{Name: "importer", Requires: []string{"database"}})
		assert.ErrorContains(t, s.Start(context.Background()), "unknown startup dependency 'database'")
	})

	t.Run("cycle", func(t *testing.T) {
		s := newStartup(1)
		s.AddDependency(&Dependency{Name: "a", Requires: []string{"b"}})
		s.AddDependency(&Dependency{Name: "b", Requires: []string{"a"}})
		assert.ErrorContains(t, s.Start(context.Background()), "cycle")
	})
}
