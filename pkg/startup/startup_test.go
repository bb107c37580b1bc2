package startup

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestStartup_OrderAndStop(t *testing.T) {
	var events []string
	dep := func(name string, requires ...string) FuncDependency {
		return FuncDependency{
			Name:      name,
			Requires:  requires,
			StartFunc: func(context.Context) error { events = append(events, "start "+name); return nil },
			StopFunc:  func(context.Context) error { events = append(events, "stop "+name); return nil },
		}
	}

	s := NewStartup(testLogger(), 1)
	s.AddDependency(dep("http", "database", "redis"))
	s.AddDependency(dep("redis"))
	s.AddDependency(dep("database"))

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))

	assert.Equal(t, []string{
		"start database",
		"start redis",
		"start http",
		"stop http",
		"stop redis",
		"stop database",
	}, events)
}

func TestStartup_GivesUp(t *testing.T) {
	s := NewStartup(testLogger(), 1)
	s.AddDependency(FuncDependency{
		Name:      "database",
		StartFunc: func(context.Context) error { return errors.New("connection refused") },
	})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestStartup_UnknownRequirement(t *testing.T) {
	s := NewStartup(testLogger(), 1)
	s.AddDependency(FuncDependency{Name: "http", Requires: []string{"database"}})
	assert.Error(t, s.Start(context.Background()))
}
