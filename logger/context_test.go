package logger

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestDBCounterWithoutSetup(t *testing.T) {
	ctx := context.Background()
	IncrementDBCounter(ctx)
	AddDBElapsed(ctx, 100)
	assert.Zero(t, GetDBCounter(ctx))
	assert.Zero(t, GetDBElapsed(ctx))
}

func TestDBCounterConcurrentIncrements(t *testing.T) {
	ctx := WithDBCounter(context.Background())

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			IncrementDBCounter(ctx)
			AddDBElapsed(ctx, 10)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), GetDBCounter(ctx))
	assert.Equal(t, int64(500), GetDBElapsed(ctx))
}

func TestWithSeverityHookIgnoresNil(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, WithSeverityHook(ctx, nil))
	assert.Nil(t, severityHookFromContext(ctx))

	called := false
	ctx = WithSeverityHook(ctx, func(zerolog.Level) { called = true })
	severityHookFromContext(ctx)(zerolog.InfoLevel)
	assert.True(t, called)
}
