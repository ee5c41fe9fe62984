package cron

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocrud/inject/di"
	"github.com/gocrud/inject/hosting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	n atomic.Int32
}

type countingJob struct {
	Counter *counter `di:""`
}

func (j *countingJob) Run(context.Context) error {
	j.Counter.n.Add(1)
	return nil
}

func TestCronRunsInjectedJobs(t *testing.T) {
	c := &counter{}
	var handlerCalls atomic.Int32

	in, err := di.New(
		di.ModuleFunc(func(b *di.Binder) {
			di.Bind[*counter](b).ToInstance(c)
		}),
		Module(func(b *Builder) {
			b.WithSeconds()
			AddJobType[*countingJob](b, "@every 1s", "count")
			b.AddJob("* * * * * *", "handler", func(ctx context.Context, c *counter) error {
				handlerCalls.Add(1)
				assert.NotNil(t, ctx)
				return nil
			})
		}),
	)
	require.NoError(t, err)

	host, err := hosting.NewHost(in)
	require.NoError(t, err)
	host.Start(context.Background())

	assert.Eventually(t, func() bool {
		return c.n.Load() >= 1 && handlerCalls.Load() >= 1
	}, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, host.Stop(ctx))

	svc := di.MustGet[*Service](in)
	assert.ElementsMatch(t, []string{"count", "handler"}, svc.Jobs())
}

func TestCronValidation(t *testing.T) {
	_, err := di.New(Module(func(b *Builder) {
		b.AddJob("not a spec", "bad-spec", func() {})
		b.AddJob("@hourly", "bad-handler", 42)
		b.AddJob("@hourly", "bad-result", func() int { return 1 })
		b.AddJob("@hourly", "dup", func() {})
		b.AddJob("@hourly", "dup", func() {})
		b.WithLocation("Nowhere/City")
	}))
	require.Error(t, err)
	for _, want := range []string{"bad-spec", "bad-handler", "bad-result", "already registered", "Nowhere/City"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestWrapHandlerResolutionError(t *testing.T) {
	in, err := di.New()
	require.NoError(t, err)

	run := wrapHandler(in, func(fmt.Stringer) {})
	assert.Error(t, run(context.Background()))
}

func TestConvertToFields(t *testing.T) {
	fields := convertToFields([]interface{}{"a", 1, "b"})
	require.Len(t, fields, 1)
	assert.Equal(t, "a", fields[0].Key)
}
