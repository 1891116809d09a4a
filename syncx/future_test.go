package syncx

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFuture_Await(t *testing.T) {
	var order = make([]int, 0, 4)
	f := NewFuture[int]()
	order = append(order, 1)
	go func() {
		time.Sleep(50 * time.Millisecond)
		order = append(order, 2)
		f.Resolve(3)

		// Subsequent calls shouldn't change anything
		f.Resolve(5)
		f.Reject(errors.New("too late"))
	}()
	val, err := f.Await()
	assert.NoError(t, err)
	order = append(order, val)
	val, err = f.Await()
	assert.NoError(t, err)
	assert.Equal(t, 3, val, "The same value should be returned again with Await")
	order = append(order, 4)
	assert.Equal(t, []int{1, 2, 3, 4}, order, "Processing should happen in the expected order")
}

func TestFuture_Await_Timeout(t *testing.T) {
	f := NewFuture[int]()
	go func() {
		time.Sleep(150 * time.Millisecond)
		f.Resolve(5)
	}()
	for i := 0; i < 3; i++ {
		val, err := f.Await(20 * time.Millisecond)
		assert.Equal(t, 0, val)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}
	val, err := f.Await()
	assert.Equal(t, 5, val)
	assert.NoError(t, err)
}

func TestFuture_AwaitContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFuture[string]().AwaitContext(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFuture_OnComplete(t *testing.T) {
	testErr := errors.New("rejected")
	f := NewFuture[string]()

	var (
		wg   sync.WaitGroup
		errs []error
	)
	wg.Add(2)
	for i := 0; i < 2; i++ {
		f.OnComplete(func(_ string, err error) {
			defer wg.Done()
			errs = append(errs, err)
		})
	}
	assert.False(t, f.IsResolved())
	assert.True(t, f.ResolveErr("", testErr))
	assert.False(t, f.ResolveErr("again", nil), "Only the first resolution should apply")
	wg.Wait()
	assert.Equal(t, []error{testErr, testErr}, errs)

	called := false
	f.OnComplete(func(_ string, err error) {
		called = true
		assert.ErrorIs(t, err, testErr)
	})
	assert.True(t, called, "Callbacks on a resolved future should run immediately")
}

func TestResolvedRejected(t *testing.T) {
	val, err := Resolved(42).Await()
	assert.NoError(t, err)
	assert.Equal(t, 42, val)

	testErr := errors.New("nope")
	_, err = Rejected[int](testErr).Await()
	assert.ErrorIs(t, err, testErr)
	select {
	case <-Rejected[int](testErr).Done():
	default:
		t.Error("Rejected future should already be done")
	}
}
