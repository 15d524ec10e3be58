package service

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRequestCoalescer_GetOrDo_Error(t *testing.T) {
	rc := newRequestCoalescer(time.Second)
	want := errors.New("boom")
	_, _, err := rc.GetOrDo(context.Background(), "k", func() ([]byte, error) {
		return nil, want
	})
	if !errors.Is(err, want) {
		t.Errorf("GetOrDo() error = %v, want %v", err, want)
	}
}

func TestRequestCoalescer_GetOrDo_Timeout(t *testing.T) {
	rc := newRequestCoalescer(20 * time.Millisecond)
	release := make(chan struct{})
	defer close(release)

	_, _, err := rc.GetOrDo(context.Background(), "k", func() ([]byte, error) {
		<-release
		return []byte(`{}`), nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("GetOrDo() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestRequestCoalescer_GetOrDo_ContextCanceled(t *testing.T) {
	rc := newRequestCoalescer(0)
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := rc.GetOrDo(ctx, "k", func() ([]byte, error) {
		<-release
		return nil, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("GetOrDo() error = %v, want context.Canceled", err)
	}
}

func TestRequestCoalescer_SequentialCallsRunAgain(t *testing.T) {
	rc := newRequestCoalescer(time.Second)
	calls := 0
	fn := func() ([]byte, error) {
		calls++
		return []byte(`1`), nil
	}
	for i := 0; i < 3; i++ {
		if _, _, err := rc.GetOrDo(context.Background(), "k", fn); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}
