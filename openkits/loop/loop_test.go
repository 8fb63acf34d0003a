package loop

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newSerial(t *testing.T) *Serial {
	t.Helper()
	s := NewSerial(slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(s.Close)
	return s
}

func TestSerialRunsInOrder(t *testing.T) {
	s := newSerial(t)

	var got []int
	var last <-chan struct{}
	for i := range 100 {
		last = s.Exec(func() { got = append(got, i) })
	}
	<-last

	want := make([]int, 100)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, got)
}

func TestSerialNeverRunsConcurrently(t *testing.T) {
	s := newSerial(t)

	var (
		wg      sync.WaitGroup
		running int
		overlap bool
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-s.Exec(func() {
				running++
				if running > 1 {
					overlap = true
				}
				running--
			})
		}()
	}
	wg.Wait()
	<-s.Exec(func() {})
	assert.False(t, overlap)
}

func TestSerialExecFromLoop(t *testing.T) {
	s := newSerial(t)

	inner := make(chan (<-chan struct{}), 1)
	<-s.Exec(func() {
		inner <- s.Exec(func() {})
	})
	<-<-inner
}

func TestSerialSurvivesPanic(t *testing.T) {
	s := newSerial(t)

	<-s.Exec(func() { panic("boom") })
	ran := false
	<-s.Exec(func() { ran = true })
	assert.True(t, ran)
}

func TestSerialClose(t *testing.T) {
	s := NewSerial(slog.New(slog.NewTextHandler(io.Discard, nil)))

	ran := false
	s.Exec(func() { ran = true })
	s.Close()
	assert.True(t, ran)

	dropped := false
	<-s.Exec(func() { dropped = true })
	assert.False(t, dropped)
	s.Close()
}
