package async

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *recordingLogger) Error(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) waitFor(t *testing.T, substr string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		l.mu.Lock()
		for _, msg := range l.messages {
			if strings.Contains(msg, substr) {
				l.mu.Unlock()
				return
			}
		}
		l.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no log containing %q", substr)
}

func TestGoRecoversPanic(t *testing.T) {
	logger := &recordingLogger{}
	Go(logger, "metrics", func() error {
		panic("boom")
	})
	logger.waitFor(t, "goroutine panic [metrics]: boom")
}

func TestGoLogsReturnedError(t *testing.T) {
	logger := &recordingLogger{}
	Go(logger, "metrics", func() error {
		return errors.New("address in use")
	})
	logger.waitFor(t, "background metrics stopped: address in use")
}

func TestGoNilErrorIsSilent(t *testing.T) {
	logger := &recordingLogger{}
	done := make(chan struct{})
	Go(logger, "quiet", func() error {
		defer close(done)
		return nil
	})
	<-done
	time.Sleep(10 * time.Millisecond)

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.messages) != 0 {
		t.Fatalf("expected no logs, got %v", logger.messages)
	}
}

func TestRecoverHandlesNilLogger(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("unexpected panic: %v", r)
		}
	}()

	func() {
		defer Recover(nil, "nil-logger")
		panic("boom")
	}()
}
