package async

import (
	"fmt"
	"strings"
	"sync"
	"testing"
)

type captureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (c *captureLogger) Error(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, fmt.Sprintf(format, args...))
}

func TestGroupRecoversAndWaits(t *testing.T) {
	logger := &captureLogger{}
	g := NewGroup(logger)

	done := make(chan struct{})
	g.Go("ok", func() { close(done) })
	g.Go("run-ab12", func() { panic("boom") })
	g.Wait()

	<-done
	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.lines) != 1 || !strings.Contains(logger.lines[0], "[run-ab12]: boom") {
		t.Fatalf("expected one panic report, got %q", logger.lines)
	}
}

func TestRecoverWithNilLogger(t *testing.T) {
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		defer Recover(nil, "")
		panic("ignored")
	}()
	<-finished
}
