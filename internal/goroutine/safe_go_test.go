package goroutine

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type captureLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (l *captureLogger) Errorf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, fmt.Sprintf(format, args...))
}

func TestRecoveryHandler_RunRecoversPanic(t *testing.T) {
	log := &captureLogger{}
	rh := NewRecoveryHandler(log)

	assert.NotPanics(t, func() {
		rh.Run(func() { panic("boom") })
	})

	assert.Len(t, log.msgs, 1)
	assert.Contains(t, log.msgs[0], "boom")
}

func TestRecoveryHandler_SafeGoRunsFunction(t *testing.T) {
	rh := NewRecoveryHandler(&captureLogger{})

	var wg sync.WaitGroup
	wg.Add(1)
	called := false
	rh.SafeGo(func() {
		defer wg.Done()
		called = true
	})
	wg.Wait()

	assert.True(t, called)
}
