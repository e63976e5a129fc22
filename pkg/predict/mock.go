package predict

import (
	"context"
	"sync"
	"time"
)

// Mock implements Predictor for testing.
type Mock struct {
	// PredictFunc is called when Predict is invoked and no scripted
	// responses remain.
	PredictFunc func(ctx context.Context, jpeg []byte) (*Prediction, error)

	// PingFunc is called when Ping is invoked.
	PingFunc func(ctx context.Context) error

	mu     sync.Mutex
	script []MockResult
	calls  []MockCall
}

// MockResult is one scripted Predict outcome.
type MockResult struct {
	Prediction *Prediction
	Err        error
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Bytes  int
	Time   time.Time
}

// NewMock creates a mock that answers every frame with a good posture.
func NewMock() *Mock {
	return &Mock{
		PredictFunc: func(ctx context.Context, jpeg []byte) (*Prediction, error) {
			return &Prediction{Label: "Good Posture", Class: ClassGood, Confidence: 1}, nil
		},
		PingFunc: func(ctx context.Context) error {
			return nil
		},
	}
}

// Script queues results returned by successive Predict calls before
// falling back to PredictFunc.
func (m *Mock) Script(results ...MockResult) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, results...)
	return m
}

// Bad is a scripted bad posture result.
func Bad() MockResult {
	return MockResult{Prediction: &Prediction{Label: "Bad Posture", Class: ClassBad}}
}

// Good is a scripted good posture result.
func Good() MockResult {
	return MockResult{Prediction: &Prediction{Label: "Good Posture", Class: ClassGood}}
}

// Fail is a scripted error result.
func Fail(err error) MockResult {
	return MockResult{Err: err}
}

// Predict returns the next scripted result or calls PredictFunc.
func (m *Mock) Predict(ctx context.Context, jpeg []byte) (*Prediction, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Method: "Predict", Bytes: len(jpeg), Time: time.Now()})
	if len(m.script) > 0 {
		r := m.script[0]
		m.script = m.script[1:]
		m.mu.Unlock()
		return r.Prediction, r.Err
	}
	fn := m.PredictFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, jpeg)
	}
	return nil, ErrTransport
}

// Ping calls PingFunc and records the call.
func (m *Mock) Ping(ctx context.Context) error {
	m.record("Ping")
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

func (m *Mock) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Time: time.Now()})
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of calls to a method.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears recorded calls and scripted results.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.script = nil
}

var _ Predictor = (*Mock)(nil)
