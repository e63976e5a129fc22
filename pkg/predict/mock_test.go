package predict

import (
	"context"
	"errors"
	"testing"
)

func TestMockScript(t *testing.T) {
	failure := errors.New("boom")
	mock := NewMock().Script(Bad(), Fail(failure))
	ctx := context.Background()

	p, err := mock.Predict(ctx, []byte("a"))
	if err != nil || !p.Bad() {
		t.Fatalf("first call: got %v, %v", p, err)
	}

	if _, err := mock.Predict(ctx, []byte("b")); !errors.Is(err, failure) {
		t.Fatalf("second call: expected scripted error, got %v", err)
	}

	p, err = mock.Predict(ctx, []byte("c"))
	if err != nil || p.Class != ClassGood {
		t.Fatalf("fallback: got %v, %v", p, err)
	}

	if err := mock.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}

	if mock.CallCount("Predict") != 3 {
		t.Errorf("expected 3 Predict calls, got %d", mock.CallCount("Predict"))
	}
	if mock.CallCount("Ping") != 1 {
		t.Errorf("expected 1 Ping call, got %d", mock.CallCount("Ping"))
	}

	mock.Reset()
	if len(mock.Calls()) != 0 {
		t.Error("expected calls to be cleared")
	}
}
