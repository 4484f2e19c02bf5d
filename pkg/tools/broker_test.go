package tools

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubTool struct {
	name  string
	delay time.Duration
	err   error
	out   string
}

func (s *stubTool) Schema() Schema {
	return Schema{Name: s.name, Description: "stub", Parameters: map[string]any{}}
}

func (s *stubTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if s.err != nil {
		return "", s.err
	}
	return s.out, nil
}

func TestBrokerExecutesKnownTool(t *testing.T) {
	b := NewBroker(time.Second, &stubTool{name: "echo", out: "hello"})
	got := b.Execute(context.Background(), "echo", `{}`)
	if got != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
}

func TestBrokerUnknownToolReturnsLocalizedMessage(t *testing.T) {
	b := NewBroker(time.Second)
	got := b.Execute(context.Background(), "nonexistent", `{}`)
	if got == "" {
		t.Fatalf("expected a localized failure string, got empty")
	}
}

func TestBrokerTimeoutReturnsLocalizedMessage(t *testing.T) {
	b := NewBroker(20*time.Millisecond, &stubTool{name: "slow", delay: time.Second})
	start := time.Now()
	got := b.Execute(context.Background(), "slow", `{}`)
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("broker did not honor timeout, took %v", time.Since(start))
	}
	if got == "" {
		t.Fatalf("expected localized timeout message")
	}
}

func TestBrokerToolErrorReturnsLocalizedMessageNotGoError(t *testing.T) {
	b := NewBroker(time.Second, &stubTool{name: "broken", err: errors.New("boom")})
	got := b.Execute(context.Background(), "broken", `{}`)
	if got == "" {
		t.Fatalf("expected localized failure string")
	}
}

func TestBrokerMalformedArgsDoesNotPanic(t *testing.T) {
	b := NewBroker(time.Second, &stubTool{name: "echo", out: "ok"})
	got := b.Execute(context.Background(), "echo", `not json`)
	if got != "ok" {
		t.Fatalf("expected tool still executed with empty args, got %q", got)
	}
}

func TestSchemasReturnsAllRegisteredTools(t *testing.T) {
	b := NewBroker(time.Second, &stubTool{name: "a", out: "x"}, &stubTool{name: "b", out: "y"})
	schemas := b.Schemas()
	if len(schemas) != 2 {
		t.Fatalf("expected 2 schemas, got %d", len(schemas))
	}
}
