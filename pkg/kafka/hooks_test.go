package kafka

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestHookChain_ThreadsContextAndStopsOnError(t *testing.T) {
	var afterOrder []string
	first := HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			return ctx, km, append(data, '1'), nil
		},
		After: func(context.Context, string, kafka.Message, []byte, error) { afterOrder = append(afterOrder, "first") },
	}
	second := HookFuncs{
		After: func(context.Context, string, kafka.Message, []byte, error) { afterOrder = append(afterOrder, "second") },
	}

	chain := NewHookChain(TraceHook{}, first, nil, second)
	km := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}
	ctx, _, data, err := chain.BeforeHandle(context.Background(), "commands", km, []byte("x"))
	if err != nil {
		t.Fatalf("before: %v", err)
	}
	if string(data) != "x1" {
		t.Fatalf("data = %q", data)
	}
	if TraceIDFrom(ctx) != "abc" {
		t.Fatalf("trace id = %q", TraceIDFrom(ctx))
	}
	if _, ok := StartTimeFrom(ctx); !ok {
		t.Fatal("start time missing")
	}

	chain.AfterHandle(ctx, "commands", km, data, nil)
	if len(afterOrder) != 2 || afterOrder[0] != "second" {
		t.Fatalf("after order = %v", afterOrder)
	}
}

func TestHookChain_PanicBecomesHookError(t *testing.T) {
	var onErr int
	boom := HookFuncs{
		Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
			panic("boom")
		},
		Err: func(context.Context, string, kafka.Message, []byte, error) { onErr++ },
	}
	_, _, _, err := NewHookChain(boom).BeforeHandle(context.Background(), "t", kafka.Message{}, nil)

	var he *HookError
	if !errors.As(err, &he) || he.Code != "ERR_PANIC" {
		t.Fatalf("err = %v", err)
	}
	if onErr != 1 {
		t.Fatalf("OnError calls = %d", onErr)
	}
}

func TestCommandShapeHook(t *testing.T) {
	h := CommandShapeHook{MaxBytes: 64}
	for _, tc := range []struct {
		name    string
		payload string
		code    string
	}{
		{"valid", `{"type":"zoom","factor":2}`, ""},
		{"not json", `zoom`, "ERR_MALFORMED"},
		{"no type", `{"factor":2}`, "ERR_MALFORMED"},
		{"too large", `{"type":"zoom","pad":"` + strings.Repeat("x", 64) + `"}`, "ERR_TOO_LARGE"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, _, _, err := h.BeforeHandle(context.Background(), "commands", kafka.Message{}, []byte(tc.payload))
			if tc.code == "" {
				if err != nil {
					t.Fatalf("err = %v", err)
				}
				return
			}
			var he *HookError
			if !errors.As(err, &he) || he.Code != tc.code {
				t.Fatalf("err = %v, want %s", err, tc.code)
			}
		})
	}
}
