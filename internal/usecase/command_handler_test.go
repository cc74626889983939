package usecase

import (
	"context"
	"testing"

	"QuotaGame/internal/domain/models"
	applogger "QuotaGame/pkg/logger"
)

func TestCommandHandler_AppliesCommands(t *testing.T) {
	s := newTestSession(t, 1000, 1000)
	h := NewCommandHandler("game.commands", s, nopMetrics{}, applogger.NewNop())
	ctx := context.Background()

	msgs := []string{
		`{"type":"drag_start","point":{"x":450,"y":250}}`,
		`{"type":"drag_move","point":{"x":500,"y":300}}`,
		`{"type":"drag_end","point":{"x":550,"y":350}}`,
	}
	for _, m := range msgs {
		if err := h.Handle(ctx, []byte(m)); err != nil {
			t.Fatalf("handle %s: %v", m, err)
		}
	}
	s.Wait()
	if phase := s.Snapshot(0).Round.Phase; phase != models.PhaseProposed {
		t.Fatalf("phase = %s", phase)
	}
}

func TestCommandHandler_DropsBadInput(t *testing.T) {
	s := newTestSession(t, 1000, 1000)
	h := NewCommandHandler("game.commands", s, nopMetrics{}, applogger.NewNop())

	for _, m := range []string{`{not json`, `{"type":"resume"}`, `{"type":"teleport"}`} {
		if err := h.Handle(context.Background(), []byte(m)); err != nil {
			t.Fatalf("handle %s: %v, want dropped", m, err)
		}
	}
}
