package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"QuotaGame/internal/domain/models"
	domrepo "QuotaGame/internal/domain/repository"
	pkgkafka "QuotaGame/pkg/kafka"
	applogger "QuotaGame/pkg/logger"
)

// CommandHandler consumes input events from Kafka and applies them to the session.
type CommandHandler struct {
	topic   string
	session *Session
	metrics domrepo.Metrics
	log     *applogger.Logger
}

func NewCommandHandler(topic string, session *Session, metrics domrepo.Metrics, log *applogger.Logger) *CommandHandler {
	return &CommandHandler{topic: topic, session: session, metrics: metrics, log: log}
}

func (h *CommandHandler) Topic() string { return h.topic }

// incoming message schema: {type, point:{x,y}, delta, factor}
func (h *CommandHandler) Handle(ctx context.Context, b []byte) error {
	var cmd models.Command
	if err := json.Unmarshal(b, &cmd); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		// a malformed payload never succeeds on retry
		return nil
	}

	start := time.Now()
	err := h.session.Apply(ctx, cmd)
	h.metrics.RecordLatency("command_"+string(cmd.Type), time.Since(start).Seconds())
	if err == nil {
		return nil
	}

	h.metrics.RecordError("command_rejected")
	h.log.Warn("command rejected",
		applogger.String("type", string(cmd.Type)),
		applogger.String("trace_id", pkgkafka.TraceIDFrom(ctx)),
		applogger.Error(err))

	// game rule violations are final; only engine failures are worth a retry
	if isRuleViolation(err) {
		return nil
	}
	return fmt.Errorf("apply %s: %w", cmd.Type, err)
}

func isRuleViolation(err error) bool {
	for _, target := range []error{
		ErrInvalidTransition, ErrRoundLocked, ErrEstimatePending, ErrStaleEstimate,
		ErrOutsideRectangle, ErrInsufficientBudget, ErrUnknownCommand,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var _ pkgkafka.MessageHandler = (*CommandHandler)(nil)
