package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/polkart/storefront-api/internal/events"
)

// TaskCartReminder is the asynq task type for delayed abandoned-cart emails.
const TaskCartReminder = "notify:cart-reminder"

// Scheduler enqueues delayed notification tasks for the worker process.
type Scheduler struct {
	Client *asynq.Client
	Delay  time.Duration
	Logger zerolog.Logger
}

// ScheduleCartReminder queues an abandoned-cart reminder after the configured
// delay. The task is keyed by email so repeated requests collapse into one.
func (s Scheduler) ScheduleCartReminder(ctx context.Context, p CartPayload) error {
	if s.Client == nil {
		return nil
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("cart reminder: encode payload: %w", err)
	}
	delay := s.Delay
	if delay <= 0 {
		delay = time.Hour
	}
	task := asynq.NewTask(TaskCartReminder, payload)
	info, err := s.Client.EnqueueContext(ctx, task,
		asynq.ProcessIn(delay),
		asynq.TaskID(fmt.Sprintf("cart-reminder:%s", p.Email)),
		asynq.MaxRetry(3),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			s.Logger.Debug().Str("email", p.Email).Msg("cart reminder already queued")
			return nil
		}
		return fmt.Errorf("cart reminder: enqueue: %w", err)
	}
	s.Logger.Info().Str("task_id", info.ID).Str("email", p.Email).Dur("delay", delay).Msg("cart reminder scheduled")
	return nil
}

// CartReminderHandler processes queued reminders by emitting the
// cart.abandoned event through the bus.
type CartReminderHandler struct {
	Bus    *events.Bus
	Logger zerolog.Logger
}

// ProcessTask implements asynq.Handler.
func (h CartReminderHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var p CartPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("cart reminder: decode payload: %w", err)
	}
	if _, err := h.Bus.Emit(ctx, events.TopicCartAbandoned, "", p); err != nil {
		return fmt.Errorf("cart reminder: emit: %w", err)
	}
	h.Logger.Info().Str("email", p.Email).Msg("abandoned cart reminder processed")
	return nil
}
