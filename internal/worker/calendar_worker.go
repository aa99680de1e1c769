package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"consultbot/internal/domain"
	"consultbot/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// TaskStore persists sync_queue tasks between restarts.
type TaskStore interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// SyncRecorder counts processed tasks by outcome.
type SyncRecorder interface {
	RecordSyncTask(task, status string)
}

type nopSyncRecorder struct{}

func (nopSyncRecorder) RecordSyncTask(string, string) {}

// calendarTaskPayload is persisted in SyncTask.Payload as JSON.
type calendarTaskPayload struct {
	BookingID string          `json:"booking_id"`
	Booking   *models.Booking `json:"booking,omitempty"`
}

// CalendarWorker consumes sync_queue tasks and mirrors bookings into the calendar.
type CalendarWorker struct {
	store         TaskStore
	calendar      domain.CalendarWriter
	redis         *redis.Client
	retryPolicy   RetryPolicy
	recorder      SyncRecorder
	queue         chan models.SyncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        zerolog.Logger
	now           func() time.Time
}

var _ domain.CalendarSyncWorker = (*CalendarWorker)(nil)

// NewCalendarWorker builds a worker with sane defaults. redisClient and recorder may be nil.
func NewCalendarWorker(store TaskStore, calendar domain.CalendarWriter, redisClient *redis.Client, retry RetryPolicy, recorder SyncRecorder, logger *zerolog.Logger) *CalendarWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 1 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if recorder == nil {
		recorder = nopSyncRecorder{}
	}
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}

	return &CalendarWorker{
		store:         store,
		calendar:      calendar,
		redis:         redisClient,
		retryPolicy:   retry,
		recorder:      recorder,
		queue:         make(chan models.SyncTask, 128),
		redisQueueKey: "calendar:queue",
		deadLetterKey: "calendar:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        l.With().Str("component", "calendar_worker").Logger(),
		now:           time.Now,
	}
}

// EnqueueTask persists the task and schedules it via redis or the in-memory queue.
func (w *CalendarWorker) EnqueueTask(ctx context.Context, taskType string, booking *models.Booking) error {
	if taskType == "" {
		return errors.New("task type is required")
	}
	if booking == nil || booking.ID == "" {
		return errors.New("booking id is required")
	}

	payload := calendarTaskPayload{BookingID: booking.ID}
	if taskType == models.SyncTaskUpsert {
		payload.Booking = booking.Clone()
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	syncTask := models.SyncTask{
		TaskType:  taskType,
		BookingID: booking.ID,
		Payload:   string(payloadBytes),
		Status:    models.SyncStatusPending,
		CreatedAt: w.now(),
	}

	if err := w.store.CreateSyncTask(ctx, &syncTask); err != nil {
		return fmt.Errorf("persist sync task: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, syncTask); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", syncTask.ID).Msg("redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- syncTask:
	default:
		// задача останется в sync_queue и будет подобрана опросом
		w.logger.Warn().Int64("task_id", syncTask.ID).Msg("in-memory queue full, task left for polling")
	}

	return nil
}

// Start runs the main loop until ctx is done.
func (w *CalendarWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("started")
	defer w.logger.Info().Msg("stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.store.GetPendingSyncTasks(ctx, w.batchSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error().Err(err).Msg("fetch pending tasks")
			w.sleep(ctx)
			continue
		}
		if len(tasks) == 0 {
			w.sleep(ctx)
			continue
		}

		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *CalendarWorker) sleep(ctx context.Context) {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (w *CalendarWorker) tryLocalQueue() (models.SyncTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.SyncTask{}, false
	}
}

func (w *CalendarWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, redis.Nil) {
			return models.SyncTask{}, false
		}
		w.logger.Error().Err(err).Msg("redis BRPOP error")
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis task")
		return models.SyncTask{}, false
	}
	return task, true
}

func (w *CalendarWorker) processTask(ctx context.Context, task *models.SyncTask) {
	payload, err := decodePayload(task.Payload)
	if err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.handleCalendarTask(ctx, task.TaskType, payload); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark completed")
	}
	w.recorder.RecordSyncTask(task.TaskType, models.SyncStatusCompleted)
}

func (w *CalendarWorker) handleCalendarTask(ctx context.Context, taskType string, payload calendarTaskPayload) error {
	switch taskType {
	case models.SyncTaskUpsert:
		if payload.Booking == nil {
			return errors.New("booking payload missing")
		}
		return w.calendar.UpsertBookingEvent(ctx, payload.Booking)
	case models.SyncTaskDelete:
		if payload.BookingID == "" {
			return errors.New("booking id missing")
		}
		return w.calendar.DeleteBookingEvent(ctx, payload.BookingID)
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

func (w *CalendarWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if attempt >= w.retryPolicy.MaxRetries || w.retryPolicy.Permanent(cause) {
		w.failTask(ctx, task, cause)
		return
	}

	nextTime := w.now().Add(w.retryPolicy.NextDelay(attempt, cause))
	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark retry")
	}
	w.logger.Warn().Err(cause).Int64("task_id", task.ID).Int("attempt", attempt).Time("next_retry_at", nextTime).Msg("calendar task scheduled for retry")
	w.recorder.RecordSyncTask(task.TaskType, models.SyncStatusRetry)
}

func (w *CalendarWorker) failTask(ctx context.Context, task *models.SyncTask, cause error) {
	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark failed")
	}
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("booking_id", task.BookingID).Msg("calendar task failed")
	w.recorder.RecordSyncTask(task.TaskType, models.SyncStatusFailed)
	w.pushDeadLetter(ctx, task)
}

func decodePayload(raw string) (calendarTaskPayload, error) {
	var payload calendarTaskPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return payload, err
	}
	return payload, nil
}

func (w *CalendarWorker) pushRedis(ctx context.Context, task models.SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *CalendarWorker) pushDeadLetter(ctx context.Context, task *models.SyncTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("encode deadletter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("deadletter push")
	}
}
