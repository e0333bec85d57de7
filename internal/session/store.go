package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "travel-assistant/internal/common/errors"
	"travel-assistant/internal/models"
	"travel-assistant/internal/slots"

	"github.com/redis/go-redis/v9"
)

var ErrInvalidThreadID = errors.New("INVALID_THREAD_ID")

// Store persists ThreadState per thread. Callers serialize turns per thread;
// the store itself does no locking.
type Store interface {
	Load(ctx context.Context, threadID string) (*models.ThreadState, error)
	Save(ctx context.Context, threadID string, state *models.ThreadState) error
	Update(ctx context.Context, threadID string, patch map[string]string, missing []string) error
	SetLastIntent(ctx context.Context, threadID string, intent models.Intent) error
	GetLastIntent(ctx context.Context, threadID string) (models.Intent, error)
	SetReceipts(ctx context.Context, threadID string, receipts models.Receipts) error
	GetReceipts(ctx context.Context, threadID string) (models.Receipts, error)
	Delete(ctx context.Context, threadID string) error
}

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// RedisStore keeps one JSON document per thread under keyPrefix+threadID.
// The Redis key expires with the session so abandoned threads clean up.
type RedisStore struct {
	client    redis.Cmdable
	keyPrefix string
	ttl       time.Duration
	now       func() time.Time
	logger    Logger
}

// NewRedisStore creates a store with the default key prefix when keyPrefix is empty.
func NewRedisStore(client redis.Cmdable, keyPrefix string, ttl time.Duration, log Logger) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "assistant:thread:"
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		now:       time.Now,
		logger:    log.With(map[string]interface{}{"component": "session"}),
	}
}

func (s *RedisStore) key(threadID string) string {
	return s.keyPrefix + threadID
}

// Load returns the thread's state. Missing, corrupt and expired entries all
// come back as a fresh empty state.
func (s *RedisStore) Load(ctx context.Context, threadID string) (*models.ThreadState, error) {
	if threadID == "" {
		return nil, ErrInvalidThreadID
	}

	now := s.now()
	fresh := func() *models.ThreadState {
		st := models.NewThreadState()
		st.Session.Touch(now, s.ttl)
		return st
	}

	val, err := s.client.Get(ctx, s.key(threadID)).Result()
	if errors.Is(err, redis.Nil) {
		return fresh(), nil
	}
	if err != nil {
		return nil, apperrors.NewSessionLoadFailedError(threadID, err)
	}

	var state models.ThreadState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		s.logger.Warn("discarding unreadable thread state", map[string]interface{}{
			"threadId": threadID,
			"error":    err.Error(),
		})
		return fresh(), nil
	}

	if state.Session.IsExpired(now) {
		s.logger.Info("thread session expired", map[string]interface{}{
			"threadId":  threadID,
			"expiresAt": state.Session.ExpiresAt,
		})
		return fresh(), nil
	}

	if state.Slots == nil {
		state.Slots = make(map[string]string)
	}
	if state.Consent.Kind == "" {
		state.Consent.Kind = models.ConsentNone
	}
	state.Session.Touch(now, s.ttl)
	return &state, nil
}

// Save writes state and extends the session.
func (s *RedisStore) Save(ctx context.Context, threadID string, state *models.ThreadState) error {
	if threadID == "" {
		return ErrInvalidThreadID
	}
	if state == nil {
		return fmt.Errorf("%w: nil state", ErrInvalidThreadID)
	}

	state.Session.Touch(s.now(), s.ttl)

	data, err := json.Marshal(state)
	if err != nil {
		return apperrors.NewSessionSaveFailedError(threadID, err)
	}
	if err := s.client.Set(ctx, s.key(threadID), data, s.ttl).Err(); err != nil {
		return apperrors.NewSessionSaveFailedError(threadID, err)
	}
	return nil
}

// Update merges patch into the thread's slots with the same rules a turn
// uses: placeholder locations are rejected and a new city clears the old
// time window and traveler profile. A key whose value is blank removes the
// slot. missing replaces the slots a clarifying question asked for.
func (s *RedisStore) Update(ctx context.Context, threadID string, patch map[string]string, missing []string) error {
	state, err := s.Load(ctx, threadID)
	if err != nil {
		return err
	}

	var removed []string
	for k, v := range patch {
		if strings.TrimSpace(v) == "" {
			removed = append(removed, k)
		}
	}

	res := slots.Merge(state.Slots, patch)
	for _, k := range removed {
		delete(res.Slots, k)
	}
	if len(res.Dropped) > len(removed) || res.LocationChanged {
		s.logger.Info("slot patch adjusted", map[string]interface{}{
			"threadId": threadID,
			"dropped":  res.Dropped,
			"cleared":  res.Cleared,
		})
	}

	state.Slots = res.Slots
	state.ExpectedMissing = append([]string(nil), missing...)
	return s.Save(ctx, threadID, state)
}

func (s *RedisStore) SetLastIntent(ctx context.Context, threadID string, intent models.Intent) error {
	state, err := s.Load(ctx, threadID)
	if err != nil {
		return err
	}
	state.LastIntent = intent
	return s.Save(ctx, threadID, state)
}

func (s *RedisStore) GetLastIntent(ctx context.Context, threadID string) (models.Intent, error) {
	state, err := s.Load(ctx, threadID)
	if err != nil {
		return "", err
	}
	return state.LastIntent, nil
}

func (s *RedisStore) SetReceipts(ctx context.Context, threadID string, receipts models.Receipts) error {
	state, err := s.Load(ctx, threadID)
	if err != nil {
		return err
	}
	state.LastReceipts = receipts.Clone()
	return s.Save(ctx, threadID, state)
}

func (s *RedisStore) GetReceipts(ctx context.Context, threadID string) (models.Receipts, error) {
	state, err := s.Load(ctx, threadID)
	if err != nil {
		return models.Receipts{}, err
	}
	return state.LastReceipts, nil
}

// Delete forgets the thread.
func (s *RedisStore) Delete(ctx context.Context, threadID string) error {
	if threadID == "" {
		return ErrInvalidThreadID
	}
	if err := s.client.Del(ctx, s.key(threadID)).Err(); err != nil {
		return apperrors.NewSessionSaveFailedError(threadID, err)
	}
	return nil
}
