package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/identity/models"
	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/sentinel"
)

const (
	sessionKeyPrefix = "session:"
	// maxWatchRetries bounds optimistic-lock retries when ending a session.
	maxWatchRetries = 5
)

// RedisStore keeps sessions as JSON values that expire with the session.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func sessionKey(sessionID id.SessionID) string {
	return sessionKeyPrefix + sessionID.String()
}

func (s *RedisStore) Create(ctx context.Context, sess *models.Session) error {
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return sentinel.ErrExpired
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ok, err := s.client.SetNX(ctx, sessionKey(sess.ID), payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: create session: %w", sentinel.ErrUnavailable, err)
	}
	if !ok {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (s *RedisStore) FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get session: %w", sentinel.ErrUnavailable, err)
	}
	return decode(raw)
}

// EndIfActive ends the session under WATCH so concurrent sign-outs end it
// exactly once. Losers observe ErrInvalidState.
func (s *RedisStore) EndIfActive(ctx context.Context, sessionID id.SessionID, at time.Time) (*models.Session, error) {
	key := sessionKey(sessionID)
	var ended *models.Session

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return err
		}
		sess, err := decode(raw)
		if err != nil {
			return err
		}
		if sess.Status != models.SessionStatusActive {
			return sentinel.ErrInvalidState
		}
		sess.ApplyEnd(at)
		payload, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, redis.KeepTTL)
			return nil
		})
		if err == nil {
			ended = sess
		}
		return err
	}

	for range maxWatchRetries {
		err := s.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return ended, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, sentinel.ErrNotFound), errors.Is(err, sentinel.ErrInvalidState):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: end session: %w", sentinel.ErrUnavailable, err)
		}
	}
	return nil, fmt.Errorf("%w: end session: %w", sentinel.ErrUnavailable, redis.TxFailedErr)
}

func decode(raw []byte) (*models.Session, error) {
	var sess models.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}
