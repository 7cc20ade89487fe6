package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"beacon/pkg/interfaces"
	"beacon/pkg/types"
)

const (
	presenceKeyPrefix = "presence:user:"
	presenceIndexKey  = "presence:index"
)

// RedisOptions configures the redis-backed presence store.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// RetentionTTL bounds how long a silent user's row survives. Long by
	// default: stale rows should age into offline on the reading side, not
	// vanish mid-shift.
	RetentionTTL time.Duration
}

// RedisStore keeps presence rows as JSON values keyed per user, with a set
// index for snapshot enumeration. An alternative to SQLiteStore for
// deployments that already run redis.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RetentionTTL <= 0 {
		opts.RetentionTTL = 24 * time.Hour
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	return &RedisStore{
		client: client,
		ttl:    opts.RetentionTTL,
		logger: logger,
	}, nil
}

// RecordHeartbeat merges the heartbeat into the stored row and refreshes its
// TTL. Empty profile fields keep their stored values.
func (s *RedisStore) RecordHeartbeat(ctx context.Context, hb *types.Heartbeat) error {
	if !types.IsValidUserID(hb.UserID) {
		return types.ErrInvalidUserID
	}

	current, err := s.get(ctx, hb.UserID)
	if err != nil {
		return err
	}
	if current == nil {
		current = &types.UserPresence{UserID: hb.UserID, Status: types.StatusOnline}
	}

	if hb.Name != "" {
		current.Name = hb.Name
	}
	if hb.Email != "" {
		current.Email = hb.Email
	}
	if hb.AvatarRef != "" {
		current.AvatarRef = hb.AvatarRef
	}
	if hb.Role != "" {
		current.Role = hb.Role
	}
	if hb.Department != "" {
		current.Department = hb.Department
	}
	current.CurrentPage = hb.CurrentPage
	current.IsActive = hb.IsActive
	current.LastActive = time.Now()

	return s.put(ctx, current)
}

// SetStatus records an explicit status transition without touching LastActive.
func (s *RedisStore) SetStatus(ctx context.Context, userID string, status types.Status) error {
	if !types.IsValidUserID(userID) {
		return types.ErrInvalidUserID
	}
	if !status.Valid() {
		return types.ErrInvalidStatus
	}

	current, err := s.get(ctx, userID)
	if err != nil {
		return err
	}
	if current == nil {
		current = &types.UserPresence{UserID: userID}
	}
	current.Status = status

	return s.put(ctx, current)
}

// Snapshot enumerates the index and fetches all rows in one pipeline.
// Index entries whose rows have expired are pruned as a side effect.
func (s *RedisStore) Snapshot(ctx context.Context) ([]*types.UserPresence, error) {
	userIDs, err := s.client.SMembers(ctx, presenceIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate presence index: %w", err)
	}
	if len(userIDs) == 0 {
		return []*types.UserPresence{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(userIDs))
	for i, userID := range userIDs {
		cmds[i] = pipe.Get(ctx, presenceKeyPrefix+userID)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to fetch presence rows: %w", err)
	}

	users := make([]*types.UserPresence, 0, len(userIDs))
	var expired []interface{}
	for i, cmd := range cmds {
		data, err := cmd.Result()
		if err == redis.Nil {
			expired = append(expired, userIDs[i])
			continue
		}
		if err != nil {
			s.logger.Warn("failed to read presence row",
				zap.String("user_id", userIDs[i]), zap.Error(err))
			continue
		}

		var u types.UserPresence
		if err := json.Unmarshal([]byte(data), &u); err != nil {
			s.logger.Warn("corrupt presence row skipped",
				zap.String("user_id", userIDs[i]), zap.Error(err))
			continue
		}
		users = append(users, &u)
	}

	if len(expired) > 0 {
		if err := s.client.SRem(ctx, presenceIndexKey, expired...).Err(); err != nil {
			s.logger.Warn("failed to prune presence index", zap.Error(err))
		}
	}

	return users, nil
}

// Close releases the redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) get(ctx context.Context, userID string) (*types.UserPresence, error) {
	data, err := s.client.Get(ctx, presenceKeyPrefix+userID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read presence row: %w", err)
	}

	var u types.UserPresence
	if err := json.Unmarshal([]byte(data), &u); err != nil {
		return nil, fmt.Errorf("failed to decode presence row: %w", err)
	}
	return &u, nil
}

func (s *RedisStore) put(ctx context.Context, u *types.UserPresence) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to encode presence row: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, presenceKeyPrefix+u.UserID, data, s.ttl)
	pipe.SAdd(ctx, presenceIndexKey, u.UserID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write presence row: %w", err)
	}
	return nil
}

var _ interfaces.PresenceStore = (*RedisStore)(nil)
