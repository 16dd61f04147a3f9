package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/attensys/upload-relay/internal/model"
)

// RedisStore keeps each upload as a JSON record under upload:<id> with a
// set per status acting as the secondary index, and results under
// upload:result:<id>. Job records carry no TTL; results expire after the
// configured retention so the result collection does not grow unbounded.
type RedisStore struct {
	redis           *redis.Client
	resultRetention time.Duration
}

func NewRedisStore(redisClient *redis.Client, resultRetention time.Duration) *RedisStore {
	if resultRetention <= 0 {
		resultRetention = 24 * time.Hour
	}
	return &RedisStore{
		redis:           redisClient,
		resultRetention: resultRetention,
	}
}

func uploadKey(id string) string {
	return fmt.Sprintf("upload:%s", id)
}

func statusKey(status model.UploadStatus) string {
	return fmt.Sprintf("uploads:status:%s", status)
}

func resultKey(id string) string {
	return fmt.Sprintf("upload:result:%s", id)
}

func (s *RedisStore) Put(ctx context.Context, upload *model.PendingUpload) error {
	data, err := json.Marshal(upload)
	if err != nil {
		return fmt.Errorf("marshal upload: %w", err)
	}

	ok, err := s.redis.SetNX(ctx, uploadKey(upload.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("store upload: %w", err)
	}
	if !ok {
		return ErrDuplicateID
	}

	if err := s.redis.SAdd(ctx, statusKey(upload.Status), upload.ID).Err(); err != nil {
		return fmt.Errorf("index upload status: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*model.PendingUpload, error) {
	data, err := s.redis.Get(ctx, uploadKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get upload: %w", err)
	}

	var upload model.PendingUpload
	if err := json.Unmarshal(data, &upload); err != nil {
		return nil, fmt.Errorf("unmarshal upload: %w", err)
	}
	return &upload, nil
}

func (s *RedisStore) GetByStatus(ctx context.Context, status model.UploadStatus) ([]*model.PendingUpload, error) {
	ids, err := s.redis.SMembers(ctx, statusKey(status)).Result()
	if err != nil {
		return nil, fmt.Errorf("list status index: %w", err)
	}

	uploads := make([]*model.PendingUpload, 0, len(ids))
	for _, id := range ids {
		upload, err := s.Get(ctx, id)
		if err != nil {
			if err == ErrNotFound {
				// Stale index entry; drop it and move on.
				s.redis.SRem(ctx, statusKey(status), id)
				continue
			}
			return nil, err
		}
		uploads = append(uploads, upload)
	}
	return uploads, nil
}

func (s *RedisStore) Update(ctx context.Context, upload *model.PendingUpload) error {
	prev, err := s.Get(ctx, upload.ID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(upload)
	if err != nil {
		return fmt.Errorf("marshal upload: %w", err)
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, uploadKey(upload.ID), data, 0)
	if prev.Status != upload.Status {
		pipe.SRem(ctx, statusKey(prev.Status), upload.ID)
		pipe.SAdd(ctx, statusKey(upload.Status), upload.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update upload: %w", err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, id string) error {
	upload, err := s.Get(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			// Double-delete is fine.
			return nil
		}
		return err
	}

	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, uploadKey(id))
	pipe.SRem(ctx, statusKey(upload.Status), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove upload: %w", err)
	}
	return nil
}

func (s *RedisStore) PutResult(ctx context.Context, result *model.UploadResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := s.redis.Set(ctx, resultKey(result.ID), data, s.resultRetention).Err(); err != nil {
		return fmt.Errorf("store result: %w", err)
	}
	return nil
}

func (s *RedisStore) GetResult(ctx context.Context, id string) (*model.UploadResult, error) {
	data, err := s.redis.Get(ctx, resultKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("get result: %w", err)
	}

	var result model.UploadResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return &result, nil
}

func (s *RedisStore) Close() error {
	return s.redis.Close()
}
