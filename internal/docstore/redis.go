package docstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/redis"
)

// KV is the subset of the Redis client the store needs.
type KV interface {
	Incr(ctx context.Context, key string) (int64, error)
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Redis keeps documents as plain string keys. Ids come from INCR on a
// sequence key, shifted so the first document gets id zero.
type Redis struct {
	kv     KV
	prefix string
	closer func() error
}

// NewRedis stores documents under keys starting with prefix.
func NewRedis(kv KV, prefix string) *Redis {
	r := &Redis{kv: kv, prefix: prefix}
	if c, ok := kv.(interface{ Close() error }); ok {
		r.closer = c.Close
	}
	return r
}

func (r *Redis) seqKey() string {
	return r.prefix + "doc:seq"
}

func (r *Redis) docKey(id uint64) string {
	return r.prefix + "doc:" + strconv.FormatUint(id, 10)
}

// Insert allocates an id and stores the text. A failed SET leaves a gap in
// the sequence; that id resolves to ErrDocumentNotFound.
func (r *Redis) Insert(ctx context.Context, text string) (uint64, error) {
	n, err := r.kv.Incr(ctx, r.seqKey())
	if err != nil {
		return 0, fmt.Errorf("allocating document id: %w: %w", apperrors.ErrUnavailable, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("document sequence returned %d: %w", n, apperrors.ErrStorageIO)
	}
	id := uint64(n - 1)
	if err := r.kv.Set(ctx, r.docKey(id), text, 0); err != nil {
		return 0, fmt.Errorf("storing document %d: %w: %w", id, apperrors.ErrUnavailable, err)
	}
	return id, nil
}

func (r *Redis) Find(ctx context.Context, id uint64) (string, error) {
	text, err := r.kv.Get(ctx, r.docKey(id))
	if err != nil {
		if redis.IsNilError(err) {
			return "", fmt.Errorf("document %d: %w", id, apperrors.ErrDocumentNotFound)
		}
		return "", fmt.Errorf("loading document %d: %w: %w", id, apperrors.ErrUnavailable, err)
	}
	return text, nil
}

func (r *Redis) Close() error {
	if r.closer != nil {
		return r.closer()
	}
	return nil
}
