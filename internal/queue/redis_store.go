package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/notifyhub/mailqueue/internal/domain"
)

// ClientSource hands out the current broker client, or nil while the broker
// is unavailable. *broker.Manager satisfies it.
type ClientSource interface {
	Client() redis.UniversalClient
}

// promoteScript moves due members of the delayed set onto the stream in one
// atomic step, so a crash can never lose a job between ZREM and XADD and two
// workers never promote the same job.
var promoteScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, id in ipairs(ids) do
	redis.call('ZREM', KEYS[1], id)
	redis.call('XADD', KEYS[2], '*', 'id', id)
end
return #ids
`)

const promoteBatch = 100

// RedisStore keeps jobs in Redis:
//
//	<name>:stream      stream of ready job ids, read through a consumer group
//	<name>:delayed     sorted set of job ids waiting for a retry, scored by due unix ms
//	<name>:job:<id>    JSON JobRecord
//	<name>:completed   counter
//	<name>:failed      counter
//
// Entries are acknowledged and deleted from the stream once an attempt ends,
// so the stream length is always waiting + active.
type RedisStore struct {
	src     ClientSource
	name    string
	group   string
	stalled time.Duration
	ttl     time.Duration
}

// NewRedisStore returns a store for the queue called name. Deliveries idle
// for longer than stalled are reclaimed by other workers (0 disables
// reclaiming). Records expire ttl after their last write.
func NewRedisStore(src ClientSource, name string, stalled, ttl time.Duration) *RedisStore {
	return &RedisStore{
		src:     src,
		name:    name,
		group:   name + ":workers",
		stalled: stalled,
		ttl:     ttl,
	}
}

func (s *RedisStore) streamKey() string      { return s.name + ":stream" }
func (s *RedisStore) delayedKey() string     { return s.name + ":delayed" }
func (s *RedisStore) jobKey(id string) string { return s.name + ":job:" + id }
func (s *RedisStore) completedKey() string   { return s.name + ":completed" }
func (s *RedisStore) failedKey() string      { return s.name + ":failed" }

func (s *RedisStore) client() (redis.UniversalClient, error) {
	c := s.src.Client()
	if c == nil {
		return nil, domain.ErrConnection
	}
	return c, nil
}

func (s *RedisStore) Init(ctx context.Context) error {
	c, err := s.client()
	if err != nil {
		return err
	}
	err = c.XGroupCreateMkStream(ctx, s.streamKey(), s.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", connErr(err))
	}
	return nil
}

func (s *RedisStore) Push(ctx context.Context, rec *domain.JobRecord) error {
	c, err := s.client()
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	_, err = c.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.jobKey(rec.ID), data, s.ttl)
		p.XAdd(ctx, &redis.XAddArgs{
			Stream: s.streamKey(),
			Values: map[string]interface{}{"id": rec.ID},
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("push job %s: %w", rec.ID, connErr(err))
	}
	return nil
}

func (s *RedisStore) Reserve(ctx context.Context, consumer string, block time.Duration) (*domain.JobRecord, error) {
	c, err := s.client()
	if err != nil {
		return nil, err
	}

	// Deliveries abandoned by a crashed worker come first.
	if s.stalled > 0 {
		msgs, _, err := c.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   s.streamKey(),
			Group:    s.group,
			Consumer: consumer,
			MinIdle:  s.stalled,
			Start:    "0-0",
			Count:    1,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("reclaim stalled jobs: %w", connErr(err))
		}
		if len(msgs) > 0 {
			return s.load(ctx, c, msgs[0])
		}
	}

	if block <= 0 {
		block = -1 // no BLOCK argument: return immediately
	}
	streams, err := c.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: consumer,
		Streams:  []string{s.streamKey(), ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read stream: %w", connErr(err))
	}

	for _, st := range streams {
		for _, msg := range st.Messages {
			return s.load(ctx, c, msg)
		}
	}
	return nil, nil
}

// load resolves a stream entry to its record. Entries whose record has
// expired or is unreadable are dropped.
func (s *RedisStore) load(ctx context.Context, c redis.UniversalClient, msg redis.XMessage) (*domain.JobRecord, error) {
	id, _ := msg.Values["id"].(string)
	rec, err := s.get(ctx, c, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || id == "" {
			_ = s.ack(ctx, c, msg.ID)
			return nil, nil
		}
		return nil, err
	}
	rec.Receipt = msg.ID
	return rec, nil
}

func (s *RedisStore) Save(ctx context.Context, rec *domain.JobRecord) error {
	c, err := s.client()
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return connErr(c.Set(ctx, s.jobKey(rec.ID), data, s.ttl).Err())
}

func (s *RedisStore) Complete(ctx context.Context, rec *domain.JobRecord) error {
	return s.finish(ctx, rec, s.completedKey())
}

func (s *RedisStore) Fail(ctx context.Context, rec *domain.JobRecord) error {
	return s.finish(ctx, rec, s.failedKey())
}

func (s *RedisStore) finish(ctx context.Context, rec *domain.JobRecord, counter string) error {
	c, err := s.client()
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	_, err = c.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.jobKey(rec.ID), data, s.ttl)
		p.Incr(ctx, counter)
		if rec.Receipt != "" {
			p.XAck(ctx, s.streamKey(), s.group, rec.Receipt)
			p.XDel(ctx, s.streamKey(), rec.Receipt)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("finish job %s: %w", rec.ID, connErr(err))
	}
	return nil
}

func (s *RedisStore) Retry(ctx context.Context, rec *domain.JobRecord, runAt time.Time) error {
	c, err := s.client()
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	_, err = c.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.jobKey(rec.ID), data, s.ttl)
		p.ZAdd(ctx, s.delayedKey(), redis.Z{Score: float64(runAt.UnixMilli()), Member: rec.ID})
		if rec.Receipt != "" {
			p.XAck(ctx, s.streamKey(), s.group, rec.Receipt)
			p.XDel(ctx, s.streamKey(), rec.Receipt)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("schedule retry for job %s: %w", rec.ID, connErr(err))
	}
	return nil
}

func (s *RedisStore) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	c, err := s.client()
	if err != nil {
		return 0, err
	}
	n, err := promoteScript.Run(ctx, c,
		[]string{s.delayedKey(), s.streamKey()},
		now.UnixMilli(), promoteBatch,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("promote due jobs: %w", connErr(err))
	}
	return n, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*domain.JobRecord, error) {
	c, err := s.client()
	if err != nil {
		return nil, err
	}
	return s.get(ctx, c, id)
}

func (s *RedisStore) get(ctx context.Context, c redis.UniversalClient, id string) (*domain.JobRecord, error) {
	data, err := c.Get(ctx, s.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, connErr(err))
	}
	var rec domain.JobRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &rec, nil
}

func (s *RedisStore) Stats(ctx context.Context) (domain.QueueStats, error) {
	c, err := s.client()
	if err != nil {
		return domain.QueueStats{}, err
	}

	var (
		length    *redis.IntCmd
		pending   *redis.XPendingCmd
		delayed   *redis.IntCmd
		completed *redis.StringCmd
		failed    *redis.StringCmd
	)
	_, err = c.Pipelined(ctx, func(p redis.Pipeliner) error {
		length = p.XLen(ctx, s.streamKey())
		pending = p.XPending(ctx, s.streamKey(), s.group)
		delayed = p.ZCard(ctx, s.delayedKey())
		completed = p.Get(ctx, s.completedKey())
		failed = p.Get(ctx, s.failedKey())
		return nil
	})
	// Missing counters surface as redis.Nil and simply mean zero.
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.QueueStats{}, fmt.Errorf("queue stats: %w", connErr(err))
	}

	var st domain.QueueStats
	st.Delayed = delayed.Val()
	if p, err := pending.Result(); err == nil {
		st.Active = p.Count
	}
	st.Waiting = length.Val() - st.Active
	if st.Waiting < 0 {
		st.Waiting = 0
	}
	st.Completed = counterVal(completed)
	st.Failed = counterVal(failed)
	return st, nil
}

func (s *RedisStore) ack(ctx context.Context, c redis.UniversalClient, receipt string) error {
	_, err := c.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.XAck(ctx, s.streamKey(), s.group, receipt)
		p.XDel(ctx, s.streamKey(), receipt)
		return nil
	})
	return connErr(err)
}

// connErr marks failures to reach the broker with domain.ErrConnection.
// The manager only notices an outage on its next health check; until then
// commands fail with raw network errors.
func connErr(err error) error {
	if err == nil || errors.Is(err, domain.ErrConnection) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("%w: %w", domain.ErrConnection, err)
	}
	return err
}

func counterVal(cmd *redis.StringCmd) int64 {
	n, err := strconv.ParseInt(cmd.Val(), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

var _ Store = (*RedisStore)(nil)
