package ratelimit

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRing is the optional shared ring backend (SPEC_FULL.md §4.5
// expansion): sorted sets keyed by provider/model, scored by unix-nano
// timestamp, so multiple gateway processes on one host can share
// rate-limit state. Still single-host — this does not introduce
// distributed coordination across machines (spec's Non-goals).
type RedisRing struct {
	client *redis.Client
	ctx    context.Context
}

func NewRedisRing(client *redis.Client) *RedisRing {
	return &RedisRing{client: client, ctx: context.Background()}
}

func (r *RedisRing) requestsKey(key string) string { return "llmgate:rl:req:" + key }
func (r *RedisRing) tokensKey(key string) string   { return "llmgate:rl:tok:" + key }

func (r *RedisRing) RecordRequest(key string, at time.Time) {
	score := float64(at.UnixNano())
	member := strconv.FormatInt(at.UnixNano(), 10)
	r.client.ZAdd(r.ctx, r.requestsKey(key), redis.Z{Score: score, Member: member})
	r.client.ZRemRangeByScore(r.ctx, r.requestsKey(key), "-inf", strconv.FormatInt(at.Add(-24*time.Hour).UnixNano(), 10))
}

func (r *RedisRing) RecordTokens(key string, at time.Time, tokens int) {
	member := "c|" + strconv.FormatInt(at.UnixNano(), 10) + "|" + strconv.Itoa(tokens)
	r.client.ZAdd(r.ctx, r.tokensKey(key), redis.Z{Score: float64(at.UnixNano()), Member: member})
	r.client.ZRemRangeByScore(r.ctx, r.tokensKey(key), "-inf", strconv.FormatInt(at.Add(-60*time.Second).UnixNano(), 10))
}

func (r *RedisRing) ReserveTokens(key string, id string, at time.Time, estTokens int) {
	member := "r|" + id + "|" + strconv.Itoa(estTokens)
	r.client.ZAdd(r.ctx, r.tokensKey(key), redis.Z{Score: float64(at.UnixNano()), Member: member})
}

func (r *RedisRing) ReleaseReservation(key string, id string) {
	if id == "" {
		return
	}
	members, err := r.client.ZRange(r.ctx, r.tokensKey(key), 0, -1).Result()
	if err != nil {
		return
	}
	prefix := "r|" + id + "|"
	for _, m := range members {
		if strings.HasPrefix(m, prefix) {
			r.client.ZRem(r.ctx, r.tokensKey(key), m)
			return
		}
	}
}

func (r *RedisRing) CountRequestsSince(key string, since time.Time) int {
	n, err := r.client.ZCount(r.ctx, r.requestsKey(key), strconv.FormatInt(since.UnixNano(), 10), "+inf").Result()
	if err != nil {
		return 0
	}
	return int(n)
}

func (r *RedisRing) SumTokensSince(key string, since time.Time) int {
	members, err := r.client.ZRangeByScore(r.ctx, r.tokensKey(key), &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixNano(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return 0
	}
	sum := 0
	for _, m := range members {
		parts := strings.Split(m, "|")
		if len(parts) != 3 {
			continue
		}
		if n, err := strconv.Atoi(parts[2]); err == nil {
			sum += n
		}
	}
	return sum
}

func (r *RedisRing) OldestRequestSince(key string, since time.Time) time.Time {
	members, err := r.client.ZRangeByScore(r.ctx, r.requestsKey(key), &redis.ZRangeBy{
		Min:   strconv.FormatInt(since.UnixNano(), 10),
		Max:   "+inf",
		Count: 1,
	}).Result()
	if err != nil || len(members) == 0 {
		return time.Time{}
	}
	nanos, err := strconv.ParseInt(members[0], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}
