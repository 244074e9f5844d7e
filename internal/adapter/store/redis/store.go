// Package redis implements ports.CoordinationStore on top of Redis,
// using a Lua script (EVAL) for the refill-and-withdraw and an optimistic
// WATCH/MULTI transaction for circuit-breaker transitions, so both are
// atomic across every worker process (spec.md §4.2, §4.3).
// Grounded on the queue/broker primitives in flyingrobots-go-redis-work-queue
// (other_examples), adapted from task-queue semantics to rate-limit and
// circuit-breaker state.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vasilev-labs/scrapecore/internal/core/domain"
	"github.com/vasilev-labs/scrapecore/internal/core/ports"
)

const (
	bucketKeyPrefix  = "scrapecore:bucket:"
	circuitKeyPrefix = "scrapecore:circuit:"
	scoreKeyPrefix   = "scrapecore:score:"
	jobKeyPrefix     = "scrapecore:job:"
)

// refillScript atomically advances a token bucket and withdraws one token
// if available. KEYS[1] = bucket key. ARGV: capacity, refillPerSecond,
// nowUnixNano.
var refillScript = goredis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refillPerSecond = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local tokens = capacity
local lastRefill = now

local existing = redis.call("HMGET", key, "tokens", "last_refill")
if existing[1] then
	tokens = tonumber(existing[1])
	lastRefill = tonumber(existing[2])
	local elapsed = (now - lastRefill) / 1e9
	if elapsed > 0 then
		tokens = math.min(capacity, tokens + elapsed * refillPerSecond)
	end
end

local allowed = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
end

redis.call("HMSET", key, "tokens", tostring(tokens), "last_refill", tostring(now))
redis.call("EXPIRE", key, 3600)

return {allowed, tostring(tokens)}
`)

// Store implements ports.CoordinationStore against a single Redis instance.
type Store struct {
	client *goredis.Client
}

// New dials Redis at addr and returns a ready Store.
func New(addr, password string, db int, dialTimeout time.Duration) *Store {
	return &Store{
		client: goredis.NewClient(&goredis.Options{
			Addr:        addr,
			Password:    password,
			DB:          db,
			DialTimeout: dialTimeout,
		}),
	}
}

func (s *Store) RefillBucket(ctx context.Context, domainKey string, capacity, refillPerSecond float64, now time.Time) (bool, float64, error) {
	key := bucketKeyPrefix + domainKey
	res, err := refillScript.Run(ctx, s.client, []string{key}, capacity, refillPerSecond, now.UnixNano()).Result()
	if err != nil {
		return false, 0, &domain.StoreError{Op: "refill_bucket", Cause: err}
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return false, 0, &domain.StoreError{Op: "refill_bucket", Cause: fmt.Errorf("unexpected script result %v", res)}
	}

	allowed := fmt.Sprintf("%v", vals[0]) == "1"
	var remaining float64
	_, _ = fmt.Sscanf(fmt.Sprintf("%v", vals[1]), "%f", &remaining)
	return allowed, remaining, nil
}

func (s *Store) GetCircuit(ctx context.Context, domainKey string) (domain.CircuitSnapshot, error) {
	key := circuitKeyPrefix + domainKey
	raw, err := s.client.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return domain.CircuitSnapshot{Domain: domainKey, State: domain.CircuitClosed}, nil
	}
	if err != nil {
		return domain.CircuitSnapshot{}, &domain.StoreError{Op: "get_circuit", Cause: err}
	}

	var snap domain.CircuitSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.CircuitSnapshot{}, &domain.StoreError{Op: "get_circuit", Cause: err}
	}
	return snap, nil
}

// RecordCircuitResult is implemented with an optimistic WATCH/MULTI loop
// rather than a Lua script, since the transition logic is plain Go in
// applyCircuitResult below (built on domain.CircuitSnapshot's ShouldOpen
// and ShouldProbe helpers).
func (s *Store) RecordCircuitResult(ctx context.Context, domainKey string, success bool, kind domain.BlockKind, now time.Time, cfg ports.CircuitConfig) (domain.CircuitSnapshot, error) {
	key := circuitKeyPrefix + domainKey

	var result domain.CircuitSnapshot
	txf := func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		snap := domain.CircuitSnapshot{Domain: domainKey, State: domain.CircuitClosed}
		if err == nil {
			if jerr := json.Unmarshal(raw, &snap); jerr != nil {
				return jerr
			}
		} else if err != goredis.Nil {
			return err
		}

		snap = applyCircuitResult(snap, success, kind, now, cfg)

		encoded, err := json.Marshal(snap)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			pipe.Set(ctx, key+":last_block", string(snap.LastBlockKind), 0)
			return nil
		})
		result = snap
		return err
	}

	if err := s.client.Watch(ctx, txf, key); err != nil {
		return domain.CircuitSnapshot{}, &domain.StoreError{Op: "record_circuit_result", Cause: err}
	}
	return result, nil
}

func applyCircuitResult(snap domain.CircuitSnapshot, success bool, kind domain.BlockKind, now time.Time, cfg ports.CircuitConfig) domain.CircuitSnapshot {
	if success {
		snap.LastBlockKind = ""
	} else {
		snap.LastBlockKind = kind
	}

	switch snap.State {
	case domain.CircuitClosed:
		if success {
			snap.ConsecutiveFails = 0
		} else {
			snap.ConsecutiveFails++
			if snap.ShouldOpen(cfg.FailureThreshold) {
				snap.State = domain.CircuitOpen
				snap.OpenedAt = now
			}
		}
	case domain.CircuitOpen:
		if !snap.ShouldProbe(cfg.CooldownPeriod, now) {
			break
		}
		// The cooldown has elapsed, so this result is the outcome of the
		// trial request Allow let through: apply it as a HALF_OPEN probe.
		snap.State = domain.CircuitHalfOpen
		snap.HalfOpenProbes = 0
		fallthrough
	case domain.CircuitHalfOpen:
		snap.HalfOpenProbes++
		if success {
			snap.State = domain.CircuitClosed
			snap.ConsecutiveFails = 0
			snap.HalfOpenProbes = 0
		} else {
			snap.State = domain.CircuitOpen
			snap.OpenedAt = now
			snap.HalfOpenProbes = 0
		}
	}
	return snap
}

func (s *Store) ResetCircuit(ctx context.Context, domainKey string) error {
	snap := domain.CircuitSnapshot{Domain: domainKey, State: domain.CircuitClosed}
	encoded, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, circuitKeyPrefix+domainKey, encoded, 0).Err(); err != nil {
		return &domain.StoreError{Op: "reset_circuit", Cause: err}
	}
	return nil
}

func (s *Store) GetProxyScore(ctx context.Context, key string) (domain.ProxyScore, error) {
	raw, err := s.client.Get(ctx, scoreKeyPrefix+key).Bytes()
	if err == goredis.Nil {
		return domain.NewProxyScore(key), nil
	}
	if err != nil {
		return domain.ProxyScore{}, &domain.StoreError{Op: "get_proxy_score", Cause: err}
	}
	var score domain.ProxyScore
	if err := json.Unmarshal(raw, &score); err != nil {
		return domain.ProxyScore{}, &domain.StoreError{Op: "get_proxy_score", Cause: err}
	}
	return score, nil
}

func (s *Store) PutProxyScore(ctx context.Context, score domain.ProxyScore) error {
	encoded, err := json.Marshal(score)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, scoreKeyPrefix+score.Key, encoded, 0).Err(); err != nil {
		return &domain.StoreError{Op: "put_proxy_score", Cause: err}
	}
	return nil
}

func (s *Store) PutJob(ctx context.Context, job domain.ScrapeJob) error {
	encoded, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, jobKeyPrefix+job.ID, encoded, 24*time.Hour).Err(); err != nil {
		return &domain.StoreError{Op: "put_job", Cause: err}
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (domain.ScrapeJob, error) {
	raw, err := s.client.Get(ctx, jobKeyPrefix+id).Bytes()
	if err == goredis.Nil {
		return domain.ScrapeJob{}, domain.ErrJobNotFound
	}
	if err != nil {
		return domain.ScrapeJob{}, &domain.StoreError{Op: "get_job", Cause: err}
	}
	var job domain.ScrapeJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return domain.ScrapeJob{}, &domain.StoreError{Op: "get_job", Cause: err}
	}
	return job, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
