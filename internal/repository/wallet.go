package repository

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"ludum/internal/model"
	"ludum/internal/service"
)

//go:embed topup.lua
var topUpLuaScript string

//go:embed spend.lua
var spendLuaScript string

const (
	TopicTopUpCompleted = "topups.completed"
	TopicSpendCompleted = "spends.completed"
)

var ErrCacheMiss = errors.New("balance not found in cache")

const idemTTL = 24 * time.Hour

// WalletRepo keeps the hot balance and active holds in Redis, mutated by
// Lua scripts so a spend sees a consistent spendable figure. Postgres is
// the authoritative store, synced by the transaction worker off the bus.
type WalletRepo struct {
	redisClient *redis.Client
	dbPool      *pgxpool.Pool
	bus         MessageBus
}

func NewWalletRepo(rdb *redis.Client, db *pgxpool.Pool, bus MessageBus) *WalletRepo {
	return &WalletRepo{redisClient: rdb, dbPool: db, bus: bus}
}

// TopUp credits a settled funding amount and records its hold, if any.
// A cache miss warms the balance from Postgres and retries, the same way
// a cold spend does.
func (r *WalletRepo) TopUp(ctx context.Context, event model.TopUpEvent) (model.WalletBalance, error) {
	bal, err := r.runTopUp(ctx, event)
	if errors.Is(err, ErrCacheMiss) {
		if err := r.warmUpCache(ctx, event.AccountID, true); err != nil {
			return model.WalletBalance{}, err
		}
		bal, err = r.runTopUp(ctx, event)
	}
	if err != nil {
		return model.WalletBalance{}, err
	}

	if r.bus != nil {
		data, _ := json.Marshal(event)
		if err := r.bus.Publish(TopicTopUpCompleted, data); err != nil {
			slog.Error("wallet: failed to publish topup event", "error", err, "key", event.Key)
		}
	}
	return bal, nil
}

func (r *WalletRepo) runTopUp(ctx context.Context, event model.TopUpEvent) (model.WalletBalance, error) {
	keys := []string{balanceKey(event.AccountID), idemKeyFor("topup", event.Key), holdsKey(event.AccountID)}

	member := ""
	score := int64(0)
	if event.Hold != nil {
		member = encodeHold(*event.Hold)
		score = event.Hold.ReleaseAt.Unix()
	}
	args := []interface{}{cents(event.Amount), member, score, int64(idemTTL.Seconds())}

	status, _, err := r.evalStatus(ctx, topUpLuaScript, keys, args)
	if err != nil {
		return model.WalletBalance{}, err
	}
	switch status {
	case 1:
		return r.Balance(ctx, event.AccountID, event.CreatedAt)
	case 0:
		return model.WalletBalance{}, service.ErrAlreadyProcessed
	case -1:
		return model.WalletBalance{}, ErrCacheMiss
	default:
		return model.WalletBalance{}, fmt.Errorf("unknown status from topup script: %d", status)
	}
}

// Spend debits the spendable portion of the balance. Cold accounts are
// warmed from Postgres and the script is retried once.
func (r *WalletRepo) Spend(ctx context.Context, accountID string, amount decimal.Decimal, now time.Time, idemKey string) (model.WalletBalance, error) {
	// A keyless request still needs a distinct key: the dedup slot in
	// Redis and the transactions row in Postgres are both keyed by it.
	if idemKey == "" {
		idemKey = uuid.NewString()
	}
	bal, err := r.runSpend(ctx, accountID, amount, now, idemKey)
	if errors.Is(err, ErrCacheMiss) {
		slog.Info("wallet: cold start, warming cache from postgres", "account_id", accountID)
		if err := r.warmUpCache(ctx, accountID, false); err != nil {
			return model.WalletBalance{}, err
		}
		bal, err = r.runSpend(ctx, accountID, amount, now, idemKey)
	}
	if err != nil {
		return model.WalletBalance{}, err
	}

	if r.bus != nil {
		event := model.SpendEvent{
			AccountID:      accountID,
			Amount:         amount,
			IdempotencyKey: idemKey,
			CreatedAt:      now,
		}
		data, _ := json.Marshal(event)
		if err := r.bus.Publish(TopicSpendCompleted, data); err != nil {
			slog.Error("wallet: failed to publish spend event", "error", err, "key", idemKey)
		}
	}
	return bal, nil
}

func (r *WalletRepo) runSpend(ctx context.Context, accountID string, amount decimal.Decimal, now time.Time, idemKey string) (model.WalletBalance, error) {
	keys := []string{balanceKey(accountID), idemKeyFor("spend", idemKey), holdsKey(accountID)}
	args := []interface{}{cents(amount), now.Unix(), int64(idemTTL.Seconds())}

	status, _, err := r.evalStatus(ctx, spendLuaScript, keys, args)
	if err != nil {
		return model.WalletBalance{}, err
	}
	switch status {
	case 1:
		return r.Balance(ctx, accountID, now)
	case 0:
		return model.WalletBalance{}, service.ErrAlreadyProcessed
	case -1:
		return model.WalletBalance{}, ErrCacheMiss
	case -2:
		return model.WalletBalance{}, service.ErrInsufficientFunds
	default:
		return model.WalletBalance{}, fmt.Errorf("unknown status from spend script: %d", status)
	}
}

func (r *WalletRepo) evalStatus(ctx context.Context, script string, keys []string, args []interface{}) (int64, int64, error) {
	result, err := r.redisClient.Eval(ctx, script, keys, args...).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("error executing lua script: %w", err)
	}
	resArray, ok := result.([]interface{})
	if !ok || len(resArray) < 2 {
		return 0, 0, errors.New("unexpected response format from redis")
	}
	status, _ := resArray[0].(int64)
	value, _ := resArray[1].(int64)
	return status, value, nil
}

// Balance reads the snapshot from Redis, trimming released holds on the
// way.
func (r *WalletRepo) Balance(ctx context.Context, accountID string, now time.Time) (model.WalletBalance, error) {
	raw, err := r.redisClient.Get(ctx, balanceKey(accountID)).Result()
	if errors.Is(err, redis.Nil) {
		if err := r.warmUpCache(ctx, accountID, true); err != nil {
			return model.WalletBalance{}, err
		}
		raw, err = r.redisClient.Get(ctx, balanceKey(accountID)).Result()
		if err != nil {
			return model.WalletBalance{}, err
		}
	} else if err != nil {
		return model.WalletBalance{}, err
	}

	total, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return model.WalletBalance{}, fmt.Errorf("corrupt balance for %s: %w", accountID, err)
	}

	if err := r.redisClient.ZRemRangeByScore(ctx, holdsKey(accountID), "-inf", fmt.Sprintf("(%d", now.Unix())).Err(); err != nil {
		return model.WalletBalance{}, err
	}
	members, err := r.redisClient.ZRangeWithScores(ctx, holdsKey(accountID), 0, -1).Result()
	if err != nil {
		return model.WalletBalance{}, err
	}

	holds := make([]model.Hold, 0, len(members))
	heldCents := int64(0)
	for _, m := range members {
		member, _ := m.Member.(string)
		hold, err := decodeHold(accountID, member, int64(m.Score))
		if err != nil {
			slog.Warn("wallet: dropping corrupt hold member", "account_id", accountID, "member", member)
			continue
		}
		holds = append(holds, hold)
		heldCents += cents(hold.Amount)
	}

	return model.WalletBalance{
		AccountID: accountID,
		Total:     fromCents(total),
		Spendable: fromCents(total - heldCents),
		Holds:     holds,
	}, nil
}

// warmUpCache loads the balance and active holds from Postgres into
// Redis. With createMissing set, an account unknown to Postgres starts
// at zero instead of failing; the first top-up creates the account.
func (r *WalletRepo) warmUpCache(ctx context.Context, accountID string, createMissing bool) error {
	var balanceCents int64
	err := r.dbPool.QueryRow(ctx,
		`SELECT amount_cents FROM balances WHERE account_id = $1`, accountID,
	).Scan(&balanceCents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if !createMissing {
				return service.ErrNotFound
			}
			balanceCents = 0
		} else {
			return fmt.Errorf("database query error: %w", err)
		}
	}

	// Primary cache: no TTL.
	if err := r.redisClient.Set(ctx, balanceKey(accountID), balanceCents, 0).Err(); err != nil {
		return fmt.Errorf("failed to save balance to redis: %w", err)
	}

	rows, err := r.dbPool.Query(ctx,
		`SELECT id, amount_cents, created_at, release_at FROM holds
		 WHERE account_id = $1 AND release_at > NOW()`, accountID)
	if err != nil {
		return fmt.Errorf("database query error: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id          uuid.UUID
			amountCents int64
			createdAt   time.Time
			releaseAt   time.Time
		)
		if err := rows.Scan(&id, &amountCents, &createdAt, &releaseAt); err != nil {
			return err
		}
		hold := model.Hold{
			ID:        id,
			AccountID: accountID,
			Amount:    fromCents(amountCents),
			CreatedAt: createdAt,
			ReleaseAt: releaseAt,
		}
		if err := r.redisClient.ZAdd(ctx, holdsKey(accountID), redis.Z{
			Score:  float64(releaseAt.Unix()),
			Member: encodeHold(hold),
		}).Err(); err != nil {
			return err
		}
	}
	return rows.Err()
}

// SyncTopUp persists a confirmed top-up to Postgres. Keyed by the event
// key, so redelivered bus messages are no-ops.
func (r *WalletRepo) SyncTopUp(ctx context.Context, event model.TopUpEvent) error {
	tx, err := r.dbPool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO transactions (key, account_id, amount_cents, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key) DO NOTHING`,
		event.Key, event.AccountID, cents(event.Amount), event.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO balances (account_id, amount_cents)
		 VALUES ($1, $2)
		 ON CONFLICT (account_id) DO UPDATE SET amount_cents = balances.amount_cents + EXCLUDED.amount_cents`,
		event.AccountID, cents(event.Amount)); err != nil {
		return err
	}

	if event.Hold != nil {
		if _, err := tx.Exec(ctx,
			`INSERT INTO holds (id, account_id, amount_cents, created_at, release_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (id) DO NOTHING`,
			event.Hold.ID, event.AccountID, cents(event.Hold.Amount), event.Hold.CreatedAt, event.Hold.ReleaseAt); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// SyncSpend persists a confirmed spend to Postgres.
func (r *WalletRepo) SyncSpend(ctx context.Context, event model.SpendEvent) error {
	tx, err := r.dbPool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO transactions (key, account_id, amount_cents, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key) DO NOTHING`,
		"spend:"+event.IdempotencyKey, event.AccountID, -cents(event.Amount), event.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	if _, err := tx.Exec(ctx,
		`UPDATE balances SET amount_cents = amount_cents - $2 WHERE account_id = $1`,
		event.AccountID, cents(event.Amount)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func balanceKey(accountID string) string { return "balance:" + accountID }
func holdsKey(accountID string) string   { return "holds:" + accountID }

func idemKeyFor(op, key string) string { return "idem:" + op + ":" + key }

func cents(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).IntPart()
}

func fromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

// encodeHold packs a hold into a zset member; the release time lives in
// the score.
func encodeHold(h model.Hold) string {
	return fmt.Sprintf("%s|%d|%d", h.ID, cents(h.Amount), h.CreatedAt.Unix())
}

func decodeHold(accountID, member string, score int64) (model.Hold, error) {
	parts := strings.SplitN(member, "|", 3)
	if len(parts) != 3 {
		return model.Hold{}, fmt.Errorf("malformed hold member %q", member)
	}
	id, err := uuid.Parse(parts[0])
	if err != nil {
		return model.Hold{}, err
	}
	amountCents, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return model.Hold{}, err
	}
	createdAt, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return model.Hold{}, err
	}
	return model.Hold{
		ID:        id,
		AccountID: accountID,
		Amount:    fromCents(amountCents),
		CreatedAt: time.Unix(createdAt, 0).UTC(),
		ReleaseAt: time.Unix(score, 0).UTC(),
	}, nil
}
