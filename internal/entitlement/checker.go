// internal/entitlement/checker.go
package entitlement

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"decision-advisor/internal/common/logger"
)

var ErrCheckFailed = errors.New("ENTITLEMENT_CHECK_FAILED")

// Decision is the outcome of an entitlement check. Reason is only set on a
// deny.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Tier    string `json:"tier,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// entitlement mirrors one user_entitlements row.
type entitlement struct {
	UserID    string `json:"userId"`
	Tier      string `json:"tier"`
	ExpiresAt string `json:"expiresAt"`
	IsValid   bool   `json:"isValid"`
}

var validTiers = map[string]bool{
	"free": true, "basic": true, "premium": true, "enterprise": true,
}

// deeperTiers may use the go-deeper re-entry.
var deeperTiers = map[string]bool{
	"premium": true, "enterprise": true,
}

// Checker decides whether a user may run a given conversation action. Reads
// go through Redis with a short TTL so the hot path rarely touches Postgres.
type Checker struct {
	db       *sql.DB
	redis    *redis.Client
	cacheTTL time.Duration
	logger   logger.Logger
}

func NewChecker(db *sql.DB, redisClient *redis.Client, cacheTTL time.Duration, log logger.Logger) *Checker {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Checker{
		db:       db,
		redis:    redisClient,
		cacheTTL: cacheTTL,
		logger:   log.WithFields(map[string]interface{}{"component": "entitlement"}),
	}
}

// MayProceed checks whether userID may run action. A deny is a Decision with
// Allowed=false and a reason; an error means the check itself could not run
// and is retryable.
func (c *Checker) MayProceed(ctx context.Context, userID, action string) (*Decision, error) {
	ent, err := c.lookup(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ent == nil {
		return &Decision{Allowed: false, Reason: "no entitlement on record"}, nil
	}

	if !ent.IsValid || !validTiers[ent.Tier] {
		return &Decision{Allowed: false, Tier: ent.Tier, Reason: "entitlement is not valid"}, nil
	}

	if ent.ExpiresAt != "" {
		exp, parseErr := time.Parse(time.RFC3339, ent.ExpiresAt)
		if parseErr != nil {
			c.logger.Debug("unparseable entitlement expiry, skipping expiry check", map[string]interface{}{
				"userId":    userID,
				"expiresAt": ent.ExpiresAt,
			})
		} else if time.Now().After(exp) {
			return &Decision{Allowed: false, Tier: ent.Tier, Reason: "entitlement has expired"}, nil
		}
	}

	if action == "go_deeper" && !deeperTiers[ent.Tier] {
		return &Decision{Allowed: false, Tier: ent.Tier, Reason: "going deeper requires a premium tier"}, nil
	}

	return &Decision{Allowed: true, Tier: ent.Tier}, nil
}

func (c *Checker) lookup(ctx context.Context, userID string) (*entitlement, error) {
	cacheKey := "ent:" + userID
	if c.redis != nil {
		if val, err := c.redis.Get(ctx, cacheKey).Result(); err == nil {
			var ent entitlement
			if err := json.Unmarshal([]byte(val), &ent); err == nil {
				return &ent, nil
			}
		}
	}

	var ent entitlement
	query := `SELECT user_id, tier, expires_at, is_valid FROM user_entitlements WHERE user_id = $1`
	err := c.db.QueryRowContext(ctx, query, userID).Scan(
		&ent.UserID, &ent.Tier, &ent.ExpiresAt, &ent.IsValid,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrCheckFailed, err)
	}

	if c.redis != nil {
		data, _ := json.Marshal(ent)
		if err := c.redis.Set(ctx, cacheKey, data, c.cacheTTL).Err(); err != nil {
			c.logger.Warn("entitlement cache write failed", map[string]interface{}{
				"userId": userID,
				"error":  err.Error(),
			})
		}
	}

	return &ent, nil
}
