// Package cache mirrors hot read paths into Redis: per-game live state and
// the current season calendar position. Storage in Postgres stays the source
// of truth; everything here is advisory and carries a TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gridirondb/internal/metrics"
	"gridirondb/internal/models"
)

const (
	// ScheduledGameTTL covers games cached before kickoff.
	ScheduledGameTTL = 24 * time.Hour
	// LiveGameTTL keeps in-progress state fresh without letting stale
	// entries outlive a broken pipeline for long.
	LiveGameTTL = 2 * time.Hour
	// FinalGameTTL serves the post-game read burst.
	FinalGameTTL = 6 * time.Hour
	// SeasonStateTTL outlives the poll interval by a wide margin.
	SeasonStateTTL = time.Hour
)

// SeasonState is the cached calendar position.
type SeasonState struct {
	SeasonYear  int                `json:"season_year"`
	SeasonPhase models.SeasonPhase `json:"season_phase"`
	Week        int                `json:"week"`
}

// Cache wraps a Redis client with the key layout used by the pipeline.
type Cache struct {
	client *redis.Client
}

// New connects to Redis and verifies the connection.
func New(addr, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// SetGameState caches the committed row for one game. TTL follows the
// lifecycle so final games age out on their own.
func (c *Cache) SetGameState(ctx context.Context, game *models.Game) error {
	data, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("failed to marshal game %s: %w", game.GameID, err)
	}

	key := fmt.Sprintf("game:%s:state", game.GameID)
	return c.client.Set(ctx, key, data, gameTTL(game)).Err()
}

// GameState reads a cached game. A miss returns (nil, nil).
func (c *Cache) GameState(ctx context.Context, gameID string) (*models.Game, error) {
	key := fmt.Sprintf("game:%s:state", gameID)

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.RecordCacheMiss()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached game %s: %w", gameID, err)
	}
	metrics.RecordCacheHit()

	var game models.Game
	if err := json.Unmarshal(data, &game); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached game %s: %w", gameID, err)
	}
	return &game, nil
}

// SetCurrentState caches the season calendar position.
func (c *Cache) SetCurrentState(ctx context.Context, year int, phase models.SeasonPhase, week int) error {
	data, err := json.Marshal(SeasonState{SeasonYear: year, SeasonPhase: phase, Week: week})
	if err != nil {
		return fmt.Errorf("failed to marshal season state: %w", err)
	}
	return c.client.Set(ctx, "season:current", data, SeasonStateTTL).Err()
}

// CurrentState reads the cached calendar position. A miss returns (nil, nil).
func (c *Cache) CurrentState(ctx context.Context) (*SeasonState, error) {
	data, err := c.client.Get(ctx, "season:current").Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.RecordCacheMiss()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached season state: %w", err)
	}
	metrics.RecordCacheHit()

	var state SeasonState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached season state: %w", err)
	}
	return &state, nil
}

// Health pings Redis.
func (c *Cache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the client.
func (c *Cache) Close() error {
	return c.client.Close()
}

func gameTTL(game *models.Game) time.Duration {
	switch game.Status {
	case models.StatusScheduled:
		return ScheduledGameTTL
	case models.StatusFinal:
		return FinalGameTTL
	default:
		return LiveGameTTL
	}
}
