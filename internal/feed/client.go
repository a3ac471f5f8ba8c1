package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"gridirondb/internal/metrics"
	"gridirondb/internal/models"
)

// Client is the HTTP implementation of Source.
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	rateLimiter chan struct{} // Rate limiting semaphore
	maxRetries  int
	retryDelay  time.Duration
}

// NewClient creates a feed client. Concurrency against the provider is capped
// at 20 in-flight requests regardless of how many games poll at once.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	rateLimiter := make(chan struct{}, 20)
	for i := 0; i < 20; i++ {
		rateLimiter <- struct{}{}
	}

	return &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		rateLimiter: rateLimiter,
		maxRetries:  3,
		retryDelay:  1 * time.Second,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// get performs a GET against the feed with rate limiting and retry on
// transient failures. Transport and server-side failures come back wrapping
// ErrUnavailable.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	fullURL := fmt.Sprintf("%s/%s", c.baseURL, path)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 1s, 2s, 4s
			backoff := c.retryDelay * time.Duration(1<<uint(attempt-1))
			log.Info().
				Str("url", fullURL).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Retrying feed request after backoff")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.rateLimiter:
		}

		body, retryable, err := c.doOnce(ctx, fullURL, attempt)
		c.rateLimiter <- struct{}{}

		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}

	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, fullURL string, attempt int) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "gridirondb/1.0")

	log.Debug().
		Str("url", fullURL).
		Int("attempt", attempt+1).
		Msg("Making feed request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.FeedRequests.WithLabelValues("error").Inc()
		return nil, true, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		metrics.FeedRequests.WithLabelValues("error").Inc()
		return nil, true, fmt.Errorf("%w: reading response: %w", ErrUnavailable, err)
	}

	metrics.FeedRequests.WithLabelValues(fmt.Sprintf("%d", resp.StatusCode)).Inc()

	switch resp.StatusCode {
	case http.StatusOK:
		log.Debug().
			Str("url", fullURL).
			Int("size", len(body)).
			Msg("Feed request successful")
		return body, false, nil

	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		log.Warn().
			Str("url", fullURL).
			Int("status", resp.StatusCode).
			Int("attempt", attempt+1).
			Msg("Received retryable feed error")
		return nil, true, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(body))

	case http.StatusUnauthorized, http.StatusForbidden:
		// Bad credentials never fix themselves; surface without the
		// transient sentinel so the operator sees it.
		return nil, false, fmt.Errorf("feed authentication failed (status %d): %s", resp.StatusCode, string(body))

	default:
		return nil, false, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}
}

// CurrentState reports where the league calendar stands.
func (c *Client) CurrentState(ctx context.Context) (*CurrentState, error) {
	body, err := c.get(ctx, "state/json/current")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch current state: %w", err)
	}

	var state CurrentState
	if err := json.Unmarshal(body, &state); err != nil {
		return nil, fmt.Errorf("%w: decoding current state: %v", ErrMalformed, err)
	}
	phase, err := models.ParseSeasonPhase(string(state.SeasonPhase))
	if err != nil {
		return nil, fmt.Errorf("%w: current state: %v", ErrMalformed, err)
	}
	state.SeasonPhase = phase
	if state.SeasonYear == 0 {
		return nil, fmt.Errorf("%w: current state missing season year", ErrMalformed)
	}

	return &state, nil
}

// Schedule lists the published games for one week.
func (c *Client) Schedule(ctx context.Context, seasonYear int, phase models.SeasonPhase, week int) ([]*ScheduledGame, error) {
	path := fmt.Sprintf("schedule/json/%d/%s/%d", seasonYear, phase, week)
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch schedule: %w", err)
	}

	var games []*ScheduledGame
	if err := json.Unmarshal(body, &games); err != nil {
		return nil, fmt.Errorf("%w: decoding schedule: %v", ErrMalformed, err)
	}
	for _, g := range games {
		if g.GameID == "" || g.HomeTeam == "" || g.AwayTeam == "" {
			return nil, fmt.Errorf("%w: schedule row missing game_id or teams", ErrMalformed)
		}
		p, err := models.ParseSeasonPhase(string(g.SeasonPhase))
		if err != nil {
			return nil, fmt.Errorf("%w: schedule row %s: %v", ErrMalformed, g.GameID, err)
		}
		g.SeasonPhase = p
	}

	return games, nil
}

// GameSnapshot fetches the full current snapshot of one game.
func (c *Client) GameSnapshot(ctx context.Context, gameID string) (*GameSnapshot, error) {
	path := fmt.Sprintf("games/json/%s", url.PathEscape(gameID))
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch game %s: %w", gameID, err)
	}

	var snap GameSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("%w: decoding game %s: %v", ErrMalformed, gameID, err)
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}

	return &snap, nil
}

// TeamRoster fetches a team's current roster.
func (c *Client) TeamRoster(ctx context.Context, teamID string) (*RosterSnapshot, error) {
	path := fmt.Sprintf("rosters/json/%s", url.PathEscape(teamID))
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roster for %s: %w", teamID, err)
	}

	var roster RosterSnapshot
	if err := json.Unmarshal(body, &roster); err != nil {
		return nil, fmt.Errorf("%w: decoding roster for %s: %v", ErrMalformed, teamID, err)
	}
	if roster.TeamID == "" {
		roster.TeamID = teamID
	}
	for _, p := range roster.Players {
		if p.PlayerID == "" || p.FullName == "" {
			return nil, fmt.Errorf("%w: roster for %s has a player without id or name", ErrMalformed, teamID)
		}
	}

	return &roster, nil
}
