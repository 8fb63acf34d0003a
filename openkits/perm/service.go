package perm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const (
	maxRetries     = 3
	retryDelay     = 1 * time.Second
	requestTimeout = 5 * time.Second
)

var (
	// ErrUserNotFound is returned if the roles service does not know the player.
	ErrUserNotFound = errors.New("user not found")
	// ErrServer is returned if the roles service failed the request.
	ErrServer = errors.New("server error")
)

// RoleSource returns the roles a player holds.
type RoleSource interface {
	RolesOfXUID(ctx context.Context, xuid string) ([]string, error)
}

// Service fetches the roles of players from an HTTP roles service. A GET of <url>/<xuid> returns a JSON
// array of role identifiers.
type Service struct {
	url string

	retries int
	delay   time.Duration

	client *http.Client
	log    *slog.Logger
}

// NewService ...
func NewService(log *slog.Logger, url string) *Service {
	return &Service{
		url:     url,
		retries: maxRetries,
		delay:   retryDelay,
		client: &http.Client{
			Timeout: requestTimeout,
		},
		log: log,
	}
}

// RolesOfXUID fetches the roles of the player with the XUID passed. Temporary failures are retried.
func (s *Service) RolesOfXUID(ctx context.Context, xuid string) ([]string, error) {
	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("fetch roles: %w", ctx.Err())
			case <-time.After(s.delay * time.Duration(attempt)):
			}
		}

		roles, retry, err := s.fetch(ctx, xuid)
		if err == nil {
			s.log.Debug("Fetched roles", "xuid", xuid, "roles", roles)
			return roles, nil
		}
		lastErr = err
		if !retry {
			return nil, err
		}
	}
	return nil, lastErr
}

// fetch makes a single request for the roles of a player. retry is true if the failure is worth
// another attempt.
func (s *Service) fetch(ctx context.Context, xuid string) (roles []string, retry bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s", s.url, xuid), nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, isTemporaryError(err), fmt.Errorf("request roles: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, true, fmt.Errorf("read response: %w", err)
		}
		if err = json.Unmarshal(body, &roles); err != nil {
			return nil, false, fmt.Errorf("parse roles: %w", err)
		}
		return roles, false, nil
	case http.StatusNotFound:
		return nil, false, ErrUserNotFound
	case http.StatusTooManyRequests:
		return nil, true, fmt.Errorf("rate limited: %w", ErrServer)
	default:
		return nil, resp.StatusCode >= 500, fmt.Errorf("server returned %d: %w", resp.StatusCode, ErrServer)
	}
}

// isTemporaryError ...
func isTemporaryError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Message returns the locale key of the message shown to a player whose roles could not be fetched.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrUserNotFound):
		return "perm.error.not_linked"
	case errors.Is(err, context.DeadlineExceeded):
		return "perm.error.timeout"
	default:
		return "perm.error.server"
	}
}
