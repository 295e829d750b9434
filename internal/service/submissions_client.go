package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/mirelo-edu/coursegate-api/internal/structure"
)

// submissionsClient resolves scores from the external submissions service
// over HTTP. A 404 means the service holds no score for the block and the
// course-scoped store should be consulted instead.
type submissionsClient struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewSubmissionsClient builds a SubmissionsScoreProvider against the
// submissions service. Pass a nil provider to the score reader instead
// when no service is configured.
func NewSubmissionsClient(baseURL string, timeout time.Duration, logger zerolog.Logger) SubmissionsScoreProvider {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &submissionsClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "submissions_client").Logger(),
	}
}

type submissionsScorePayload struct {
	Earned           float64    `json:"earned"`
	Possible         float64    `json:"possible"`
	FirstAttemptedAt *time.Time `json:"first_attempted_at"`
}

func (s *submissionsClient) GetSubmissionsScore(ctx context.Context, userID uint, usageKey structure.BlockID) (*SubmissionsScore, error) {
	endpoint := fmt.Sprintf("%s/api/v1/scores?%s", s.baseURL, url.Values{
		"user_id":   {strconv.FormatUint(uint64(userID), 10)},
		"usage_key": {usageKey.String()},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submissions request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("submissions request: unexpected status %d", resp.StatusCode)
	}

	var payload submissionsScorePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("submissions response: %w", err)
	}

	return &SubmissionsScore{
		Earned:           payload.Earned,
		Possible:         payload.Possible,
		FirstAttemptedAt: payload.FirstAttemptedAt,
	}, nil
}
