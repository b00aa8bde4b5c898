// Package advisor asks a language model for the safest start time of an
// outdoor event or commute inside a weather window.
package advisor

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"github.com/kjstillabower/sprint-weather-dashboard/internal/models"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/observability"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/upstream"
)

const (
	// DefaultBaseURL is Gemini's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
	DefaultModel   = "gemini-2.0-flash"

	providerName = "openai"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.ParseFS(promptFS, "prompts/*.tmpl"))

// Request is one suggestion request. WeatherSummary is the text produced by
// SummarizeWindow for the same window.
type Request struct {
	Mode                   string
	Location               string
	EarliestTime           time.Time
	LatestTime             time.Time
	CommuteDurationMinutes int
	WeatherSummary         string
	// Zone interprets suggested times that carry no UTC offset. Nil means UTC.
	Zone *time.Location
}

// Advisor suggests a start time for a request.
type Advisor interface {
	Suggest(ctx context.Context, req Request) (models.Suggestion, error)
}

// Options configure an OpenAIAdvisor.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration

	// Breaker settings. Zero values use defaults.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// OpenAIAdvisor talks to any OpenAI-compatible chat completion API.
type OpenAIAdvisor struct {
	apiKey  string
	model   string
	timeout time.Duration
	client  *openai.Client
	breaker *gobreaker.CircuitBreaker
}

func NewOpenAIAdvisor(opts Options) *OpenAIAdvisor {
	cfg := openai.DefaultConfig(opts.APIKey)
	cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	breakerTimeout := opts.BreakerTimeout
	if breakerTimeout <= 0 {
		breakerTimeout = time.Minute
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "advisor",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.RecordCircuitBreakerTransition(name, breakerStateLabel(from), breakerStateLabel(to), breakerStateValue(to))
		},
	})

	return &OpenAIAdvisor{
		apiKey:  opts.APIKey,
		model:   model,
		timeout: timeout,
		client:  openai.NewClientWithConfig(cfg),
		breaker: breaker,
	}
}

// BreakerState reports the breaker state as "closed", "open" or "half_open".
func (a *OpenAIAdvisor) BreakerState() string {
	return breakerStateLabel(a.breaker.State())
}

type modelAnswer struct {
	SuggestedStartTime string `json:"suggestedStartTime"`
	RiskSummary        string `json:"riskSummary"`
}

// Suggest renders the prompt for req.Mode, calls the model and checks that
// the answer is a timestamp inside the requested window.
func (a *OpenAIAdvisor) Suggest(ctx context.Context, req Request) (models.Suggestion, error) {
	if a.apiKey == "" {
		return models.Suggestion{}, fmt.Errorf("advisor: %w", upstream.ErrMissingAPIKey)
	}
	prompt, err := renderPrompt(req)
	if err != nil {
		return models.Suggestion{}, err
	}

	content, err := a.complete(ctx, prompt)
	if err != nil {
		return models.Suggestion{}, err
	}
	return parseAnswer(req, content)
}

func (a *OpenAIAdvisor) complete(ctx context.Context, prompt string) (string, error) {
	result, err := a.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()

		start := time.Now()
		resp, err := a.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model: a.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
			Temperature:    0.2,
		})
		if err != nil {
			err = classify(err)
			observability.RecordUpstreamCall(providerName, statusLabel(err), time.Since(start))
			return nil, err
		}
		observability.RecordUpstreamCall(providerName, "success", time.Since(start))
		if len(resp.Choices) == 0 {
			return "", nil
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("advisor: %w: %v", upstream.ErrCircuitOpen, err)
		}
		observability.UpstreamErrorsTotal.WithLabelValues(providerName, string(upstream.CategorizeError(err))).Inc()
		return "", err
	}
	content, _ := result.(string)
	return content, nil
}

// classify wraps API errors with the upstream sentinel for their status.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		if sentinel := upstream.ErrorForStatus(apiErr.HTTPStatusCode); sentinel != nil {
			return fmt.Errorf("advisor: %w: HTTP %d: %v", sentinel, apiErr.HTTPStatusCode, err)
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		if sentinel := upstream.ErrorForStatus(reqErr.HTTPStatusCode); sentinel != nil {
			return fmt.Errorf("advisor: %w: HTTP %d: %v", sentinel, reqErr.HTTPStatusCode, err)
		}
	}
	return fmt.Errorf("advisor request failed: %w", err)
}

func statusLabel(err error) string {
	switch {
	case errors.Is(err, upstream.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, upstream.ErrUpstreamFailure):
		return "server_error"
	case errors.Is(err, upstream.ErrInvalidAPIKey), errors.Is(err, upstream.ErrLocationNotFound):
		return "client_error"
	default:
		return "error"
	}
}

type promptData struct {
	Location       string
	Earliest       string
	Latest         string
	Weather        string
	CommuteMinutes int
}

func renderPrompt(req Request) (string, error) {
	name := models.SuggestionModeEvent + ".tmpl"
	if req.Mode == models.SuggestionModeCommute {
		name = models.SuggestionModeCommute + ".tmpl"
	}
	var b strings.Builder
	err := prompts.ExecuteTemplate(&b, name, promptData{
		Location:       req.Location,
		Earliest:       req.EarliestTime.Format(time.RFC3339),
		Latest:         req.LatestTime.Format(time.RFC3339),
		Weather:        req.WeatherSummary,
		CommuteMinutes: req.CommuteDurationMinutes,
	})
	if err != nil {
		return "", fmt.Errorf("render %s prompt: %w", req.Mode, err)
	}
	return b.String(), nil
}

// parseAnswer decodes the model's JSON and enforces the window.
func parseAnswer(req Request, content string) (models.Suggestion, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var ans modelAnswer
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &ans); err != nil {
		return models.Suggestion{}, fmt.Errorf("%w: %v", upstream.ErrInvalidSuggestion, err)
	}
	start, err := parseStartTime(ans.SuggestedStartTime, req.Zone)
	if err != nil {
		return models.Suggestion{}, fmt.Errorf("%w: suggestedStartTime %q is not an ISO 8601 time", upstream.ErrInvalidSuggestion, ans.SuggestedStartTime)
	}
	if start.Before(req.EarliestTime) || start.After(req.LatestTime) {
		return models.Suggestion{}, fmt.Errorf("%w: %s is outside %s..%s", upstream.ErrInvalidSuggestion,
			start.Format(time.RFC3339), req.EarliestTime.Format(time.RFC3339), req.LatestTime.Format(time.RFC3339))
	}
	if strings.TrimSpace(ans.RiskSummary) == "" {
		return models.Suggestion{}, fmt.Errorf("%w: empty riskSummary", upstream.ErrInvalidSuggestion)
	}
	return models.Suggestion{
		Mode:               req.Mode,
		Location:           req.Location,
		SuggestedStartTime: start,
		RiskSummary:        strings.TrimSpace(ans.RiskSummary),
	}, nil
}

// localLayouts are ISO 8601 forms without an offset.
var localLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04"}

// parseStartTime accepts RFC 3339, or a local ISO time read in zone.
func parseStartTime(s string, zone *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	if zone == nil {
		zone = time.UTC
	}
	for _, layout := range localLayouts {
		if lt, lerr := time.ParseInLocation(layout, s, zone); lerr == nil {
			return lt, nil
		}
	}
	return time.Time{}, err
}

func breakerStateLabel(s gobreaker.State) string {
	switch s {
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

func breakerStateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
