package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/sprint-weather-dashboard/internal/models"
	"github.com/kjstillabower/sprint-weather-dashboard/internal/upstream"
)

var (
	windowStart = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)
)

// fakeModel answers every chat completion with content and captures the request.
type fakeModel struct {
	content string
	status  int
	calls   int32
	lastReq openaiRequest
}

type openaiRequest struct {
	Model          string `json:"model"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func (f *fakeModel) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.calls, 1)
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&f.lastReq)
		w.Header().Set("Content-Type", "application/json")
		if f.status != 0 {
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1717228800,
			"model":   f.lastReq.Model,
			"choices": []map[string]interface{}{{
				"index":         0,
				"message":       map[string]interface{}{"role": "assistant", "content": f.content},
				"finish_reason": "stop",
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func eventRequest() Request {
	return Request{
		Mode:           models.SuggestionModeEvent,
		Location:       "Visakhapatnam, India",
		EarliestTime:   windowStart,
		LatestTime:     windowEnd,
		WeatherSummary: "Current conditions: 31.0°C",
	}
}

func TestOpenAIAdvisor_Suggest_Event(t *testing.T) {
	f := &fakeModel{content: `{"suggestedStartTime":"2024-06-01T10:00:00Z","riskSummary":"Low rain risk. Provide shaded water stations."}`}
	a := NewOpenAIAdvisor(Options{APIKey: "ai-key", BaseURL: f.server(t).URL})

	got, err := a.Suggest(context.Background(), eventRequest())
	require.NoError(t, err)

	assert.Equal(t, models.SuggestionModeEvent, got.Mode)
	assert.Equal(t, "Visakhapatnam, India", got.Location)
	assert.True(t, got.SuggestedStartTime.Equal(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)))
	assert.Contains(t, got.RiskSummary, "water stations")

	assert.Equal(t, DefaultModel, f.lastReq.Model)
	assert.Equal(t, "json_object", f.lastReq.ResponseFormat.Type)
	require.Len(t, f.lastReq.Messages, 1)
	prompt := f.lastReq.Messages[0].Content
	assert.Contains(t, prompt, "Public Safety Analyst")
	assert.Contains(t, prompt, "Location: Visakhapatnam, India")
	assert.Contains(t, prompt, "2024-06-01T09:00:00Z")
	assert.Contains(t, prompt, "Current conditions: 31.0°C")
}

func TestOpenAIAdvisor_Suggest_CommutePrompt(t *testing.T) {
	f := &fakeModel{content: "```json\n{\"suggestedStartTime\":\"2024-06-01T15:30:00+05:30\",\"riskSummary\":\"Leave before the storm.\"}\n```"}
	a := NewOpenAIAdvisor(Options{APIKey: "ai-key", BaseURL: f.server(t).URL, Model: "gpt-4o-mini"})

	req := eventRequest()
	req.Mode = models.SuggestionModeCommute
	req.CommuteDurationMinutes = 45
	got, err := a.Suggest(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, models.SuggestionModeCommute, got.Mode)
	assert.True(t, got.SuggestedStartTime.Equal(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, "gpt-4o-mini", f.lastReq.Model)
	assert.Contains(t, f.lastReq.Messages[0].Content, "45 minute commute")
}

func TestOpenAIAdvisor_Suggest_InvalidAnswers(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "I think 10am is best."},
		{"bad timestamp", `{"suggestedStartTime":"10am","riskSummary":"ok"}`},
		{"before window", `{"suggestedStartTime":"2024-06-01T08:59:00Z","riskSummary":"ok"}`},
		{"after window", `{"suggestedStartTime":"2024-06-01T15:01:00Z","riskSummary":"ok"}`},
		{"empty summary", `{"suggestedStartTime":"2024-06-01T10:00:00Z","riskSummary":"  "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeModel{content: tt.content}
			a := NewOpenAIAdvisor(Options{APIKey: "ai-key", BaseURL: f.server(t).URL})
			_, err := a.Suggest(context.Background(), eventRequest())
			assert.ErrorIs(t, err, upstream.ErrInvalidSuggestion)
		})
	}
}

func TestOpenAIAdvisor_Suggest_LocalTimeUsesZone(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	tests := []struct {
		name    string
		content string
		zone    *time.Location
		want    time.Time
	}{
		{"seconds in location zone", `{"suggestedStartTime":"2024-06-01T15:30:00","riskSummary":"ok"}`, kolkata, time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)},
		{"minutes in location zone", `{"suggestedStartTime":"2024-06-01T16:00","riskSummary":"ok"}`, kolkata, time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC)},
		{"no zone means UTC", `{"suggestedStartTime":"2024-06-01T11:00:00","riskSummary":"ok"}`, nil, time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeModel{content: tt.content}
			a := NewOpenAIAdvisor(Options{APIKey: "ai-key", BaseURL: f.server(t).URL})
			req := eventRequest()
			req.Zone = tt.zone
			got, err := a.Suggest(context.Background(), req)
			require.NoError(t, err)
			assert.True(t, got.SuggestedStartTime.Equal(tt.want), "got %v, want %v", got.SuggestedStartTime, tt.want)
		})
	}
}

func TestOpenAIAdvisor_Suggest_WindowBoundsInclusive(t *testing.T) {
	f := &fakeModel{content: `{"suggestedStartTime":"2024-06-01T15:00:00Z","riskSummary":"ok"}`}
	a := NewOpenAIAdvisor(Options{APIKey: "ai-key", BaseURL: f.server(t).URL})
	_, err := a.Suggest(context.Background(), eventRequest())
	assert.NoError(t, err)
}

func TestOpenAIAdvisor_Suggest_MissingAPIKey(t *testing.T) {
	f := &fakeModel{}
	a := NewOpenAIAdvisor(Options{BaseURL: f.server(t).URL})
	_, err := a.Suggest(context.Background(), eventRequest())
	assert.ErrorIs(t, err, upstream.ErrMissingAPIKey)
	assert.Zero(t, atomic.LoadInt32(&f.calls))
}

func TestOpenAIAdvisor_Suggest_ProviderErrors(t *testing.T) {
	tests := []struct {
		status  int
		wantErr error
	}{
		{http.StatusUnauthorized, upstream.ErrInvalidAPIKey},
		{http.StatusTooManyRequests, upstream.ErrRateLimited},
		{http.StatusInternalServerError, upstream.ErrUpstreamFailure},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			f := &fakeModel{status: tt.status}
			a := NewOpenAIAdvisor(Options{APIKey: "ai-key", BaseURL: f.server(t).URL})
			_, err := a.Suggest(context.Background(), eventRequest())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestOpenAIAdvisor_BreakerOpens(t *testing.T) {
	f := &fakeModel{status: http.StatusBadGateway}
	a := NewOpenAIAdvisor(Options{APIKey: "ai-key", BaseURL: f.server(t).URL, BreakerFailures: 2})

	for i := 0; i < 2; i++ {
		_, _ = a.Suggest(context.Background(), eventRequest())
	}
	assert.Equal(t, "open", a.BreakerState())

	calls := atomic.LoadInt32(&f.calls)
	_, err := a.Suggest(context.Background(), eventRequest())
	assert.ErrorIs(t, err, upstream.ErrCircuitOpen)
	assert.Equal(t, calls, atomic.LoadInt32(&f.calls))
}

func TestSummarizeWindow(t *testing.T) {
	uv := 6.2
	data := models.WeatherData{
		Current: models.CurrentWeather{
			LocationName:          "Visakhapatnam",
			Temperature:           31.2,
			Description:           "Scattered Clouds",
			Humidity:              70,
			PrecipitationChance:   20,
			WindSpeed:             4.1,
			WindDirection:         "SW",
			Timestamp:             windowStart.Add(-2 * time.Hour).UnixMilli(),
			TimezoneOffsetSeconds: 19800,
			LocationTimezoneName:  "Asia/Kolkata",
			UVIndex:               &uv,
		},
	}
	for i := 0; i < 8; i++ {
		data.Hourly = append(data.Hourly, models.HourlyForecast{
			Time:                windowStart.Add(time.Duration(3*i-3) * time.Hour).UnixMilli(),
			Temperature:         30 + float64(i),
			Description:         "Light Rain",
			PrecipitationChance: 10 * i,
		})
	}

	got := SummarizeWindow(data, windowStart, windowEnd)
	lines := strings.Split(strings.TrimSpace(got), "\n")

	// Current line plus the 09:00, 12:00 and 15:00 UTC entries.
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "Visakhapatnam")
	assert.Contains(t, lines[0], "UV index 6.2")
	assert.Contains(t, lines[1], "2024-06-01 14:30 IST")
	assert.Contains(t, lines[3], "2024-06-01 20:30 IST: 33.0°C")

	empty := SummarizeWindow(models.WeatherData{}, windowStart, windowEnd)
	assert.Contains(t, empty, "No hourly forecast entries")
}
