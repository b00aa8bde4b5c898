package models

import "time"

const (
	SuggestionModeEvent   = "event"
	SuggestionModeCommute = "commute"
)

// SuggestionRequest asks for the best start time inside [EarliestTime, LatestTime].
// Either Location or Lat/Lng identifies where the event or commute happens.
type SuggestionRequest struct {
	Mode                   string    `json:"mode" validate:"required,oneof=event commute"`
	Location               string    `json:"location" validate:"required_without=Lat,max=200"`
	Lat                    *float64  `json:"lat,omitempty" validate:"omitempty,latitude"`
	Lng                    *float64  `json:"lng,omitempty" validate:"omitempty,longitude"`
	EarliestTime           time.Time `json:"earliestTime" validate:"required"`
	LatestTime             time.Time `json:"latestTime" validate:"required,gtfield=EarliestTime"`
	CommuteDurationMinutes int       `json:"commuteDurationMinutes,omitempty" validate:"required_if=Mode commute,gte=0,max=720"`
}

// Suggestion is the advisor's answer.
type Suggestion struct {
	Mode               string    `json:"mode"`
	Location           string    `json:"location"`
	SuggestedStartTime time.Time `json:"suggestedStartTime"`
	RiskSummary        string    `json:"riskSummary"`
}
