package model

// DataCategory is the kind of live data a claim depends on.
type DataCategory string

const (
	CategoryMarket  DataCategory = "market"
	CategoryCrypto  DataCategory = "crypto"
	CategoryFX      DataCategory = "fx"
	CategoryWeather DataCategory = "weather"
	CategoryTime    DataCategory = "time"
	CategoryGeneral DataCategory = "general"
)

// VerificationNeed is the Verification Classifier output.
type VerificationNeed struct {
	Required   bool           `json:"required"`
	Reasons    []string       `json:"reasons,omitempty"`
	Stakes     Stakes         `json:"stakes"`
	Categories []DataCategory `json:"categories,omitempty"`
	// Zones holds the time zones or places named by a time query.
	Zones []string `json:"zones,omitempty"`
}

// HasCategory reports whether c was detected.
func (n VerificationNeed) HasCategory(c DataCategory) bool {
	for _, have := range n.Categories {
		if have == c {
			return true
		}
	}
	return false
}

// VerificationStatus is the outcome of live-data verification.
type VerificationStatus string

const (
	StatusVerified VerificationStatus = "verified"
	StatusDegraded VerificationStatus = "degraded"
	StatusSkipped  VerificationStatus = "skipped"
	StatusBlocked  VerificationStatus = "blocked"
)

// Confidence in the data backing a response.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
	ConfidenceNone   Confidence = "none"
)

// VerificationPlan is attached to a response and bounds what it may claim.
type VerificationPlan struct {
	Status                       VerificationStatus `json:"status"`
	Confidence                   Confidence         `json:"confidence"`
	NumericPrecisionAllowed      bool               `json:"numeric_precision_allowed"`
	ActionRecommendationsAllowed bool               `json:"action_recommendations_allowed"`
	FreshnessWarning             string             `json:"freshness_warning,omitempty"`
	Sources                      []string           `json:"sources,omitempty"`
}

// SkippedPlan is the plan for messages that need no verification.
func SkippedPlan() VerificationPlan {
	return VerificationPlan{
		Status:                       StatusSkipped,
		Confidence:                   ConfidenceHigh,
		NumericPrecisionAllowed:      true,
		ActionRecommendationsAllowed: true,
	}
}

// UserOption is a choice offered when verification blocks a response.
type UserOption string

const (
	OptionEnableWeb         UserOption = "enable_web"
	OptionProvideSource     UserOption = "provide_source"
	OptionProceedUnverified UserOption = "proceed_unverified"
	OptionStop              UserOption = "stop"
)

// BlockedOptions is the fixed menu offered on a blocking verification outcome.
func BlockedOptions() []UserOption {
	return []UserOption{OptionEnableWeb, OptionProvideSource, OptionProceedUnverified, OptionStop}
}
