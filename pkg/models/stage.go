package models

// Names of the fixed analysis stages, in pipeline order.
const (
	StageVerification             = "verification"
	StageFinancialAnalysis        = "financial_analysis"
	StageInvestmentRecommendation = "investment_recommendation"
	StageRiskAssessment           = "risk_assessment"
)

const (
	StageStatusSuccess = "success"
	StageStatusFailure = "failure"
)

// StageResult is the output of one analysis stage. Results are appended to a
// job in execution order and never reordered or removed.
type StageResult struct {
	Stage  string         `json:"stage"`
	Status string         `json:"status"`
	Output map[string]any `json:"output,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Failed reports whether the stage could not produce a usable result.
func (r StageResult) Failed() bool {
	return r.Status == StageStatusFailure
}

// ReportSection is one stage's contribution to the final report.
type ReportSection struct {
	Stage  string         `json:"stage"`
	Output map[string]any `json:"output"`
}

// Report aggregates all successful stage outputs, preserving pipeline order.
// Sections are a slice rather than a map so the order survives JSON encoding.
type Report struct {
	Query    string          `json:"query,omitempty"`
	Provider string          `json:"provider"`
	Model    string          `json:"model"`
	Sections []ReportSection `json:"sections"`
}
