package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/finsighthq/finsight/internal/ai/aierr"
	"github.com/finsighthq/finsight/pkg/models"
)

// maxPromptBytes caps how much document text is sent to the inference
// collaborator per stage.
const maxPromptBytes = 12000

const (
	stageTemperature = 0.3
	stageMaxTokens   = 1024
)

const (
	verifierPersona = "You are a meticulous financial document specialist with expertise in " +
		"regulatory compliance and financial reporting standards (GAAP/IFRS). You verify " +
		"document authenticity and extract key information."

	analystPersona = "You are a senior financial analyst with over 15 years of experience in " +
		"equity research and financial modeling. Your analysis is data-driven, thorough, and " +
		"references specific figures from the document."

	advisorPersona = "You are a certified investment advisor with extensive experience in " +
		"portfolio management and security analysis. Your recommendations are balanced and " +
		"based on thorough fundamental analysis."

	riskPersona = "You are a risk management specialist with over a decade of experience " +
		"identifying, measuring, and mitigating market, credit, and operational risks."
)

// runCompletion calls the provider and folds its failure modes into the
// stage contract: transient faults come back as errors, anything else as a
// failure StageResult.
func runCompletion(ctx context.Context, provider models.AIProvider, stage, system, prompt string) (string, *models.StageResult, error) {
	reply, err := provider.Complete(ctx, models.CompletionRequest{
		System:      system,
		Prompt:      prompt,
		Temperature: stageTemperature,
		MaxTokens:   stageMaxTokens,
	})
	if err != nil {
		if aierr.Transient(err) {
			return "", nil, err
		}
		res := failureResult(stage, fmt.Sprintf("inference failed: %v", err))
		return "", &res, nil
	}
	return reply, nil, nil
}

func failureResult(stage, msg string) models.StageResult {
	return models.StageResult{
		Stage:  stage,
		Status: models.StageStatusFailure,
		Error:  msg,
	}
}

func successResult(stage string, output map[string]any) models.StageResult {
	return models.StageResult{
		Stage:  stage,
		Status: models.StageStatusSuccess,
		Output: output,
	}
}

// priorOutput returns the output of an earlier stage by name, or nil.
func priorOutput(prior []models.StageResult, stage string) map[string]any {
	for _, r := range prior {
		if r.Stage == stage {
			return r.Output
		}
	}
	return nil
}

// truncate shortens s to maxBytes without splitting UTF-8 runes.
func truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}

// --- Verification ---

// financialTerms are the markers a legitimate financial report is expected
// to contain. At least two distinct terms must appear.
var financialTerms = []string{
	"revenue", "net income", "profit", "balance sheet", "cash flow",
	"assets", "liabilities", "equity", "earnings", "fiscal",
}

const minFinancialTerms = 2

// VerificationStage checks that the document is plausibly a financial
// report before any downstream analysis runs. Rejection here is permanent:
// retrying the same document cannot change the outcome.
type VerificationStage struct {
	provider models.AIProvider
}

func NewVerificationStage(provider models.AIProvider) *VerificationStage {
	return &VerificationStage{provider: provider}
}

func (s *VerificationStage) Name() string { return models.StageVerification }

func (s *VerificationStage) Run(ctx context.Context, doc *models.Document, query string, _ []models.StageResult) (models.StageResult, error) {
	lower := strings.ToLower(doc.Text)
	found := 0
	for _, term := range financialTerms {
		if strings.Contains(lower, term) {
			found++
		}
	}
	if found < minFinancialTerms {
		return failureResult(s.Name(),
			"document does not appear to be a financial statement"), nil
	}

	prompt := fmt.Sprintf(
		"Review the following financial document. Identify the company name, reporting "+
			"period, and document type, and note any red flags or inconsistencies. "+
			"Finish with a brief summary of its key contents.\n\nDocument:\n%s",
		truncate(doc.Text, maxPromptBytes))

	reply, failed, err := runCompletion(ctx, s.provider, s.Name(), verifierPersona, prompt)
	if err != nil {
		return models.StageResult{}, err
	}
	if failed != nil {
		return *failed, nil
	}

	return successResult(s.Name(), map[string]any{
		"verified":             true,
		"matched_terms":        found,
		"verification_summary": reply,
	}), nil
}

// --- Financial Analysis ---

var (
	revenueRE   = regexp.MustCompile(`(?i)revenue\s*[\$£€]?\s*([\d,]+(?:\.\d{2})?)`)
	netIncomeRE = regexp.MustCompile(`(?i)net\s*income\s*[\$£€]?\s*([\d,]+(?:\.\d{2})?)`)
	epsRE       = regexp.MustCompile(`(?i)earnings\s*per\s*share\s*[\$£€]?\s*([\d,]+(?:\.\d{2})?)`)
)

// extractMetric pulls a numeric metric out of the document text, returning
// ok=false when the pattern does not match.
func extractMetric(text string, re *regexp.Regexp) (float64, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// FinancialAnalysisStage extracts key metrics from the document text and
// asks the collaborator for a performance review conditioned on the
// verification findings.
type FinancialAnalysisStage struct {
	provider models.AIProvider
}

func NewFinancialAnalysisStage(provider models.AIProvider) *FinancialAnalysisStage {
	return &FinancialAnalysisStage{provider: provider}
}

func (s *FinancialAnalysisStage) Name() string { return models.StageFinancialAnalysis }

func (s *FinancialAnalysisStage) Run(ctx context.Context, doc *models.Document, query string, prior []models.StageResult) (models.StageResult, error) {
	metrics := map[string]any{}
	var revenue, netIncome float64
	var haveRevenue, haveNetIncome bool

	if v, ok := extractMetric(doc.Text, revenueRE); ok {
		metrics["revenue"] = v
		revenue, haveRevenue = v, true
	}
	if v, ok := extractMetric(doc.Text, netIncomeRE); ok {
		metrics["net_income"] = v
		netIncome, haveNetIncome = v, true
	}
	if v, ok := extractMetric(doc.Text, epsRE); ok {
		metrics["eps"] = v
	}

	output := map[string]any{"metrics": metrics}

	var findings []string
	if haveRevenue && haveNetIncome && revenue > 0 && netIncome > 0 {
		margin := netIncome / revenue * 100
		output["profit_margin"] = fmt.Sprintf("%.2f%%", margin)
		switch {
		case margin > 20:
			findings = append(findings, "Strong profitability with high profit margin")
		case margin > 10:
			findings = append(findings, "Moderate profitability")
		default:
			findings = append(findings, "Low profit margins detected")
		}
	}
	output["key_findings"] = findings

	var priorContext string
	if v := priorOutput(prior, models.StageVerification); v != nil {
		if summary, ok := v["verification_summary"].(string); ok {
			priorContext = "Verification findings:\n" + summary + "\n\n"
		}
	}

	prompt := fmt.Sprintf(
		"%sConduct a comprehensive analysis of the financial document below. The user's "+
			"query is: %s\n\nCover financial performance, key ratios, cash flow, and any "+
			"significant trends or anomalies.\n\nDocument:\n%s",
		priorContext, userQuery(query), truncate(doc.Text, maxPromptBytes))

	reply, failed, err := runCompletion(ctx, s.provider, s.Name(), analystPersona, prompt)
	if err != nil {
		return models.StageResult{}, err
	}
	if failed != nil {
		return *failed, nil
	}

	output["narrative"] = reply
	return successResult(s.Name(), output), nil
}

// --- Investment Recommendation ---

// InvestmentRecommendationStage derives a recommendation from the financial
// analysis and asks the collaborator for a supporting thesis.
type InvestmentRecommendationStage struct {
	provider models.AIProvider
}

func NewInvestmentRecommendationStage(provider models.AIProvider) *InvestmentRecommendationStage {
	return &InvestmentRecommendationStage{provider: provider}
}

func (s *InvestmentRecommendationStage) Name() string { return models.StageInvestmentRecommendation }

func (s *InvestmentRecommendationStage) Run(ctx context.Context, doc *models.Document, query string, prior []models.StageResult) (models.StageResult, error) {
	recommendation := "HOLD"
	confidence := 0.5

	analysis := priorOutput(prior, models.StageFinancialAnalysis)
	var analysisContext string
	if analysis != nil {
		if margin, ok := analysis["profit_margin"].(string); ok {
			analysisContext = fmt.Sprintf("The financial analysis computed a profit margin of %s.\n", margin)
			confidence = 0.75
		}
		if narrative, ok := analysis["narrative"].(string); ok {
			analysisContext += "Analyst notes:\n" + narrative + "\n\n"
		}
	}

	prompt := fmt.Sprintf(
		"%sBased on the financial document below, provide investment recommendations. "+
			"The user's query is: %s\n\nConsider valuation, growth prospects, financial "+
			"health, and current market conditions. State a clear recommendation with "+
			"rationale.\n\nDocument:\n%s",
		analysisContext, userQuery(query), truncate(doc.Text, maxPromptBytes))

	reply, failed, err := runCompletion(ctx, s.provider, s.Name(), advisorPersona, prompt)
	if err != nil {
		return models.StageResult{}, err
	}
	if failed != nil {
		return *failed, nil
	}

	return successResult(s.Name(), map[string]any{
		"recommendation":   recommendation,
		"confidence_score": confidence,
		"thesis":           reply,
	}), nil
}

// --- Risk Assessment ---

// riskKeywords maps severity levels to the indicator terms counted in the
// document text.
var riskKeywords = map[string][]string{
	"high":   {"bankruptcy", "default", "liquidation", "fraud", "lawsuit"},
	"medium": {"risk", "volatility", "uncertainty", "competition", "regulation"},
	"low":    {"growth", "opportunity", "stable", "diversified"},
}

// RiskAssessmentStage scores risk indicators in the document and asks the
// collaborator for a risk narrative conditioned on the earlier analysis and
// recommendation.
type RiskAssessmentStage struct {
	provider models.AIProvider
}

func NewRiskAssessmentStage(provider models.AIProvider) *RiskAssessmentStage {
	return &RiskAssessmentStage{provider: provider}
}

func (s *RiskAssessmentStage) Name() string { return models.StageRiskAssessment }

func (s *RiskAssessmentStage) Run(ctx context.Context, doc *models.Document, query string, prior []models.StageResult) (models.StageResult, error) {
	lower := strings.ToLower(doc.Text)
	counts := map[string]int{"high": 0, "medium": 0, "low": 0}
	for level, keywords := range riskKeywords {
		for _, kw := range keywords {
			counts[level] += strings.Count(lower, kw)
		}
	}

	overall := "Low"
	switch {
	case counts["high"] > 0:
		overall = "High"
	case counts["medium"] > 2:
		overall = "Medium"
	}

	var priorContext strings.Builder
	if a := priorOutput(prior, models.StageFinancialAnalysis); a != nil {
		if narrative, ok := a["narrative"].(string); ok {
			priorContext.WriteString("Financial analysis:\n" + narrative + "\n\n")
		}
	}
	if rec := priorOutput(prior, models.StageInvestmentRecommendation); rec != nil {
		if thesis, ok := rec["thesis"].(string); ok {
			priorContext.WriteString("Investment thesis:\n" + thesis + "\n\n")
		}
	}

	prompt := fmt.Sprintf(
		"%sConduct a thorough risk assessment of the investment opportunity in the "+
			"document below. The user's query is: %s\n\nEvaluate market, company-specific, "+
			"operational, regulatory, and liquidity risks, covering both upside potential "+
			"and downside risks.\n\nDocument:\n%s",
		priorContext.String(), userQuery(query), truncate(doc.Text, maxPromptBytes))

	reply, failed, err := runCompletion(ctx, s.provider, s.Name(), riskPersona, prompt)
	if err != nil {
		return models.StageResult{}, err
	}
	if failed != nil {
		return *failed, nil
	}

	return successResult(s.Name(), map[string]any{
		"overall_risk":   overall,
		"risk_factors":   counts,
		"risk_narrative": reply,
		"mitigation_strategies": []string{
			"Diversify investment portfolio",
			"Conduct thorough due diligence",
			"Consult with financial advisor",
		},
	}), nil
}

// defaultQuery mirrors the submission default so prompts never carry an
// empty query clause.
const defaultQuery = "Analyze this financial document for investment insights"

func userQuery(query string) string {
	if strings.TrimSpace(query) == "" {
		return defaultQuery
	}
	return query
}
