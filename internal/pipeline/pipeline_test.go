package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/finsighthq/finsight/internal/ai/aierr"
	"github.com/finsighthq/finsight/internal/pipeline"
	"github.com/finsighthq/finsight/internal/store"
	"github.com/finsighthq/finsight/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingStore captures appended stage results; other Store methods are
// unused by the runner.
type recordingStore struct {
	mu       sync.Mutex
	appended []models.StageResult
}

func (r *recordingStore) Ping(context.Context) error                            { return nil }
func (r *recordingStore) CreateDocument(context.Context, *models.Document) error { return nil }
func (r *recordingStore) GetDocument(context.Context, uuid.UUID) (*models.Document, error) {
	return nil, store.ErrNotFound
}
func (r *recordingStore) DeleteDocument(context.Context, uuid.UUID) error { return nil }
func (r *recordingStore) CreateJob(context.Context, *models.Job) error    { return nil }
func (r *recordingStore) GetJob(context.Context, uuid.UUID) (*models.Job, error) {
	return nil, store.ErrNotFound
}
func (r *recordingStore) ClaimJob(context.Context, uuid.UUID) (bool, error) { return true, nil }
func (r *recordingStore) AppendStageResult(_ context.Context, _ uuid.UUID, result models.StageResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appended = append(r.appended, result)
	return nil
}
func (r *recordingStore) CompleteJob(context.Context, uuid.UUID, *models.Report) error { return nil }
func (r *recordingStore) FailJob(context.Context, uuid.UUID, string) error             { return nil }
func (r *recordingStore) RetryJob(context.Context, uuid.UUID) (int, error)             { return 1, nil }

var _ store.Store = (*recordingStore)(nil)

// fakeStage returns a canned result or error and records the prior results
// it was given.
type fakeStage struct {
	name   string
	result models.StageResult
	err    error
	prior  []models.StageResult
}

func (s *fakeStage) Name() string { return s.name }
func (s *fakeStage) Run(_ context.Context, _ *models.Document, _ string, prior []models.StageResult) (models.StageResult, error) {
	s.prior = prior
	if s.err != nil {
		return models.StageResult{}, s.err
	}
	return s.result, nil
}

func okStage(name string) *fakeStage {
	return &fakeStage{name: name, result: models.StageResult{
		Stage:  name,
		Status: models.StageStatusSuccess,
		Output: map[string]any{"stage": name},
	}}
}

func testDoc() *models.Document {
	return &models.Document{ID: uuid.New(), Text: "Revenue 100. Net income 20."}
}

func TestExecute_AllStagesSucceed(t *testing.T) {
	st := &recordingStore{}
	stages := []pipeline.Stage{okStage("one"), okStage("two"), okStage("three")}
	r := pipeline.NewRunner(st, stages, "mock", "mock-v1", time.Second)

	report, err := r.Execute(context.Background(), uuid.New(), testDoc(), "q")
	require.NoError(t, err)

	require.Len(t, report.Sections, 3)
	assert.Equal(t, "one", report.Sections[0].Stage)
	assert.Equal(t, "two", report.Sections[1].Stage)
	assert.Equal(t, "three", report.Sections[2].Stage)
	assert.Equal(t, "mock", report.Provider)
	assert.Equal(t, "q", report.Query)

	// Every result was persisted, in order.
	require.Len(t, st.appended, 3)
	assert.Equal(t, "one", st.appended[0].Stage)
	assert.Equal(t, "three", st.appended[2].Stage)
}

func TestExecute_LaterStagesSeePriorResults(t *testing.T) {
	st := &recordingStore{}
	first := okStage("one")
	second := okStage("two")
	r := pipeline.NewRunner(st, []pipeline.Stage{first, second}, "mock", "mock-v1", time.Second)

	_, err := r.Execute(context.Background(), uuid.New(), testDoc(), "")
	require.NoError(t, err)

	assert.Empty(t, first.prior)
	require.Len(t, second.prior, 1)
	assert.Equal(t, "one", second.prior[0].Stage)
}

func TestExecute_HaltsOnStageFailure(t *testing.T) {
	st := &recordingStore{}
	failing := &fakeStage{name: "two", result: models.StageResult{
		Stage:  "two",
		Status: models.StageStatusFailure,
		Error:  "not a financial statement",
	}}
	third := okStage("three")
	r := pipeline.NewRunner(st, []pipeline.Stage{okStage("one"), failing, third}, "mock", "mock-v1", time.Second)

	_, err := r.Execute(context.Background(), uuid.New(), testDoc(), "")

	var sf *pipeline.StageFailure
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, "two", sf.Stage)
	assert.Equal(t, "not a financial statement", sf.Message)

	// The failing result was persisted; downstream stages never ran.
	require.Len(t, st.appended, 2)
	assert.Equal(t, models.StageStatusFailure, st.appended[1].Status)
	assert.Nil(t, third.prior)
}

func TestExecute_TransientFaultPropagates(t *testing.T) {
	st := &recordingStore{}
	flaky := &fakeStage{name: "two", err: aierr.ErrProviderUnavailable}
	r := pipeline.NewRunner(st, []pipeline.Stage{okStage("one"), flaky}, "mock", "mock-v1", time.Second)

	_, err := r.Execute(context.Background(), uuid.New(), testDoc(), "")
	require.Error(t, err)
	assert.True(t, aierr.Transient(err))

	var sf *pipeline.StageFailure
	assert.False(t, errors.As(err, &sf))

	// The fault was still recorded as a failure result before returning.
	require.Len(t, st.appended, 2)
	assert.Equal(t, models.StageStatusFailure, st.appended[1].Status)
	assert.Contains(t, st.appended[1].Error, "unavailable")
}

func TestDefaultStages_Order(t *testing.T) {
	stages := pipeline.DefaultStages(nil)
	require.Len(t, stages, 4)
	assert.Equal(t, models.StageVerification, stages[0].Name())
	assert.Equal(t, models.StageFinancialAnalysis, stages[1].Name())
	assert.Equal(t, models.StageInvestmentRecommendation, stages[2].Name())
	assert.Equal(t, models.StageRiskAssessment, stages[3].Name())
}
