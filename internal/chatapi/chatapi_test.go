package chatapi

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/utjfc/reg-agent/internal/adapters"
	"github.com/utjfc/reg-agent/internal/agents"
	"github.com/utjfc/reg-agent/internal/llm"
	"github.com/utjfc/reg-agent/internal/observability"
	"github.com/utjfc/reg-agent/internal/photo"
	"github.com/utjfc/reg-agent/internal/routing"
	"github.com/utjfc/reg-agent/internal/sessions"
	"github.com/utjfc/reg-agent/internal/tools"
	"github.com/utjfc/reg-agent/internal/workflow"
	"github.com/utjfc/reg-agent/pkg/models"
)

// fakeDB implements adapters.DB with just enough behaviour to drive routing
// and tool dispatch in tests: the Tigers U10 team is always supported.
type fakeDB struct {
	writePhotoURLCalls int
	lastRecordID        string
	lastURL             string
}

func (f *fakeDB) LookupTeam(ctx context.Context, team, ageGroup string) (*models.Team, error) {
	if team == "tigers" && ageGroup == "u10" {
		return &models.Team{Name: "tigers", AgeGroup: "u10", Supported: true}, nil
	}
	return nil, adapters.ErrNotFound
}
func (f *fakeDB) LookupPlayer(ctx context.Context, team, ageGroup, season, firstName, lastName string) (*models.RegistrationRecord, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeDB) UpsertRegistration(ctx context.Context, record *models.RegistrationRecord) (string, error) {
	return "rec-1", nil
}
func (f *fakeDB) ShirtNumberTaken(ctx context.Context, team, ageGroup string, number int) (bool, error) {
	return false, nil
}
func (f *fakeDB) WriteKit(ctx context.Context, recordID, size string, number int, kitType string) error {
	return nil
}
func (f *fakeDB) WritePhotoURL(ctx context.Context, recordID, url string) error {
	f.writePhotoURLCalls++
	f.lastRecordID = recordID
	f.lastURL = url
	return nil
}
func (f *fakeDB) CheckKitNeeded(ctx context.Context, team, ageGroup, firstName, lastName string) (bool, error) {
	return false, nil
}

// scriptedProvider returns one canned InvokeResult per call, in order; it
// never makes a network call.
type scriptedProvider struct {
	results []*llm.InvokeResult
	calls   int
}

func (p *scriptedProvider) Invoke(ctx context.Context, req *llm.CompletionRequest) (*llm.InvokeResult, error) {
	if p.calls >= len(p.results) {
		return nil, errors.New("scriptedProvider: no more results")
	}
	r := p.results[p.calls]
	p.calls++
	return r, nil
}

func step(n int) *int { return &n }

func reply(text string, next *int) *llm.InvokeResult {
	return &llm.InvokeResult{Reply: &llm.StructuredReply{AgentFinalResponse: text, RoutineNumber: next}}
}

// fakeVerifier accepts every photo; used to keep upload tests deterministic.
type fakeVerifier struct{}

func (fakeVerifier) Verify(ctx context.Context, jpegData []byte) (bool, string, error) {
	return true, "", nil
}

// fakePhotoStore records PutImage calls and returns a fixed URL.
type fakePhotoStore struct{ url string }

func (f *fakePhotoStore) PutImage(ctx context.Context, sessionID string, data []byte, contentType string) (string, error) {
	return f.url, nil
}

func (f *fakePhotoStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	return false, nil
}

// testImage returns a solid JPEG comfortably above the pipeline's minimum
// input dimensions (600x750, §4.2), so Optimize never rejects it.
func testImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 1600, 1600))
	for y := 0; y < 1600; y++ {
		for x := 0; x < 1600; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

// newTestHandler wires a Handler over in-memory collaborators and a
// scripted LLM provider, mirroring how cmd/regagent composes the real
// adapters (§ C9).
func newTestHandler(t *testing.T, provider llm.Provider, devEndpoints bool) (*Handler, sessions.Store, *fakeDB) {
	t.Helper()

	db := &fakeDB{}
	sessionStore := sessions.NewMemoryStore()
	agentRegistry := agents.NewRegistry("test-model", models.ExecutionLocal)
	toolRegistry := tools.NewRegistry()
	toolRegistry.Register(tools.NewDBQueryTool(db))

	engine := workflow.New(sessionStore, agentRegistry, toolRegistry, provider, 1024)
	classifier := routing.NewClassifier(db, "2526")

	store := photo.NewStore()
	pipeline := photo.New(store, photo.NewOptimizer(nil), fakeVerifier{}, &fakePhotoStore{url: "s3://bucket/photo.jpg"}, db, 2, observability.NewLogger(observability.LogConfig{}))

	h := NewHandler(Config{
		SessionStore:   sessionStore,
		Engine:         engine,
		Classifier:     classifier,
		Pipeline:       pipeline,
		Logger:         observability.NewLogger(observability.LogConfig{}),
		MaxUploadBytes: 10 << 20,
		DevEndpoints:   devEndpoints,
	})
	return h, sessionStore, db
}
