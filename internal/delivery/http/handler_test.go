package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sanderdlm/betascrubber/internal/domain"
	"github.com/sanderdlm/betascrubber/internal/identity"
	pipemock "github.com/sanderdlm/betascrubber/internal/pipeline/mock"
	mockpub "github.com/sanderdlm/betascrubber/internal/publisher/mock"
	mockrepo "github.com/sanderdlm/betascrubber/internal/repository/mock"
	"github.com/sanderdlm/betascrubber/internal/storage/local"
	"github.com/sanderdlm/betascrubber/internal/storage/storagetest"
	"github.com/sanderdlm/betascrubber/internal/tracker"
	"github.com/sanderdlm/betascrubber/internal/usecase"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testURL = "https://example.com/v"

type testServer struct {
	router  *gin.Engine
	store   *local.Store
	pipe    *pipemock.Pipeline
	pub     *mockpub.MockPublisher
	tracker *tracker.Tracker
	checks  map[string]HealthCheck
}

func setupTestRouter(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()

	store, err := local.NewStore(t.TempDir(), "/media", logger)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	pipe := &pipemock.Pipeline{Title: "Test", Duration: 30}
	pub := mockpub.NewMockPublisher()
	index := &mockrepo.JobIndex{}
	tr := tracker.New(&mockrepo.StatusStore{}, store, logger)

	s := &testServer{store: store, pipe: pipe, pub: pub, tracker: tr, checks: map[string]HealthCheck{}}
	s.router = NewRouter(RouterDeps{
		SubmitUC:     usecase.NewSubmitJobUsecase(store, pipe, &mockrepo.LockStore{}, tr, index, pub, logger),
		GetJobUC:     usecase.NewGetJobUsecase(store, index, logger),
		ListFramesUC: usecase.NewListFramesUsecase(store),
		SelectUC:     usecase.NewSelectFramesUsecase(store, logger),
		RecentUC:     usecase.NewRecentJobsUsecase(store),
		PollUC:       usecase.NewPollStatusUsecase(tr, 5*time.Millisecond, 3, logger),
		HealthChecks: s.checks,
		Logger:       logger,
		MediaRoot:    store.Root(),
		MediaPath:    "/media",
		MaxBodyBytes: 1 << 10,
	})
	return s
}

// seedCandidates provisions url's job and writes n candidate frames.
func (s *testServer) seedCandidates(t *testing.T, url string, n int) string {
	t.Helper()
	id := identity.Encode(url)
	loc, err := s.store.Provision(context.Background(), id, "Seeded")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	numbers := make([]int, n)
	for i := range numbers {
		numbers[i] = i + 1
	}
	storagetest.WriteFrames(t, loc.WorkDir, numbers...)
	return id
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response %q: %v", w.Body.String(), err)
	}
}

func TestSubmitHandler_Started(t *testing.T) {
	s := setupTestRouter(t)

	w := s.do(http.MethodPost, "/api/v1/jobs", map[string]string{"url": testURL})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	var resp domain.Decision
	decode(t, w, &resp)
	if resp.Kind != domain.DecisionStarted || resp.ID != identity.Encode(testURL) {
		t.Errorf("unexpected decision %+v", resp)
	}
	if s.pub.Count() != 1 {
		t.Errorf("expected 1 published task, got %d", s.pub.Count())
	}
}

func TestSubmitHandler_AlreadyProcessing(t *testing.T) {
	s := setupTestRouter(t)
	s.seedCandidates(t, testURL, 2)

	w := s.do(http.MethodPost, "/api/v1/jobs", map[string]string{"url": testURL})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp domain.Decision
	decode(t, w, &resp)
	if resp.Kind != domain.DecisionAlreadyProcessingOrCandidate {
		t.Errorf("unexpected decision %+v", resp)
	}
}

func TestSubmitHandler_InvalidBody(t *testing.T) {
	s := setupTestRouter(t)

	for _, body := range []any{map[string]string{}, map[string]string{"url": "not a url"}} {
		w := s.do(http.MethodPost, "/api/v1/jobs", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %v: expected 400, got %d", body, w.Code)
		}
	}
}

func TestSubmitHandler_DurationExceeded(t *testing.T) {
	s := setupTestRouter(t)
	s.pipe.EnforceDurationLimitFn = func(ctx context.Context, url string) error {
		return fmt.Errorf("%w: 185s exceeds the 180s limit", domain.ErrDurationExceeded)
	}

	w := s.do(http.MethodPost, "/api/v1/jobs", map[string]string{"url": testURL})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", w.Code)
	}
	if s.pipe.Downloads() != 0 || s.pub.Count() != 0 {
		t.Error("expected no download and nothing published")
	}
}

func TestSubmitHandler_MetadataFailure(t *testing.T) {
	s := setupTestRouter(t)
	s.pipe.EnforceDurationLimitFn = func(ctx context.Context, url string) error {
		return &domain.PipelineError{Stage: domain.StageDuration, Detail: "Unsupported URL", Err: domain.ErrMetadataFailed}
	}

	w := s.do(http.MethodPost, "/api/v1/jobs", map[string]string{"url": testURL})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", w.Code)
	}
}

func TestSubmitHandler_PublishFailure(t *testing.T) {
	s := setupTestRouter(t)
	s.pub.PublishFn = func(ctx context.Context, task *domain.Task) error {
		return errors.New("broker down")
	}

	w := s.do(http.MethodPost, "/api/v1/jobs", map[string]string{"url": testURL})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}
}

func TestGetJobHandler(t *testing.T) {
	s := setupTestRouter(t)
	id := s.seedCandidates(t, testURL, 1)

	w := s.do(http.MethodGet, "/api/v1/jobs/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var view domain.JobView
	decode(t, w, &view)
	if view.SourceURL != testURL || !view.HasFrames {
		t.Errorf("unexpected view %+v", view)
	}

	if w := s.do(http.MethodGet, "/api/v1/jobs/"+identity.Encode("https://example.com/none"), nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/api/v1/jobs/not*valid", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestStatusHandler_ReadOnce(t *testing.T) {
	s := setupTestRouter(t)
	id := identity.Encode(testURL)
	if err := s.tracker.Set(context.Background(), id, domain.Failed("Video download failed")); err != nil {
		t.Fatalf("set: %v", err)
	}

	var first, second map[string]string
	decode(t, s.do(http.MethodGet, "/api/v1/jobs/"+id+"/status", nil), &first)
	decode(t, s.do(http.MethodGet, "/api/v1/jobs/"+id+"/status", nil), &second)

	if first["status"] != "error" || first["detail"] != "Video download failed" {
		t.Errorf("unexpected first read %v", first)
	}
	if second["status"] != "absent" {
		t.Errorf("expected consumed status, got %v", second)
	}
}

func TestFramesHandler(t *testing.T) {
	s := setupTestRouter(t)
	id := s.seedCandidates(t, testURL, 3)

	w := s.do(http.MethodGet, "/api/v1/jobs/"+id+"/frames", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp struct {
		Bucket string         `json:"bucket"`
		Frames []domain.Frame `json:"frames"`
	}
	decode(t, w, &resp)
	if resp.Bucket != "frames" || len(resp.Frames) != 3 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if !strings.HasPrefix(resp.Frames[0].URL, "/media/") {
		t.Errorf("expected media url, got %q", resp.Frames[0].URL)
	}

	// The listed URL is served by the media route.
	img := httptest.NewRecorder()
	s.router.ServeHTTP(img, httptest.NewRequest(http.MethodGet, resp.Frames[0].URL, nil))
	if img.Code != http.StatusOK || img.Header().Get("Content-Type") != "image/jpeg" {
		t.Errorf("expected image, got %d %q", img.Code, img.Header().Get("Content-Type"))
	}

	if w := s.do(http.MethodGet, "/api/v1/jobs/"+id+"/frames?bucket=other", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown bucket, got %d", w.Code)
	}
}

func TestSelectHandler(t *testing.T) {
	s := setupTestRouter(t)
	id := s.seedCandidates(t, testURL, 3)

	if w := s.do(http.MethodPost, "/api/v1/jobs/"+id+"/selection", map[string][]string{"frames": {}}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty selection, got %d", w.Code)
	}

	w := s.do(http.MethodPost, "/api/v1/jobs/"+id+"/selection", map[string][]string{"frames": {"frame_0002.jpg"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var result usecase.SelectionResult
	decode(t, w, &result)
	if result.Promoted != 1 || result.Purged != 3 {
		t.Errorf("unexpected result %+v", result)
	}

	w = s.do(http.MethodPost, "/api/v1/jobs", map[string]string{"url": testURL})
	var decision domain.Decision
	decode(t, w, &decision)
	if decision.Kind != domain.DecisionAlreadyFinal {
		t.Errorf("expected already_final after selection, got %s", decision.Kind)
	}
}

func TestRecentHandler(t *testing.T) {
	s := setupTestRouter(t)

	if w := s.do(http.MethodGet, "/api/v1/jobs/recent?limit=abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}

	w := s.do(http.MethodGet, "/api/v1/jobs/recent", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"jobs":[]`) {
		t.Errorf("expected empty list, got %s", w.Body.String())
	}
}

func TestMediaHandler_OnlyImages(t *testing.T) {
	s := setupTestRouter(t)
	id := s.seedCandidates(t, testURL, 1)
	dir := id + "___Seeded_frames"
	if err := os.WriteFile(filepath.Join(s.store.Root(), dir, "notes.txt"), []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{
		"/media/" + dir + "/notes.txt",
		"/media/" + dir + "/frame_0009.jpg",
		"/media/plain/frame_0001.jpg",
	} {
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, w.Code)
		}
	}
}

func TestHealthHandler(t *testing.T) {
	s := setupTestRouter(t)
	s.checks["redis"] = func(ctx context.Context) error { return nil }

	if w := s.do(http.MethodGet, "/api/v1/health", nil); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	s.checks["postgres"] = func(ctx context.Context) error { return errors.New("connection refused") }
	w := s.do(http.MethodGet, "/api/v1/health", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "connection refused") {
		t.Errorf("expected failing check in body, got %s", w.Body.String())
	}
}

func TestWebSocketHandler_StreamsUntilTerminal(t *testing.T) {
	s := setupTestRouter(t)
	id := identity.Encode(testURL)
	if err := s.tracker.Set(context.Background(), id, domain.Completed()); err != nil {
		t.Fatalf("set: %v", err)
	}

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/jobs/"+id+"/stream", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var update domain.PollUpdate
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("read: %v", err)
	}
	if update.Status != domain.StateCompleted || update.ID != id {
		t.Errorf("unexpected update %+v", update)
	}

	// The server closes the stream after a terminal status.
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected normal close, got %v", err)
	}
}

func TestWebSocketHandler_TimesOut(t *testing.T) {
	s := setupTestRouter(t)
	id := identity.Encode(testURL)

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/jobs/"+id+"/stream", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var updates []domain.PollUpdate
	for {
		var u domain.PollUpdate
		if err := conn.ReadJSON(&u); err != nil {
			break
		}
		updates = append(updates, u)
	}
	if len(updates) != 4 {
		t.Fatalf("expected 3 reads and a timeout, got %+v", updates)
	}
	if updates[0].Status != domain.StateProcessing || updates[3].Status != domain.StateTimeout {
		t.Errorf("unexpected updates %+v", updates)
	}
}

func TestWebSocketHandler_InvalidID(t *testing.T) {
	s := setupTestRouter(t)
	if w := s.do(http.MethodGet, "/api/v1/jobs/a*b/stream", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestEventsHandler(t *testing.T) {
	s := setupTestRouter(t)
	id := identity.Encode(testURL)
	if err := s.tracker.Set(context.Background(), id, domain.Failed("Frame extraction failed")); err != nil {
		t.Fatalf("set: %v", err)
	}

	w := s.do(http.MethodGet, "/api/v1/events?processId="+id, nil)
	if w.Header().Get("Content-Type") != "text/event-stream" {
		t.Errorf("unexpected content type %q", w.Header().Get("Content-Type"))
	}
	body := w.Body.String()
	if !strings.Contains(body, "event:status") || !strings.Contains(body, `"status":"error"`) {
		t.Errorf("unexpected event stream %q", body)
	}

	if w := s.do(http.MethodGet, "/api/v1/events", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without processId, got %d", w.Code)
	}
}

func TestEventsHandler_InvalidID(t *testing.T) {
	s := setupTestRouter(t)

	w := s.do(http.MethodGet, "/api/v1/events?processId=a*b", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("expected a JSON error, got content type %q", ct)
	}
}

func TestEventsHandler_Timeout(t *testing.T) {
	s := setupTestRouter(t)

	w := s.do(http.MethodGet, "/api/v1/events?processId="+identity.Encode(testURL), nil)
	if !strings.Contains(w.Body.String(), `"status":"timeout"`) {
		t.Errorf("expected timeout event, got %q", w.Body.String())
	}
}
