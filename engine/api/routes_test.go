package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/spaghettifunk/anima-livelink/engine/core"
	"github.com/spaghettifunk/anima-livelink/engine/livelink"
	"github.com/spaghettifunk/anima-livelink/engine/recorder"
)

type fakeSource struct {
	guid  uuid.UUID
	host  string
	valid bool
	subs  []livelink.Record
}

func (f *fakeSource) GUID() uuid.UUID  { return f.guid }
func (f *fakeSource) Host() string     { return f.host }
func (f *fakeSource) Endpoint() string { return "10.0.0.1:2101" }
func (f *fakeSource) Index() int       { return 1 }
func (f *fakeSource) Prefix() string   { return "" }
func (f *fakeSource) IsValid() bool    { return f.valid }
func (f *fakeSource) FrameRate() livelink.FrameRate {
	return livelink.FrameRate{Numerator: 60, Denominator: 1}
}
func (f *fakeSource) Metrics() core.MetricsSnapshot {
	return core.MetricsSnapshot{PosesPushed: 42}
}
func (f *fakeSource) Subjects() []livelink.Record { return f.subs }

type fakeSubjects []Subject

func (f fakeSubjects) Subjects() []Subject { return f }

func testConfig(sources ...SourceView) ServerConfig {
	return ServerConfig{
		Sources:   func() []SourceView { return sources },
		Logger:    log.New(io.Discard),
		StartTime: time.Now().Add(-3 * time.Second),
	}
}

func serve(t *testing.T, cfg ServerConfig, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	NewRouter(cfg).ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rr.Body.String())
	}
	return out
}

func TestHealthHandler(t *testing.T) {
	rr := serve(t, testConfig(&fakeSource{guid: uuid.New()}), "/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}
	body := decode[HealthResponse](t, rr)
	if body.Status != "ok" || body.Sources != 1 || body.UptimeS < 3 {
		t.Fatalf("body = %+v", body)
	}
}

func TestListSources(t *testing.T) {
	live := &fakeSource{guid: uuid.New(), host: "studio", valid: true, subs: []livelink.Record{{ID: 1}, {ID: 2}}}
	idle := &fakeSource{guid: uuid.New(), host: "stage"}

	body := decode[SourcesResponse](t, serve(t, testConfig(live, idle), "/sources"))
	if len(body.Sources) != 2 {
		t.Fatalf("sources = %+v", body.Sources)
	}
	got := body.Sources[0]
	if got.Host != "studio" || got.Status != "streaming" || got.Subjects != 2 || got.FrameRate != 60 {
		t.Errorf("live source = %+v", got)
	}
	if got.Metrics.PosesPushed != 42 {
		t.Errorf("metrics = %+v", got.Metrics)
	}
	if body.Sources[1].Status != "idle" {
		t.Errorf("idle source = %+v", body.Sources[1])
	}
}

func TestListSourcesEmpty(t *testing.T) {
	rr := serve(t, ServerConfig{Logger: log.New(io.Discard)}, "/sources")
	if rr.Body.String() != "{\"sources\":[]}\n" {
		t.Fatalf("body = %q", rr.Body.String())
	}
}

func TestGetSource(t *testing.T) {
	src := &fakeSource{guid: uuid.New(), host: "studio"}
	cfg := testConfig(src)

	body := decode[SourceResponse](t, serve(t, cfg, "/sources/"+src.guid.String()))
	if body.GUID != src.guid.String() {
		t.Fatalf("guid = %s", body.GUID)
	}

	rr := serve(t, cfg, "/sources/"+uuid.NewString())
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status code = %d", rr.Code)
	}
	if e := decode[ErrorResponse](t, rr); e.Code != "NOT_FOUND" {
		t.Errorf("error = %+v", e)
	}
}

func TestListSubjects(t *testing.T) {
	cfg := testConfig()
	cfg.Subjects = fakeSubjects{{Name: "Alice", Role: "animation", Bones: 9, Frames: 12}}

	body := decode[SubjectsResponse](t, serve(t, cfg, "/subjects"))
	if len(body.Subjects) != 1 || body.Subjects[0].Name != "Alice" || body.Subjects[0].Frames != 12 {
		t.Fatalf("subjects = %+v", body.Subjects)
	}
}

func TestRecorderHandler(t *testing.T) {
	cfg := testConfig()
	if rr := serve(t, cfg, "/recorder"); rr.Code != http.StatusNotFound {
		t.Fatalf("disabled recorder status = %d", rr.Code)
	}

	store, err := recorder.OpenStore(filepath.Join(t.TempDir(), "takes.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	rec, err := recorder.New(context.Background(), store, nil, 8)
	if err != nil {
		t.Fatal(err)
	}
	defer rec.Close()
	cfg.Recorder = rec

	rr := serve(t, cfg, "/recorder")
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d", rr.Code)
	}
	body := decode[RecorderResponse](t, rr)
	if body.Stats.TakeID != rec.TakeID() || len(body.Subjects) != 0 {
		t.Fatalf("body = %+v", body)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(log.New(io.Discard))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status code = %d", rr.Code)
	}
}

func TestServerStartShutdown(t *testing.T) {
	srv := NewServer(ServerConfig{Listen: "127.0.0.1:0", Logger: log.New(io.Discard)})
	if err := srv.Listen(); err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- srv.Start() }()

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Start() = %v", err)
	}
}
