package monitor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/list-cutter/cutover/internal/models"
)

type stubProgressSource struct {
	batches  []models.Batch
	progress map[string]*models.BatchProgress
}

func (s *stubProgressSource) ListBatches(_ context.Context, status models.BatchStatus, _ int) ([]models.Batch, error) {
	if status == "" {
		return s.batches, nil
	}

	var out []models.Batch
	for _, b := range s.batches {
		if b.Status == status {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *stubProgressSource) Progress(_ context.Context, batchID string) (*models.BatchProgress, error) {
	p, ok := s.progress[batchID]
	if !ok {
		return nil, models.ErrBatchNotFound
	}
	return p, nil
}

func newTestMonitor(t *testing.T) *httptest.Server {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	store := &stubProgressSource{
		batches: []models.Batch{
			{ID: "b1", TotalFiles: 3, Status: models.BatchProcessing},
			{ID: "b2", TotalFiles: 5, Status: models.BatchCompleted},
		},
		progress: map[string]*models.BatchProgress{
			"b1": {
				Batch: models.Batch{ID: "b1", TotalFiles: 3, Status: models.BatchProcessing},
				StatusCounts: map[models.RecordStatus]int{
					models.RecordVerified: 1,
					models.RecordPending:  2,
				},
			},
		},
	}

	srv := httptest.NewServer(New("unused:0", store, log).srv.Handler)
	t.Cleanup(srv.Close)

	return srv
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}

	return resp.StatusCode
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestMonitor(t)

	var body map[string]any
	if code := getJSON(t, srv.URL+"/health", &body); code != 200 {
		t.Fatalf("got status %d", code)
	}
	if body["status"] != "ok" {
		t.Errorf("got status %v, want ok", body["status"])
	}
}

func TestListBatchesEndpoint(t *testing.T) {
	srv := newTestMonitor(t)

	var body struct {
		Batches []models.Batch `json:"batches"`
	}
	if code := getJSON(t, srv.URL+"/api/v1/batches", &body); code != 200 {
		t.Fatalf("got status %d", code)
	}
	if len(body.Batches) != 2 {
		t.Errorf("got %d batches, want 2", len(body.Batches))
	}

	if code := getJSON(t, srv.URL+"/api/v1/batches?status=completed", &body); code != 200 {
		t.Fatalf("got status %d", code)
	}
	if len(body.Batches) != 1 || body.Batches[0].ID != "b2" {
		t.Errorf("status filter not applied: %+v", body.Batches)
	}
}

func TestProgressEndpoint(t *testing.T) {
	srv := newTestMonitor(t)

	var progress models.BatchProgress
	if code := getJSON(t, srv.URL+"/api/v1/batches/b1/progress", &progress); code != 200 {
		t.Fatalf("got status %d", code)
	}
	if progress.Batch.ID != "b1" {
		t.Errorf("got batch %s, want b1", progress.Batch.ID)
	}
	if progress.StatusCounts[models.RecordPending] != 2 {
		t.Errorf("got %d pending, want 2", progress.StatusCounts[models.RecordPending])
	}
}

func TestProgressNotFound(t *testing.T) {
	srv := newTestMonitor(t)

	if code := getJSON(t, srv.URL+"/api/v1/batches/nope/progress", nil); code != 404 {
		t.Errorf("got status %d, want 404", code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestMonitor(t)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("got status %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body) //nolint:errcheck
	if len(body) == 0 {
		t.Error("empty metrics exposition")
	}
}
