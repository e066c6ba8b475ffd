package neo4juser

import (
	"context"
	"errors"
	"testing"

	"github.com/castsignal/foryou-engine/src/providers"
)

type fakeRecord map[string]any

func (r fakeRecord) Get(key string) (any, bool) {
	v, ok := r[key]
	return v, ok
}

type fakeResult struct {
	records []record
	pos     int
	err     error
}

func (r *fakeResult) Next(ctx context.Context) bool {
	if r.pos >= len(r.records) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeResult) Record() record {
	if r.pos == 0 || r.pos > len(r.records) {
		return nil
	}
	return r.records[r.pos-1]
}

func (r *fakeResult) Err() error                    { return r.err }
func (r *fakeResult) Close(ctx context.Context) error { return nil }

type fakeSession struct {
	run func(ctx context.Context, query string, params map[string]any) (result, error)
}

func (s *fakeSession) Run(ctx context.Context, query string, params map[string]any) (result, error) {
	return s.run(ctx, query, params)
}
func (s *fakeSession) Close(ctx context.Context) error { return nil }

type fakeDriver struct {
	newSession func(ctx context.Context, config SessionConfig) (session, error)
	closed     bool
}

func (d *fakeDriver) NewSession(ctx context.Context, config SessionConfig) (session, error) {
	return d.newSession(ctx, config)
}
func (d *fakeDriver) Close(ctx context.Context) error {
	d.closed = true
	return nil
}

func TestNewRejectsNilDriver(t *testing.T) {
	if _, err := New(nil, "neo4j"); err == nil {
		t.Fatal("expected an error constructing a Store with a nil driver")
	}
}

func TestGetByIDReturnsNotFoundWhenNoRecord(t *testing.T) {
	drv := &fakeDriver{newSession: func(ctx context.Context, config SessionConfig) (session, error) {
		return &fakeSession{run: func(ctx context.Context, query string, params map[string]any) (result, error) {
			return &fakeResult{}, nil
		}}, nil
	}}
	st, err := New(drv, "neo4j")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	profile, ok, err := st.GetByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok || profile != nil {
		t.Fatalf("expected no profile found, got %+v ok=%v", profile, ok)
	}
}

func TestGetByIDParsesAnchorVectorAndInterests(t *testing.T) {
	drv := &fakeDriver{newSession: func(ctx context.Context, config SessionConfig) (session, error) {
		return &fakeSession{run: func(ctx context.Context, query string, params map[string]any) (result, error) {
			return &fakeResult{records: []record{fakeRecord{
				"category_anchor_vector": []any{float64(0.1), float64(0.2), float64(0.3)},
				"category_interests":     []any{"economics", "technology"},
			}}}, nil
		}}, nil
	}}
	st, err := New(drv, "neo4j")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	profile, ok, err := st.GetByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected a profile to be found")
	}
	if profile.UserID != "u1" {
		t.Fatalf("expected UserID to be set from the request, got %q", profile.UserID)
	}
	if len(profile.CategoryAnchorVector) != 3 {
		t.Fatalf("expected a 3-dimensional anchor vector, got %v", profile.CategoryAnchorVector)
	}
	if len(profile.CategoryInterests) != 2 || profile.CategoryInterests[0] != "economics" {
		t.Fatalf("unexpected category interests: %v", profile.CategoryInterests)
	}
}

func TestGetByIDWithoutDriverReturnsErrUnavailable(t *testing.T) {
	st := &Store{}
	_, _, err := st.GetByID(context.Background(), "u1")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestUpsertProfileRunsWriteSession(t *testing.T) {
	var capturedMode AccessMode
	var capturedParams map[string]any
	drv := &fakeDriver{newSession: func(ctx context.Context, config SessionConfig) (session, error) {
		capturedMode = config.AccessMode
		return &fakeSession{run: func(ctx context.Context, query string, params map[string]any) (result, error) {
			capturedParams = params
			return &fakeResult{}, nil
		}}, nil
	}}
	st, err := New(drv, "neo4j")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = st.UpsertProfile(context.Background(), providers.UserProfile{
		UserID:               "u1",
		CategoryAnchorVector: []float32{1, 2},
		CategoryInterests:    []string{"health"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if capturedMode != AccessModeWrite {
		t.Fatalf("expected a write-mode session, got %q", capturedMode)
	}
	if capturedParams["id"] != "u1" {
		t.Fatalf("expected the user id to be passed as a query param, got %+v", capturedParams)
	}
}

func TestStoreCloseDelegatesToDriver(t *testing.T) {
	drv := &fakeDriver{}
	st, err := New(drv, "neo4j")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !drv.closed {
		t.Fatal("expected Close to delegate to the underlying driver")
	}
}
