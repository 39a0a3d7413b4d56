package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeDB struct{ err error }

func (f *fakeDB) Ping(ctx context.Context) error { return f.err }

type fakeQueue struct{ err error }

func (f *fakeQueue) Ping() error { return f.err }

func TestHTTPHandler(t *testing.T) {
	tests := []struct {
		name     string
		dbErr    error
		queueErr error
		wantCode int
		want     Status
	}{
		{
			name:     "healthy",
			wantCode: http.StatusOK,
			want:     Status{OK: true, Message: "ok", Database: true, Queue: true},
		},
		{
			name:     "database down",
			dbErr:    errors.New("connection refused"),
			wantCode: http.StatusServiceUnavailable,
			want:     Status{OK: false, Message: "db ping failed", Database: false, Queue: true},
		},
		{
			name:     "queue down is degraded but serving",
			queueErr: errors.New("nsqd unreachable"),
			wantCode: http.StatusOK,
			want:     Status{OK: true, Message: "queue unreachable", Database: true, Queue: false},
		},
		{
			name:     "both down reports the database",
			dbErr:    errors.New("connection refused"),
			queueErr: errors.New("nsqd unreachable"),
			wantCode: http.StatusServiceUnavailable,
			want:     Status{OK: false, Message: "db ping failed", Database: false, Queue: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := HTTPHandler(&fakeDB{err: tt.dbErr}, &fakeQueue{err: tt.queueErr})

			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			rec := httptest.NewRecorder()
			h(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status code = %d, want %d", rec.Code, tt.wantCode)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}

			var got Status
			if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if got != tt.want {
				t.Errorf("status = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestHTTPHandler_NilDependencies(t *testing.T) {
	h := HTTPHandler(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rec.Code, http.StatusOK)
	}
	var got Status
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !got.OK || !got.Database || !got.Queue {
		t.Errorf("nil dependencies should report healthy, got %+v", got)
	}
}

func TestHTTPHandler_UsesRequestContext(t *testing.T) {
	db := &fakeDB{}
	h := HTTPHandler(db, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	db.err = ctx.Err()
	h(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status code = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
