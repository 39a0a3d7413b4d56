package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// DBPinger is the database liveness surface. *pgxpool.Pool satisfies it.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// QueuePinger is the queue liveness surface. *nsq.Producer satisfies it.
type QueuePinger interface {
	Ping() error
}

type Status struct {
	OK       bool   `json:"ok"`
	Message  string `json:"message,omitempty"`
	Database bool   `json:"database"`
	Queue    bool   `json:"queue"`
}

// HTTPHandler returns an HTTP handler that reports the health status of the
// service. A database failure fails the probe; a queue failure is reported
// but leaves the service up, since status reads keep working while nsqd
// restarts.
func HTTPHandler(db DBPinger, q QueuePinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := Status{OK: true, Message: "ok", Database: true, Queue: true}
		code := http.StatusOK

		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				st.OK = false
				st.Message = "db ping failed"
				st.Database = false
				code = http.StatusServiceUnavailable
			}
		}
		if q != nil {
			if err := q.Ping(); err != nil {
				st.Queue = false
				if st.OK {
					st.Message = "queue unreachable"
				}
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(st)
	}
}
