package api

import (
	"encoding/json"
	"net/http"
	"strconv"
)

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondError writes the flat {"error": ...} body clients expect.
func respondError(w http.ResponseWriter, status int, message string) {
	respond(w, status, map[string]any{"error": message})
}

// queryInt parses an integer query parameter, using def when absent.
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
