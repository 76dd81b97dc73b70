package handlers

import (
	"encoding/json"
	"net/http"
)

// RootMessage is the liveness reply of GET /.
const RootMessage = "Insurance Assistant API is running"

// Root answers GET / so load balancers and the frontend can check the
// process is up.
func Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": RootMessage})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
