package handlers

import (
	"net/http"

	"github.com/loupelabs/loupe/internal/version"
)

// Version serves the build metadata stamped into the binary.
func Version() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, version.Get())
	}
}
