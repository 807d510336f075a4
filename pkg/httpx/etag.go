package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ETag returns a strong entity tag for the JSON encoding of v.
func ETag(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`"%016x"`, xxhash.Sum64(b)), nil
}

// NotModified reports whether the request's If-None-Match matches tag.
func NotModified(r *http.Request, tag string) bool {
	header := r.Header.Get("If-None-Match")
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == tag {
			return true
		}
	}
	return false
}

// RespondTagged writes data with an ETag computed from tagSource, or a bare
// 304 when the client already holds that version.
func RespondTagged(w http.ResponseWriter, r *http.Request, data, tagSource any) {
	tag, err := ETag(tagSource)
	if err != nil {
		RespondJSON(w, http.StatusOK, data)
		return
	}
	w.Header().Set("ETag", tag)
	w.Header().Set("Cache-Control", "no-cache")
	if NotModified(r, tag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	RespondJSON(w, http.StatusOK, data)
}
