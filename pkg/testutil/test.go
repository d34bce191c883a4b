package testutil

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// RateHeaders stamps GitHub-style rate limit headers on a response.
func RateHeaders(response http.ResponseWriter, remaining, limit int64, reset time.Time) {
	response.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	response.Header().Set("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
	response.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
}

// JSONResponse writes a JSON body with default rate headers.
func JSONResponse(response http.ResponseWriter, status int, body string) {
	RateHeaders(response, 4999, 5000, time.Now().Add(time.Hour))
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(status)
	response.Write([]byte(body))
}

// Paged serves a GitHub-style paginated collection. Each argument is one
// page's JSON array; every page but the last carries a rel="next" Link
// header. Out-of-range pages return an empty array.
func Paged(pages ...string) http.HandlerFunc {
	return func(response http.ResponseWriter, request *http.Request) {
		page := 1
		if q := request.URL.Query().Get("page"); q != "" {
			if n, err := strconv.Atoi(q); err == nil {
				page = n
			}
		}
		if page > len(pages) {
			JSONResponse(response, http.StatusOK, "[]")
			return
		}
		if page < len(pages) {
			next := *request.URL
			q := next.Query()
			q.Set("page", strconv.Itoa(page+1))
			next.RawQuery = q.Encode()
			response.Header().Set("Link", fmt.Sprintf(`<%s>; rel="next"`, next.String()))
		}
		JSONResponse(response, http.StatusOK, pages[page-1])
	}
}

// LoadBytes reads a fixture file from a testdata directory.
func LoadBytes(dir, name string) ([]byte, error) {
	path := filepath.Join(dir, name) // relative path
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error loading file %s in directory %s, %v", name, dir, err)
	}
	return bytes, nil
}
