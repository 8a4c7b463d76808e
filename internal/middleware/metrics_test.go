package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeStatusRecorder struct {
	codes []int
}

func (f *fakeStatusRecorder) RecordHTTPStatus(statusCode int) {
	f.codes = append(f.codes, statusCode)
}

func TestMetricsMiddleware_RecordsStatusCode(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    int
	}{
		{"explicit status", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) }, http.StatusNotFound},
		{"implicit 200", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("{}")) }, http.StatusOK},
		{"no write", func(w http.ResponseWriter, r *http.Request) {}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeStatusRecorder{}
			handler := NewMetricsMiddleware(rec)(tt.handler)

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/x", nil))

			if len(rec.codes) != 1 || rec.codes[0] != tt.want {
				t.Errorf("recorded = %v, want [%d]", rec.codes, tt.want)
			}
		})
	}
}
