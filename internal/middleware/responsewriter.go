package middleware

import (
	"net/http"
	"sync"
)

var recorderPool = sync.Pool{
	New: func() any { return &StatusRecorder{} },
}

// StatusRecorder wraps an http.ResponseWriter and records the status code
// and bytes written.
type StatusRecorder struct {
	http.ResponseWriter
	Status        int
	BytesWritten  int64
	headerWritten bool
}

// GetStatusRecorder returns a pooled recorder wrapping w.
func GetStatusRecorder(w http.ResponseWriter) *StatusRecorder {
	rec := recorderPool.Get().(*StatusRecorder)
	rec.ResponseWriter = w
	rec.Status = http.StatusOK
	rec.BytesWritten = 0
	rec.headerWritten = false
	return rec
}

// PutStatusRecorder returns a recorder to the pool.
func PutStatusRecorder(rec *StatusRecorder) {
	rec.ResponseWriter = nil
	recorderPool.Put(rec)
}

func (rec *StatusRecorder) WriteHeader(code int) {
	if !rec.headerWritten {
		rec.Status = code
		rec.headerWritten = true
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *StatusRecorder) Write(b []byte) (int, error) {
	if !rec.headerWritten {
		rec.WriteHeader(http.StatusOK)
	}
	n, err := rec.ResponseWriter.Write(b)
	rec.BytesWritten += int64(n)
	return n, err
}

func (rec *StatusRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
