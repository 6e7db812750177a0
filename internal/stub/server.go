// Package stub is an in-memory stand-in for the knowledge-base backend.
// It speaks the same wire contract as the real service and is used by
// contract and integration tests.
package stub

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// AskCall records one POST /ask_bot
type AskCall struct {
	Query    string
	Language string
	HasLang  bool
}

// UploadedFile records one part of a POST /admin/upload
type UploadedFile struct {
	Field    string
	Filename string
	Size     int
}

// Backend is a fake answering and ingestion service
type Backend struct {
	mu sync.Mutex

	// Answer builds the /ask_bot reply. Defaults to echoing the query.
	Answer func(query, language string) (response, sourceTitle string)
	// Reject decides per uploaded file whether processing fails; the
	// returned string is the error. Defaults to accepting every file.
	Reject func(filename string, data []byte) string
	failures map[string][]int // path -> queued error statuses
	delays   map[string]time.Duration

	asks    []AskCall
	uploads [][]UploadedFile
	docs    []doc
	nextID  int
	listed  int
}

type doc struct {
	ID        int
	Title     string
	Status    string
	CreatedAt time.Time
}

// New creates an empty backend
func New() *Backend {
	return &Backend{
		failures: make(map[string][]int),
		delays:   make(map[string]time.Duration),
		nextID:   1,
	}
}

// Start serves the backend on a local httptest server
func (b *Backend) Start() *httptest.Server {
	return httptest.NewServer(b.Router())
}

// Router returns the chi router implementing the wire contract
func (b *Backend) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(b.injectFaults)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "Backend is running. Access the frontend to use the chatbot.")
	})
	r.Post("/ask_bot", b.handleAsk)
	r.Route("/admin", func(r chi.Router) {
		r.Post("/upload", b.handleUpload)
		r.Get("/docs", b.handleDocs)
	})
	return r
}

// FailNext queues HTTP statuses returned instead of the normal reply
// for the next requests to path.
func (b *Backend) FailNext(path string, statuses ...int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[path] = append(b.failures[path], statuses...)
}

// Delay holds every request to path for d before answering
func (b *Backend) Delay(path string, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delays[path] = d
}

// AddDocument seeds the registry
func (b *Backend) AddDocument(title, status string, createdAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docs = append(b.docs, doc{ID: b.nextID, Title: title, Status: status, CreatedAt: createdAt})
	b.nextID++
}

// Asks returns every recorded question
func (b *Backend) Asks() []AskCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]AskCall(nil), b.asks...)
}

// Uploads returns every recorded upload batch
func (b *Backend) Uploads() [][]UploadedFile {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]UploadedFile(nil), b.uploads...)
}

// DocListCount returns how many times /admin/docs was served successfully
func (b *Backend) DocListCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listed
}

func (b *Backend) injectFaults(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		delay := b.delays[r.URL.Path]
		var status int
		if queued := b.failures[r.URL.Path]; len(queued) > 0 {
			status = queued[0]
			b.failures[r.URL.Path] = queued[1:]
		}
		b.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if status != 0 {
			http.Error(w, http.StatusText(status), status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) handleAsk(w http.ResponseWriter, r *http.Request) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"response": "Invalid request."})
		return
	}

	var call AskCall
	json.Unmarshal(raw["query"], &call.Query)
	if lang, ok := raw["language"]; ok {
		call.HasLang = true
		json.Unmarshal(lang, &call.Language)
	}
	if call.Query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"response": "Please enter a query."})
		return
	}

	b.mu.Lock()
	b.asks = append(b.asks, call)
	answer := b.Answer
	b.mu.Unlock()

	response, title := "You asked: "+call.Query, ""
	if answer != nil {
		response, title = answer(call.Query, call.Language)
	}

	body := map[string]interface{}{"response": response}
	if title != "" {
		body["source"] = map[string]string{"title": title}
	}
	writeJSON(w, http.StatusOK, body)
}

func (b *Backend) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "No file part"})
		return
	}

	var batch []UploadedFile
	var results []map[string]interface{}
	for field, headers := range r.MultipartForm.File {
		for _, fh := range headers {
			f, err := fh.Open()
			if err != nil {
				continue
			}
			data, _ := io.ReadAll(f)
			f.Close()

			batch = append(batch, UploadedFile{Field: field, Filename: fh.Filename, Size: len(data)})
			if field != "file" {
				continue
			}

			result := map[string]interface{}{"filename": fh.Filename, "processed": true}
			b.mu.Lock()
			reject := b.Reject
			b.mu.Unlock()
			if !strings.HasSuffix(strings.ToLower(fh.Filename), ".pdf") {
				result["processed"] = false
				result["error"] = "Invalid file format"
			} else if reject != nil {
				if msg := reject(fh.Filename, data); msg != "" {
					result["processed"] = false
					result["error"] = msg
				}
			}
			if result["processed"] == true {
				b.AddDocument(fh.Filename, "ready", time.Now().UTC())
			}
			results = append(results, result)
		}
	}

	b.mu.Lock()
	b.uploads = append(b.uploads, batch)
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (b *Backend) handleDocs(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.listed++
	docs := make([]map[string]interface{}, 0, len(b.docs))
	// newest first, like the real service
	for i := len(b.docs) - 1; i >= 0; i-- {
		d := b.docs[i]
		docs = append(docs, map[string]interface{}{
			"id":         d.ID,
			"title":      d.Title,
			"status":     d.Status,
			"created_at": d.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, fmt.Sprintf("encode: %v", err), http.StatusInternalServerError)
	}
}
