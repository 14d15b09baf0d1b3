package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/diwan-systems/diwan/internal/middleware"
)

const (
	// queueSize bounds the async write queue; entries beyond it are
	// dropped and counted rather than blocking request handling.
	queueSize = 256
	// maxCapturedBody caps how much of a request or response body is
	// retained for diffing.
	maxCapturedBody = 1 << 20
	// writeTimeout bounds each background persistence attempt.
	writeTimeout = 5 * time.Second
)

// SnapshotFunc fetches the current document for a resource id. The
// Recorder uses it to snapshot the pre-operation state for Edit and
// Delete entries.
type SnapshotFunc func(ctx context.Context, id string) (map[string]any, error)

// Recorder is HTTP middleware that records one audit entry per
// successful mutating request. Writes are queued to a background worker
// so the response is never delayed or failed by auditing.
type Recorder struct {
	repo      Repository
	snapshots map[string]SnapshotFunc
	logger    *slog.Logger
	metrics   *Metrics

	queue chan *Entry
	done  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

// NewRecorder creates a recorder and starts its background writer.
// snapshots maps route segments to pre-state fetchers; segments without
// one still get entries, just without diffs. metrics may be nil.
func NewRecorder(repo Repository, snapshots map[string]SnapshotFunc, logger *slog.Logger, metrics *Metrics) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		repo:      repo,
		snapshots: snapshots,
		logger:    logger,
		metrics:   metrics,
		queue:     make(chan *Entry, queueSize),
		done:      make(chan struct{}),
	}
	r.wg.Add(1)
	go r.write()
	return r
}

// Close stops accepting entries and waits for queued ones to be written.
// The queue channel itself is never closed, so an enqueue racing Close
// at worst drops its entry instead of panicking.
func (rec *Recorder) Close() {
	rec.once.Do(func() {
		close(rec.done)
	})
	rec.wg.Wait()
}

func (rec *Recorder) write() {
	defer rec.wg.Done()
	for {
		select {
		case e := <-rec.queue:
			rec.persist(e)
		case <-rec.done:
			// Drain whatever made it into the queue before shutdown.
			for {
				select {
				case e := <-rec.queue:
					rec.persist(e)
				default:
					return
				}
			}
		}
	}
}

func (rec *Recorder) persist(e *Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	err := rec.repo.Insert(ctx, e)
	cancel()
	if err != nil {
		rec.metrics.recordFailed()
		rec.logger.Error("audit entry persistence failed",
			slog.String("action", e.Action),
			slog.String("resource", e.Resource),
			slog.String("error", err.Error()))
		return
	}
	rec.metrics.recordWritten()
}

// enqueue hands an entry to the background writer, dropping it when the
// queue is full or the recorder is closed.
func (rec *Recorder) enqueue(e *Entry) {
	select {
	case <-rec.done:
		rec.metrics.recordDropped()
		return
	default:
	}
	select {
	case rec.queue <- e:
	default:
		rec.metrics.recordDropped()
		rec.logger.Warn("audit queue full, entry dropped",
			slog.String("action", e.Action),
			slog.String("resource", e.Resource))
	}
}

// captureWriter tees the response body while forwarding context updates
// from inner middleware to the outer request logger.
type captureWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (w *captureWriter) WriteHeader(code int) {
	if w.statusCode == 0 {
		w.statusCode = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *captureWriter) Write(b []byte) (int, error) {
	if w.statusCode == 0 {
		w.statusCode = http.StatusOK
	}
	if w.body.Len() < maxCapturedBody {
		w.body.Write(b[:min(len(b), maxCapturedBody-w.body.Len())])
	}
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) UpdateContext(ctx context.Context) {
	middleware.UpdateResponseContext(w.ResponseWriter, ctx)
}

// Middleware wraps next with audit recording. Non-mutating methods pass
// through untouched.
func (rec *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			next.ServeHTTP(w, r)
			return
		}

		segments := splitPath(r.URL.Path)
		resource := ""
		if len(segments) > 0 {
			resource = segments[0]
		}

		// JSON bodies are read up front and restored so the handler and
		// the recorder both see them. Multipart bodies are left for the
		// handler to parse; their fields are read back afterwards.
		var bodyDoc map[string]any
		if isJSONRequest(r) {
			raw, err := io.ReadAll(io.LimitReader(r.Body, maxCapturedBody))
			if err == nil {
				r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(raw), r.Body))
				_ = json.Unmarshal(raw, &bodyDoc)
			}
		}

		oldDoc := rec.snapshotOld(r, segments, bodyDoc)

		cw := &captureWriter{ResponseWriter: w}
		next.ServeHTTP(cw, r)

		if cw.statusCode < 200 || cw.statusCode >= 300 {
			return
		}

		if bodyDoc == nil && r.MultipartForm != nil {
			bodyDoc = make(map[string]any, len(r.MultipartForm.Value))
			for k, v := range r.MultipartForm.Value {
				if len(v) > 0 {
					bodyDoc[k] = v[0]
				}
			}
		}

		var respDoc map[string]any
		_ = json.Unmarshal(cw.body.Bytes(), &respDoc)

		entry := rec.buildEntry(r, segments, resource, oldDoc, bodyDoc, respDoc)
		rec.enqueue(entry)
	})
}

// snapshotOld fetches the pre-operation state for updates and deletes.
// Unknown segments and fetch failures degrade to nil; the entry is still
// written, just without a diff.
func (rec *Recorder) snapshotOld(r *http.Request, segments []string, bodyDoc map[string]any) map[string]any {
	if r.Method != http.MethodPut && r.Method != http.MethodPatch && r.Method != http.MethodDelete {
		return nil
	}
	if len(segments) == 0 {
		return nil
	}
	snapshot, ok := rec.snapshots[segments[0]]
	if !ok {
		return nil
	}

	id := ""
	if len(segments) > 1 {
		id = segments[1]
	}
	if id == "" && bodyDoc != nil {
		if v := normalize(bodyDoc["id"]); v != "" {
			id = v
		} else if v := normalize(bodyDoc["_id"]); v != "" {
			id = v
		}
	}
	if id == "" {
		return nil
	}

	doc, err := snapshot(r.Context(), id)
	if err != nil {
		rec.logger.Debug("audit pre-state fetch failed",
			slog.String("resource", segments[0]),
			slog.String("id", id),
			slog.String("error", err.Error()))
		return nil
	}
	return doc
}

func (rec *Recorder) buildEntry(r *http.Request, segments []string, resource string, oldDoc, bodyDoc, respDoc map[string]any) *Entry {
	action := ActionUnknown
	switch r.Method {
	case http.MethodPost:
		action = ActionAdd
	case http.MethodPut, http.MethodPatch:
		action = ActionEdit
	case http.MethodDelete:
		action = ActionDelete
	}

	pathID := ""
	if len(segments) > 1 {
		pathID = segments[1]
	}

	var details string
	switch action {
	case ActionAdd:
		id := FindID(respDoc)
		if id == "" {
			id = FindID(bodyDoc)
		}
		if id == "" {
			id = "New Record"
		}
		details = fmt.Sprintf("Added new %s\nID: %s", resource, id)

	case ActionEdit:
		id := FindID(oldDoc)
		if id == "" {
			id = FindID(bodyDoc)
		}
		if id == "" {
			id = pathID
		}
		if id == "" {
			id = "Unknown"
		}
		details = fmt.Sprintf("Updated %s\nID: %s", resource, id)
		if oldDoc != nil {
			// The response is the authoritative post-state when it is a
			// full record; an envelope with a message key is not one.
			newDoc := respDoc
			if newDoc == nil || newDoc["message"] != nil {
				newDoc = merge(oldDoc, bodyDoc)
			}
			if diff := Diff(oldDoc, newDoc); diff != "" {
				details += "\nChanged: " + diff
			}
		}

	case ActionDelete:
		id := FindID(oldDoc)
		if id == "" {
			id = pathID
		}
		if id == "" && bodyDoc != nil {
			id = normalize(bodyDoc["id"])
		}
		if id == "" {
			id = "Unknown"
		}
		details = fmt.Sprintf("Deleted %s\nID: %s", resource, id)

	default:
		details = fmt.Sprintf("Performed %s\non %s", action, r.URL.RequestURI())
	}

	if resource == "" {
		resource = "System"
	}

	username := GuestUser
	var enName, arName string
	if actor, ok := middleware.GetActor(r.Context()); ok {
		username = actor.Username
		enName = actor.EnName
		arName = actor.ArName
	}

	return &Entry{
		User:     username,
		EnName:   enName,
		ArName:   arName,
		Action:   action,
		Resource: resource,
		Details:  details,
		Method:   r.Method,
		URL:      r.URL.RequestURI(),
	}
}

func merge(oldDoc, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(oldDoc)+len(overlay))
	for k, v := range oldDoc {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

func splitPath(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isJSONRequest(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return ct == "" || strings.HasPrefix(ct, "application/json")
}
