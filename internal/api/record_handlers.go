package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/diwan-systems/diwan/internal/blob"
	"github.com/diwan-systems/diwan/internal/middleware"
	"github.com/diwan-systems/diwan/internal/record"
	"github.com/diwan-systems/diwan/internal/serial"
)

// fileField is the multipart field carrying a record attachment.
const fileField = "file"

// RecordHandlers serves the CRUD endpoints shared by all registered
// resource types. The concrete type comes from the route segment.
type RecordHandlers struct {
	repo  record.Repository
	gen   *serial.Generator
	blobs blob.Store
}

// NewRecordHandlers creates a new RecordHandlers instance. blobs may be
// nil, in which case uploads are rejected.
func NewRecordHandlers(repo record.Repository, gen *serial.Generator, blobs blob.Store) *RecordHandlers {
	return &RecordHandlers{repo: repo, gen: gen, blobs: blobs}
}

// parseFields reads the business fields from a JSON or multipart body.
// Multipart string values that look like JSON arrays or objects are
// decoded, so structured subdocuments survive form encoding.
func parseFields(r *http.Request) (map[string]any, *multipart.FileHeader, error) {
	ct := r.Header.Get("Content-Type")

	if strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseMultipartForm(blob.MaxAttachmentSize); err != nil {
			return nil, nil, err
		}
		fields := make(map[string]any, len(r.MultipartForm.Value))
		for k, vs := range r.MultipartForm.Value {
			if len(vs) == 0 {
				continue
			}
			fields[k] = decodeFormValue(vs[0])
		}
		var file *multipart.FileHeader
		if fhs := r.MultipartForm.File[fileField]; len(fhs) > 0 {
			file = fhs[0]
		}
		return fields, file, nil
	}

	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		return nil, nil, err
	}
	return fields, nil, nil
}

func decodeFormValue(s string) any {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return s
}

// stripEnvelope removes the keys the store manages itself.
func stripEnvelope(fields map[string]any) {
	for _, k := range []string{"_id", "id", "fileUrl", "createdBy", "createdAt", "updatedAt"} {
		delete(fields, k)
	}
}

func (h *RecordHandlers) upload(r *http.Request, fh *multipart.FileHeader) (string, error) {
	if h.blobs == nil {
		return "", errors.New("attachment storage not configured")
	}
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, blob.MaxAttachmentSize+1))
	if err != nil {
		return "", err
	}
	if len(data) > blob.MaxAttachmentSize {
		return "", fmt.Errorf("attachment exceeds %d bytes", blob.MaxAttachmentSize)
	}

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return h.blobs.Put(r.Context(), blob.NewObjectKey(), data, contentType)
}

// List handles GET /{resource}.
func (h *RecordHandlers) List(w http.ResponseWriter, r *http.Request) {
	typ, ok := record.TypeFor(r.PathValue("resource"))
	if !ok {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Unknown resource")
		return
	}

	records, err := h.repo.List(r.Context(), typ.Name)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Something went wrong")
		return
	}

	docs := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		docs = append(docs, rec.Document())
	}
	WriteJSON(w, http.StatusOK, docs)
}

// Get handles GET /{resource}/{id}.
func (h *RecordHandlers) Get(w http.ResponseWriter, r *http.Request) {
	typ, ok := record.TypeFor(r.PathValue("resource"))
	if !ok {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Unknown resource")
		return
	}

	rec, err := h.repo.GetByID(r.Context(), typ.Name, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Record not found")
			return
		}
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Something went wrong")
		return
	}
	WriteJSON(w, http.StatusOK, rec.Document())
}

// Create handles POST /{resource}.
func (h *RecordHandlers) Create(w http.ResponseWriter, r *http.Request) {
	typ, ok := record.TypeFor(r.PathValue("resource"))
	if !ok {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Unknown resource")
		return
	}

	fields, fh, err := parseFields(r)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}
	stripEnvelope(fields)
	if len(fields) == 0 && fh == nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "All fields are required")
		return
	}

	rec := &record.Record{Type: typ.Name, Fields: fields}
	if actor, ok := middleware.GetActor(r.Context()); ok {
		rec.CreatedBy = actor.UserID
	}

	if fh != nil {
		url, err := h.upload(r, fh)
		if err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "File upload failed")
			return
		}
		rec.FileURL = url
	}

	if err := h.gen.CreateWithSerial(r.Context(), h.repo, rec); err != nil {
		if errors.Is(err, record.ErrDuplicateSerial) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeConflict)
			WriteError(w, ctx, http.StatusConflict, ErrCodeConflict, "Duplicate identifier! Please check")
			return
		}
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Something went wrong")
		return
	}

	WriteJSON(w, http.StatusCreated, rec.Document())
}

// Update handles PATCH /{resource}/{id}. Body fields overlay the stored
// ones; omitted fields, the identifier included, keep their values.
func (h *RecordHandlers) Update(w http.ResponseWriter, r *http.Request) {
	typ, ok := record.TypeFor(r.PathValue("resource"))
	if !ok {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Unknown resource")
		return
	}

	rec, err := h.repo.GetByID(r.Context(), typ.Name, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Record not found")
			return
		}
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Something went wrong")
		return
	}

	fields, fh, err := parseFields(r)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}
	stripEnvelope(fields)
	if len(fields) == 0 && fh == nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "All fields are required")
		return
	}

	for k, v := range fields {
		rec.Fields[k] = v
	}
	if fh != nil {
		url, err := h.upload(r, fh)
		if err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "File upload failed")
			return
		}
		rec.FileURL = url
	}

	if err := h.repo.Update(r.Context(), rec); err != nil {
		if errors.Is(err, record.ErrDuplicateSerial) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeConflict)
			WriteError(w, ctx, http.StatusConflict, ErrCodeConflict, "Duplicate identifier! Please check")
			return
		}
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Something went wrong")
		return
	}

	WriteJSON(w, http.StatusOK, rec.Document())
}

// DeleteRecordRequest is the body for DELETE /{resource}.
type DeleteRecordRequest struct {
	ID string `json:"id"`
}

// Delete handles DELETE /{resource}. The target id travels in the body.
func (h *RecordHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	typ, ok := record.TypeFor(r.PathValue("resource"))
	if !ok {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Unknown resource")
		return
	}

	var req DeleteRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Record ID required")
		return
	}

	rec, err := h.repo.GetByID(r.Context(), typ.Name, req.ID)
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Record not found")
			return
		}
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Something went wrong")
		return
	}

	if err := h.repo.Delete(r.Context(), typ.Name, rec.ID); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Something went wrong")
		return
	}

	display := rec.Serial()
	if display == "" {
		display = rec.ID
	}
	WriteMessage(w, http.StatusOK, fmt.Sprintf("Record with ID %s deleted", display))
}
