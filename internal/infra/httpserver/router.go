package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	appfiles "github.com/bryanwahyu/sheet-scraper/internal/application/files"
	domain "github.com/bryanwahyu/sheet-scraper/internal/domain/files"
	"github.com/bryanwahyu/sheet-scraper/internal/infra/spreadsheet"
	"github.com/bryanwahyu/sheet-scraper/internal/middleware"
)

type Router struct {
	files    *appfiles.Service
	log      *slog.Logger
	maxBytes int64
}

// NewRouter builds the file API. maxBytes caps the upload body; 0 means no cap.
func NewRouter(files *appfiles.Service, log *slog.Logger, maxBytes int64) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	r := &Router{files: files, log: log, maxBytes: maxBytes}
	mux := chi.NewRouter()

	mux.Post("/upload/", r.wrap(r.handleUpload))
	mux.Get("/scrape-records/", r.wrap(r.handleRecords))
	mux.Get("/files/", r.wrap(r.handleFiles))
	mux.Get("/files/output/", r.wrap(r.handleOutputFiles))
	mux.Get("/files/scrap_records/{file_id}/", r.wrap(r.handleFileRecords))
	mux.Get("/download/{file_id}", r.wrap(r.handleDownload))
	mux.Get("/download/output/{file_id}", r.wrap(r.handleDownloadOutput))

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// httpError carries a status and the detail shown to the client.
type httpError struct {
	status int
	detail string
}

func (e *httpError) Error() string { return e.detail }

func notFound(detail string) error { return &httpError{status: http.StatusNotFound, detail: detail} }

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		var he *httpError
		switch {
		case errors.As(err, &he):
			writeDetail(w, he.status, he.detail)
		case errors.Is(err, domain.ErrQueueFull):
			writeDetail(w, http.StatusServiceUnavailable, "processing queue is full, try again later")
		default:
			r.log.Error("request failed", "method", req.Method, "path", req.URL.Path, "err", err)
			writeDetail(w, http.StatusInternalServerError, "internal server error")
		}
	}
}

// POST /upload/  multipart field "file"
func (r *Router) handleUpload(w http.ResponseWriter, req *http.Request) error {
	if r.maxBytes > 0 {
		if req.ContentLength > r.maxBytes {
			return &httpError{status: http.StatusRequestEntityTooLarge, detail: "file too large"}
		}
		req.Body = http.MaxBytesReader(w, req.Body, r.maxBytes)
	}
	if err := req.ParseMultipartForm(8 << 20); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return &httpError{status: http.StatusRequestEntityTooLarge, detail: "file too large"}
		}
		if !errors.Is(err, http.ErrNotMultipart) {
			return &httpError{status: http.StatusUnprocessableEntity, detail: "invalid multipart body"}
		}
	}
	if req.MultipartForm != nil {
		defer req.MultipartForm.RemoveAll()
	}

	file, header, err := req.FormFile("file")
	if err != nil {
		return &httpError{status: http.StatusUnprocessableEntity, detail: "file is required"}
	}
	defer file.Close()

	name := middleware.SanitizeFilename(filepath.Base(header.Filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return &httpError{status: http.StatusUnprocessableEntity, detail: "file is required"}
	}

	f, err := r.files.Upload(req.Context(), appfiles.UploadCommand{
		Filename:    name,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		return err
	}

	return writeJSON(w, http.StatusOK, map[string]any{
		"file_id":  f.ID,
		"filename": f.InputFilename,
		"status":   "processing",
	})
}

// GET /scrape-records/
func (r *Router) handleRecords(w http.ResponseWriter, req *http.Request) error {
	recs, err := r.files.ListRecords(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, toRecordDTOs(recs))
}

// GET /files/scrap_records/{file_id}/
func (r *Router) handleFileRecords(w http.ResponseWriter, req *http.Request) error {
	id, err := fileID(req)
	if err != nil {
		return err
	}
	recs, err := r.files.ListRecordsByFile(req.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		return notFound("No scrap records found for this file ID")
	}
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, toRecordDTOs(recs))
}

// GET /files/
func (r *Router) handleFiles(w http.ResponseWriter, req *http.Request) error {
	list, err := r.files.List(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, toFileDTOs(list))
}

// GET /files/output/
func (r *Router) handleOutputFiles(w http.ResponseWriter, req *http.Request) error {
	list, err := r.files.ListOutputs(req.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, toFileDTOs(list))
}

// GET /download/{file_id}
func (r *Router) handleDownload(w http.ResponseWriter, req *http.Request) error {
	id, err := fileID(req)
	if err != nil {
		return err
	}
	f, rc, err := r.files.OpenInput(req.Context(), id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return notFound("File not found")
	case errors.Is(err, domain.ErrBlobNotFound):
		return notFound("File missing on server")
	case err != nil:
		return err
	}
	defer rc.Close()
	return r.serveBlob(w, f.InputFilename, rc)
}

// GET /download/output/{file_id}
func (r *Router) handleDownloadOutput(w http.ResponseWriter, req *http.Request) error {
	id, err := fileID(req)
	if err != nil {
		return err
	}
	f, rc, err := r.files.OpenOutput(req.Context(), id)
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNoOutput):
		return notFound("Output file not found")
	case errors.Is(err, domain.ErrBlobNotFound):
		return notFound("Output file missing on server")
	case err != nil:
		return err
	}
	defer rc.Close()
	return r.serveBlob(w, f.OutputFilename, rc)
}

func (r *Router) serveBlob(w http.ResponseWriter, filename string, rc io.Reader) error {
	ct := contentType(filename)
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		// headers are gone, only log
		r.log.Warn("stream download", "filename", filename, "err", err)
	}
	return nil
}

func contentType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".xlsx":
		return spreadsheet.ContentType
	case ".xls":
		return "application/vnd.ms-excel"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func fileID(req *http.Request) (domain.FileID, error) {
	id, err := middleware.ParseFileID(chi.URLParam(req, "file_id"))
	if err != nil {
		return 0, &httpError{status: http.StatusUnprocessableEntity, detail: "invalid file id"}
	}
	return domain.FileID(id), nil
}

type fileDTO struct {
	ID             domain.FileID `json:"id"`
	InputFilename  string        `json:"input_filename"`
	OutputFilename *string       `json:"output_filename"`
	CreatedDate    time.Time     `json:"created_date"`
	Status         domain.Status `json:"status"`
	Checksum       string        `json:"checksum,omitempty"`
	Error          string        `json:"error,omitempty"`
}

func toFileDTOs(list []*domain.File) []fileDTO {
	out := make([]fileDTO, 0, len(list))
	for _, f := range list {
		dto := fileDTO{
			ID:            f.ID,
			InputFilename: f.InputFilename,
			CreatedDate:   f.CreatedAt,
			Status:        f.Status,
			Checksum:      f.Checksum,
			Error:         f.Error,
		}
		if f.HasOutput() {
			name := f.OutputFilename
			dto.OutputFilename = &name
		}
		out = append(out, dto)
	}
	return out
}

type recordDTO struct {
	ID          int64               `json:"id"`
	FileID      domain.FileID       `json:"file_id"`
	ItemID      string              `json:"item_id"`
	Status      domain.RecordStatus `json:"status"`
	CreatedDate time.Time           `json:"created_date"`
}

func toRecordDTOs(recs []*domain.ScrapeRecord) []recordDTO {
	out := make([]recordDTO, 0, len(recs))
	for _, rec := range recs {
		out = append(out, recordDTO{
			ID:          rec.ID,
			FileID:      rec.FileID,
			ItemID:      rec.ItemID,
			Status:      rec.Status,
			CreatedDate: rec.CreatedAt,
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	_ = writeJSON(w, status, map[string]string{"detail": detail})
}
