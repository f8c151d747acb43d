package student

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"student-records/internal/auth"
	"student-records/internal/httputil"

	"github.com/go-chi/chi/v5"
)

const (
	photoField = "photo"

	defaultMaxUploadBytes = 2 << 20
)

type Handler struct {
	service        Service
	logger         *slog.Logger
	maxUploadBytes int64
}

func NewHandler(service Service, logger *slog.Logger, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &Handler{
		service:        service,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/students", func(r chi.Router) {
		r.Post("/", h.CreateStudent)
		r.Get("/", h.ListStudents)
		r.Route("/{uid}", func(r chi.Router) {
			r.Get("/", h.GetStudent)
			r.Put("/", h.UpdateStudent)
			r.Delete("/", h.DeleteStudent)
			r.Post("/extension", h.AttachExtension)
			r.Put("/extension", h.UpdateExtension)
		})
	})
}

func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	master, photo, err := h.decodeMaster(w, r)
	if err != nil {
		h.rejectDecode(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "creating student", "email", master.Email, "actor", actor(r))
	enrollment, err := h.service.CreateStudent(r.Context(), master, photo)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusCreated, enrollment)
}

func (h *Handler) AttachExtension(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")

	in, err := h.decodeExtension(w, r)
	if err != nil {
		h.rejectDecode(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "attaching extension data", "student_uid", uid, "actor", actor(r))
	enrollment, err := h.service.AttachExtensionData(r.Context(), uid, in)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusCreated, enrollment)
}

func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	h.logger.InfoContext(r.Context(), "fetching all students")

	students, err := h.service.ListStudents(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, students)
}

func (h *Handler) GetStudent(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")

	h.logger.InfoContext(r.Context(), "fetching student", "student_uid", uid)
	view, err := h.service.GetStudent(r.Context(), uid)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, view)
}

func (h *Handler) UpdateStudent(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")

	master, photo, err := h.decodeMaster(w, r)
	if err != nil {
		h.rejectDecode(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "updating student", "student_uid", uid, "actor", actor(r))
	updated, err := h.service.UpdateStudent(r.Context(), uid, master, photo)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, updated)
}

func (h *Handler) UpdateExtension(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")

	in, err := h.decodeExtension(w, r)
	if err != nil {
		h.rejectDecode(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "updating extension data", "student_uid", uid, "actor", actor(r))
	enrollment, err := h.service.UpdateExtensionData(r.Context(), uid, in)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, enrollment)
}

func (h *Handler) DeleteStudent(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")

	h.logger.InfoContext(r.Context(), "deleting student", "student_uid", uid, "actor", actor(r))
	if err := h.service.DeleteStudent(r.Context(), uid); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// masterPayload is the JSON form of a master submission; the photo travels as base64.
type masterPayload struct {
	Master
	Photo *string `json:"photo"`
}

// decodeMaster reads a multipart form (fields plus an optional "photo" file) or a JSON body.
// A nil photo means none was supplied. A body over the upload limit is ErrPhotoTooLarge.
func (h *Handler) decodeMaster(w http.ResponseWriter, r *http.Request) (*Master, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	m, photo, err := h.readMaster(r)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return nil, nil, ErrPhotoTooLarge
	}
	return m, photo, err
}

func (h *Handler) readMaster(r *http.Request) (*Master, []byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var payload masterPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			return nil, nil, err
		}
		m := payload.Master
		if payload.Photo == nil || *payload.Photo == "" {
			return &m, nil, nil
		}
		photo, err := base64.StdEncoding.DecodeString(*payload.Photo)
		if err != nil {
			return nil, nil, err
		}
		return &m, photo, nil
	}

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		return nil, nil, err
	}
	m := new(Master)
	for key, target := range m.formFields() {
		*target = r.FormValue(key)
	}

	file, _, err := r.FormFile(photoField)
	if errors.Is(err, http.ErrMissingFile) {
		return m, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	// one byte past the limit is enough for validation to reject it
	photo, err := io.ReadAll(io.LimitReader(file, MaxPhotoBytes+1))
	if err != nil {
		return nil, nil, err
	}
	if len(photo) == 0 {
		return m, nil, nil
	}
	return m, photo, nil
}

func (h *Handler) decodeExtension(w http.ResponseWriter, r *http.Request) (*ExtensionInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	// an unknown key would otherwise read as "every slot absent" and, under
	// the overwrite policy, clear stored values
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	var in ExtensionInput
	if err := decoder.Decode(&in); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &in, nil
}

func (h *Handler) rejectDecode(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrPhotoTooLarge) {
		h.handleServiceError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "invalid request body", "error", err)
	httputil.RespondWithError(w, http.StatusBadRequest, "Invalid request")
}

// actor names the authenticated caller for write logs; empty when /api runs without auth.
func actor(r *http.Request) string {
	if claims, ok := auth.GetClaims(r.Context()); ok {
		return claims.Subject
	}
	return ""
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case IsValidationError(err):
		h.logger.InfoContext(ctx, "rejected submission", "kind", ErrorKind(err), "error", err)
		httputil.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrDuplicateEmail):
		h.logger.InfoContext(ctx, "duplicate email")
		httputil.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidStage):
		h.logger.InfoContext(ctx, "invalid stage", "error", err)
		httputil.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrStudentNotFound):
		h.logger.InfoContext(ctx, "student not found")
		httputil.RespondWithError(w, http.StatusNotFound, "Student not found")
	case errors.Is(err, ErrStoreUnavailable):
		h.logger.ErrorContext(ctx, "record store unavailable", "error", err)
		httputil.RespondWithError(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
	default:
		h.logger.ErrorContext(ctx, "internal error", "error", err)
		httputil.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}
