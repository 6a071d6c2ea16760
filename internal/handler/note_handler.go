package handler

import (
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"denote/internal/contentstore"
	"denote/internal/errors"
	"denote/internal/model"
	"denote/internal/service"
)

// Multipart field names accepted for the uploaded file.
const (
	FileField         = "File_Note"
	FallbackFileField = "file"
)

// NoteHandler handles note endpoints.
type NoteHandler struct {
	noteService service.NoteService
	maxBytes    int64
}

// NewNoteHandler creates a new note handler. maxBytes caps how much of an
// uploaded file is read into memory.
func NewNoteHandler(noteService service.NoteService, maxBytes int64) *NoteHandler {
	return &NoteHandler{noteService: noteService, maxBytes: maxBytes}
}

// CreateNoteResponse is returned after an upload.
type CreateNoteResponse struct {
	CID  string      `json:"cid"`
	Note *model.Note `json:"note"`
}

// ListNotesResponse wraps a note listing.
type ListNotesResponse struct {
	Notes []model.Note `json:"notes"`
}

// NoteResponse is a single note with its gateway URL.
type NoteResponse struct {
	Note *model.Note `json:"note"`
	URL  string      `json:"url,omitempty"`
}

// UpdateRatingRequest represents a rating change.
type UpdateRatingRequest struct {
	Rating *int `json:"rating" validate:"required"`
}

// DeleteNotesRequest lists the notes to delete.
type DeleteNotesRequest struct {
	IDs []string `json:"ids"`
}

// DeleteNotesResponse reports how many notes were deleted.
type DeleteNotesResponse struct {
	DeletedCount int64 `json:"deletedCount"`
}

// Create godoc
// @Summary Upload a note
// @Description Pins the PDF on the content store and records its metadata. A rating sent with the upload is ignored.
// @Tags notes
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param File_Note formData file true "PDF file"
// @Param title formData string true "Title"
// @Param subject formData string true "Subject"
// @Param branch formData string true "Branch"
// @Param sem formData string true "Semester"
// @Param uploader formData string false "Uploader name"
// @Success 201 {object} CreateNoteResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 502 {object} errors.ErrorResponse
// @Router /notes [post]
func (h *NoteHandler) Create(c echo.Context) error {
	identity, err := identityFrom(c)
	if err != nil {
		return err
	}

	file, err := h.readFile(c)
	if err != nil {
		return err
	}

	in := service.NoteInput{
		Title:    c.FormValue("title"),
		Subject:  c.FormValue("subject"),
		Branch:   c.FormValue("branch"),
		Sem:      c.FormValue("sem"),
		Uploader: c.FormValue("uploader"),
	}

	note, err := h.noteService.CreateNote(c.Request().Context(), *identity, in, file)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, CreateNoteResponse{CID: note.CID, Note: note})
}

func (h *NoteHandler) readFile(c echo.Context) (service.FileUpload, error) {
	header, err := c.FormFile(FileField)
	if err != nil {
		header, err = c.FormFile(FallbackFileField)
	}
	if err != nil {
		return service.FileUpload{}, badRequest("file is required")
	}

	f, err := header.Open()
	if err != nil {
		return service.FileUpload{}, badRequest("cannot read uploaded file")
	}
	defer f.Close()

	var r io.Reader = f
	if h.maxBytes > 0 {
		// one extra byte lets the content store see the file is too large
		r = io.LimitReader(f, h.maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return service.FileUpload{}, badRequest("cannot read uploaded file")
	}
	return service.FileUpload{Name: header.Filename, Data: data}, nil
}

// List godoc
// @Summary List notes
// @Description Filters are exact and case-insensitive; results are newest first.
// @Tags notes
// @Produce json
// @Security BearerAuth
// @Param branch query string false "Branch"
// @Param sem query string false "Semester"
// @Param subject query string false "Subject"
// @Success 200 {object} ListNotesResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /notes [get]
func (h *NoteHandler) List(c echo.Context) error {
	var filter model.NoteFilter
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &filter); err != nil {
		return badRequest("invalid query parameters")
	}

	notes, err := h.noteService.QueryNotes(c.Request().Context(), filter)
	if err != nil {
		return respondError(c, err)
	}
	if notes == nil {
		notes = []model.Note{}
	}
	return c.JSON(http.StatusOK, ListNotesResponse{Notes: notes})
}

// Get godoc
// @Summary Get a note
// @Description The id may be a database id or a content identifier.
// @Tags notes
// @Produce json
// @Security BearerAuth
// @Param id path string true "Note id or CID"
// @Success 200 {object} NoteResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /notes/{id} [get]
func (h *NoteHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	var (
		note *model.Note
		err  error
	)
	switch {
	case isUUID(id):
		note, err = h.noteService.GetNote(ctx, id)
	case contentstore.ValidateCID(id) == nil:
		note, err = h.noteService.GetNoteByCID(ctx, id)
	default:
		// no note can carry a key of any other shape
		err = errors.ErrNoteNotFound
	}
	if err != nil {
		return respondError(c, err)
	}

	url, err := h.noteService.ResolveURL(note.CID)
	if err != nil {
		return respondError(c, fmt.Errorf("resolve stored cid %q: %w", note.CID, err))
	}
	return c.JSON(http.StatusOK, NoteResponse{Note: note, URL: url})
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// UpdateRating godoc
// @Summary Rate a note
// @Tags notes
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Note id"
// @Param request body UpdateRatingRequest true "Rating between 0 and 5"
// @Success 200 {object} NoteResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /notes/{id} [patch]
func (h *NoteHandler) UpdateRating(c echo.Context) error {
	var req UpdateRatingRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest("rating is required")
	}

	note, err := h.noteService.UpdateRating(c.Request().Context(), c.Param("id"), *req.Rating)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, NoteResponse{Note: note})
}

// Delete godoc
// @Summary Delete notes
// @Description Deletes the listed notes that exist. Pinned files are not removed.
// @Tags notes
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body DeleteNotesRequest true "Note ids"
// @Success 200 {object} DeleteNotesResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /notes [delete]
func (h *NoteHandler) Delete(c echo.Context) error {
	var req DeleteNotesRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}

	deleted, err := h.noteService.DeleteNotes(c.Request().Context(), req.IDs)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, DeleteNotesResponse{DeletedCount: deleted})
}
