package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"denote/internal/auth"
	"denote/internal/cache"
	"denote/internal/contentstore"
	apperr "denote/internal/errors"
	"denote/internal/logging"
	"denote/internal/metrics"
	"denote/internal/model"
	"denote/internal/repository"
)

const (
	noteCacheTTL   = 5 * time.Minute
	maxMetadataLen = 255
)

// ContentStore pins files and builds gateway URLs for their CIDs.
type ContentStore interface {
	Upload(ctx context.Context, data []byte, filename string) (string, error)
	ResolveURL(cid string) (string, error)
}

// NoteInput is the user-supplied metadata of a new note.
type NoteInput struct {
	Title    string
	Subject  string
	Branch   string
	Sem      string
	Uploader string
}

// FileUpload is an uploaded file held in memory.
type FileUpload struct {
	Name string
	Data []byte
}

// NoteService handles note operations.
type NoteService interface {
	// CreateNote pins the file and records the note. Nothing is recorded
	// when pinning fails.
	CreateNote(ctx context.Context, owner auth.Identity, in NoteInput, file FileUpload) (*model.Note, error)
	QueryNotes(ctx context.Context, filter model.NoteFilter) ([]model.Note, error)
	GetNote(ctx context.Context, id string) (*model.Note, error)
	GetNoteByCID(ctx context.Context, cid string) (*model.Note, error)
	UpdateRating(ctx context.Context, id string, rating int) (*model.Note, error)
	// DeleteNotes deletes the notes that exist. It fails only when none do.
	DeleteNotes(ctx context.Context, ids []string) (int64, error)
	ResolveURL(cid string) (string, error)
}

type noteService struct {
	repo  repository.NoteRepository
	store ContentStore
	cache *cache.Client
	now   func() time.Time
}

// NewNoteService creates a new note service. cache may be nil.
func NewNoteService(repo repository.NoteRepository, store ContentStore, cache *cache.Client) NoteService {
	return &noteService{
		repo:  repo,
		store: store,
		cache: cache,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *noteService) cacheKey(id string) string {
	return fmt.Sprintf("note:%s", id)
}

// CreateNote validates metadata, pins the file, then persists the note.
func (s *noteService) CreateNote(ctx context.Context, owner auth.Identity, in NoteInput, file FileUpload) (*model.Note, error) {
	in = normalizeInput(in)
	if err := validateNoteInput(in); err != nil {
		return nil, err
	}
	if len(file.Data) == 0 {
		return nil, apperr.Validation("file is required")
	}

	cid, err := s.store.Upload(ctx, file.Data, file.Name)
	if err != nil {
		return nil, err
	}

	note := &model.Note{
		Title:     in.Title,
		Subject:   in.Subject,
		Branch:    in.Branch,
		Sem:       in.Sem,
		Uploader:  in.Uploader,
		CID:       cid,
		Filename:  file.Name,
		Size:      int64(len(file.Data)),
		Rating:    0,
		CreatedAt: s.now(),
	}
	if err := s.repo.Create(ctx, note); err != nil {
		// the file stays pinned without a record
		logging.Error().Err(err).Str("cid", cid).Str("user_id", owner.UserID).Msg("persist note after pin")
		return nil, fmt.Errorf("create note: %w", err)
	}

	metrics.NotesCreated.Inc()
	logging.Info().
		Str("note_id", note.ID).
		Str("cid", cid).
		Str("user_id", owner.UserID).
		Int64("size", note.Size).
		Msg("note created")
	return note, nil
}

// QueryNotes lists notes matching filter, newest first.
func (s *noteService) QueryNotes(ctx context.Context, filter model.NoteFilter) ([]model.Note, error) {
	filter = model.NoteFilter{
		Branch:  strings.TrimSpace(filter.Branch),
		Sem:     strings.TrimSpace(filter.Sem),
		Subject: strings.TrimSpace(filter.Subject),
	}
	notes, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return notes, nil
}

// GetNote retrieves a note by its database id with caching.
func (s *noteService) GetNote(ctx context.Context, id string) (*model.Note, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperr.ErrNoteNotFound
	}

	var cached model.Note
	if s.cache.GetJSON(ctx, s.cacheKey(id), &cached) {
		return &cached, nil
	}

	note, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}

	s.cache.SetJSONIfAbsent(ctx, s.cacheKey(id), note, noteCacheTTL)
	return note, nil
}

// GetNoteByCID retrieves the newest note carrying cid.
func (s *noteService) GetNoteByCID(ctx context.Context, cid string) (*model.Note, error) {
	cid = strings.TrimSpace(cid)
	if err := contentstore.ValidateCID(cid); err != nil {
		return nil, err
	}
	note, err := s.repo.FindByCID(ctx, cid)
	if err != nil {
		return nil, notFound(err)
	}
	return note, nil
}

// UpdateRating sets the rating of a note.
func (s *noteService) UpdateRating(ctx context.Context, id string, rating int) (*model.Note, error) {
	if rating < model.MinRating || rating > model.MaxRating {
		return nil, apperr.ErrInvalidRating
	}

	note, err := s.repo.FindByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, notFound(err)
	}

	if note.Rating != rating {
		if err := s.repo.UpdateRating(ctx, note.ID, rating); err != nil {
			return nil, notFound(err)
		}
		note.Rating = rating
		note.UpdatedAt = s.now()
	}

	// overwrite, not evict: GetNote only fills an absent key
	s.cache.SetJSON(ctx, s.cacheKey(note.ID), note, noteCacheTTL)
	return note, nil
}

// DeleteNotes removes the given notes. Pinned files are left in place.
func (s *noteService) DeleteNotes(ctx context.Context, ids []string) (int64, error) {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return 0, apperr.Validation("ids must not be empty")
	}

	deleted, err := s.repo.DeleteByIDs(ctx, unique)
	if err != nil {
		return 0, fmt.Errorf("delete notes: %w", err)
	}

	keys := make([]string, 0, len(unique))
	for _, id := range unique {
		keys = append(keys, s.cacheKey(id))
	}
	s.cache.Delete(ctx, keys...)

	if deleted == 0 {
		return 0, apperr.ErrNoteNotFound
	}
	metrics.NotesDeleted.Add(float64(deleted))
	return deleted, nil
}

// ResolveURL returns the gateway URL of cid.
func (s *noteService) ResolveURL(cid string) (string, error) {
	return s.store.ResolveURL(cid)
}

func notFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.ErrNoteNotFound
	}
	return fmt.Errorf("find note: %w", err)
}

func normalizeInput(in NoteInput) NoteInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Subject = strings.TrimSpace(in.Subject)
	in.Branch = strings.TrimSpace(in.Branch)
	in.Sem = strings.TrimSpace(in.Sem)
	in.Uploader = strings.TrimSpace(in.Uploader)
	if in.Uploader == "" {
		in.Uploader = model.DefaultUploader
	}
	return in
}

func validateNoteInput(in NoteInput) error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"branch", in.Branch},
		{"sem", in.Sem},
		{"subject", in.Subject},
		{"title", in.Title},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return apperr.Validation("missing required fields: " + strings.Join(missing, ", "))
	}

	for _, f := range []struct{ name, value string }{
		{"title", in.Title},
		{"subject", in.Subject},
		{"branch", in.Branch},
		{"sem", in.Sem},
		{"uploader", in.Uploader},
	} {
		if len(f.value) > maxMetadataLen {
			return apperr.Validation(fmt.Sprintf("%s must be at most %d characters", f.name, maxMetadataLen))
		}
	}
	return nil
}
