package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"denote/internal/model"
)

// NoteRepository defines note persistence operations.
type NoteRepository interface {
	Create(ctx context.Context, note *model.Note) error
	FindByID(ctx context.Context, id string) (*model.Note, error)
	// FindByCID returns the newest note carrying cid.
	FindByCID(ctx context.Context, cid string) (*model.Note, error)
	// List returns the notes matching filter, newest first.
	List(ctx context.Context, filter model.NoteFilter) ([]model.Note, error)
	UpdateRating(ctx context.Context, id string, rating int) error
	// DeleteByIDs deletes the notes that exist and reports how many there were.
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

type noteRepository struct {
	db *gorm.DB
}

// NewNoteRepository builds a GORM-backed note repository.
func NewNoteRepository(db *gorm.DB) NoteRepository {
	return &noteRepository{db: db}
}

func (r *noteRepository) Create(ctx context.Context, note *model.Note) error {
	return translate(r.db.WithContext(ctx).Create(note).Error)
}

func (r *noteRepository) FindByID(ctx context.Context, id string) (*model.Note, error) {
	var note model.Note
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&note).Error; err != nil {
		return nil, translate(err)
	}
	return &note, nil
}

func (r *noteRepository) FindByCID(ctx context.Context, cid string) (*model.Note, error) {
	var note model.Note
	err := r.db.WithContext(ctx).
		Where("cid = ?", cid).
		Order("created_at DESC").Order("id DESC").
		First(&note).Error
	if err != nil {
		return nil, translate(err)
	}
	return &note, nil
}

func (r *noteRepository) List(ctx context.Context, filter model.NoteFilter) ([]model.Note, error) {
	q := r.db.WithContext(ctx).Model(&model.Note{})
	for column, value := range map[string]string{
		"branch":  filter.Branch,
		"sem":     filter.Sem,
		"subject": filter.Subject,
	} {
		if value = strings.TrimSpace(value); value != "" {
			q = q.Where("LOWER("+column+") = LOWER(?)", value)
		}
	}

	notes := []model.Note{}
	if err := q.Order("created_at DESC").Order("id DESC").Find(&notes).Error; err != nil {
		return nil, err
	}
	return notes, nil
}

func (r *noteRepository) UpdateRating(ctx context.Context, id string, rating int) error {
	res := r.db.WithContext(ctx).Model(&model.Note{}).
		Where("id = ?", id).
		Update("rating", rating)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// MySQL reports zero affected rows when the value is unchanged
		var count int64
		if err := r.db.WithContext(ctx).Model(&model.Note{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
	}
	return nil
}

func (r *noteRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&model.Note{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
