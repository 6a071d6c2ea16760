package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"denote/internal/model"
)

const (
	usersCollection = "users"
	notesCollection = "notes"
)

// Strength 2 compares base letters and accents but ignores case.
var caseInsensitive = &options.Collation{Locale: "en", Strength: 2}

var newestFirst = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}

type mongoUserRepository struct {
	coll *mongo.Collection
}

// NewMongoUserRepository builds a MongoDB-backed user repository.
func NewMongoUserRepository(db *mongo.Database) UserRepository {
	return &mongoUserRepository{coll: db.Collection(usersCollection)}
}

func (r *mongoUserRepository) Create(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	_, err := r.coll.InsertOne(ctx, user)
	return translateMongo(err)
}

func (r *mongoUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&user); err != nil {
		return nil, translateMongo(err)
	}
	return &user, nil
}

func (r *mongoUserRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	if err := r.coll.FindOne(ctx, bson.M{"username": username}).Decode(&user); err != nil {
		return nil, translateMongo(err)
	}
	return &user, nil
}

type mongoNoteRepository struct {
	coll *mongo.Collection
}

// NewMongoNoteRepository builds a MongoDB-backed note repository.
func NewMongoNoteRepository(db *mongo.Database) NoteRepository {
	return &mongoNoteRepository{coll: db.Collection(notesCollection)}
}

func (r *mongoNoteRepository) Create(ctx context.Context, note *model.Note) error {
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if note.CreatedAt.IsZero() {
		note.CreatedAt = now
	}
	note.UpdatedAt = now
	_, err := r.coll.InsertOne(ctx, note)
	return translateMongo(err)
}

func (r *mongoNoteRepository) FindByID(ctx context.Context, id string) (*model.Note, error) {
	var note model.Note
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&note); err != nil {
		return nil, translateMongo(err)
	}
	return &note, nil
}

func (r *mongoNoteRepository) FindByCID(ctx context.Context, cid string) (*model.Note, error) {
	var note model.Note
	opts := options.FindOne().SetSort(newestFirst)
	if err := r.coll.FindOne(ctx, bson.M{"cid": cid}, opts).Decode(&note); err != nil {
		return nil, translateMongo(err)
	}
	return &note, nil
}

func (r *mongoNoteRepository) List(ctx context.Context, filter model.NoteFilter) ([]model.Note, error) {
	query := bson.M{}
	for field, value := range map[string]string{
		"branch":  filter.Branch,
		"sem":     filter.Sem,
		"subject": filter.Subject,
	} {
		if value = strings.TrimSpace(value); value != "" {
			query[field] = value
		}
	}

	opts := options.Find().SetSort(newestFirst).SetCollation(caseInsensitive)
	cur, err := r.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	notes := []model.Note{}
	if err := cur.All(ctx, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

func (r *mongoNoteRepository) UpdateRating(ctx context.Context, id string, rating int) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"rating": rating, "updated_at": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoNoteRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func translateMongo(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return ErrDuplicate
	default:
		return err
	}
}
