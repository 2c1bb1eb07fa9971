package record

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo persists records as documents in the "students" collection.
type Mongo struct {
	col     *mongo.Collection
	timeout time.Duration
}

type studentDoc struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	SchoolName string             `bson:"schoolName"`
	ClassName  string             `bson:"className"`
	Section    string             `bson:"section"`
	Name       string             `bson:"name"`
	RollNumber string             `bson:"rollNumber"`
	Department string             `bson:"department"`
	Year       string             `bson:"year"`
	ImageURL   *string            `bson:"imageUrl"`
	CreatedAt  time.Time          `bson:"timestamp"`
}

// NewMongo uses the students collection of db.
func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{col: db.Collection(Collection), timeout: 10 * time.Second}
}

// Ping checks the server behind the collection.
func (m *Mongo) Ping(ctx context.Context) error {
	return m.col.Database().Client().Ping(ctx, nil)
}

// Insert writes one document and returns the record with its ObjectID hex as ID.
func (m *Mongo) Insert(ctx context.Context, s Student) (Student, error) {
	if err := s.Validate(); err != nil {
		return Student{}, err
	}
	s = stamp(s)

	queryCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	res, err := m.col.InsertOne(queryCtx, toDoc(s))
	if err != nil {
		return Student{}, fmt.Errorf("mongo: insert student: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		s.ID = oid.Hex()
	}
	return s, nil
}

// ListAll returns every document sorted by submission time.
func (m *Mongo) ListAll(ctx context.Context) ([]Student, error) {
	queryCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	findOptions := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := m.col.Find(queryCtx, bson.D{}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("mongo: list students: %w", err)
	}
	defer cursor.Close(queryCtx)

	var docs []studentDoc
	if err := cursor.All(queryCtx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: decode students: %w", err)
	}
	res := make([]Student, 0, len(docs))
	for _, d := range docs {
		res = append(res, fromDoc(d))
	}
	return res, nil
}

func toDoc(s Student) studentDoc {
	d := studentDoc{
		SchoolName: s.SchoolName,
		ClassName:  s.ClassName,
		Section:    s.Section,
		Name:       s.Name,
		RollNumber: s.RollNumber,
		Department: s.Department,
		Year:       s.Year,
		ImageURL:   s.ImageURL,
		CreatedAt:  s.CreatedAt,
	}
	if oid, err := primitive.ObjectIDFromHex(s.ID); err == nil {
		d.ID = oid
	}
	return d
}

func fromDoc(d studentDoc) Student {
	s := Student{
		SchoolName: d.SchoolName,
		ClassName:  d.ClassName,
		Section:    d.Section,
		Name:       d.Name,
		RollNumber: d.RollNumber,
		Department: d.Department,
		Year:       d.Year,
		ImageURL:   d.ImageURL,
		CreatedAt:  d.CreatedAt.UTC(),
	}
	if !d.ID.IsZero() {
		s.ID = d.ID.Hex()
	}
	return s
}
