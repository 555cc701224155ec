package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/mic-data-portal/app/observability/metrics"
	"github.com/FACorreiaa/mic-data-portal/internal/types"
)

const usersCollection = "users"

var _ UserRepo = (*MongoUserRepo)(nil)

// UserRepo defines the contract for user persistence. Lookups return
// types.ErrNotFound when nothing matches; any other error means the store
// itself failed.
type UserRepo interface {
	// FindByEmail returns the user with exactly this email. If legacy data
	// holds duplicates, the first-created record wins.
	FindByEmail(ctx context.Context, email string) (*types.User, error)

	// FindByID returns the user with this id.
	FindByID(ctx context.Context, id string) (*types.User, error)

	// CreateUser inserts a user. A duplicate email yields types.ErrConflict.
	CreateUser(ctx context.Context, params types.CreateUserParams) (*types.User, error)

	// DeleteUser removes a user by id.
	DeleteUser(ctx context.Context, id string) error

	// SetAdmin sets or clears the admin flag.
	SetAdmin(ctx context.Context, id string, admin bool) error

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}

// userDocument mirrors the documents in the users collection. Field names
// match the collection layout the portal has always used, so "password"
// holds the bcrypt hash and "date" the creation time.
type userDocument struct {
	ID       bson.ObjectID `bson:"_id,omitempty"`
	Name     string        `bson:"name"`
	Email    string        `bson:"email"`
	Admin    bool          `bson:"admin"`
	Password string        `bson:"password"`
	Date     time.Time     `bson:"date"`
}

func (d *userDocument) toUser() *types.User {
	return &types.User{
		ID:           d.ID.Hex(),
		Name:         d.Name,
		Email:        d.Email,
		Admin:        d.Admin,
		PasswordHash: d.Password,
		CreatedAt:    d.Date,
	}
}

type MongoUserRepo struct {
	logger *slog.Logger
	coll   *mongo.Collection
}

func NewMongoUserRepo(db *mongo.Database, logger *slog.Logger) *MongoUserRepo {
	return &MongoUserRepo{
		logger: logger,
		coll:   db.Collection(usersCollection),
	}
}

func (r *MongoUserRepo) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, semconv.DBSystemMongoDB, attribute.String("db.mongodb.collection", usersCollection))
	return otel.Tracer("UserRepo").Start(ctx, name, trace.WithAttributes(attrs...))
}

// FindByEmail implements user.UserRepo.
func (r *MongoUserRepo) FindByEmail(ctx context.Context, email string) (u *types.User, err error) {
	ctx, span := r.startSpan(ctx, "FindByEmail")
	defer span.End()
	defer recordQuery(ctx, "FindByEmail", time.Now(), &err)

	l := r.logger.With(slog.String("method", "FindByEmail"), slog.String("email", email))
	l.DebugContext(ctx, "Fetching user by email")

	var doc userDocument
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: 1}})
	err = r.coll.FindOne(ctx, bson.D{{Key: "email", Value: email}}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			l.DebugContext(ctx, "No user with that email")
			span.SetStatus(codes.Ok, "User not found")
			return nil, types.ErrNotFound
		}
		l.ErrorContext(ctx, "Failed to query user by email", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("database error fetching user by email: %w", err)
	}

	span.SetStatus(codes.Ok, "User fetched")
	return doc.toUser(), nil
}

// FindByID implements user.UserRepo.
func (r *MongoUserRepo) FindByID(ctx context.Context, id string) (u *types.User, err error) {
	ctx, span := r.startSpan(ctx, "FindByID", attribute.String("db.user.id", id))
	defer span.End()
	defer recordQuery(ctx, "FindByID", time.Now(), &err)

	l := r.logger.With(slog.String("method", "FindByID"), slog.String("userID", id))

	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		l.DebugContext(ctx, "Malformed user id")
		return nil, types.ErrNotFound
	}

	var doc userDocument
	err = r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			span.SetStatus(codes.Ok, "User not found")
			return nil, types.ErrNotFound
		}
		l.ErrorContext(ctx, "Failed to query user by id", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("database error fetching user by id: %w", err)
	}

	span.SetStatus(codes.Ok, "User fetched")
	return doc.toUser(), nil
}

// CreateUser implements user.UserRepo.
func (r *MongoUserRepo) CreateUser(ctx context.Context, params types.CreateUserParams) (u *types.User, err error) {
	ctx, span := r.startSpan(ctx, "CreateUser")
	defer span.End()
	defer recordQuery(ctx, "CreateUser", time.Now(), &err)

	l := r.logger.With(slog.String("method", "CreateUser"), slog.String("email", params.Email))

	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	doc := userDocument{
		Name:     params.Name,
		Email:    params.Email,
		Admin:    params.Admin,
		Password: params.PasswordHash,
		// Mongo keeps millisecond precision
		Date: createdAt.UTC().Truncate(time.Millisecond),
	}

	res, err := r.coll.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			l.WarnContext(ctx, "Email already registered")
			span.SetStatus(codes.Error, "Duplicate email")
			return nil, fmt.Errorf("%w: email %s already registered", types.ErrConflict, params.Email)
		}
		l.ErrorContext(ctx, "Failed to insert user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB insert failed")
		return nil, fmt.Errorf("database error inserting user: %w", err)
	}

	oid, ok := res.InsertedID.(bson.ObjectID)
	if !ok {
		return nil, fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	doc.ID = oid

	l.InfoContext(ctx, "User created", slog.String("userID", oid.Hex()))
	span.SetStatus(codes.Ok, "User created")
	return doc.toUser(), nil
}

// DeleteUser implements user.UserRepo.
func (r *MongoUserRepo) DeleteUser(ctx context.Context, id string) (err error) {
	ctx, span := r.startSpan(ctx, "DeleteUser", attribute.String("db.user.id", id))
	defer span.End()
	defer recordQuery(ctx, "DeleteUser", time.Now(), &err)

	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return types.ErrNotFound
	}

	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to delete user", slog.String("userID", id), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB delete failed")
		return fmt.Errorf("database error deleting user: %w", err)
	}
	if res.DeletedCount == 0 {
		return types.ErrNotFound
	}

	span.SetStatus(codes.Ok, "User deleted")
	return nil
}

// SetAdmin implements user.UserRepo.
func (r *MongoUserRepo) SetAdmin(ctx context.Context, id string, admin bool) (err error) {
	ctx, span := r.startSpan(ctx, "SetAdmin", attribute.String("db.user.id", id), attribute.Bool("user.admin", admin))
	defer span.End()
	defer recordQuery(ctx, "SetAdmin", time.Now(), &err)

	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return types.ErrNotFound
	}

	res, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "admin", Value: admin}}}},
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to update admin flag", slog.String("userID", id), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB update failed")
		return fmt.Errorf("database error updating user: %w", err)
	}
	if res.MatchedCount == 0 {
		return types.ErrNotFound
	}

	span.SetStatus(codes.Ok, "Admin flag updated")
	return nil
}

// Ping implements user.UserRepo.
func (r *MongoUserRepo) Ping(ctx context.Context) error {
	return r.coll.Database().Client().Ping(ctx, readpref.Primary())
}

// recordQuery feeds the shared DB instruments. Not-found is a normal outcome
// and is not counted as an error.
func recordQuery(ctx context.Context, op string, start time.Time, errp *error) {
	m := metrics.Get()
	attrs := metric.WithAttributes(attribute.String("db.operation", op))
	m.DbQueryDurationSeconds.Record(ctx, time.Since(start).Seconds(), attrs)
	if *errp != nil && !errors.Is(*errp, types.ErrNotFound) {
		m.DbQueryErrorsTotal.Add(ctx, 1, attrs)
	}
}
