package repo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ovaphlow/pitchfork/service-community-gate/internal/user/entity"
)

// CollectionName holds the user documents.
const CollectionName = "users"

type userDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	entity.User `bson:",inline"`
}

func (d *userDoc) toEntity() *entity.User {
	u := d.User
	u.ID = d.ID.Hex()
	return &u
}

// MongoStore keeps users as documents; ids are ObjectID hex strings.
type MongoStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return newMongoStore(db.Collection(CollectionName))
}

func newMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: coll, now: time.Now}
}

// EnsureIndexes creates the unique email index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.D) (*entity.User, error) {
	var d userDoc
	if err := s.coll.FindOne(ctx, filter).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return d.toEntity(), nil
}

func (s *MongoStore) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	return s.findOne(ctx, bson.D{{Key: "email", Value: email}})
}

func (s *MongoStore) FindByID(ctx context.Context, id string) (*entity.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, bson.D{{Key: "_id", Value: oid}})
}

func (s *MongoStore) Insert(ctx context.Context, u *entity.User) (string, error) {
	now := s.now().UTC()
	d := userDoc{ID: primitive.NewObjectID(), User: *u}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	if _, err := s.coll.InsertOne(ctx, d); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", ErrDuplicate
		}
		return "", err
	}
	u.ID = d.ID.Hex()
	u.CreatedAt = d.CreatedAt
	u.UpdatedAt = d.UpdatedAt
	return u.ID, nil
}

// updateDoc renders p as $set / $unset.
func updateDoc(p Patch, now time.Time) bson.D {
	set := bson.D{}
	str := func(key string, v *string) {
		if v != nil {
			set = append(set, bson.E{Key: key, Value: *v})
		}
	}
	str("firstName", p.FirstName)
	str("lastName", p.LastName)
	str("avatar", p.Avatar)
	str("bio", p.Bio)
	str("location", p.Location)
	str("phone", p.Phone)
	if p.Preferences != nil {
		set = append(set, bson.E{Key: "preferences", Value: *p.Preferences})
	}
	if p.LastLoginAt != nil {
		set = append(set, bson.E{Key: "lastLoginAt", Value: *p.LastLoginAt})
	}
	set = append(set, bson.E{Key: "updatedAt", Value: now})

	update := bson.D{{Key: "$set", Value: set}}
	unset := bson.D{}
	if p.ClearLockout {
		unset = append(unset, bson.E{Key: "loginAttempts", Value: ""}, bson.E{Key: "lockUntil", Value: ""})
	}
	if p.ClearVerification {
		unset = append(unset, bson.E{Key: "emailVerificationToken", Value: ""}, bson.E{Key: "emailVerificationExpiry", Value: ""})
	}
	if len(unset) > 0 {
		update = append(update, bson.E{Key: "$unset", Value: unset})
	}
	return update
}

func (s *MongoStore) Update(ctx context.Context, id string, p Patch) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	res, err := s.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: oid}}, updateDoc(p, s.now().UTC()))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// RegisterFailedLogin uses an update pipeline so the increment and the lock
// decision see the same document version.
func (s *MongoStore) RegisterFailedLogin(ctx context.Context, id string, maxAttempts int, lockUntil, now time.Time) (int, bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return 0, false, ErrNotFound
	}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "loginAttempts", Value: bson.D{{Key: "$add", Value: bson.A{
				bson.D{{Key: "$ifNull", Value: bson.A{"$loginAttempts", 0}}}, 1,
			}}}},
			{Key: "updatedAt", Value: now},
		}}},
		{{Key: "$set", Value: bson.D{
			{Key: "lockUntil", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$gte", Value: bson.A{"$loginAttempts", maxAttempts}}}, lockUntil, "$lockUntil",
			}}}},
		}}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d userDoc
	if err := s.coll.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: oid}}, pipeline, opts).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, false, ErrNotFound
		}
		return 0, false, err
	}
	return d.LoginAttempts, d.LoginAttempts >= maxAttempts, nil
}

func (s *MongoStore) ConsumeVerification(ctx context.Context, email, token string, now time.Time) (*entity.User, error) {
	filter := bson.D{
		{Key: "email", Value: email},
		{Key: "emailVerificationToken", Value: token},
		{Key: "emailVerificationExpiry", Value: bson.D{{Key: "$gt", Value: now}}},
	}
	update := bson.D{
		{Key: "$set", Value: bson.D{{Key: "isEmailVerified", Value: true}, {Key: "updatedAt", Value: now}}},
		{Key: "$unset", Value: bson.D{{Key: "emailVerificationToken", Value: ""}, {Key: "emailVerificationExpiry", Value: ""}}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d userDoc
	if err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return d.toEntity(), nil
}

func (s *MongoStore) AddScore(ctx context.Context, id string, delta int, now time.Time) (int, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return 0, ErrNotFound
	}
	update := bson.D{
		{Key: "$inc", Value: bson.D{{Key: "communityScore", Value: delta}}},
		{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: now}}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d userDoc
	if err := s.coll.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: oid}}, update, opts).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return d.CommunityScore, nil
}
