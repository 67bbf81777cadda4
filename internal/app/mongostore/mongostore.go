/*
Package mongostore is the MongoDB backend. Users embed their adjacency arrays, connection
requests live in their own collection with a unique index on the unordered pair, and messages
are one document each.

MongoDB offers no multi-document atomicity without a replica set, so every mutation that
touches two documents is a sequence of idempotent $addToSet / $pull updates. A retry after a
partial failure converges on the same state.
*/
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pingup/internal/app/chat"
	"pingup/internal/app/graph"
	"pingup/internal/app/store"
	"pingup/internal/app/user"
	"pingup/internal/pkg/logx"
)

const (
	usersCollection       = "users"
	connectionsCollection = "connections"
	messagesCollection    = "messages"
)

// requestDoc stores a request with its canonical pair key.
type requestDoc struct {
	graph.Request `bson:",inline"`
	Pair          string `bson:"pair"`
}

// Store implements the user, message and connection stores on MongoDB.
type Store struct {
	client      *mongo.Client
	users       *mongo.Collection
	connections *mongo.Collection
	messages    *mongo.Collection
}

// Open connects to uri, selects database and ensures the indexes exist.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:      client,
		users:       db.Collection(usersCollection),
		connections: db.Collection(connectionsCollection),
		messages:    db.Collection(messagesCollection),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}

	logx.Info("MongoDB store ready", "database", database)
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.connections.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "pair", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "to_user_id", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "from_user_id", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create connection indexes: %w", err)
	}

	_, err = s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "from_user_id", Value: 1}, {Key: "to_user_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "to_user_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return store.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return store.ErrDuplicate
	}
	return err
}

// --- users ---

func (s *Store) UpsertProfile(ctx context.Context, p user.Profile, at time.Time) (user.User, error) {
	set := bson.M{"username": p.Username, "full_name": p.FullName}
	update := bson.M{
		"$set": set,
		"$setOnInsert": bson.M{
			"created_at":  at,
			"following":   bson.A{},
			"followers":   bson.A{},
			"connections": bson.A{},
		},
	}
	if p.ProfilePicture != "" {
		set["profile_picture"] = p.ProfilePicture
	} else {
		update["$unset"] = bson.M{"profile_picture": ""}
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var u user.User
	if err := s.users.FindOneAndUpdate(ctx, bson.M{"_id": p.ID}, update, opts).Decode(&u); err != nil {
		return user.User{}, fmt.Errorf("upsert user: %w", err)
	}
	return normalize(u), nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	var u user.User
	if err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return user.User{}, translate(err)
	}
	return normalize(u), nil
}

// normalize sorts the adjacency arrays and replaces nil with empty slices.
func normalize(u user.User) user.User {
	for _, ids := range []*[]string{&u.Following, &u.Followers, &u.Connections} {
		if *ids == nil {
			*ids = []string{}
		}
		sort.Strings(*ids)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u
}

func (s *Store) Profiles(ctx context.Context, ids []string) (map[string]user.Profile, error) {
	out := make(map[string]user.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	opts := options.Find().SetProjection(bson.M{"username": 1, "full_name": 1, "profile_picture": 1})
	cursor, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, fmt.Errorf("find profiles: %w", err)
	}

	var profiles []user.Profile
	if err := cursor.All(ctx, &profiles); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}
	for _, p := range profiles {
		out[p.ID] = p
	}
	return out, nil
}

// --- messages ---

func (s *Store) CreateMessage(ctx context.Context, m chat.Message) error {
	if _, err := s.messages.InsertOne(ctx, m); err != nil {
		if mapped := translate(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *Store) findMessages(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]chat.Message, error) {
	cursor, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}

	var out []chat.Message
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	for i := range out {
		out[i].CreatedAt = out[i].CreatedAt.UTC()
	}
	return out, nil
}

func (s *Store) Conversation(ctx context.Context, a, b string) ([]chat.Message, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"from_user_id": a, "to_user_id": b},
		bson.M{"from_user_id": b, "to_user_id": a},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	return s.findMessages(ctx, filter, opts)
}

func (s *Store) MarkSeen(ctx context.Context, from, to string) (int64, error) {
	res, err := s.messages.UpdateMany(ctx,
		bson.M{"from_user_id": from, "to_user_id": to, "seen": false},
		bson.M{"$set": bson.M{"seen": true}})
	if err != nil {
		return 0, fmt.Errorf("mark seen: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *Store) Inbox(ctx context.Context, userID string, limit int) ([]chat.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.findMessages(ctx, bson.M{"to_user_id": userID}, opts)
}

// --- connection requests ---

func decodeRequest(d requestDoc) graph.Request {
	r := d.Request
	r.CreatedAt, r.UpdatedAt = r.CreatedAt.UTC(), r.UpdatedAt.UTC()
	return r
}

func (s *Store) FindRequest(ctx context.Context, a, b string) (graph.Request, error) {
	var d requestDoc
	if err := s.connections.FindOne(ctx, bson.M{"pair": graph.PairKey(a, b)}).Decode(&d); err != nil {
		return graph.Request{}, translate(err)
	}
	return decodeRequest(d), nil
}

func (s *Store) CreateRequest(ctx context.Context, r graph.Request) error {
	if _, err := s.connections.InsertOne(ctx, requestDoc{Request: r, Pair: graph.PairKey(r.From, r.To)}); err != nil {
		if mapped := translate(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

func (s *Store) CountRequestsSince(ctx context.Context, from string, since time.Time) (int, error) {
	n, err := s.connections.CountDocuments(ctx, bson.M{"from_user_id": from, "created_at": bson.M{"$gte": since}})
	if err != nil {
		return 0, fmt.Errorf("count requests: %w", err)
	}
	return int(n), nil
}

func (s *Store) PendingRequestsTo(ctx context.Context, userID string) ([]graph.Request, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.connections.Find(ctx, bson.M{"to_user_id": userID, "status": graph.StatusPending}, opts)
	if err != nil {
		return nil, fmt.Errorf("find pending requests: %w", err)
	}

	var docs []requestDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode requests: %w", err)
	}

	out := make([]graph.Request, 0, len(docs))
	for _, d := range docs {
		out = append(out, decodeRequest(d))
	}
	return out, nil
}

func (s *Store) DeletePendingRequest(ctx context.Context, from, to string) (bool, error) {
	res, err := s.connections.DeleteOne(ctx, bson.M{
		"pair":         graph.PairKey(from, to),
		"from_user_id": from,
		"to_user_id":   to,
		"status":       graph.StatusPending,
	})
	if err != nil {
		return false, fmt.Errorf("delete request: %w", err)
	}
	return res.DeletedCount > 0, nil
}

// --- adjacency ---

func (s *Store) requireUsers(ctx context.Context, a, b string) error {
	n, err := s.users.CountDocuments(ctx, bson.M{"_id": bson.M{"$in": bson.A{a, b}}})
	if err != nil {
		return fmt.Errorf("check users: %w", err)
	}
	if n != 2 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) addToSet(ctx context.Context, userID, field, otherID string) (bool, error) {
	res, err := s.users.UpdateByID(ctx, userID, bson.M{"$addToSet": bson.M{field: otherID}})
	if err != nil {
		return false, fmt.Errorf("add %s: %w", field, err)
	}
	return res.ModifiedCount > 0, nil
}

func (s *Store) Follow(ctx context.Context, from, to string) (bool, error) {
	if err := s.requireUsers(ctx, from, to); err != nil {
		return false, err
	}

	added, err := s.addToSet(ctx, from, "following", to)
	if err != nil {
		return false, err
	}
	if _, err := s.addToSet(ctx, to, "followers", from); err != nil {
		return false, err
	}
	return added, nil
}

func (s *Store) Connect(ctx context.Context, id, a, b string, at time.Time) error {
	if err := s.requireUsers(ctx, a, b); err != nil {
		return err
	}

	filter := bson.M{"_id": id, "pair": graph.PairKey(a, b), "status": graph.StatusPending}
	n, err := s.connections.CountDocuments(ctx, filter)
	if err != nil {
		return fmt.Errorf("find request: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}

	// The request flips to accepted last, so a failed attempt stays pending and can be retried.
	if _, err := s.addToSet(ctx, a, "connections", b); err != nil {
		return err
	}
	if _, err := s.addToSet(ctx, b, "connections", a); err != nil {
		return err
	}

	res, err := s.connections.UpdateOne(ctx, filter,
		bson.M{"$set": bson.M{"status": graph.StatusAccepted, "updated_at": at}})
	if err != nil {
		return fmt.Errorf("accept request: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Disconnect(ctx context.Context, a, b string) (bool, error) {
	if err := s.requireUsers(ctx, a, b); err != nil {
		return false, err
	}

	removed := false
	for _, side := range [][2]string{{a, b}, {b, a}} {
		pull := bson.M{"$pull": bson.M{
			"following":   side[1],
			"followers":   side[1],
			"connections": side[1],
		}}
		res, err := s.users.UpdateByID(ctx, side[0], pull)
		if err != nil {
			return false, fmt.Errorf("pull edges: %w", err)
		}
		removed = removed || res.ModifiedCount > 0
	}

	res, err := s.connections.DeleteOne(ctx, bson.M{
		"pair": graph.PairKey(a, b),
		"$or": bson.A{
			bson.M{"from_user_id": a, "to_user_id": b},
			bson.M{"from_user_id": b, "to_user_id": a},
		},
	})
	if err != nil {
		return false, fmt.Errorf("delete request: %w", err)
	}
	return removed || res.DeletedCount > 0, nil
}
