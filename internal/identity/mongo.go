package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/DogukanGun/XReplyAgent/internal/chains"
)

// walletDocument is the per-user document layout shared with the bot
// that registers users: one document per twitter_id, one key pair per
// family. The unprefixed public_key/private_key pair predates per-family
// fields and is still honoured for the hex-keyed families.
type walletDocument struct {
	TwitterID        string    `bson:"twitter_id"`
	Username         string    `bson:"username,omitempty"`
	EthPublicKey     string    `bson:"eth_public_key,omitempty"`
	EthPrivateKey    string    `bson:"eth_private_key,omitempty"`
	SolanaPublicKey  string    `bson:"solana_public_key,omitempty"`
	SolanaPrivateKey string    `bson:"solana_private_key,omitempty"`
	AptosPublicKey   string    `bson:"aptos_public_key,omitempty"`
	AptosPrivateKey  string    `bson:"aptos_private_key,omitempty"`
	PublicKey        string    `bson:"public_key,omitempty"`
	PrivateKey       string    `bson:"private_key,omitempty"`
	CreatedAt        time.Time `bson:"created_at,omitempty"`
}

func familyFields(f chains.Family) (pub, priv string) {
	switch f {
	case chains.FamilyEVM:
		return "eth_public_key", "eth_private_key"
	case chains.FamilySolana:
		return "solana_public_key", "solana_private_key"
	case chains.FamilyAptos:
		return "aptos_public_key", "aptos_private_key"
	}
	return "", ""
}

// record returns the stored credential for f. Documents written before the
// per-family fields existed hold one hex key pair in public_key and
// private_key; it serves evm and aptos when the family's own fields are
// empty. Solana keys are base58 and never come from that pair.
func (d *walletDocument) record(f chains.Family) (*Record, bool) {
	rec := &Record{ExternalID: d.TwitterID, Family: f, CreatedAt: d.CreatedAt}
	switch f {
	case chains.FamilyEVM:
		rec.PublicKey, rec.PrivateKey = d.EthPublicKey, d.EthPrivateKey
	case chains.FamilySolana:
		rec.PublicKey, rec.PrivateKey = d.SolanaPublicKey, d.SolanaPrivateKey
	case chains.FamilyAptos:
		rec.PublicKey, rec.PrivateKey = d.AptosPublicKey, d.AptosPrivateKey
	}
	if rec.PrivateKey == "" && f != chains.FamilySolana {
		rec.PublicKey, rec.PrivateKey = d.PublicKey, d.PrivateKey
	}
	return rec, rec.PrivateKey != ""
}

// MongoStore reads and writes wallet documents in a MongoDB collection.
// The client is created once and shared by all invocations.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// OpenMongo connects to uri, verifies the connection and ensures the
// unique twitter_id index exists.
func OpenMongo(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(10 * time.Second).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "twitter_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ensure twitter_id index: %w", err)
	}

	return &MongoStore{client: client, coll: coll}, nil
}

// Ping checks connectivity for health probes.
func (m *MongoStore) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

// Close disconnects the shared client.
func (m *MongoStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *MongoStore) load(ctx context.Context, externalID string) (*walletDocument, error) {
	var doc walletDocument
	err := m.coll.FindOne(ctx, bson.D{{Key: "twitter_id", Value: externalID}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (m *MongoStore) FindIdentity(ctx context.Context, externalID string, family chains.Family) (*Record, error) {
	doc, err := m.load(ctx, externalID)
	if err != nil {
		return nil, err
	}
	rec, ok := doc.record(family)
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

// CreateIdentity sets the family's key pair on the user's document,
// creating the document if needed. It never overwrites an existing pair.
func (m *MongoStore) CreateIdentity(ctx context.Context, rec *Record) error {
	pubField, privField := familyFields(rec.Family)
	if pubField == "" {
		return fmt.Errorf("unsupported family %q", rec.Family)
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	filter := bson.D{
		{Key: "twitter_id", Value: rec.ExternalID},
		{Key: privField, Value: bson.D{{Key: "$exists", Value: false}}},
	}
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: pubField, Value: rec.PublicKey},
			{Key: privField, Value: rec.PrivateKey},
		}},
		{Key: "$setOnInsert", Value: bson.D{{Key: "created_at", Value: created}}},
	}
	_, err := m.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return ErrAlreadyExists
	}
	return err
}

func (m *MongoStore) ListIdentities(ctx context.Context, externalID string) ([]*Record, error) {
	doc, err := m.load(ctx, externalID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []*Record
	for _, f := range chains.Families {
		if rec, ok := doc.record(f); ok {
			out = append(out, rec)
		}
	}
	sortByFamily(out)
	return out, nil
}
