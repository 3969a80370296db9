package oclient

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ TokenStore = &MongoStore{}

// MongoStore is a MongoDB-backed TokenStore. One document per openid.
type MongoStore struct {
	tokens *mongo.Collection
}

// NewMongoStore creates a store on the oauth_credentials collection of db.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		tokens: db.Collection("oauth_credentials"),
	}
}

// EnsureIndexes creates the unique index on openid.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.tokens.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "openid", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return &StoreError{Op: "index", Err: err}
	}
	return nil
}

// GetToken retrieves the stored credential for openID.
func (s *MongoStore) GetToken(ctx context.Context, openID string) (*Credential, error) {
	var cred Credential
	err := s.tokens.FindOne(ctx, bson.M{"openid": openID}).Decode(&cred)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, &StoreError{Op: "get", OpenID: openID, Err: err}
	}
	return &cred, nil
}

// SaveToken upserts the credential for openID.
func (s *MongoStore) SaveToken(ctx context.Context, openID string, cred *Credential) error {
	filter := bson.M{"openid": openID}
	upd := bson.M{"$set": bson.M{
		"unionid":       cred.UnionID,
		"access_token":  cred.AccessToken,
		"refresh_token": cred.RefreshToken,
		"session_key":   cred.SessionKey,
		"scope":         cred.Scope,
		"expires_in":    cred.ExpiresIn,
		"create_at":     cred.CreateAt,
	}}
	opts := options.Update().SetUpsert(true)
	if _, err := s.tokens.UpdateOne(ctx, filter, upd, opts); err != nil {
		return &StoreError{Op: "save", OpenID: openID, Err: err}
	}
	return nil
}
