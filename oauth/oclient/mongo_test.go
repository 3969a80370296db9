package oclient

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestNewMongoStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.ClearCollections()

	mt.Run("success", func(mt *mtest.T) {
		store := NewMongoStore(mt.DB)
		if store.tokens == nil {
			mt.Fatal("store.tokens is nil")
		}
		if store.tokens.Name() != "oauth_credentials" {
			mt.Errorf("unexpected collection %q", store.tokens.Name())
		}
	})
}

func TestMongoStore_EnsureIndexes(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.ClearCollections()

	mt.Run("success", func(mt *mtest.T) {
		store := NewMongoStore(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		if err := store.EnsureIndexes(context.Background()); err != nil {
			mt.Fatalf("EnsureIndexes failed: %v", err)
		}
	})

	mt.Run("error", func(mt *mtest.T) {
		store := NewMongoStore(mt.DB)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 1, Message: "index error"}))
		err := store.EnsureIndexes(context.Background())
		var se *StoreError
		if !errors.As(err, &se) {
			mt.Fatalf("expected StoreError, got %v", err)
		}
	})
}

func TestMongoStore_GetToken(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.ClearCollections()

	mt.Run("success", func(mt *mtest.T) {
		store := NewMongoStore(mt.DB)
		doc := bson.D{
			{Key: "openid", Value: "OPENID"},
			{Key: "unionid", Value: "UNIONID"},
			{Key: "access_token", Value: "ACCESS_TOKEN"},
			{Key: "refresh_token", Value: "REFRESH_TOKEN"},
			{Key: "scope", Value: "snsapi_userinfo"},
			{Key: "expires_in", Value: int64(7200)},
			{Key: "create_at", Value: int64(1700000000000)},
		}
		mt.AddMockResponses(mtest.CreateCursorResponse(1, "foo.bar", mtest.FirstBatch, doc))

		cred, err := store.GetToken(context.Background(), "OPENID")
		if err != nil {
			mt.Fatalf("GetToken failed: %v", err)
		}
		if cred == nil {
			mt.Fatal("GetToken returned nil")
		}
		if cred.AccessToken != "ACCESS_TOKEN" || cred.RefreshToken != "REFRESH_TOKEN" {
			mt.Errorf("token mismatch: %+v", cred)
		}
		if cred.ExpiresIn != 7200 || cred.CreateAt != 1700000000000 {
			mt.Errorf("lifetime mismatch: %+v", cred)
		}
		if cred.UnionID != "UNIONID" {
			mt.Errorf("expected unionid UNIONID, got %s", cred.UnionID)
		}
	})

	mt.Run("not found", func(mt *mtest.T) {
		store := NewMongoStore(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "foo.bar", mtest.FirstBatch))

		cred, err := store.GetToken(context.Background(), "nobody")
		if err != nil {
			mt.Fatalf("GetToken failed for not found case: %v", err)
		}
		if cred != nil {
			mt.Error("GetToken returned a credential for an unknown openid")
		}
	})

	mt.Run("find error", func(mt *mtest.T) {
		store := NewMongoStore(mt.DB)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 1, Message: "test error"}))

		_, err := store.GetToken(context.Background(), "OPENID")
		var se *StoreError
		if !errors.As(err, &se) {
			mt.Fatalf("expected StoreError, got %v", err)
		}
		if se.Op != "get" || se.OpenID != "OPENID" {
			mt.Errorf("unexpected StoreError %+v", se)
		}
		if !strings.Contains(err.Error(), "test error") {
			mt.Errorf("Expected 'test error', got: %v", err)
		}
	})
}

func TestMongoStore_SaveToken(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.ClearCollections()

	cred := &Credential{
		OpenID:       "OPENID",
		AccessToken:  "ACCESS_TOKEN",
		RefreshToken: "REFRESH_TOKEN",
		ExpiresIn:    7200,
		CreateAt:     1700000000000,
	}

	mt.Run("success", func(mt *mtest.T) {
		store := NewMongoStore(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))
		if err := store.SaveToken(context.Background(), "OPENID", cred); err != nil {
			mt.Fatalf("SaveToken failed: %v", err)
		}
	})

	mt.Run("write error", func(mt *mtest.T) {
		store := NewMongoStore(mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Code: 11000, Message: "duplicate key"}))

		err := store.SaveToken(context.Background(), "OPENID", cred)
		var se *StoreError
		if !errors.As(err, &se) {
			mt.Fatalf("expected StoreError, got %v", err)
		}
		if se.Op != "save" {
			mt.Errorf("expected op save, got %s", se.Op)
		}
		if !strings.Contains(err.Error(), "duplicate key") {
			mt.Errorf("Expected duplicate key error, got: %v", err)
		}
	})
}
