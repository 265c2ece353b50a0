package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
	_ "modernc.org/sqlite"
)

type sqlStoreTestSuite struct {
	suite.Suite
	store *Store
}

var testDbCounter int

func (suite *sqlStoreTestSuite) SetupTest() {
	testDbCounter++
	conn, err := sql.Open("sqlite", fmt.Sprintf("file:store_tests_%d?mode=memory&cache=shared", testDbCounter))
	suite.Require().NoError(err)
	conn.SetMaxOpenConns(4)
	suite.T().Cleanup(func() {
		_ = conn.Close()
	})

	suite.Require().NoError(RunMigrations(context.Background(), conn, "sqlite3"))
	suite.store = NewStore(conn)
}

func (suite *sqlStoreTestSuite) TestUsersRoundtrip() {
	ctx := context.Background()
	user := &User{
		LocalUuid: "d21411b2f68d4153bd6a0fbcee4f1a95",
		ServiceId: 1,
		RemoteId:  "4566e69fc90748ee8d71d7ba5aa00d20",
		Username:  "Thinkofdeath",
		Active:    true,
	}
	suite.Require().NoError(suite.store.InsertUser(ctx, user))

	found, err := suite.store.FindUserByRemoteId(ctx, 1, "4566e69fc90748ee8d71d7ba5aa00d20")
	suite.Require().NoError(err)
	suite.Require().Equal(user, found)

	found, err = suite.store.FindUserByLocalUuid(ctx, "d21411b2f68d4153bd6a0fbcee4f1a95")
	suite.Require().NoError(err)
	suite.Require().Equal(user, found)

	missing, err := suite.store.FindUserByRemoteId(ctx, 2, "4566e69fc90748ee8d71d7ba5aa00d20")
	suite.Require().NoError(err)
	suite.Require().Nil(missing)
}

func (suite *sqlStoreTestSuite) TestInsertUserDuplicate() {
	ctx := context.Background()
	suite.Require().NoError(suite.store.InsertUser(ctx, &User{
		LocalUuid: "d21411b2f68d4153bd6a0fbcee4f1a95",
		ServiceId: 1,
		RemoteId:  "4566e69fc90748ee8d71d7ba5aa00d20",
		Username:  "Thinkofdeath",
		Active:    true,
	}))

	err := suite.store.InsertUser(ctx, &User{
		LocalUuid: "7e2f93b9cdbc4f95b7b1b9e12425a44f",
		ServiceId: 1,
		RemoteId:  "4566e69fc90748ee8d71d7ba5aa00d20",
		Username:  "Thinkofdeath",
		Active:    true,
	})
	suite.Require().ErrorIs(err, ErrDuplicateKey)
}

func (suite *sqlStoreTestSuite) TestFindUsersByUsername() {
	ctx := context.Background()
	suite.Require().NoError(suite.store.InsertUser(ctx, &User{
		LocalUuid: "d21411b2f68d4153bd6a0fbcee4f1a95",
		ServiceId: 0,
		RemoteId:  "4566e69fc90748ee8d71d7ba5aa00d20",
		Username:  "Thinkofdeath",
		Active:    true,
	}))
	suite.Require().NoError(suite.store.InsertUser(ctx, &User{
		LocalUuid: "7e2f93b9cdbc4f95b7b1b9e12425a44f",
		ServiceId: 1,
		RemoteId:  "0d252b7218b648bfb86c2ae476954d32",
		Username:  "thinkofdeath",
		Active:    true,
	}))

	users, err := suite.store.FindUsersByUsername(ctx, "THINKOFDEATH")
	suite.Require().NoError(err)
	suite.Require().Len(users, 2)
}

func (suite *sqlStoreTestSuite) TestOccupancy() {
	ctx := context.Background()
	suite.Require().NoError(suite.store.ClaimUsername(ctx, "thinkofdeath", "d21411b2f68d4153bd6a0fbcee4f1a95"))

	occupancy, err := suite.store.FindOccupancy(ctx, "thinkofdeath")
	suite.Require().NoError(err)
	suite.Require().Equal("d21411b2f68d4153bd6a0fbcee4f1a95", occupancy.LocalUuid)

	// Claiming an occupied name displaces the previous occupant
	suite.Require().NoError(suite.store.ClaimUsername(ctx, "thinkofdeath", "7e2f93b9cdbc4f95b7b1b9e12425a44f"))
	occupancy, err = suite.store.FindOccupancy(ctx, "thinkofdeath")
	suite.Require().NoError(err)
	suite.Require().Equal("7e2f93b9cdbc4f95b7b1b9e12425a44f", occupancy.LocalUuid)
}

func (suite *sqlStoreTestSuite) TestEraseUsernameIsIdempotent() {
	ctx := context.Background()
	suite.Require().NoError(suite.store.ClaimUsername(ctx, "thinkofdeath", "d21411b2f68d4153bd6a0fbcee4f1a95"))

	affected, err := suite.store.EraseUsername(ctx, "thinkofdeath")
	suite.Require().NoError(err)
	suite.Require().EqualValues(1, affected)

	affected, err = suite.store.EraseUsername(ctx, "thinkofdeath")
	suite.Require().NoError(err)
	suite.Require().EqualValues(0, affected)
}

func (suite *sqlStoreTestSuite) TestRestorerEntries() {
	ctx := context.Background()

	entry, err := suite.store.FindRestorerEntry(ctx, "4566e69fc90748ee8d71d7ba5aa00d20")
	suite.Require().NoError(err)
	suite.Require().Nil(entry)

	suite.Require().NoError(suite.store.UpsertRestorerEntry(ctx, &RestorerEntry{
		OnlineUuid:   "4566e69fc90748ee8d71d7ba5aa00d20",
		SkinUrl:      "http://skins.example.com/skin.png",
		RestorerData: `{"value":"v1","signature":"s1"}`,
	}))

	entry, err = suite.store.FindRestorerEntry(ctx, "4566e69fc90748ee8d71d7ba5aa00d20")
	suite.Require().NoError(err)
	suite.Require().Equal("http://skins.example.com/skin.png", entry.SkinUrl)

	// Upsert replaces in place when the source url changes
	suite.Require().NoError(suite.store.UpsertRestorerEntry(ctx, &RestorerEntry{
		OnlineUuid:   "4566e69fc90748ee8d71d7ba5aa00d20",
		SkinUrl:      "http://skins.example.com/newskin.png",
		RestorerData: `{"value":"v2","signature":"s2"}`,
	}))

	entry, err = suite.store.FindRestorerEntry(ctx, "4566e69fc90748ee8d71d7ba5aa00d20")
	suite.Require().NoError(err)
	suite.Require().Equal("http://skins.example.com/newskin.png", entry.SkinUrl)
	suite.Require().JSONEq(`{"value":"v2","signature":"s2"}`, entry.RestorerData)
}

func (suite *sqlStoreTestSuite) TestTransactionallyRollsBackOnError() {
	ctx := context.Background()

	err := suite.store.Transactionally(ctx, func(store *SQLStore) error {
		if err := store.ClaimUsername(ctx, "thinkofdeath", "d21411b2f68d4153bd6a0fbcee4f1a95"); err != nil {
			return err
		}

		return errors.New("forced failure")
	})
	suite.Require().Error(err)

	occupancy, err := suite.store.FindOccupancy(ctx, "thinkofdeath")
	suite.Require().NoError(err)
	suite.Require().Nil(occupancy)
}

func TestSQLStore(t *testing.T) {
	suite.Run(t, new(sqlStoreTestSuite))
}
