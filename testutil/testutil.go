// Package testutil builds throwaway databases and fixtures for tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/motionapp/motion-server/database"
	"github.com/motionapp/motion-server/models"
	"github.com/motionapp/motion-server/utils"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewDB opens a private in-memory SQLite database with every table migrated.
// A single connection serializes writers the way row locks would in Postgres.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), database.GormConfig())
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

type UserOption func(*models.User)

func Premium(u *models.User) { u.IsPremium = true }
func Muted(u *models.User)   { u.IsMuted = true }
func Banned(u *models.User)  { u.IsBanned = true }
func Admin(u *models.User)   { u.IsAdmin = true }

func PushDisabled(u *models.User) { u.PushDisabled = true }

func CreateUser(t testing.TB, db *gorm.DB, name, role string, opts ...UserOption) *models.User {
	t.Helper()

	u := &models.User{DisplayName: name, Role: role}
	for _, opt := range opts {
		opt(u)
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreateMatch inserts both likes and the canonical match row directly.
func CreateMatch(t testing.TB, db *gorm.DB, a, b uuid.UUID) *models.Match {
	t.Helper()

	require.NoError(t, db.Create(&models.Like{LikerID: a, LikedID: b}).Error)
	require.NoError(t, db.Create(&models.Like{LikerID: b, LikedID: a}).Error)

	lo, hi := utils.CanonicalPair(a, b)
	m := &models.Match{User1ID: lo, User2ID: hi}
	require.NoError(t, db.Create(m).Error)
	return m
}
