package database_test

import (
	"testing"

	"github.com/motionapp/motion-server/database"
	"github.com/motionapp/motion-server/models"
	"github.com/motionapp/motion-server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedSettingsDoesNotOverwrite(t *testing.T) {
	db := testutil.NewDB(t)

	require.NoError(t, database.SeedSettings(db, false))
	require.NoError(t, db.Model(&models.AppSetting{}).
		Where("key = ?", models.SettingFreeMessaging).
		Update("value", "true").Error)

	require.NoError(t, database.SeedSettings(db, false))

	var setting models.AppSetting
	require.NoError(t, db.First(&setting, "key = ?", models.SettingFreeMessaging).Error)
	assert.Equal(t, "true", setting.Value)
}

func TestConnectDBRequiresDSN(t *testing.T) {
	_, err := database.ConnectDB("")
	assert.Error(t, err)
}
