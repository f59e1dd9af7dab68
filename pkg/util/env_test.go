package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetDurationEnvOr(t *testing.T) {
	t.Setenv("RAKSHA_TEST_DURATION", "1500ms")
	assert.Equal(t, 1500*time.Millisecond, GetDurationEnvOr("RAKSHA_TEST_DURATION", time.Second))

	t.Setenv("RAKSHA_TEST_DURATION", "250")
	assert.Equal(t, 250*time.Millisecond, GetDurationEnvOr("RAKSHA_TEST_DURATION", time.Second))

	t.Setenv("RAKSHA_TEST_DURATION", "soon")
	assert.Equal(t, time.Second, GetDurationEnvOr("RAKSHA_TEST_DURATION", time.Second))
}

func TestGetBoolAndListEnv(t *testing.T) {
	t.Setenv("RAKSHA_TEST_BOOL", "yes")
	assert.True(t, GetBoolEnv("RAKSHA_TEST_BOOL"))
	t.Setenv("RAKSHA_TEST_BOOL", "maybe")
	assert.True(t, GetBoolEnvOr("RAKSHA_TEST_BOOL", true))

	t.Setenv("RAKSHA_TEST_LIST", " help, ,bachao ,madad")
	assert.Equal(t, []string{"help", "bachao", "madad"}, GetListEnv("RAKSHA_TEST_LIST"))
}

func TestInitDatabaseInMemory(t *testing.T) {
	db, err := InitDatabase("", "", false)
	if !assert.NoError(t, err) {
		return
	}
	sqlDB, err := db.DB()
	assert.NoError(t, err)
	assert.NoError(t, sqlDB.Ping())
}
