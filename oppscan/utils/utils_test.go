package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/switchrx/oppscan-app/conf"
)

func TestGetEnvInt(t *testing.T) {
	defer func() { _ = conf.UnsetEnv(t, "UTILS_TEST_INT") }()

	assert.Equal(t, 42, GetEnvInt("UTILS_TEST_INT", 42))

	_ = conf.SetEnv(t, "UTILS_TEST_INT", "7")
	assert.Equal(t, 7, GetEnvInt("UTILS_TEST_INT", 42))

	_ = conf.SetEnv(t, "UTILS_TEST_INT", "not-a-number")
	assert.Equal(t, 42, GetEnvInt("UTILS_TEST_INT", 42))
}

func TestGetEnvFloat(t *testing.T) {
	defer func() { _ = conf.UnsetEnv(t, "UTILS_TEST_FLOAT") }()

	assert.Equal(t, 0.8, GetEnvFloat("UTILS_TEST_FLOAT", 0.8))

	_ = conf.SetEnv(t, "UTILS_TEST_FLOAT", "0.25")
	assert.Equal(t, 0.25, GetEnvFloat("UTILS_TEST_FLOAT", 0.8))
}
