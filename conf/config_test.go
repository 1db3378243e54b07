package conf

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnv(t *testing.T) {
	require.NoError(t, SetEnv(t, "TEST_GETENV", "somevalue"))
	defer func() { _ = UnsetEnv(t, "TEST_GETENV") }()

	assert.Equal(t, "somevalue", GetEnv("TEST_GETENV"))
	assert.Equal(t, "", GetEnv("TEST_GETENV_DOES_NOT_EXIST"))
}

func TestGetEnvFallsBackToEnvironment(t *testing.T) {
	os.Setenv("TEST_EVONLY", "fromenv")
	defer func() { _ = UnsetEnv(t, "TEST_EVONLY") }()

	assert.Equal(t, "fromenv", GetEnv("TEST_EVONLY"))
}

func TestLookupEnv(t *testing.T) {
	require.NoError(t, SetEnv(t, "TEST_LOOKUP", "value"))
	defer func() { _ = UnsetEnv(t, "TEST_LOOKUP") }()

	got, ok := LookupEnv("TEST_LOOKUP")
	assert.True(t, ok)
	assert.Equal(t, "value", got)

	got, ok = LookupEnv("TEST_LOOKUP_MISSING")
	assert.False(t, ok)
	assert.Equal(t, "", got)
}

func TestUnsetEnv(t *testing.T) {
	require.NoError(t, SetEnv(t, "TEST_UNSET", "value"))
	require.NoError(t, UnsetEnv(t, "TEST_UNSET"))

	assert.Equal(t, "", GetEnv("TEST_UNSET"))
}

type CheckoutInner struct {
	Nested string `conf:"TEST_CHECKOUT_NESTED"`
}

type checkoutOuter struct {
	Name     string  `conf:"TEST_CHECKOUT_NAME"`
	Count    int     `conf:"TEST_CHECKOUT_COUNT" conf_default:"12"`
	Ratio    float64 `conf:"TEST_CHECKOUT_RATIO" conf_default:"0.8"`
	Enabled  bool    `conf:"TEST_CHECKOUT_ENABLED" conf_default:"true"`
	Skipped  string  `conf:"-"`
	Untagged string

	CheckoutInner `conf:",squash"`
}

func TestCheckout(t *testing.T) {
	require.NoError(t, SetEnv(t, "TEST_CHECKOUT_NAME", "oppscan"))
	require.NoError(t, SetEnv(t, "TEST_CHECKOUT_NESTED", "inner"))
	defer func() {
		_ = UnsetEnv(t, "TEST_CHECKOUT_NAME")
		_ = UnsetEnv(t, "TEST_CHECKOUT_NESTED")
	}()

	var cfg checkoutOuter
	require.NoError(t, Checkout(&cfg))

	assert.Equal(t, "oppscan", cfg.Name)
	assert.Equal(t, 12, cfg.Count)
	assert.Equal(t, 0.8, cfg.Ratio)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "", cfg.Skipped)
	assert.Equal(t, "", cfg.Untagged)
	assert.Equal(t, "inner", cfg.Nested)
}

func TestCheckoutRejectsNonPointer(t *testing.T) {
	assert.Error(t, Checkout(checkoutOuter{}))
	assert.Error(t, Checkout(nil))
}

func TestCheckoutBadValue(t *testing.T) {
	require.NoError(t, SetEnv(t, "TEST_CHECKOUT_COUNT", "not-a-number"))
	defer func() { _ = UnsetEnv(t, "TEST_CHECKOUT_COUNT") }()

	var cfg checkoutOuter
	assert.Error(t, Checkout(&cfg))
}
