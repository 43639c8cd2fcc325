package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
server:
  port: "9090"
database:
  user: postgres
  password: postgres
  name: payments
  host: localhost
  port: "5432"
gateway:
  base-url: http://gateway.local
  reuse-correlation-id: true
  channels:
    default-channel:
      key-id: rzp_test_1
      key-secret: secret_1
webhook:
  secret: whsec
notify:
  sender:
    url: http://notify.local/hook
`

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(testConfig), 0o600))
	return dir
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "payments", cfg.Database.Name)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "http://gateway.local", cfg.Gateway.BaseURL)
	assert.Equal(t, "INR", cfg.Gateway.Currency)
	assert.Equal(t, 10_000, cfg.Gateway.TimeoutMs)
	assert.True(t, cfg.Gateway.ReuseCorrelationID)
	assert.Equal(t, "X-Razorpay-Signature", cfg.Webhook.SignatureHeader)
	assert.Equal(t, "order-transitions", cfg.Kafka.Topic.OrderTransitions)
	assert.Equal(t, []string{"Cancelled", "PaymentSettled"}, cfg.Notify.States)
	assert.Equal(t, 3, cfg.Notify.Producer.MaxPublishAttempts)

	creds := cfg.Gateway.Channels["default-channel"]
	assert.Equal(t, "rzp_test_1", creds.KeyID)
	assert.Equal(t, "secret_1", creds.KeySecret)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("WEBHOOK_SECRET", "from-env")

	cfg, err := LoadConfig(writeConfig(t))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Webhook.Secret)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(t.TempDir())
	assert.Error(t, err)
}

func TestStaticCredentials_Lookup(t *testing.T) {
	store := NewStaticCredentials(map[string]Credentials{
		"Default-Channel": {KeyID: "id", KeySecret: "secret"},
		"broken":          {KeyID: "id"},
	})
	ctx := context.Background()

	creds, err := store.Lookup(ctx, "default-channel")
	require.NoError(t, err)
	assert.Equal(t, "id", creds.KeyID)

	_, err = store.Lookup(ctx, "unknown")
	assert.True(t, errors.Is(err, ErrCredentialsNotFound))

	_, err = store.Lookup(ctx, "broken")
	assert.True(t, errors.Is(err, ErrCredentialsNotFound))
}

func TestGetInt(t *testing.T) {
	t.Setenv("PAYMENT_TEST_INT", "42")
	t.Setenv("PAYMENT_TEST_BAD", "x")

	assert.Equal(t, 42, GetInt("PAYMENT_TEST_INT", 1))
	assert.Equal(t, 1, GetInt("PAYMENT_TEST_BAD", 1))
	assert.Equal(t, 7, GetInt("PAYMENT_TEST_MISSING", 7))
}
