package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SERVICE_NAME", "invite-service")
	t.Setenv("CAMPAIGNS_CACHE_TTL_MS", "")

	cfg := Load()
	require.Equal(t, "8080", cfg.HTTPPort)
	require.Equal(t, "9095", cfg.MetricsPort)
	require.Equal(t, 30*time.Second, cfg.CampaignsCacheTTL)
	require.Equal(t, 2*time.Second, cfg.StoreTimeout)
}

func TestLoadReconcilerPorts(t *testing.T) {
	t.Setenv("SERVICE_NAME", "payment-reconciler")
	t.Setenv("RECONCILE_INTERVAL_MS", "500")

	cfg := Load()
	require.Equal(t, "", cfg.HTTPPort)
	require.Equal(t, "9097", cfg.MetricsPort)
	require.Equal(t, 500*time.Millisecond, cfg.ReconcileInterval)
}

func TestWarningsOnPlaceholderSecrets(t *testing.T) {
	cfg := Config{JWTSecret: DevJWTSecret, AdminToken: DevAdminToken}
	require.Len(t, cfg.Warnings(), 2)

	cfg = Config{JWTSecret: "s3cr3t", AdminToken: "another"}
	require.Empty(t, cfg.Warnings())
}

func TestDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("BOLAO_TEST_A=from-file\nBOLAO_TEST_B=from-file\n"), 0o600))

	t.Setenv("BOLAO_TEST_A", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("BOLAO_TEST_B") })

	loadDotEnv(path)
	require.Equal(t, "from-env", os.Getenv("BOLAO_TEST_A"))
	require.Equal(t, "from-file", os.Getenv("BOLAO_TEST_B"))
}

func TestSplitList(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, splitList(" a, ,b "))
	require.Nil(t, splitList(""))
}
