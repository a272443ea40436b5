package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Rate     float64 `json:"requests_per_second"`
}

func writeFile(t testing.TB, path, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
}

func TestReadConfigLocalOverride(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.json5"), `{
		// shared defaults
		email: "someone@example.com",
		password: "hunter2",
		requests_per_second: 2,
	}`)
	writeFile(t, filepath.Join(dir, "config.local.json5"), `{ password: "correct horse" }`)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, testConfig{
		Email:    "someone@example.com",
		Password: "correct horse",
		Rate:     2,
	}, cfg)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "config.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestFindXdg(t *testing.T) {
	home := t.TempDir()
	// runs after the environment is restored
	t.Cleanup(xdg.Reload)
	t.Setenv("XDG_CONFIG_HOME", home)
	xdg.Reload()

	_, err := Find("digiget-test.json5")
	require.ErrorIs(t, err, os.ErrNotExist)

	cfg, err := ReadUserConfig[testConfig]("digiget-test.json5")
	require.NoError(t, err)
	require.Equal(t, testConfig{}, cfg)

	writeFile(t, filepath.Join(home, AppDir, "digiget-test.json5"), `{email: "xdg@example.com"}`)
	path, err := Find("digiget-test.json5")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, AppDir, "digiget-test.json5"), path)

	cfg, err = ReadUserConfig[testConfig]("digiget-test.json5")
	require.NoError(t, err)
	require.Equal(t, "xdg@example.com", cfg.Email)
}
