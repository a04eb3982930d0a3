package sysinstall

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLayout(t *testing.T) {
	l := DefaultLayout()
	assert.Equal(t, "/etc/shongo/certs", l.CertDir())
	assert.Equal(t, "/etc/shongo/.env.prod", l.EnvFile())
	assert.Equal(t, "/etc/systemd/system/shongo-controller.service", l.UnitPath())
}

func TestUnit(t *testing.T) {
	unit := DefaultLayout().Unit("/usr/local/bin/shongo-controller", "postgresql.service")

	assert.Contains(t, unit, "After=network-online.target postgresql.service")
	assert.Contains(t, unit, "ExecStart=/usr/local/bin/shongo-controller serve --config /etc/shongo")
	assert.Contains(t, unit, "EnvironmentFile=-/etc/shongo/.env.prod")
	assert.Contains(t, unit, "User=shongo")
	assert.Contains(t, unit, "ReadWritePaths=/etc/shongo/certs /var/lib/shongo /var/log/shongo")
	assert.Contains(t, unit, "SyslogIdentifier=shongo-controller")
}

func TestEnsureDirectories(t *testing.T) {
	root := t.TempDir()
	l := Layout{
		User:      "shongo-test-user-that-does-not-exist",
		ConfigDir: filepath.Join(root, "etc"),
		DataDir:   filepath.Join(root, "lib"),
		LogDir:    filepath.Join(root, "log"),
	}
	require.NoError(t, l.EnsureDirectories())

	info, err := os.Stat(l.CertDir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())

	for _, dir := range []string{l.DataDir, l.LogDir} {
		_, err := os.Stat(dir)
		assert.NoError(t, err)
	}
}

func TestExecutablePath(t *testing.T) {
	path, err := ExecutablePath()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(path))
}
