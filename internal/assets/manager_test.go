package assets

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payperplay/easyservers/internal/failure"
	"github.com/payperplay/easyservers/internal/fetch"
	"github.com/payperplay/easyservers/internal/supervisor"
)

type fakeFetcher struct {
	vanillaErr error
	downloads  []string
}

func (f *fakeFetcher) Download(_ context.Context, link, destDir, prefix string) (string, error) {
	f.downloads = append(f.downloads, link)
	name := path.Base(link)
	if prefix != "" {
		name = prefix + "_" + name
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", err
	}
	target := filepath.Join(destDir, name)
	return target, os.WriteFile(target, []byte(link), 0644)
}

func (f *fakeFetcher) VanillaServerURL(_ context.Context, version string) (string, error) {
	if f.vanillaErr != nil {
		return "", f.vanillaErr
	}
	return "https://example.com/" + version + "/server.jar", nil
}

func (f *fakeFetcher) ForgeInstaller(_ context.Context, version string) (fetch.Installer, error) {
	name := "forge-" + version + "-49.0.26-installer.jar"
	return fetch.Installer{URL: "https://example.com/" + name, FileName: name, Version: "49.0.26"}, nil
}

func (f *fakeFetcher) NeoForgeInstaller(_ context.Context, version string) (fetch.Installer, error) {
	return fetch.Installer{}, failure.Preconditionf("", "Version %s cannot be found for neoforge.", version)
}

func (f *fakeFetcher) MultiMCArchiveURL(string) (string, bool) { return "", false }

type fakeLauncher struct {
	ack  bool
	cmds []supervisor.Command
}

func (l *fakeLauncher) LaunchAndWaitForAck(_ context.Context, cmd supervisor.Command, _, _ string, _ time.Duration) (bool, error) {
	l.cmds = append(l.cmds, cmd)
	return l.ack, nil
}

func newTestManager(t *testing.T, f *fakeFetcher, l *fakeLauncher) *Manager {
	t.Helper()
	m := NewManager(Layout{Root: t.TempDir()}, f, l, Options{InstallerTimeout: time.Minute}, nil)
	m.findJava = func(string) (string, error) { return "/usr/bin/java", nil }
	return m
}

func TestCreateConfigVanilla(t *testing.T) {
	m := newTestManager(t, &fakeFetcher{}, &fakeLauncher{})
	ctx := context.Background()

	require.NoError(t, m.CreateConfig(ctx, "c1", "Vanilla", "1.20.4"))

	l := m.Layout()
	assert.FileExists(t, filepath.Join(l.BaseServer("c1"), "minecraft_server_1.20.4.jar"))
	assert.FileExists(t, filepath.Join(l.BaseServer("c1"), "eula.txt"))
	assert.DirExists(t, filepath.Join(l.BaseManualClient("c1"), "saves"))

	for _, platform := range ClientOSes {
		dir := InstanceDir(l.BaseMultiMC("c1"), platform, "c1_1.20.4")
		assert.DirExists(t, filepath.Join(dir, ".minecraft", "mods"))
		cfg, err := os.ReadFile(filepath.Join(dir, "instance.cfg"))
		require.NoError(t, err)
		assert.Contains(t, string(cfg), "name=c1_1.20.4")
		pack, err := os.ReadFile(filepath.Join(dir, "mmc-pack.json"))
		require.NoError(t, err)
		assert.Contains(t, string(pack), `"version": "1.20.4"`)
	}
	assert.DirExists(t, filepath.Join(l.BaseMultiMC("c1"), "mac_MultiMC.app"))

	d, err := m.Read("c1")
	require.NoError(t, err)
	assert.Equal(t, Vanilla, d.ModLoader)
	assert.Equal(t, "1.20.4", d.Version)

	names, err := m.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, names)
}

func TestCreateConfigPreconditions(t *testing.T) {
	m := newTestManager(t, &fakeFetcher{}, &fakeLauncher{})
	ctx := context.Background()
	require.NoError(t, m.CreateConfig(ctx, "c1", "vanilla", "1.20.4"))

	tests := []struct {
		name    string
		config  string
		loader  string
		version string
	}{
		{"duplicate", "c1", "vanilla", "1.20.4"},
		{"unknown loader", "c2", "fabric", "1.20.4"},
		{"invalid name", "bad name", "vanilla", "1.20.4"},
		{"missing version", "c3", "vanilla", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.CreateConfig(ctx, tt.config, tt.loader, tt.version)
			assert.True(t, failure.Is(err, failure.Precondition), "got %v", err)
		})
	}

	assert.NoDirExists(t, m.Layout().ConfigDir("c2"))
	assert.DirExists(t, m.Layout().ConfigDir("c1"))
}

func TestCreateConfigRollsBack(t *testing.T) {
	t.Run("download failure", func(t *testing.T) {
		m := newTestManager(t, &fakeFetcher{vanillaErr: errors.New("manifest unreachable")}, &fakeLauncher{})
		err := m.CreateConfig(context.Background(), "c1", "vanilla", "1.20.4")
		require.Error(t, err)
		assert.NoDirExists(t, m.Layout().ConfigDir("c1"))
	})

	t.Run("installer without success marker", func(t *testing.T) {
		m := newTestManager(t, &fakeFetcher{}, &fakeLauncher{ack: false})
		err := m.CreateConfig(context.Background(), "c1", "forge", "1.20.4")
		assert.True(t, failure.Is(err, failure.Bootstrap))
		assert.NoDirExists(t, m.Layout().ConfigDir("c1"))
	})

	t.Run("unknown neoforge version", func(t *testing.T) {
		m := newTestManager(t, &fakeFetcher{}, &fakeLauncher{})
		err := m.CreateConfig(context.Background(), "c1", "neoforge", "1.12.2")
		assert.True(t, failure.Is(err, failure.Precondition))
		assert.NoDirExists(t, m.Layout().ConfigDir("c1"))
	})
}

func TestCreateConfigForge(t *testing.T) {
	l := &fakeLauncher{ack: true}
	m := newTestManager(t, &fakeFetcher{}, l)

	require.NoError(t, m.CreateConfig(context.Background(), "c1", "forge", "1.20.4"))

	require.Len(t, l.cmds, 1)
	assert.Equal(t, "/usr/bin/java", l.cmds[0].Path)
	assert.Equal(t, []string{"-jar", "forge-1.20.4-49.0.26-installer.jar", "--installServer", "baseServer"}, l.cmds[0].Args)
	assert.Equal(t, m.Layout().ConfigDir("c1"), l.cmds[0].Dir)

	assert.FileExists(t, filepath.Join(m.Layout().BaseManualClient("c1"), "forge-1.20.4-49.0.26-installer.jar"))

	pack, err := os.ReadFile(filepath.Join(InstanceDir(m.Layout().BaseMultiMC("c1"), "linux", "c1_1.20.4"), "mmc-pack.json"))
	require.NoError(t, err)
	assert.Contains(t, string(pack), `"version": "49.0.26"`)
	assert.NotContains(t, string(pack), "{forgeVersion}")
}

func TestRemoveConfig(t *testing.T) {
	m := newTestManager(t, &fakeFetcher{}, &fakeLauncher{})
	require.NoError(t, m.CreateConfig(context.Background(), "c1", "vanilla", "1.20.4"))

	require.NoError(t, m.RemoveConfig("c1"))
	assert.NoDirExists(t, m.Layout().ConfigDir("c1"))

	err := m.RemoveConfig("c1")
	assert.True(t, failure.Is(err, failure.Precondition))
}

func TestConfigNamesStayInsideRoot(t *testing.T) {
	data := t.TempDir()
	serversDir := filepath.Join(data, "servers", "s1")
	require.NoError(t, os.MkdirAll(serversDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(data, "config.json"), []byte(`{"modLoader":"vanilla"}`), 0644))

	m := NewManager(Layout{Root: filepath.Join(data, "configs")}, &fakeFetcher{}, &fakeLauncher{}, Options{}, nil)
	require.NoError(t, os.MkdirAll(m.Layout().Root, 0755))

	for _, name := range []string{"..", "../servers", "../x", "a/b", ".", "/"} {
		t.Run(name, func(t *testing.T) {
			assert.False(t, m.Exists(name))

			err := m.RemoveConfig(name)
			assert.True(t, failure.Is(err, failure.Precondition), "got %v", err)

			_, err = m.Read(name)
			assert.True(t, failure.Is(err, failure.Precondition), "got %v", err)

			_, err = m.ListAssets(name, Mods)
			assert.True(t, failure.Is(err, failure.Precondition), "got %v", err)

			assert.DirExists(t, serversDir)
			assert.FileExists(t, filepath.Join(data, "config.json"))
		})
	}
}
