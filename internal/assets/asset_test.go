package assets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payperplay/easyservers/internal/failure"
)

func setupConfig(t *testing.T) (*Manager, *fakeFetcher) {
	t.Helper()
	f := &fakeFetcher{}
	m := newTestManager(t, f, &fakeLauncher{})
	require.NoError(t, m.CreateConfig(context.Background(), "c1", "vanilla", "1.20.4"))
	return m, f
}

func localJar(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("jar"), 0644))
	return p
}

func localWorld(t *testing.T, name string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "region"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "level.dat"), []byte("lvl"), 0644))
	return dir
}

func allClientDirs(m *Manager, c Collection) []string {
	l := m.Layout()
	return ClientTargets(l.BaseManualClient("c1"), l.BaseMultiMC("c1"), "c1_1.20.4", c)
}

func TestAddModBySide(t *testing.T) {
	tests := []struct {
		side       Side
		wantServer bool
		wantClient bool
	}{
		{SideGlobal, true, true},
		{SideServer, true, false},
		{SideClient, false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.side), func(t *testing.T) {
			m, _ := setupConfig(t)
			require.NoError(t, m.AddAsset(context.Background(), AddAssetRequest{
				Config:     "c1",
				Collection: Mods,
				Name:       "m1",
				Link:       localJar(t, "coolmod.jar"),
				Side:       tt.side,
			}))

			serverJar := filepath.Join(m.Layout().BaseServer("c1"), "mods", "m1_coolmod.jar")
			if tt.wantServer {
				assert.FileExists(t, serverJar)
			} else {
				assert.NoFileExists(t, serverJar)
			}
			for _, dir := range allClientDirs(m, Mods) {
				if tt.wantClient {
					assert.FileExists(t, filepath.Join(dir, "m1_coolmod.jar"))
				} else {
					assert.NoFileExists(t, filepath.Join(dir, "m1_coolmod.jar"))
				}
			}

			d, err := m.Read("c1")
			require.NoError(t, err)
			a, ok := d.Find(Mods, "m1")
			require.True(t, ok)
			assert.Equal(t, "file:"+filepath.Join(m.Layout().Staging("c1", Mods), "m1_coolmod.jar"), a.Link)
			assert.Equal(t, tt.wantServer, contains(d.Server.Mods, "m1"))
			assert.Equal(t, tt.wantClient, contains(d.Client.Mods, "m1"))
		})
	}
}

func TestAddAssetCollision(t *testing.T) {
	m, _ := setupConfig(t)
	ctx := context.Background()
	req := AddAssetRequest{Config: "c1", Collection: Plugins, Name: "p1", Link: "https://example.com/essentials.jar"}
	require.NoError(t, m.AddAsset(ctx, req))

	before, err := os.ReadFile(m.Layout().DescriptorPath("c1"))
	require.NoError(t, err)

	req.Link = "https://example.com/other.jar"
	err = m.AddAsset(ctx, req)
	assert.True(t, failure.Is(err, failure.Precondition))

	after, err := os.ReadFile(m.Layout().DescriptorPath("c1"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.NoFileExists(t, filepath.Join(m.Layout().BaseServer("c1"), "plugins", "p1_other.jar"))
	assert.FileExists(t, filepath.Join(m.Layout().BaseServer("c1"), "plugins", "p1_essentials.jar"))
}

func TestAddAssetPreconditions(t *testing.T) {
	m, _ := setupConfig(t)

	tests := []struct {
		name string
		req  AddAssetRequest
	}{
		{"missing config", AddAssetRequest{Config: "nope", Collection: Mods, Name: "m1", Link: "https://example.com/a.jar"}},
		{"default mod", AddAssetRequest{Config: "c1", Collection: Mods, Name: "m1", Link: "https://example.com/a.jar", ServerDefault: true}},
		{"underscore name", AddAssetRequest{Config: "c1", Collection: Mods, Name: "m_1", Link: "https://example.com/a.jar"}},
		{"missing file", AddAssetRequest{Config: "c1", Collection: Mods, Name: "m1", Link: "file:/does/not/exist.jar"}},
		{"wrong extension", AddAssetRequest{Config: "c1", Collection: Plugins, Name: "p1", Link: localJar(t, "notes.txt")}},
		{"side on plugin", AddAssetRequest{Config: "c1", Collection: Plugins, Name: "p1", Link: "https://example.com/a.jar", Side: SideClient}},
		{"unknown collection", AddAssetRequest{Config: "c1", Collection: Collection("bogus"), Name: "b1", Link: localWorld(t, "Bogus")}},
		{"unknown side", AddAssetRequest{Config: "c1", Collection: Mods, Name: "m1", Link: "https://example.com/a.jar", Side: Side("both")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.AddAsset(context.Background(), tt.req)
			assert.True(t, failure.Is(err, failure.Precondition), "got %v", err)
		})
	}

	entries, _ := os.ReadDir(filepath.Join(m.Layout().ConfigDir("c1"), "allAssets"))
	assert.Empty(t, entries)
	assert.NoDirExists(t, filepath.Join(m.Layout().BaseServer("c1"), "bogus"))

	err := m.RemoveAsset("c1", Collection("bogus"), "b1")
	assert.True(t, failure.Is(err, failure.Precondition), "got %v", err)
	_, err = m.ListAssets("c1", Collection("bogus"))
	assert.True(t, failure.Is(err, failure.Precondition), "got %v", err)
}

func TestDefaultWorldRoundTrip(t *testing.T) {
	m, _ := setupConfig(t)
	ctx := context.Background()
	base := m.Layout().BaseServer("c1")

	require.NoError(t, m.AddAsset(ctx, AddAssetRequest{
		Config: "c1", Collection: Worlds, Name: "w1", Link: localWorld(t, "Survival"), ServerDefault: true,
	}))
	assert.FileExists(t, filepath.Join(base, "w1_Survival", "level.dat"))
	for _, dir := range allClientDirs(m, Worlds) {
		assert.NoDirExists(t, filepath.Join(dir, "w1_Survival"))
	}

	d, err := m.Read("c1")
	require.NoError(t, err)
	assert.Equal(t, "w1", d.Server.DefaultWorld)

	require.NoError(t, m.AddAsset(ctx, AddAssetRequest{
		Config: "c1", Collection: Worlds, Name: "w2", Link: localWorld(t, "Creative"), ServerDefault: true,
	}))
	assert.NoDirExists(t, filepath.Join(base, "w1_Survival"), "previous default is evicted")
	assert.DirExists(t, filepath.Join(base, "w2_Creative"))

	d, err = m.Read("c1")
	require.NoError(t, err)
	assert.Equal(t, "w2", d.Server.DefaultWorld)
	assert.Len(t, d.Worlds, 2)

	require.NoError(t, m.RemoveAsset("c1", Worlds, "w2"))
	assert.NoDirExists(t, filepath.Join(base, "w2_Creative"))
	assert.FileExists(t, filepath.Join(base, "minecraft_server_1.20.4.jar"))

	d, err = m.Read("c1")
	require.NoError(t, err)
	assert.Empty(t, d.Server.DefaultWorld)
	_, ok := d.Find(Worlds, "w2")
	assert.False(t, ok)
}

func TestClientWorldGoesToSaves(t *testing.T) {
	m, _ := setupConfig(t)
	require.NoError(t, m.AddAsset(context.Background(), AddAssetRequest{
		Config: "c1", Collection: Worlds, Name: "w1", Link: localWorld(t, "Adventure"),
	}))

	for _, dir := range allClientDirs(m, Worlds) {
		assert.Equal(t, "saves", filepath.Base(dir))
		assert.FileExists(t, filepath.Join(dir, "w1_Adventure", "level.dat"))
	}
	assert.NoDirExists(t, filepath.Join(m.Layout().BaseServer("c1"), "w1_Adventure"))

	d, err := m.Read("c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"w1"}, d.Client.Worlds)
}

func TestFanOutFailureLeavesNothing(t *testing.T) {
	m, _ := setupConfig(t)
	// A directory squatting on the artifact name makes one copy fail.
	blocked := filepath.Join(m.Layout().BaseManualClient("c1"), "mods", "m1_coolmod.jar")
	require.NoError(t, os.MkdirAll(blocked, 0755))

	err := m.AddAsset(context.Background(), AddAssetRequest{
		Config: "c1", Collection: Mods, Name: "m1", Link: localJar(t, "coolmod.jar"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "was not installed")

	dirs := append(allClientDirs(m, Mods),
		filepath.Join(m.Layout().BaseServer("c1"), "mods"),
		m.Layout().Staging("c1", Mods))
	for _, dir := range dirs {
		assert.Empty(t, FindPrefixed(dir, "m1"), dir)
	}

	d, err := m.Read("c1")
	require.NoError(t, err)
	assert.Empty(t, d.Mods)
	assert.Empty(t, d.Server.Mods)
}

func TestRemoveAsset(t *testing.T) {
	m, _ := setupConfig(t)
	ctx := context.Background()
	require.NoError(t, m.AddAsset(ctx, AddAssetRequest{
		Config: "c1", Collection: ResourcePacks, Name: "rp1", Link: "https://example.com/faithful.zip", ServerDefault: true,
	}))
	assert.FileExists(t, filepath.Join(m.Layout().BaseServer("c1"), "resourcepacks", "rp1_faithful.zip"))

	assets, err := m.ListAssets("c1", ResourcePacks)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "https://example.com/faithful.zip", assets[0].Link)

	require.NoError(t, m.RemoveAsset("c1", ResourcePacks, "rp1"))
	assert.NoFileExists(t, filepath.Join(m.Layout().BaseServer("c1"), "resourcepacks", "rp1_faithful.zip"))
	assert.Empty(t, FindPrefixed(m.Layout().Staging("c1", ResourcePacks), "rp1"))

	d, err := m.Read("c1")
	require.NoError(t, err)
	assert.Empty(t, d.Server.ResourcePack)

	err = m.RemoveAsset("c1", ResourcePacks, "rp1")
	assert.True(t, failure.Is(err, failure.Precondition))
}

func TestParseCollection(t *testing.T) {
	tests := []struct {
		in      string
		want    Collection
		wantErr bool
	}{
		{"mods", Mods, false},
		{"resourcepacks", ResourcePacks, false},
		{"Worlds", Worlds, false},
		{"datapacks", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCollection(tt.in)
			if tt.wantErr {
				assert.True(t, failure.Is(err, failure.Precondition))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
