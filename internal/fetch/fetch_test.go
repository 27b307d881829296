package fetch

import (
	"archive/tar"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payperplay/easyservers/internal/failure"
	"github.com/payperplay/easyservers/pkg/config"
)

func newTestClient(sources config.Sources) *Client {
	return NewClient(sources, 0, nil)
}

func TestDownloadFileName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "easyservers/1.0", r.Header.Get("User-Agent"))
		assert.Empty(t, r.URL.RawQuery)
		switch r.URL.Path {
		case "/disposition":
			w.Header().Set("Content-Disposition", `attachment; filename="coolmod-1.2.jar"`)
		case "/dots/server.jar":
			w.Header().Set("Content-Disposition", `attachment; filename=".."`)
		case "/root/mod.jar":
			w.Header().Set("Content-Disposition", `attachment; filename="/"`)
		case "/nested/mod.jar":
			w.Header().Set("Content-Disposition", `attachment; filename="..\\..\\evil.jar"`)
		case "/dots/latest":
			w.Header().Set("Content-Disposition", `attachment; filename=".."`)
		case "/missing.jar":
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	c := newTestClient(config.DefaultSources())

	tests := []struct {
		name    string
		link    string
		prefix  string
		want    string
		wantErr bool
	}{
		{"from url", srv.URL + "/files/pack.zip?token=abc", "rp1", "rp1_pack.zip", false},
		{"from disposition", srv.URL + "/disposition", "m1", "m1_coolmod-1.2.jar", false},
		{"no prefix", srv.URL + "/files/server.jar", "", "server.jar", false},
		{"not a file", srv.URL + "/files/latest", "m1", "", true},
		{"bad status", srv.URL + "/missing.jar", "m1", "", true},
		{"dot-dot disposition", srv.URL + "/dots/server.jar", "", "server.jar", false},
		{"root disposition", srv.URL + "/root/mod.jar", "m1", "m1_mod.jar", false},
		{"nested disposition", srv.URL + "/nested/mod.jar", "", "evil.jar", false},
		{"dot-dot disposition without url name", srv.URL + "/dots/latest", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			got, err := c.Download(context.Background(), tt.link, dir, tt.prefix)
			if tt.wantErr {
				assert.Error(t, err)
				entries, _ := os.ReadDir(dir)
				assert.Empty(t, entries)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, tt.want), got)
			data, err := os.ReadFile(got)
			require.NoError(t, err)
			assert.Equal(t, "payload", string(data))
		})
	}
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

func writeTarGz(t *testing.T, path string, files map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

func TestExtractAndIsolate(t *testing.T) {
	tests := []struct {
		name     string
		archive  string
		files    map[string]string
		ext      string
		folder   bool
		want     string
		wantFile string
	}{
		{
			name:     "single world folder",
			archive:  "w1_world.zip",
			files:    map[string]string{"Survival/level.dat": "x", "Survival/region/r.0.0.mca": "y"},
			folder:   true,
			want:     "w1_Survival",
			wantFile: "level.dat",
		},
		{
			name:     "loose world content is wrapped",
			archive:  "w1_world.zip",
			files:    map[string]string{"level.dat": "x", "region/r.0.0.mca": "y"},
			folder:   true,
			want:     "w1_world",
			wantFile: "level.dat",
		},
		{
			name:    "jar from tarball",
			archive: "m1_bundle.tar.gz",
			files:   map[string]string{"README.md": "r", "coolmod.jar": "jar"},
			ext:     ".jar",
			want:    "m1_coolmod.jar",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			archive := filepath.Join(dir, tt.archive)
			if filepath.Ext(tt.archive) == ".zip" {
				writeZip(t, archive, tt.files)
			} else {
				writeTarGz(t, archive, tt.files)
			}

			got, err := ExtractAndIsolate(archive, dir, tt.archive[:2], tt.ext, tt.folder)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, tt.want), got)
			if tt.wantFile != "" {
				assert.FileExists(t, filepath.Join(got, tt.wantFile))
			} else {
				assert.FileExists(t, got)
			}

			// Only the archive and the isolated artifact remain.
			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Len(t, entries, 2)
		})
	}
}

func TestExtractRejectsZipSlip(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.zip")
	writeZip(t, archive, map[string]string{"../escape.jar": "x"})

	_, err := ExtractAndIsolate(archive, dir, "m1", ".jar", false)
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dir), "escape.jar"))
}

func TestExtractMissingRequiredFile(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "m1_bundle.zip")
	writeZip(t, archive, map[string]string{"nested/coolmod.jar": "x"})

	_, err := ExtractAndIsolate(archive, dir, "m1", ".jar", false)
	assert.Error(t, err)
}

func TestLoaderResolution(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/manifest.json":
			w.Write([]byte(`{"versions":[{"id":"1.20.4","url":"` + srvURL + `/1.20.4.json"}]}`))
		case "/1.20.4.json":
			w.Write([]byte(`{"downloads":{"server":{"url":"https://example.com/server.jar"}}}`))
		case "/promotions.json":
			w.Write([]byte(`{"promos":{"1.20.4-latest":"49.0.30","1.20.4-recommended":"49.0.26","1.20.41-latest":"1.0"}}`))
		case "/neoforge.json":
			w.Write([]byte(`{"versions":["20.4.80-beta","20.4.190","20.4.237","20.6.1","21.0.10-beta"]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	sources := config.DefaultSources()
	sources.VanillaManifest = srv.URL + "/manifest.json"
	sources.ForgePromotions = srv.URL + "/promotions.json"
	sources.NeoForgeMetadata = srv.URL + "/neoforge.json"
	c := newTestClient(sources)
	ctx := context.Background()

	t.Run("vanilla", func(t *testing.T) {
		link, err := c.VanillaServerURL(ctx, "1.20.4")
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/server.jar", link)

		_, err = c.VanillaServerURL(ctx, "0.0.1")
		assert.True(t, failure.Is(err, failure.Precondition))
	})

	t.Run("forge prefers recommended", func(t *testing.T) {
		inst, err := c.ForgeInstaller(ctx, "1.20.4")
		require.NoError(t, err)
		assert.Equal(t, "49.0.26", inst.Version)
		assert.Equal(t, "forge-1.20.4-49.0.26-installer.jar", inst.FileName)
	})

	t.Run("neoforge picks newest stable", func(t *testing.T) {
		inst, err := c.NeoForgeInstaller(ctx, "1.20.4")
		require.NoError(t, err)
		assert.Equal(t, "20.4.237", inst.Version)
		assert.Equal(t, "neoforge-20.4.237-installer.jar", inst.FileName)

		inst, err = c.NeoForgeInstaller(ctx, "1.21")
		require.NoError(t, err)
		assert.Equal(t, "21.0.10-beta", inst.Version)

		_, err = c.NeoForgeInstaller(ctx, "1.19.2")
		assert.True(t, failure.Is(err, failure.Precondition))
	})
}

func TestCopyDir(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "mods"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "eula.txt"), []byte("eula=true"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "mods", "a.jar"), []byte("a"), 0644))

	dst := filepath.Join(t.TempDir(), "copy")
	require.NoError(t, CopyDir(src, dst))
	assert.FileExists(t, filepath.Join(dst, "eula.txt"))
	assert.FileExists(t, filepath.Join(dst, "mods", "a.jar"))

	size, err := DirSize(dst)
	require.NoError(t, err)
	assert.Equal(t, int64(10), size)
}
