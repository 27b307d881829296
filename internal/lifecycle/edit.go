package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/payperplay/easyservers/internal/assets"
	"github.com/payperplay/easyservers/internal/failure"
	"github.com/payperplay/easyservers/internal/fetch"
	"github.com/payperplay/easyservers/internal/properties"
	"github.com/payperplay/easyservers/pkg/logger"
)

// Prefixes of worlds and resource packs installed directly on a server. They are valid
// asset names, so removing them goes through RemoveServerAsset like any other.
const (
	serverWorldPrefix = "server-world"
	serverPackPrefix  = "server-pack"
)

// SetProperty writes one server.properties key.
func (m *Manager) SetProperty(name, key, value string) error {
	if !m.Exists(name) {
		return missingServer(name)
	}
	if strings.TrimSpace(key) == "" {
		return failure.Preconditionf("", "A property key is required.")
	}
	if err := properties.Update(m.propertiesPath(name), map[string]string{key: value}); err != nil {
		return failure.Configurationf("Server %s has no usable server.properties: %v", name, err)
	}
	m.out.Printf("Property %s of server %s set to %q.", key, name, value)
	return nil
}

// SetWorld installs a world folder or archive into the server root and selects it as
// level-name, replacing a world installed the same way before.
func (m *Manager) SetWorld(ctx context.Context, name, link string) error {
	if err := m.requireStopped(ctx, name); err != nil {
		return err
	}
	dir := m.Dir(name)

	scratch, err := os.MkdirTemp(dir, ".world-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)

	src, err := m.resolveLink(ctx, link, scratch)
	if err != nil {
		return err
	}

	var staged string
	info, err := os.Stat(src)
	switch {
	case err != nil:
		return err
	case info.IsDir():
		staged = filepath.Join(scratch, serverWorldPrefix+"_"+filepath.Base(src))
		if err := fetch.CopyDir(src, staged); err != nil {
			return err
		}
	case fetch.IsArchive(src):
		staged, err = fetch.ExtractAndIsolate(src, scratch, serverWorldPrefix, "", true)
		if err != nil {
			return err
		}
	default:
		return failure.Preconditionf("", "World link %s is neither a folder nor an archive.", link)
	}

	assets.RemoveArtifacts(dir, assets.Worlds, serverWorldPrefix)
	target := filepath.Join(dir, filepath.Base(staged))
	if err := os.Rename(staged, target); err != nil {
		return err
	}
	if err := properties.Update(m.propertiesPath(name), map[string]string{"level-name": filepath.Base(target)}); err != nil {
		return failure.Configurationf("Server %s has no usable server.properties: %v", name, err)
	}

	m.out.Printf("World %s set for server %s.", filepath.Base(target), name)
	logger.Info("Server world set", map[string]interface{}{"server": name, "world": filepath.Base(target)})
	return nil
}

// SetResourcePack points resource-pack at a remote link, or stages a local zip into
// resourcepacks/ and points at its absolute path.
func (m *Manager) SetResourcePack(ctx context.Context, name, link string) error {
	if !m.Exists(name) {
		return missingServer(name)
	}

	value := link
	if !fetch.IsRemote(link) {
		src := strings.TrimPrefix(link, assets.LocalPrefix)
		info, err := os.Stat(src)
		if err != nil || info.IsDir() || !strings.HasSuffix(strings.ToLower(src), ".zip") {
			return failure.Preconditionf("", "Resource pack link %s is neither a URL nor a zip file.", link)
		}
		folder := assets.ServerTarget(m.Dir(name), assets.ResourcePacks)
		if err := os.MkdirAll(folder, 0755); err != nil {
			return err
		}
		assets.RemoveArtifacts(folder, assets.ResourcePacks, serverPackPrefix)
		dst := filepath.Join(folder, serverPackPrefix+"_"+filepath.Base(src))
		if err := fetch.CopyFile(src, dst); err != nil {
			return err
		}
		if value, err = filepath.Abs(dst); err != nil {
			return err
		}
	}

	if err := properties.Update(m.propertiesPath(name), map[string]string{"resource-pack": value}); err != nil {
		return failure.Configurationf("Server %s has no usable server.properties: %v", name, err)
	}
	m.out.Printf("Resource pack of server %s set to %s.", name, value)
	if m.Status(ctx, name) != None {
		m.out.Printf("Restart server %s to apply it.", name)
	}
	return nil
}

// SendCommand runs a console command on a listening server and returns its reply.
func (m *Manager) SendCommand(ctx context.Context, name, command string) (string, error) {
	if !m.Exists(name) {
		return "", missingServer(name)
	}
	if strings.TrimSpace(command) == "" {
		return "", failure.Preconditionf("", "A command is required.")
	}
	if status := m.Status(ctx, name); status != Listening {
		return "", failure.Preconditionf(failure.Run("server status %s", name),
			"Server with name %s is not listening (%s).", name, status)
	}
	port, err := m.rconPort(name)
	if err != nil {
		return "", failure.Configurationf("Server %s has no RCON port: %v", name, err)
	}
	reply, err := m.prober.Execute(port, m.opts.RCONPassword, command)
	if err != nil {
		return "", err
	}
	logger.Debug("Command sent", map[string]interface{}{"server": name, "command": command})
	return reply, nil
}

// ServerAsset is an artifact found in a server tree.
type ServerAsset struct {
	Collection assets.Collection `json:"collection"`
	Name       string            `json:"name"`
	File       string            `json:"file"`
}

// ListServerAssets lists the mods, plugins, resource packs and worlds on disk. Name is
// the asset prefix of the file, empty for files not installed as an asset.
func (m *Manager) ListServerAssets(name string) ([]ServerAsset, error) {
	if !m.Exists(name) {
		return nil, missingServer(name)
	}

	found := []ServerAsset{}
	for _, c := range assets.Collections {
		entries, err := os.ReadDir(assets.ServerTarget(m.Dir(name), c))
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !isArtifact(m.Dir(name), c, e) {
				continue
			}
			asset := ServerAsset{Collection: c, File: e.Name()}
			if i := strings.Index(e.Name(), "_"); i > 0 {
				asset.Name = e.Name()[:i]
			}
			found = append(found, asset)
		}
	}
	return found, nil
}

func isArtifact(serverDir string, c assets.Collection, e os.DirEntry) bool {
	if c.IsFolder() {
		if !e.IsDir() {
			return false
		}
		_, err := os.Stat(filepath.Join(serverDir, e.Name(), "level.dat"))
		return err == nil
	}
	return !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), c.RequiredExt())
}

// RemoveServerAsset deletes "<asset>_*" from the collection's folder of a stopped server.
func (m *Manager) RemoveServerAsset(ctx context.Context, name string, c assets.Collection, asset string) error {
	if err := m.requireStopped(ctx, name); err != nil {
		return err
	}
	if asset == "" {
		return failure.Preconditionf("", "An asset name is required.")
	}
	removed := assets.RemoveArtifacts(assets.ServerTarget(m.Dir(name), c), c, asset)
	if removed == 0 {
		return failure.Preconditionf(failure.Run("server assets %s", name),
			"No %s named %s in server %s.", c, asset, name)
	}
	m.out.Printf("%s %s removed from server %s.", c, asset, name)
	logger.Info("Server asset removed", map[string]interface{}{
		"server":     name,
		"collection": string(c),
		"asset":      asset,
		"files":      removed,
	})
	return nil
}

func (m *Manager) requireStopped(ctx context.Context, name string) error {
	if !m.Exists(name) {
		return missingServer(name)
	}
	if m.Status(ctx, name) != None {
		return failure.Preconditionf(failure.Run("server down %s", name),
			"Server with name %s is running. Stop it first.", name)
	}
	return nil
}

// resolveLink returns a local path for link, downloading remote links into dir.
func (m *Manager) resolveLink(ctx context.Context, link, dir string) (string, error) {
	if fetch.IsRemote(link) {
		if m.downloader == nil {
			return "", failure.Configurationf("Downloads are not configured.")
		}
		return m.downloader.Download(ctx, link, dir, "")
	}
	src := strings.TrimPrefix(link, assets.LocalPrefix)
	if _, err := os.Stat(src); err != nil {
		return "", failure.Preconditionf("", "Link %s is neither a URL nor a valid path.", link)
	}
	return src, nil
}
