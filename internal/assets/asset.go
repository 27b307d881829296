package assets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/payperplay/easyservers/internal/failure"
	"github.com/payperplay/easyservers/internal/fetch"
	"github.com/payperplay/easyservers/pkg/logger"
)

// AddAssetRequest describes an asset to add to a config.
type AddAssetRequest struct {
	Config        string
	Collection    Collection
	Name          string
	Link          string
	ServerDefault bool
	Side          Side // mods only
}

// AddAsset stages the asset and copies it to every target its collection, side and
// default flag select. The fan-out is all-or-nothing: when one copy fails, every
// "<name>_*" written so far and the staged artifact are removed, and the descriptor is
// left untouched.
func (m *Manager) AddAsset(ctx context.Context, req AddAssetRequest) error {
	d, err := m.Read(req.Config)
	if err != nil {
		return err
	}
	if err := m.checkAdd(d, req); err != nil {
		return err
	}
	if req.Collection == Mods && req.Side == "" {
		req.Side = SideGlobal
	}

	serverTargets, clientTargets, err := m.targets(d, req)
	if err != nil {
		return err
	}

	staging := m.layout.Staging(req.Config, req.Collection)
	staged, err := m.stage(ctx, staging, req)
	if err != nil {
		RemoveArtifacts(staging, req.Collection, req.Name)
		return err
	}

	targets := append(serverTargets, clientTargets...)
	if err := m.fanOut(staged, req, targets); err != nil {
		RemoveArtifacts(staging, req.Collection, req.Name)
		return err
	}

	if req.ServerDefault {
		m.evictDefault(d, req)
	}

	link := req.Link
	if !fetch.IsRemote(link) {
		link = LocalPrefix + staged
	}
	d.add(req.Collection, Asset{Name: req.Name, Link: link})
	syncNames(d, req)

	if err := d.Save(m.layout.DescriptorPath(req.Config)); err != nil {
		return err
	}

	m.out.Printf("%s %s added to config %s.", req.Collection, req.Name, req.Config)
	if req.ServerDefault {
		m.out.Printf("%s set as server default for config %s.", req.Name, req.Config)
	}
	logger.Info("Asset added", map[string]interface{}{
		"config":     req.Config,
		"collection": string(req.Collection),
		"asset":      req.Name,
		"targets":    len(targets),
		"default":    req.ServerDefault,
	})
	return nil
}

// checkAdd validates a request before anything is written.
func (m *Manager) checkAdd(d *Descriptor, req AddAssetRequest) error {
	if !req.Collection.Known() {
		return unknownCollection(req.Collection)
	}
	if req.Side != "" {
		if _, err := ParseSide(string(req.Side)); err != nil {
			return err
		}
	}
	if !assetNameRegex.MatchString(req.Name) {
		return failure.Preconditionf("Use 1-32 letters, digits or '-'.", "Invalid asset name %q.", req.Name)
	}
	if _, taken := d.Find(req.Collection, req.Name); taken {
		return failure.Preconditionf(
			failure.Run("asset remove %s %s %s", req.Config, req.Collection, req.Name),
			"%s with name %s already exists.", req.Collection, req.Name)
	}
	if req.ServerDefault && !req.Collection.SupportsDefault() {
		return failure.Preconditionf("", "Only worlds and resource packs can be a server default.")
	}
	if req.Collection != Mods && req.Side != "" {
		return failure.Preconditionf("", "Only mods have a side.")
	}
	if req.Link == "" {
		return failure.Preconditionf("", "An asset link is required.")
	}

	if fetch.IsRemote(req.Link) {
		return nil
	}

	path := strings.TrimPrefix(req.Link, LocalPrefix)
	info, err := os.Stat(path)
	if err != nil {
		return failure.Preconditionf("", "Asset link %s is neither a URL nor a valid file path.", req.Link)
	}
	if info.IsDir() {
		if !req.Collection.IsFolder() {
			return failure.Preconditionf("", "Asset link %s is a folder; %s need a %s file.", req.Link, req.Collection, req.Collection.RequiredExt())
		}
		return nil
	}
	ext := req.Collection.RequiredExt()
	if !fetch.IsArchive(path) && (ext == "" || !strings.HasSuffix(strings.ToLower(path), ext)) {
		return failure.Preconditionf("", "Asset link %s does not contain the expected file type for %s.", req.Link, req.Collection)
	}
	return nil
}

// targets lists the server and client folders receiving the asset.
func (m *Manager) targets(d *Descriptor, req AddAssetRequest) ([]string, []string, error) {
	var toServer, toClient bool
	switch req.Collection {
	case Mods:
		toServer, toClient = req.Side.onServer(), req.Side.onClient()
	case Plugins:
		toServer = true
	default:
		toServer, toClient = req.ServerDefault, !req.ServerDefault
	}

	var serverTargets, clientTargets []string
	if toServer {
		serverTargets = []string{ServerTarget(m.layout.BaseServer(req.Config), req.Collection)}
	}
	if toClient {
		clientTargets = ClientTargets(
			m.layout.BaseManualClient(req.Config),
			m.layout.BaseMultiMC(req.Config),
			d.InstanceName(req.Config),
			req.Collection)
		for _, platform := range ClientOSes {
			dir := InstanceDir(m.layout.BaseMultiMC(req.Config), platform, d.InstanceName(req.Config))
			if !exists(dir) {
				return nil, nil, failure.Configurationf("MultiMC instance for %s does not exist in config %s.", platform, req.Config)
			}
		}
	}
	return serverTargets, clientTargets, nil
}

// stage resolves the link into "<name>_<original>" inside the staging folder.
func (m *Manager) stage(ctx context.Context, staging string, req AddAssetRequest) (string, error) {
	if err := os.MkdirAll(staging, 0755); err != nil {
		return "", err
	}
	ext := req.Collection.RequiredExt()

	if !fetch.IsRemote(req.Link) {
		src := strings.TrimPrefix(req.Link, LocalPrefix)
		info, err := os.Stat(src)
		if err != nil {
			return "", err
		}
		if info.IsDir() || (ext != "" && strings.HasSuffix(strings.ToLower(src), ext)) {
			dst := filepath.Join(staging, req.Name+"_"+filepath.Base(src))
			return dst, fetch.Copy(src, dst)
		}
		return fetch.ExtractAndIsolate(src, staging, req.Name, ext, req.Collection.IsFolder())
	}

	downloaded, err := m.fetcher.Download(ctx, req.Link, staging, req.Name)
	if err != nil {
		return "", err
	}
	if ext != "" && strings.HasSuffix(strings.ToLower(downloaded), ext) {
		return downloaded, nil
	}
	if !fetch.IsArchive(downloaded) {
		return "", fmt.Errorf("retrieving %s from %s failed: unexpected file %s", req.Collection, req.Link, filepath.Base(downloaded))
	}
	defer os.Remove(downloaded)
	return fetch.ExtractAndIsolate(downloaded, staging, req.Name, ext, req.Collection.IsFolder())
}

// fanOut copies staged into every target concurrently and rolls back on failure.
func (m *Manager) fanOut(staged string, req AddAssetRequest, targets []string) error {
	var mu sync.Mutex
	var reached []string

	var g errgroup.Group
	g.SetLimit(4)
	for _, target := range targets {
		target := target
		g.Go(func() error {
			if err := fetch.Copy(staged, filepath.Join(target, filepath.Base(staged))); err != nil {
				return fmt.Errorf("copy to %s: %w", target, err)
			}
			mu.Lock()
			reached = append(reached, target)
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		return nil
	}

	for _, target := range targets {
		RemoveArtifacts(target, req.Collection, req.Name)
	}
	logger.Warn("Asset fan-out rolled back", map[string]interface{}{
		"asset":   req.Name,
		"reached": reached,
		"error":   err.Error(),
	})
	return fmt.Errorf("asset %s was not installed (rolled back %d of %d targets: %s): %w",
		req.Name, len(reached), len(targets), strings.Join(reached, ", "), err)
}

// evictDefault removes the previous server default from the base server and records
// the new one.
func (m *Manager) evictDefault(d *Descriptor, req AddAssetRequest) {
	server := ServerTarget(m.layout.BaseServer(req.Config), req.Collection)
	switch req.Collection {
	case Worlds:
		if prev := d.Server.DefaultWorld; prev != "" && prev != req.Name {
			RemoveArtifacts(server, req.Collection, prev)
		}
		d.Server.DefaultWorld = req.Name
	case ResourcePacks:
		if prev := d.Server.ResourcePack; prev != "" && prev != req.Name {
			RemoveArtifacts(server, req.Collection, prev)
		}
		d.Server.ResourcePack = req.Name
	}
}

func syncNames(d *Descriptor, req AddAssetRequest) {
	switch req.Collection {
	case Mods:
		if req.Side.onServer() {
			addName(&d.Server.Mods, req.Name)
		}
		if req.Side.onClient() {
			addName(&d.Client.Mods, req.Name)
		}
	case Plugins:
		addName(&d.Server.Plugins, req.Name)
	case ResourcePacks:
		if !req.ServerDefault {
			addName(&d.Client.ResourcePacks, req.Name)
		}
	case Worlds:
		if !req.ServerDefault {
			addName(&d.Client.Worlds, req.Name)
		}
	}
}

// RemoveAsset deletes "<name>_*" from staging, the base server and every client tree,
// and drops the record and any default referencing it.
func (m *Manager) RemoveAsset(config string, c Collection, name string) error {
	if !c.Known() {
		return unknownCollection(c)
	}
	d, err := m.Read(config)
	if err != nil {
		return err
	}
	if _, ok := d.Find(c, name); !ok {
		return failure.Preconditionf(
			failure.Run("asset add %s %s %s <link>", config, c, name),
			"%s with name %s doesn't exist.", c, name)
	}

	dirs := []string{
		m.layout.Staging(config, c),
		ServerTarget(m.layout.BaseServer(config), c),
	}
	dirs = append(dirs, ClientTargets(m.layout.BaseManualClient(config), m.layout.BaseMultiMC(config), d.InstanceName(config), c)...)

	removed := 0
	for _, dir := range dirs {
		removed += RemoveArtifacts(dir, c, name)
	}
	if removed == 0 {
		m.out.Printf("Warning: no files found for %s %s.", c, name)
	}

	switch c {
	case Mods:
		removeName(&d.Server.Mods, name)
		removeName(&d.Client.Mods, name)
	case Plugins:
		removeName(&d.Server.Plugins, name)
	case ResourcePacks:
		removeName(&d.Client.ResourcePacks, name)
		if d.Server.ResourcePack == name {
			d.Server.ResourcePack = ""
			m.out.Printf("Resource pack %s was the default and has been removed from the default property.", name)
		}
	case Worlds:
		removeName(&d.Client.Worlds, name)
		if d.Server.DefaultWorld == name {
			d.Server.DefaultWorld = ""
			m.out.Printf("World %s was the default and has been removed from the default property.", name)
		}
	}
	d.remove(c, name)

	if err := d.Save(m.layout.DescriptorPath(config)); err != nil {
		return err
	}

	m.out.Printf("%s %s removed from config %s.", c, name, config)
	logger.Info("Asset removed", map[string]interface{}{
		"config":     config,
		"collection": string(c),
		"asset":      name,
		"files":      removed,
	})
	return nil
}
