// Package assets manages configurations: reusable server templates made of a mod-loader
// install, a manual and packaged client tree, and named assets fanned out to all of them.
package assets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/payperplay/easyservers/internal/failure"
	"github.com/payperplay/easyservers/internal/fetch"
	"github.com/payperplay/easyservers/internal/progress"
	"github.com/payperplay/easyservers/internal/supervisor"
	"github.com/payperplay/easyservers/pkg/logger"
)

var (
	configNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,32}$`)
	// Asset names exclude '_' so "<name>_*" never matches another asset's files.
	assetNameRegex = regexp.MustCompile(`^[a-zA-Z0-9-]{1,32}$`)
)

// Fetcher resolves and downloads remote artifacts.
type Fetcher interface {
	Download(ctx context.Context, link, destDir, prefix string) (string, error)
	VanillaServerURL(ctx context.Context, version string) (string, error)
	ForgeInstaller(ctx context.Context, version string) (fetch.Installer, error)
	NeoForgeInstaller(ctx context.Context, version string) (fetch.Installer, error)
	MultiMCArchiveURL(os string) (string, bool)
}

// Launcher runs an installer to completion.
type Launcher interface {
	LaunchAndWaitForAck(ctx context.Context, cmd supervisor.Command, readyMarker, errorMarker string, timeout time.Duration) (bool, error)
}

// Options tunes loader installation.
type Options struct {
	JavaHome               string
	InstallerSuccessMarker string
	InstallerTimeout       time.Duration
}

// Manager implements configuration and asset operations.
type Manager struct {
	layout   Layout
	fetcher  Fetcher
	launcher Launcher
	opts     Options
	out      *progress.Sink
	findJava func(javaHome string) (string, error)
}

// NewManager creates a manager rooted at layout.
func NewManager(layout Layout, fetcher Fetcher, launcher Launcher, opts Options, out *progress.Sink) *Manager {
	if out == nil {
		out = progress.Discard()
	}
	if opts.InstallerSuccessMarker == "" {
		opts.InstallerSuccessMarker = "The server installed successfully"
	}
	return &Manager{
		layout:   layout,
		fetcher:  fetcher,
		launcher: launcher,
		opts:     opts,
		out:      out,
		findJava: supervisor.FindJava,
	}
}

// Layout returns the paths the manager works on.
func (m *Manager) Layout() Layout {
	return m.layout
}

// Exists reports whether a config directory exists. Names that could not have been
// created never exist, so they cannot reach outside the configs root.
func (m *Manager) Exists(name string) bool {
	return configNameRegex.MatchString(name) && exists(m.layout.ConfigDir(name))
}

func missingConfig(name string) error {
	return failure.Preconditionf(
		failure.Run("config create %s <modLoader> <version>", name),
		"Config with name %s doesn't exist.", name)
}

// Read loads the descriptor of a config.
func (m *Manager) Read(name string) (*Descriptor, error) {
	if !m.Exists(name) {
		return nil, missingConfig(name)
	}
	d, err := LoadDescriptor(m.layout.DescriptorPath(name))
	if err != nil {
		return nil, failure.Configurationf("Config %s is unreadable: %v", name, err)
	}
	return d, nil
}

// List returns config names in directory order.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.layout.Root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() && exists(m.layout.DescriptorPath(e.Name())) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// CreateConfig builds the config layout, installs the mod-loader and prepares the
// clients. Any failure removes the config directory.
func (m *Manager) CreateConfig(ctx context.Context, name, modLoader, version string) (err error) {
	if !configNameRegex.MatchString(name) {
		return failure.Preconditionf("Use 1-32 letters, digits, '-' or '_'.", "Invalid config name %q.", name)
	}
	if m.Exists(name) {
		return failure.Preconditionf(failure.Run("config remove %s", name), "Config with name %s already exists.", name)
	}
	loader, err := ParseModLoader(modLoader)
	if err != nil {
		return err
	}
	if version == "" {
		return failure.Preconditionf("", "A Minecraft version is required.")
	}

	dir := m.layout.ConfigDir(name)
	defer func() {
		if err != nil {
			if rmErr := os.RemoveAll(dir); rmErr != nil {
				logger.Error("Failed to clean up config", rmErr, map[string]interface{}{"config": name})
			}
		}
	}()

	for _, p := range []string{
		m.layout.BaseServer(name),
		filepath.Join(m.layout.BaseManualClient(name), "mods"),
		filepath.Join(m.layout.BaseManualClient(name), "resourcepacks"),
		filepath.Join(m.layout.BaseManualClient(name), "saves"),
		m.layout.BaseMultiMC(name),
	} {
		if err = os.MkdirAll(p, 0755); err != nil {
			return err
		}
	}
	if err = os.WriteFile(filepath.Join(m.layout.BaseServer(name), "eula.txt"), Eula(), 0644); err != nil {
		return err
	}

	d := NewDescriptor(loader, version)
	if err = d.Save(m.layout.DescriptorPath(name)); err != nil {
		return err
	}

	loaderVersion, err := m.installLoader(ctx, name, loader, version)
	if err != nil {
		return err
	}

	if err = m.prepareClients(ctx, name, d, loaderVersion); err != nil {
		return err
	}

	m.out.Printf("Config %s created.", name)
	logger.Info("Config created", map[string]interface{}{
		"config":     name,
		"mod_loader": string(loader),
		"version":    version,
	})
	return nil
}

func (m *Manager) installLoader(ctx context.Context, name string, loader ModLoader, version string) (string, error) {
	switch loader {
	case Vanilla:
		link, err := m.fetcher.VanillaServerURL(ctx, version)
		if err != nil {
			return "", err
		}
		downloaded, err := m.fetcher.Download(ctx, link, m.layout.BaseServer(name), "")
		if err != nil {
			return "", err
		}
		jar := filepath.Join(m.layout.BaseServer(name), "minecraft_server_"+version+".jar")
		if err := os.Rename(downloaded, jar); err != nil {
			return "", err
		}
		m.out.Printf("Vanilla server jar downloaded to %s.", jar)
		return "", nil

	case Forge:
		inst, err := m.fetcher.ForgeInstaller(ctx, version)
		if err != nil {
			return "", err
		}
		return inst.Version, m.runInstaller(ctx, name, "Forge", inst, "--installServer")

	case NeoForge:
		inst, err := m.fetcher.NeoForgeInstaller(ctx, version)
		if err != nil {
			return "", err
		}
		return inst.Version, m.runInstaller(ctx, name, "Neoforge", inst, "--install-server")
	}
	return "", fmt.Errorf("unhandled mod loader %s", loader)
}

// runInstaller downloads an installer next to baseServer, installs the server into it and
// keeps a copy of the installer for manual clients.
func (m *Manager) runInstaller(ctx context.Context, name, label string, inst fetch.Installer, flag string) error {
	dir := m.layout.ConfigDir(name)
	installer, err := m.fetcher.Download(ctx, inst.URL, dir, "")
	if err != nil {
		return err
	}

	java, err := m.findJava(m.opts.JavaHome)
	if err != nil {
		return err
	}

	m.out.Printf("%s installer downloaded to %s. Installing base server.", label, installer)
	cmd := supervisor.Command{
		Path:     java,
		Args:     []string{"-jar", filepath.Base(installer), flag, filepath.Base(m.layout.BaseServer(name))},
		Dir:      dir,
		Artifact: installer,
	}
	ok, err := m.launcher.LaunchAndWaitForAck(ctx, cmd, m.opts.InstallerSuccessMarker, "", m.opts.InstallerTimeout)
	if err != nil {
		return failure.Bootstrapf(err, "%s installation failed.", label)
	}
	if !ok {
		return failure.Bootstrapf(nil, "%s installation failed. Please check the logs for more details.", label)
	}

	if err := fetch.CopyFile(installer, filepath.Join(m.layout.BaseManualClient(name), filepath.Base(installer))); err != nil {
		return err
	}
	return os.Remove(installer)
}

// prepareClients sets up one packaged launcher per platform, concurrently.
func (m *Manager) prepareClients(ctx context.Context, name string, d *Descriptor, loaderVersion string) error {
	m.out.Printf("Preparing MultiMC clients...")
	root := m.layout.BaseMultiMC(name)
	instance := d.InstanceName(name)
	pack := renderMMCPack(d.ModLoader, d.Version, loaderVersion)
	cfg := renderInstanceCfg(instance)

	g, gctx := errgroup.WithContext(ctx)
	for _, platform := range ClientOSes {
		platform := platform
		g.Go(func() error {
			if err := m.prepareLauncher(gctx, root, platform); err != nil {
				return fmt.Errorf("%s client: %w", platform, err)
			}

			dir := InstanceDir(root, platform, instance)
			for _, sub := range []string{"mods", "resourcepacks", "saves"} {
				if err := os.MkdirAll(filepath.Join(dir, ".minecraft", sub), 0755); err != nil {
					return err
				}
			}
			if err := os.WriteFile(filepath.Join(dir, "instance.cfg"), cfg, 0644); err != nil {
				return err
			}
			return os.WriteFile(filepath.Join(dir, "mmc-pack.json"), pack, 0644)
		})
	}
	return g.Wait()
}

// prepareLauncher extracts the configured launcher archive as "<platform>_MultiMC[.app]",
// or creates an empty folder of that name when none is configured.
func (m *Manager) prepareLauncher(ctx context.Context, root, platform string) error {
	target := filepath.Join(root, MultiMCFolder(platform))

	link, ok := m.fetcher.MultiMCArchiveURL(platform)
	if !ok {
		return os.MkdirAll(target, 0755)
	}

	archive, err := m.fetcher.Download(ctx, link, root, platform)
	if err != nil {
		return err
	}
	defer os.Remove(archive)

	extracted, err := fetch.ExtractAndIsolate(archive, root, platform, "", true)
	if err != nil {
		return err
	}
	if extracted != target {
		return os.Rename(extracted, target)
	}
	return nil
}

// RemoveConfig deletes a config and everything staged for it.
func (m *Manager) RemoveConfig(name string) error {
	if !m.Exists(name) {
		return missingConfig(name)
	}
	if err := os.RemoveAll(m.layout.ConfigDir(name)); err != nil {
		return err
	}
	m.out.Printf("Config %s removed.", name)
	logger.Info("Config removed", map[string]interface{}{"config": name})
	return nil
}

// ListAssets returns the records of a collection.
func (m *Manager) ListAssets(config string, c Collection) ([]Asset, error) {
	if !c.Known() {
		return nil, unknownCollection(c)
	}
	d, err := m.Read(config)
	if err != nil {
		return nil, err
	}
	assets := append([]Asset(nil), d.Assets(c)...)
	sort.SliceStable(assets, func(i, j int) bool { return assets[i].Name < assets[j].Name })
	return assets, nil
}
