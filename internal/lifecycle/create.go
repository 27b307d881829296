package lifecycle

import (
	"context"
	"os"
	"path/filepath"

	"github.com/payperplay/easyservers/internal/assets"
	"github.com/payperplay/easyservers/internal/failure"
	"github.com/payperplay/easyservers/internal/fetch"
	"github.com/payperplay/easyservers/internal/properties"
	"github.com/payperplay/easyservers/pkg/logger"
)

// Create materializes a config into a new server, resolves its defaults into
// server.properties and boots it once to prove the install starts. Any failure removes
// the server directory.
func (m *Manager) Create(ctx context.Context, name, config string) (err error) {
	if !serverNameRegex.MatchString(name) {
		return failure.Preconditionf("Use 1-32 letters, digits, '-' or '_'.", "Invalid server name %q.", name)
	}
	if m.Exists(name) {
		return failure.Preconditionf(failure.Run("server remove %s", name), "Server with name %s already exists.", name)
	}
	d, err := m.configs.Read(config)
	if err != nil {
		return err
	}

	dir := m.Dir(name)
	defer func() {
		if err == nil {
			return
		}
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			logger.Error("Failed to roll back server", rmErr, map[string]interface{}{"server": name})
			return
		}
		m.out.Printf("Server %s removed.", name)
	}()

	layout := m.configs.Layout()
	copies := []struct{ src, dst string }{
		{layout.BaseServer(config), dir},
		{layout.BaseManualClient(config), filepath.Join(dir, "clients", "diyClient")},
		{layout.BaseMultiMC(config), filepath.Join(dir, "clients", "multiMCClients")},
	}
	for _, c := range copies {
		if err = fetch.CopyDir(c.src, c.dst); err != nil {
			return failure.Configurationf("Config %s is incomplete: %v", config, err)
		}
	}
	m.out.Printf("Config %s copied to server %s.", config, name)

	if err = m.seedProperties(name, d); err != nil {
		return err
	}

	m.out.Printf("Initializing server %s with first boot-up...", name)
	cmd, err := m.launchCommand(name)
	if err != nil {
		return err
	}
	ok, err := m.sup.LaunchAndWaitForAck(ctx, cmd, m.opts.ReadyMarker, m.opts.ErrorMarker, m.opts.BootstrapTimeout)
	if err != nil {
		return failure.Bootstrapf(err, "Server first run failed.")
	}
	if !ok {
		return failure.Bootstrapf(nil, "Server first run failed. Check %s for details.", filepath.Base(cmd.Artifact))
	}

	m.out.Printf("Server %s created.", name)
	logger.Info("Server created", map[string]interface{}{
		"server":   name,
		"config":   config,
		"artifact": filepath.Base(cmd.Artifact),
	})
	return nil
}

// seedProperties writes server.properties from the template when the base tree has
// none, then applies the config's overrides and resolved defaults.
func (m *Manager) seedProperties(name string, d *assets.Descriptor) error {
	path := m.propertiesPath(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, assets.DefaultServerProperties(), 0644); err != nil {
			return err
		}
	}

	props, err := properties.Load(path)
	if err != nil {
		return err
	}
	props.SetAll(d.Server.Properties)

	if w := d.Server.DefaultWorld; w != "" {
		m.out.Printf("Default world found in config: %s.", w)
		level, err := m.defaultWorld(name, w)
		if err != nil {
			return err
		}
		props.Set("level-name", level)
	}

	if rp := d.Server.ResourcePack; rp != "" {
		m.out.Printf("Default resource pack found in config: %s.", rp)
		value, err := m.defaultResourcePack(name, d, rp)
		if err != nil {
			return err
		}
		props.Set("resource-pack", value)
	}

	return props.Save()
}

// defaultWorld returns the "<w>_*" directory name in the server root.
func (m *Manager) defaultWorld(name, world string) (string, error) {
	for _, path := range assets.FindPrefixed(m.Dir(name), world) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			return filepath.Base(path), nil
		}
	}
	return "", failure.Configurationf("The world %s is not found in %s server folder.", world, name)
}

// defaultResourcePack returns the recorded remote link, or the absolute path of the
// staged pack when its source was local.
func (m *Manager) defaultResourcePack(name string, d *assets.Descriptor, rp string) (string, error) {
	if a, ok := d.Find(assets.ResourcePacks, rp); ok && fetch.IsRemote(a.Link) {
		return a.Link, nil
	}
	matches := assets.FindPrefixed(assets.ServerTarget(m.Dir(name), assets.ResourcePacks), rp)
	if len(matches) == 0 {
		return "", failure.Configurationf("The resource pack %s is not found in %s server folder.", rp, name)
	}
	return filepath.Abs(matches[0])
}
