package assets

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/payperplay/easyservers/internal/failure"
)

// ModLoader is the server flavour a config installs.
type ModLoader string

const (
	Vanilla  ModLoader = "vanilla"
	Forge    ModLoader = "forge"
	NeoForge ModLoader = "neoforge"
)

// ParseModLoader accepts a loader name case-insensitively.
func ParseModLoader(s string) (ModLoader, error) {
	switch ModLoader(strings.ToLower(strings.TrimSpace(s))) {
	case Vanilla:
		return Vanilla, nil
	case Forge:
		return Forge, nil
	case NeoForge:
		return NeoForge, nil
	}
	return "", failure.Preconditionf("Supported mod loaders are vanilla, forge and neoforge.", "Mod loader %s is not supported.", s)
}

// Collection names an asset list in the descriptor.
type Collection string

const (
	Mods          Collection = "mods"
	Plugins       Collection = "plugins"
	ResourcePacks Collection = "resourcePacks"
	Worlds        Collection = "worlds"
)

// Collections lists every collection in descriptor order.
var Collections = []Collection{Mods, ResourcePacks, Plugins, Worlds}

// ParseCollection accepts a collection name case-insensitively.
func ParseCollection(s string) (Collection, error) {
	for _, c := range Collections {
		if strings.EqualFold(string(c), strings.TrimSpace(s)) {
			return c, nil
		}
	}
	return "", failure.Preconditionf("Collections are mods, resourcePacks, plugins and worlds.", "Unknown asset collection %s.", s)
}

// Known reports whether c is one of Collections.
func (c Collection) Known() bool {
	for _, known := range Collections {
		if c == known {
			return true
		}
	}
	return false
}

func unknownCollection(c Collection) error {
	_, err := ParseCollection(string(c))
	return err
}

// RequiredExt is the artifact extension, empty for folder assets.
func (c Collection) RequiredExt() string {
	switch c {
	case Mods, Plugins:
		return ".jar"
	case ResourcePacks:
		return ".zip"
	}
	return ""
}

// IsFolder reports whether the artifact is a directory.
func (c Collection) IsFolder() bool { return c == Worlds }

// ServerFolder is the folder below the server root; worlds live in the root itself.
func (c Collection) ServerFolder() string {
	switch c {
	case Worlds:
		return ""
	case ResourcePacks:
		return "resourcepacks"
	}
	return string(c)
}

// ClientFolder is the folder below a client's game directory, empty for server-only
// collections.
func (c Collection) ClientFolder() string {
	switch c {
	case Mods:
		return "mods"
	case ResourcePacks:
		return "resourcepacks"
	case Worlds:
		return "saves"
	}
	return ""
}

// SupportsDefault reports whether an asset can be the server default.
func (c Collection) SupportsDefault() bool { return c == Worlds || c == ResourcePacks }

// Side decides where a mod is installed.
type Side string

const (
	SideClient Side = "client"
	SideServer Side = "server"
	SideGlobal Side = "global"
)

// ParseSide accepts a side case-insensitively. Empty means global.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case "", SideGlobal:
		return SideGlobal, nil
	case SideClient:
		return SideClient, nil
	case SideServer:
		return SideServer, nil
	}
	return "", failure.Preconditionf("Sides are client, server and global.", "Unknown mod side %s.", s)
}

func (s Side) onServer() bool { return s == SideServer || s == SideGlobal }
func (s Side) onClient() bool { return s == SideClient || s == SideGlobal }

// Asset is a named artifact and where it came from.
type Asset struct {
	Name string `json:"name"`
	Link string `json:"link"`
}

// LocalPrefix marks a link that was copied from the local filesystem.
const LocalPrefix = "file:"

// IsLocal reports whether the asset came from a local path.
func (a Asset) IsLocal() bool { return strings.HasPrefix(a.Link, LocalPrefix) }

// ClientSection lists what the clients carry.
type ClientSection struct {
	Mods          []string `json:"mods"`
	ResourcePacks []string `json:"resourcePacks"`
	Worlds        []string `json:"worlds"`
}

// ServerSection lists what the base server carries.
type ServerSection struct {
	Mods         []string          `json:"mods"`
	Plugins      []string          `json:"plugins"`
	ResourcePack string            `json:"resourcePack"`
	Properties   map[string]string `json:"properties"`
	DefaultWorld string            `json:"defaultWorld"`
}

// Descriptor is the config.json of a configuration.
type Descriptor struct {
	ModLoader     ModLoader     `json:"modLoader"`
	Version       string        `json:"version"`
	Mods          []Asset       `json:"mods"`
	ResourcePacks []Asset       `json:"resourcePacks"`
	Plugins       []Asset       `json:"plugins"`
	Worlds        []Asset       `json:"worlds"`
	Client        ClientSection `json:"client"`
	Server        ServerSection `json:"server"`
}

// NewDescriptor returns an empty descriptor with non-nil lists.
func NewDescriptor(loader ModLoader, version string) *Descriptor {
	d := &Descriptor{ModLoader: loader, Version: version}
	d.normalize()
	return d
}

func (d *Descriptor) normalize() {
	for _, list := range []*[]Asset{&d.Mods, &d.ResourcePacks, &d.Plugins, &d.Worlds} {
		if *list == nil {
			*list = []Asset{}
		}
	}
	for _, list := range []*[]string{&d.Client.Mods, &d.Client.ResourcePacks, &d.Client.Worlds, &d.Server.Mods, &d.Server.Plugins} {
		if *list == nil {
			*list = []string{}
		}
	}
	if d.Server.Properties == nil {
		d.Server.Properties = map[string]string{}
	}
}

func (d *Descriptor) list(c Collection) *[]Asset {
	switch c {
	case Mods:
		return &d.Mods
	case ResourcePacks:
		return &d.ResourcePacks
	case Plugins:
		return &d.Plugins
	default:
		return &d.Worlds
	}
}

// Assets returns the records of a collection.
func (d *Descriptor) Assets(c Collection) []Asset {
	return *d.list(c)
}

// Find looks up an asset by name.
func (d *Descriptor) Find(c Collection, name string) (Asset, bool) {
	for _, a := range *d.list(c) {
		if a.Name == name {
			return a, true
		}
	}
	return Asset{}, false
}

func (d *Descriptor) add(c Collection, a Asset) {
	l := d.list(c)
	*l = append(*l, a)
}

func (d *Descriptor) remove(c Collection, name string) {
	l := d.list(c)
	kept := (*l)[:0]
	for _, a := range *l {
		if a.Name != name {
			kept = append(kept, a)
		}
	}
	*l = kept
}

// InstanceName is the packaged client instance folder name.
func (d *Descriptor) InstanceName(config string) string {
	return config + "_" + d.Version
}

func addName(list *[]string, name string) {
	for _, n := range *list {
		if n == name {
			return
		}
	}
	*list = append(*list, name)
}

func removeName(list *[]string, name string) {
	kept := (*list)[:0]
	for _, n := range *list {
		if n != name {
			kept = append(kept, n)
		}
	}
	*list = kept
}

// LoadDescriptor reads a config.json.
func LoadDescriptor(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	d.normalize()
	return &d, nil
}

// Save writes the descriptor atomically.
func (d *Descriptor) Save(path string) error {
	d.normalize()
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.json")
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return os.Rename(tmp.Name(), path)
}
