package assets

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ClientOSes are the platforms a packaged client is prepared for.
var ClientOSes = []string{"windows", "linux", "mac"}

// Layout resolves paths below the configs root.
type Layout struct {
	Root string
}

func (l Layout) ConfigDir(name string) string {
	return filepath.Join(l.Root, name)
}

func (l Layout) DescriptorPath(name string) string {
	return filepath.Join(l.ConfigDir(name), "config.json")
}

func (l Layout) BaseServer(name string) string {
	return filepath.Join(l.ConfigDir(name), "baseServer")
}

func (l Layout) BaseManualClient(name string) string {
	return filepath.Join(l.ConfigDir(name), "baseManualClient")
}

func (l Layout) BaseMultiMC(name string) string {
	return filepath.Join(l.ConfigDir(name), "baseMultiMCClient")
}

// Staging is where assets of a collection are downloaded and isolated.
func (l Layout) Staging(name string, c Collection) string {
	return filepath.Join(l.ConfigDir(name), "allAssets", strings.ToLower(string(c)))
}

// MultiMCFolder is the launcher folder name for a platform.
func MultiMCFolder(platform string) string {
	if platform == "mac" {
		return "mac_MultiMC.app"
	}
	return platform + "_MultiMC"
}

// InstanceDir is the packaged client instance for platform below a MultiMC clients root.
func InstanceDir(multiMCRoot, platform, instance string) string {
	return filepath.Join(multiMCRoot, MultiMCFolder(platform), "instances", instance)
}

// ServerTarget is the folder of collection c below a server root.
func ServerTarget(serverRoot string, c Collection) string {
	return filepath.Join(serverRoot, c.ServerFolder())
}

// ClientTargets lists the folders of collection c in the manual client and in every
// packaged instance.
func ClientTargets(manualRoot, multiMCRoot, instance string, c Collection) []string {
	folder := c.ClientFolder()
	if folder == "" {
		return nil
	}
	targets := []string{filepath.Join(manualRoot, folder)}
	for _, platform := range ClientOSes {
		targets = append(targets, filepath.Join(InstanceDir(multiMCRoot, platform, instance), ".minecraft", folder))
	}
	return targets
}

// FindPrefixed returns the entries of dir named "<name>_*", sorted.
func FindPrefixed(dir, name string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var matches []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), name+"_") {
			matches = append(matches, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(matches)
	return matches
}

// RemoveArtifacts deletes the artifacts of asset name from dir. Folder collections only
// match directories, so files sharing the prefix in a server root survive.
func RemoveArtifacts(dir string, c Collection, name string) int {
	removed := 0
	for _, path := range FindPrefixed(dir, name) {
		if c.IsFolder() {
			if info, err := os.Stat(path); err != nil || !info.IsDir() {
				continue
			}
		}
		if err := os.RemoveAll(path); err == nil {
			removed++
		}
	}
	return removed
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
