package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/payperplay/easyservers/internal/failure"
)

// Installer is a resolved mod-loader distribution.
type Installer struct {
	URL      string
	FileName string
	Version  string // loader version, e.g. "49.0.30" for forge
}

type versionManifest struct {
	Versions []struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	} `json:"versions"`
}

type versionDetails struct {
	Downloads struct {
		Server struct {
			URL string `json:"url"`
		} `json:"server"`
	} `json:"downloads"`
}

type forgePromotions struct {
	Promos map[string]string `json:"promos"`
}

type neoforgeMetadata struct {
	Versions []string `json:"versions"`
}

// VanillaServerURL resolves the official server jar for a game version.
func (c *Client) VanillaServerURL(ctx context.Context, version string) (string, error) {
	var manifest versionManifest
	if err := c.getJSON(ctx, c.sources.VanillaManifest, &manifest); err != nil {
		return "", err
	}

	for _, v := range manifest.Versions {
		if v.ID != version {
			continue
		}
		var details versionDetails
		if err := c.getJSON(ctx, v.URL, &details); err != nil {
			return "", err
		}
		if details.Downloads.Server.URL == "" {
			return "", failure.Preconditionf("", "Version %s has no dedicated server download.", version)
		}
		return details.Downloads.Server.URL, nil
	}

	return "", failure.Preconditionf("", "Version %s cannot be found.", version)
}

// ForgeInstaller resolves the forge installer for a game version, preferring the
// recommended promotion over the latest one.
func (c *Client) ForgeInstaller(ctx context.Context, version string) (Installer, error) {
	var promotions forgePromotions
	if err := c.getJSON(ctx, c.sources.ForgePromotions, &promotions); err != nil {
		return Installer{}, err
	}

	forgeVersion, ok := promotions.Promos[version+"-recommended"]
	if !ok {
		forgeVersion, ok = promotions.Promos[version+"-latest"]
	}
	if !ok || forgeVersion == "" {
		return Installer{}, failure.Preconditionf(
			"Use neoforge for compatibility with newer versions of Minecraft.",
			"Version %s cannot be found for forge.", version)
	}

	link := strings.NewReplacer(
		"{mineVersion}", version,
		"{forgeVersion}", forgeVersion,
	).Replace(c.sources.ForgeInstallerURL)

	return Installer{URL: link, FileName: path.Base(link), Version: forgeVersion}, nil
}

// NeoForgeInstaller resolves the newest stable neoforge release targeting a game version.
// Betas are only picked when no stable release exists.
func (c *Client) NeoForgeInstaller(ctx context.Context, version string) (Installer, error) {
	var metadata neoforgeMetadata
	if err := c.getJSON(ctx, c.sources.NeoForgeMetadata, &metadata); err != nil {
		return Installer{}, err
	}

	neoVersion, ok := PickNeoForgeVersion(metadata.Versions, version, c.sources.NeoForgeVersionRule)
	if !ok {
		return Installer{}, failure.Preconditionf(
			"Use forge for compatibility with older versions of Minecraft.",
			"Version %s cannot be found for neoforge.", version)
	}

	link := strings.ReplaceAll(c.sources.NeoForgeInstallerURL, "{neoforgeVersion}", neoVersion)
	return Installer{URL: link, FileName: path.Base(link), Version: neoVersion}, nil
}

// MultiMCArchiveURL returns the launcher archive configured for os, if any.
func (c *Client) MultiMCArchiveURL(os string) (string, bool) {
	link, ok := c.sources.MultiMC[strings.ToLower(os)]
	return link, ok && link != ""
}

// PickNeoForgeVersion returns the best candidate whose rule-mapped game version equals
// gameVersion.
func PickNeoForgeVersion(candidates []string, gameVersion, rule string) (string, bool) {
	want := trimZeroPatch(gameVersion)

	var matches []string
	for _, v := range candidates {
		parts := strings.Split(v, ".")
		if len(parts) < 2 {
			continue
		}
		mapped := strings.NewReplacer("{mineMinor}", parts[0], "{minePatch}", parts[1]).Replace(rule)
		if trimZeroPatch(mapped) == want {
			matches = append(matches, v)
		}
	}
	if len(matches) == 0 {
		return "", false
	}

	sort.Slice(matches, func(i, j int) bool {
		bi, bj := isBeta(matches[i]), isBeta(matches[j])
		if bi != bj {
			return !bi
		}
		return compareVersions(matches[i], matches[j]) > 0
	})
	return matches[0], true
}

// trimZeroPatch treats "1.21" and "1.21.0" as the same release.
func trimZeroPatch(v string) string {
	if strings.Count(v, ".") == 2 {
		return strings.TrimSuffix(v, ".0")
	}
	return v
}

func isBeta(v string) bool {
	return strings.Contains(strings.ToLower(v), "beta")
}

// compareVersions compares dotted versions numerically, ignoring "-suffix" qualifiers.
func compareVersions(a, b string) int {
	pa := strings.Split(strings.SplitN(a, "-", 2)[0], ".")
	pb := strings.Split(strings.SplitN(b, "-", 2)[0], ".")
	for i := 0; i < len(pa) || i < len(pb); i++ {
		var na, nb int
		if i < len(pa) {
			na, _ = strconv.Atoi(pa[i])
		}
		if i < len(pb) {
			nb, _ = strconv.Atoi(pb[i])
		}
		if na != nb {
			if na > nb {
				return 1
			}
			return -1
		}
	}
	return strings.Compare(a, b)
}

func (c *Client) getJSON(ctx context.Context, link string, v interface{}) error {
	resp, err := c.get(ctx, link)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", link, err)
	}
	return nil
}
