package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Sources lists the remote endpoints used to install mod-loaders and client launchers.
// URL templates use {placeholders} that the fetch layer substitutes.
type Sources struct {
	VanillaManifest string `yaml:"vanillaManifest"`

	ForgePromotions   string `yaml:"forgePromotions"`
	ForgeInstallerURL string `yaml:"forgeInstallerUrl"` // {mineVersion}, {forgeVersion}

	NeoForgeMetadata     string `yaml:"neoforgeMetadata"`
	NeoForgeInstallerURL string `yaml:"neoforgeInstallerUrl"` // {neoforgeVersion}
	// NeoForgeVersionRule maps a neoforge version "20.4.x" to the game version it targets.
	NeoForgeVersionRule string `yaml:"neoforgeVersionRule"` // {mineMinor}, {minePatch}

	MultiMC map[string]string `yaml:"multiMC"` // os -> archive URL, empty = placeholder tree

	UserAgent string `yaml:"userAgent"`
}

// DefaultSources returns the built-in endpoints.
func DefaultSources() Sources {
	return Sources{
		VanillaManifest:      "https://launchermeta.mojang.com/mc/game/version_manifest.json",
		ForgePromotions:      "https://files.minecraftforge.net/net/minecraftforge/forge/promotions_slim.json",
		ForgeInstallerURL:    "https://maven.minecraftforge.net/net/minecraftforge/forge/{mineVersion}-{forgeVersion}/forge-{mineVersion}-{forgeVersion}-installer.jar",
		NeoForgeMetadata:     "https://maven.neoforged.net/api/maven/versions/releases/net/neoforged/neoforge",
		NeoForgeInstallerURL: "https://maven.neoforged.net/releases/net/neoforged/neoforge/{neoforgeVersion}/neoforge-{neoforgeVersion}-installer.jar",
		NeoForgeVersionRule:  "1.{mineMinor}.{minePatch}",
		MultiMC:              map[string]string{},
		UserAgent:            "easyservers/1.0",
	}
}

// LoadSources reads a YAML sources file and merges it over the defaults.
// A missing file is not an error.
func LoadSources(path string) (Sources, error) {
	sources := DefaultSources()
	if path == "" {
		return sources, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return sources, nil
		}
		return sources, fmt.Errorf("failed to read sources file: %w", err)
	}

	var override Sources
	if err := yaml.Unmarshal(data, &override); err != nil {
		return sources, fmt.Errorf("failed to parse sources file %s: %w", path, err)
	}

	merge(&sources.VanillaManifest, override.VanillaManifest)
	merge(&sources.ForgePromotions, override.ForgePromotions)
	merge(&sources.ForgeInstallerURL, override.ForgeInstallerURL)
	merge(&sources.NeoForgeMetadata, override.NeoForgeMetadata)
	merge(&sources.NeoForgeInstallerURL, override.NeoForgeInstallerURL)
	merge(&sources.NeoForgeVersionRule, override.NeoForgeVersionRule)
	merge(&sources.UserAgent, override.UserAgent)
	for name, url := range override.MultiMC {
		sources.MultiMC[name] = url
	}

	return sources, nil
}

func merge(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
