package assets

import (
	"embed"
	"strings"
)

//go:embed templates/*
var templates embed.FS

func template(name string) []byte {
	data, err := templates.ReadFile("templates/" + name)
	if err != nil {
		// Templates are compiled in; a missing one is a build defect.
		panic(err)
	}
	return data
}

// Eula is the accepted eula.txt every base server carries.
func Eula() []byte { return template("eula.txt") }

// DefaultServerProperties seeds server.properties when an installer did not create one.
func DefaultServerProperties() []byte { return template("server.properties") }

func renderInstanceCfg(instance string) []byte {
	return []byte(strings.ReplaceAll(string(template("instance.cfg")), "{instanceName}", instance))
}

func renderMMCPack(loader ModLoader, version, loaderVersion string) []byte {
	content := string(template("mmc-pack-" + string(loader) + ".json"))
	content = strings.ReplaceAll(content, "{minecraftVersion}", version)
	content = strings.ReplaceAll(content, "{"+string(loader)+"Version}", loaderVersion)
	return []byte(content)
}
