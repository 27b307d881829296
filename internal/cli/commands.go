package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/payperplay/easyservers/internal/ops"
)

func newConfigCmd(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configs, the templates servers are created from",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "create <name> <modLoader> <version>",
			Short: "Install a mod-loader and prepare its server template and clients",
			Long: `Install a mod-loader (vanilla, forge or neoforge) at a Minecraft version into a new
config, then prepare the manual client and the packaged MultiMC clients.`,
			Args: cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				return r.run(cmd, ops.CreateConfig{Name: args[0], ModLoader: args[1], Version: args[2]})
			},
		},
		&cobra.Command{
			Use:   "remove <name>",
			Short: "Remove a config and everything it contains",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return r.run(cmd, ops.RemoveConfig{Name: args[0]})
			},
		},
		&cobra.Command{
			Use:     "list",
			Aliases: []string{"ls"},
			Short:   "List configs",
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return r.run(cmd, ops.ListConfigs{})
			},
		},
		&cobra.Command{
			Use:   "show <name>",
			Short: "Show a config's loader, assets and server defaults",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return r.run(cmd, ops.ShowConfig{Name: args[0]})
			},
		},
	)
	return cmd
}

func newAssetCmd(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "asset",
		Short: "Manage the mods, plugins, resource packs and worlds of a config",
	}

	var serverDefault bool
	var side string
	add := &cobra.Command{
		Use:   "add <config> <collection> <name> <link>",
		Short: "Download or copy an asset into a config",
		Long: `Download (http/https link) or copy (local path) an asset and install it in every
place its collection requires: the server template, the manual client and each packaged
client. Collections are mods, plugins, resourcePacks and worlds.`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd, ops.AddAsset{
				Config:        args[0],
				Collection:    args[1],
				Name:          args[2],
				Link:          args[3],
				ServerDefault: serverDefault,
				Side:          side,
			})
		},
	}
	add.Flags().BoolVar(&serverDefault, "server-default", false, "make this world or resource pack the default of new servers")
	add.Flags().StringVar(&side, "side", "", "where a mod is installed: client, server or global (default global)")

	cmd.AddCommand(
		add,
		&cobra.Command{
			Use:   "remove <config> <collection> <name>",
			Short: "Remove an asset from a config and every place it was installed",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				return r.run(cmd, ops.RemoveAsset{Config: args[0], Collection: args[1], Name: args[2]})
			},
		},
		&cobra.Command{
			Use:     "list <config> <collection>",
			Aliases: []string{"ls"},
			Short:   "List the assets of a collection",
			Args:    cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return r.run(cmd, ops.ListAssets{Config: args[0], Collection: args[1]})
			},
		},
	)
	return cmd
}

func newServerCmd(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Create, run and customize servers",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "create <name> <config>",
			Short: "Create a server from a config and boot it once",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return r.run(cmd, ops.CreateServer{Name: args[0], Config: args[1]})
			},
		},
		&cobra.Command{
			Use:   "up <name> <port>",
			Short: "Start a server in the background on a port",
			Long: `Start a server in the background. RCON listens on the port plus the configured
offset and is used to probe and stop the server.`,
			Args: cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				port, err := strconv.Atoi(args[1])
				if err != nil {
					return usageError("Port %q is not a number.", args[1])
				}
				return r.run(cmd, ops.UpServer{Name: args[0], Port: port})
			},
		},
		&cobra.Command{
			Use:   "down <name>",
			Short: "Stop a running server",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return r.run(cmd, ops.DownServer{Name: args[0]})
			},
		},
		&cobra.Command{
			Use:     "remove <name>",
			Aliases: []string{"rm"},
			Short:   "Remove a stopped server",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return r.run(cmd, ops.RemoveServer{Name: args[0]})
			},
		},
		&cobra.Command{
			Use:   "status <name>",
			Short: "Show whether a server is stopped, running or listening",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return r.run(cmd, ops.ServerStatus{Name: args[0]})
			},
		},
		&cobra.Command{
			Use:     "list",
			Aliases: []string{"ls"},
			Short:   "List servers with their status and players",
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return r.run(cmd, ops.ListServers{})
			},
		},
		&cobra.Command{
			Use:   "set-property <name> <key> [value]",
			Short: "Set a key in server.properties",
			Args:  cobra.RangeArgs(2, 3),
			RunE: func(cmd *cobra.Command, args []string) error {
				req := ops.SetServerProperty{Name: args[0], Key: args[1]}
				if len(args) == 3 {
					req.Value = args[2]
				}
				return r.run(cmd, req)
			},
		},
		&cobra.Command{
			Use:   "set-world <name> <link>",
			Short: "Replace the world of a stopped server",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return r.run(cmd, ops.SetServerWorld{Name: args[0], Link: args[1]})
			},
		},
		&cobra.Command{
			Use:   "set-resource-pack <name> <link>",
			Short: "Point a server at a resource pack",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return r.run(cmd, ops.SetServerResourcePack{Name: args[0], Link: args[1]})
			},
		},
		&cobra.Command{
			Use:   "send <name> <command...>",
			Short: "Run a console command over RCON",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return r.run(cmd, ops.SendCommand{Name: args[0], Command: strings.Join(args[1:], " ")})
			},
		},
		&cobra.Command{
			Use:   "assets <name>",
			Short: "List the assets installed in a server",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return r.run(cmd, ops.ListServerAssets{Name: args[0]})
			},
		},
		&cobra.Command{
			Use:   "remove-asset <name> <collection> <asset>",
			Short: "Remove an asset from a stopped server",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				return r.run(cmd, ops.RemoveServerAsset{Name: args[0], Collection: args[1], Asset: args[2]})
			},
		},
	)
	return cmd
}
