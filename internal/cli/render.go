package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/payperplay/easyservers/internal/assets"
	"github.com/payperplay/easyservers/internal/lifecycle"
	"github.com/payperplay/easyservers/internal/ops"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.Style().Color.Header = text.Colors{text.FgHiCyan}
	return t
}

func header(cols ...interface{}) table.Row {
	return table.Row(cols)
}

func colorStatus(s lifecycle.Status) string {
	switch s {
	case lifecycle.Listening:
		return text.FgGreen.Sprint(s)
	case lifecycle.ProcessRunning:
		return text.FgYellow.Sprint(s)
	default:
		return text.FgHiBlack.Sprint(s)
	}
}

func orDash(n int) string {
	if n == 0 {
		return "-"
	}
	return strconv.Itoa(n)
}

func emptyMessage(w io.Writer, what string) {
	fmt.Fprintf(w, "%s\n", text.FgYellow.Sprintf("No %s found", what))
}

// render prints a result: a table for listings, the message otherwise.
func render(w io.Writer, res ops.Result) error {
	switch data := res.Data.(type) {
	case []string:
		if len(data) == 0 {
			emptyMessage(w, "configs")
			return nil
		}
		t := newTable(w)
		t.AppendHeader(header("CONFIG"))
		for _, name := range data {
			t.AppendRow(table.Row{name})
		}
		t.Render()

	case []assets.Asset:
		if len(data) == 0 {
			emptyMessage(w, "assets")
			return nil
		}
		t := newTable(w)
		t.AppendHeader(header("NAME", "LINK"))
		for _, a := range data {
			t.AppendRow(table.Row{a.Name, a.Link})
		}
		t.Render()

	case []lifecycle.Info:
		if len(data) == 0 {
			emptyMessage(w, "servers")
			return nil
		}
		t := newTable(w)
		t.AppendHeader(header("SERVER", "STATUS", "PID", "PORT", "PLAYERS"))
		for _, info := range data {
			players := "-"
			if info.Status == lifecycle.Listening {
				players = fmt.Sprintf("%d/%d", info.Players, info.MaxPlayers)
			}
			t.AppendRow(table.Row{info.Name, colorStatus(info.Status), orDash(info.PID), orDash(info.Port), players})
		}
		t.Render()

	case lifecycle.Info:
		fmt.Fprintln(w, colorStatus(data.Status))

	case []lifecycle.ServerAsset:
		if len(data) == 0 {
			emptyMessage(w, "assets")
			return nil
		}
		t := newTable(w)
		t.AppendHeader(header("COLLECTION", "ASSET", "FILE"))
		for _, a := range data {
			name := a.Name
			if name == "" {
				name = "-"
			}
			t.AppendRow(table.Row{a.Collection, name, a.File})
		}
		t.Render()

	case ops.ConfigView:
		renderConfig(w, data)

	default:
		if res.Message != "" {
			fmt.Fprintln(w, res.Message)
		}
	}
	return nil
}

func renderConfig(w io.Writer, v ops.ConfigView) {
	d := v.Descriptor
	fmt.Fprintf(w, "%s %s %s\n", text.Bold.Sprint(v.Name), d.ModLoader, d.Version)

	t := newTable(w)
	t.AppendHeader(header("COLLECTION", "ASSET", "SERVER", "CLIENT", "LINK"))
	for _, c := range assets.Collections {
		for _, a := range d.Assets(c) {
			onServer, onClient := placement(d, c, a.Name)
			t.AppendRow(table.Row{c, a.Name, onServer, onClient, a.Link})
		}
	}
	t.Render()

	if len(d.Server.Properties) > 0 {
		keys := make([]string, 0, len(d.Server.Properties))
		for k := range d.Server.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		props := newTable(w)
		props.AppendHeader(header("PROPERTY", "VALUE"))
		for _, k := range keys {
			props.AppendRow(table.Row{k, d.Server.Properties[k]})
		}
		props.Render()
	}
}

// placement reports where an asset is installed. Default worlds and packs are marked
// rather than ticked.
func placement(d *assets.Descriptor, c assets.Collection, name string) (server, client string) {
	contains := func(list []string) bool {
		for _, n := range list {
			if n == name {
				return true
			}
		}
		return false
	}
	mark := func(b bool) string {
		if b {
			return "yes"
		}
		return "-"
	}

	switch c {
	case assets.Mods:
		return mark(contains(d.Server.Mods)), mark(contains(d.Client.Mods))
	case assets.Plugins:
		return mark(contains(d.Server.Plugins)), "-"
	case assets.ResourcePacks:
		if d.Server.ResourcePack == name {
			server = "default"
		} else {
			server = "-"
		}
		return server, mark(contains(d.Client.ResourcePacks))
	case assets.Worlds:
		if d.Server.DefaultWorld == name {
			server = "default"
		} else {
			server = "-"
		}
		return server, mark(contains(d.Client.Worlds))
	}
	return "-", "-"
}
