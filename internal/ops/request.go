// Package ops defines the closed set of operations the controller accepts and routes
// them to the config and server managers.
package ops

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/payperplay/easyservers/internal/assets"
	"github.com/payperplay/easyservers/internal/failure"
)

// Kind names an operation.
type Kind string

const (
	KindCreateConfig          Kind = "create-config"
	KindRemoveConfig          Kind = "remove-config"
	KindListConfigs           Kind = "list-configs"
	KindShowConfig            Kind = "show-config"
	KindAddAsset              Kind = "add-asset"
	KindRemoveAsset           Kind = "remove-asset"
	KindListAssets            Kind = "list-assets"
	KindCreateServer          Kind = "create-server"
	KindUpServer              Kind = "up-server"
	KindDownServer            Kind = "down-server"
	KindRemoveServer          Kind = "remove-server"
	KindServerStatus          Kind = "server-status"
	KindListServers           Kind = "list-servers"
	KindSetServerProperty     Kind = "set-server-property"
	KindSetServerWorld        Kind = "set-server-world"
	KindSetServerResourcePack Kind = "set-server-resource-pack"
	KindSendCommand           Kind = "send-command"
	KindListServerAssets      Kind = "list-server-assets"
	KindRemoveServerAsset     Kind = "remove-server-asset"
)

// Request is one operation. The set of implementations is closed.
type Request interface {
	Kind() Kind
	// Validate checks required fields without touching disk.
	Validate() error
	sealed()
}

type CreateConfig struct {
	Name      string `json:"name"`
	ModLoader string `json:"modLoader"`
	Version   string `json:"version"`
}

type RemoveConfig struct {
	Name string `json:"name"`
}

type ListConfigs struct{}

type ShowConfig struct {
	Name string `json:"name"`
}

type AddAsset struct {
	Config        string `json:"config"`
	Collection    string `json:"collection"`
	Name          string `json:"name"`
	Link          string `json:"link"`
	ServerDefault bool   `json:"serverDefault"`
	Side          string `json:"side,omitempty"`
}

type RemoveAsset struct {
	Config     string `json:"config"`
	Collection string `json:"collection"`
	Name       string `json:"name"`
}

type ListAssets struct {
	Config     string `json:"config"`
	Collection string `json:"collection"`
}

type CreateServer struct {
	Name   string `json:"name"`
	Config string `json:"config"`
}

type UpServer struct {
	Name string `json:"name"`
	Port int    `json:"port"`
}

type DownServer struct {
	Name string `json:"name"`
}

type RemoveServer struct {
	Name string `json:"name"`
}

type ServerStatus struct {
	Name string `json:"name"`
}

type ListServers struct{}

type SetServerProperty struct {
	Name  string `json:"name"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

type SetServerWorld struct {
	Name string `json:"name"`
	Link string `json:"link"`
}

type SetServerResourcePack struct {
	Name string `json:"name"`
	Link string `json:"link"`
}

type SendCommand struct {
	Name    string `json:"name"`
	Command string `json:"command"`
}

type ListServerAssets struct {
	Name string `json:"name"`
}

type RemoveServerAsset struct {
	Name       string `json:"name"`
	Collection string `json:"collection"`
	Asset      string `json:"asset"`
}

func (CreateConfig) Kind() Kind          { return KindCreateConfig }
func (RemoveConfig) Kind() Kind          { return KindRemoveConfig }
func (ListConfigs) Kind() Kind           { return KindListConfigs }
func (ShowConfig) Kind() Kind            { return KindShowConfig }
func (AddAsset) Kind() Kind              { return KindAddAsset }
func (RemoveAsset) Kind() Kind           { return KindRemoveAsset }
func (ListAssets) Kind() Kind            { return KindListAssets }
func (CreateServer) Kind() Kind          { return KindCreateServer }
func (UpServer) Kind() Kind              { return KindUpServer }
func (DownServer) Kind() Kind            { return KindDownServer }
func (RemoveServer) Kind() Kind          { return KindRemoveServer }
func (ServerStatus) Kind() Kind          { return KindServerStatus }
func (ListServers) Kind() Kind           { return KindListServers }
func (SetServerProperty) Kind() Kind     { return KindSetServerProperty }
func (SetServerWorld) Kind() Kind        { return KindSetServerWorld }
func (SetServerResourcePack) Kind() Kind { return KindSetServerResourcePack }
func (SendCommand) Kind() Kind           { return KindSendCommand }
func (ListServerAssets) Kind() Kind      { return KindListServerAssets }
func (RemoveServerAsset) Kind() Kind     { return KindRemoveServerAsset }

func (CreateConfig) sealed()          {}
func (RemoveConfig) sealed()          {}
func (ListConfigs) sealed()           {}
func (ShowConfig) sealed()            {}
func (AddAsset) sealed()              {}
func (RemoveAsset) sealed()           {}
func (ListAssets) sealed()            {}
func (CreateServer) sealed()          {}
func (UpServer) sealed()              {}
func (DownServer) sealed()            {}
func (RemoveServer) sealed()          {}
func (ServerStatus) sealed()          {}
func (ListServers) sealed()           {}
func (SetServerProperty) sealed()     {}
func (SetServerWorld) sealed()        {}
func (SetServerResourcePack) sealed() {}
func (SendCommand) sealed()           {}
func (ListServerAssets) sealed()      {}
func (RemoveServerAsset) sealed()     {}

func (r CreateConfig) Validate() error {
	return required(r.Kind(), "name", r.Name, "modLoader", r.ModLoader, "version", r.Version)
}

func (r RemoveConfig) Validate() error { return required(r.Kind(), "name", r.Name) }
func (ListConfigs) Validate() error    { return nil }
func (r ShowConfig) Validate() error   { return required(r.Kind(), "name", r.Name) }

func (r AddAsset) Validate() error {
	if err := required(r.Kind(), "config", r.Config, "collection", r.Collection, "name", r.Name, "link", r.Link); err != nil {
		return err
	}
	if _, err := assets.ParseCollection(r.Collection); err != nil {
		return err
	}
	_, err := assets.ParseSide(r.Side)
	return err
}

func (r RemoveAsset) Validate() error {
	if err := required(r.Kind(), "config", r.Config, "collection", r.Collection, "name", r.Name); err != nil {
		return err
	}
	_, err := assets.ParseCollection(r.Collection)
	return err
}

func (r ListAssets) Validate() error {
	if err := required(r.Kind(), "config", r.Config, "collection", r.Collection); err != nil {
		return err
	}
	_, err := assets.ParseCollection(r.Collection)
	return err
}

func (r CreateServer) Validate() error {
	return required(r.Kind(), "name", r.Name, "config", r.Config)
}

func (r UpServer) Validate() error {
	if err := required(r.Kind(), "name", r.Name); err != nil {
		return err
	}
	if r.Port < 1 || r.Port > 65535 {
		return failure.Preconditionf("", "%s: port must be between 1 and 65535.", r.Kind())
	}
	return nil
}

func (r DownServer) Validate() error   { return required(r.Kind(), "name", r.Name) }
func (r RemoveServer) Validate() error { return required(r.Kind(), "name", r.Name) }
func (r ServerStatus) Validate() error { return required(r.Kind(), "name", r.Name) }
func (ListServers) Validate() error    { return nil }

func (r SetServerProperty) Validate() error {
	return required(r.Kind(), "name", r.Name, "key", r.Key)
}

func (r SetServerWorld) Validate() error {
	return required(r.Kind(), "name", r.Name, "link", r.Link)
}

func (r SetServerResourcePack) Validate() error {
	return required(r.Kind(), "name", r.Name, "link", r.Link)
}

func (r SendCommand) Validate() error {
	return required(r.Kind(), "name", r.Name, "command", r.Command)
}

func (r ListServerAssets) Validate() error { return required(r.Kind(), "name", r.Name) }

func (r RemoveServerAsset) Validate() error {
	if err := required(r.Kind(), "name", r.Name, "collection", r.Collection, "asset", r.Asset); err != nil {
		return err
	}
	_, err := assets.ParseCollection(r.Collection)
	return err
}

// required takes field/value pairs and reports the first empty value.
func required(kind Kind, pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return failure.Preconditionf("", "%s: %s is required.", kind, pairs[i])
		}
	}
	return nil
}

var decoders = []struct {
	kind   Kind
	decode func([]byte) (Request, error)
}{
	{KindCreateConfig, decodeAs[CreateConfig]},
	{KindRemoveConfig, decodeAs[RemoveConfig]},
	{KindListConfigs, decodeAs[ListConfigs]},
	{KindShowConfig, decodeAs[ShowConfig]},
	{KindAddAsset, decodeAs[AddAsset]},
	{KindRemoveAsset, decodeAs[RemoveAsset]},
	{KindListAssets, decodeAs[ListAssets]},
	{KindCreateServer, decodeAs[CreateServer]},
	{KindUpServer, decodeAs[UpServer]},
	{KindDownServer, decodeAs[DownServer]},
	{KindRemoveServer, decodeAs[RemoveServer]},
	{KindServerStatus, decodeAs[ServerStatus]},
	{KindListServers, decodeAs[ListServers]},
	{KindSetServerProperty, decodeAs[SetServerProperty]},
	{KindSetServerWorld, decodeAs[SetServerWorld]},
	{KindSetServerResourcePack, decodeAs[SetServerResourcePack]},
	{KindSendCommand, decodeAs[SendCommand]},
	{KindListServerAssets, decodeAs[ListServerAssets]},
	{KindRemoveServerAsset, decodeAs[RemoveServerAsset]},
}

// Kinds lists every operation kind.
func Kinds() []Kind {
	kinds := make([]Kind, len(decoders))
	for i, d := range decoders {
		kinds[i] = d.kind
	}
	return kinds
}

// Decode builds the request of kind from a JSON object. Unknown kinds and unknown fields
// are rejected. An empty body decodes to the zero request.
func Decode(kind string, data []byte) (Request, error) {
	for _, d := range decoders {
		if string(d.kind) == kind {
			return d.decode(data)
		}
	}
	return nil, failure.Preconditionf("Run 'easyservers --help' for the list of operations.", "Unknown operation %q.", kind)
}

func decodeAs[T Request](data []byte) (Request, error) {
	var r T
	if len(bytes.TrimSpace(data)) == 0 {
		return r, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&r); err != nil {
		return nil, failure.Preconditionf("", "Invalid %s request: %v", r.Kind(), err)
	}
	return r, nil
}
