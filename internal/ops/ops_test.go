package ops

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payperplay/easyservers/internal/assets"
	"github.com/payperplay/easyservers/internal/events"
	"github.com/payperplay/easyservers/internal/failure"
	"github.com/payperplay/easyservers/internal/lifecycle"
)

type memStorage struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *memStorage) Store(e events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *memStorage) Query(f events.EventFilters) ([]events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Event
	for _, e := range s.events {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStorage) types() []events.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.EventType
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeConfigs struct {
	added   []assets.AddAssetRequest
	created []string
	err     error
}

func (f *fakeConfigs) CreateConfig(_ context.Context, name, _, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, name)
	return nil
}

func (f *fakeConfigs) RemoveConfig(string) error { return f.err }
func (f *fakeConfigs) List() ([]string, error)   { return f.created, f.err }

func (f *fakeConfigs) Read(name string) (*assets.Descriptor, error) {
	return assets.NewDescriptor(assets.Vanilla, "1.20.4"), f.err
}

func (f *fakeConfigs) AddAsset(_ context.Context, req assets.AddAssetRequest) error {
	f.added = append(f.added, req)
	return f.err
}

func (f *fakeConfigs) RemoveAsset(string, assets.Collection, string) error { return f.err }

func (f *fakeConfigs) ListAssets(string, assets.Collection) ([]assets.Asset, error) {
	return []assets.Asset{{Name: "m1", Link: "https://example.com/m1.jar"}}, f.err
}

type fakeServers struct {
	infos map[string]lifecycle.Info
	err   error
}

func (f *fakeServers) Create(context.Context, string, string) error { return f.err }
func (f *fakeServers) Up(context.Context, string, int) (int, error) { return 4242, f.err }
func (f *fakeServers) Down(context.Context, string) error           { return f.err }
func (f *fakeServers) Remove(context.Context, string) error         { return f.err }

func (f *fakeServers) Inspect(_ context.Context, name string) (lifecycle.Info, error) {
	info, ok := f.infos[name]
	if !ok {
		return lifecycle.Info{}, failure.Preconditionf("", "Server %s doesn't exist.", name)
	}
	return info, nil
}

func (f *fakeServers) List() ([]string, error) {
	var names []string
	for name := range f.infos {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeServers) SetProperty(string, string, string) error              { return f.err }
func (f *fakeServers) SetWorld(context.Context, string, string) error        { return f.err }
func (f *fakeServers) SetResourcePack(context.Context, string, string) error { return f.err }

func (f *fakeServers) SendCommand(_ context.Context, _, command string) (string, error) {
	return "ok: " + command, f.err
}

func (f *fakeServers) ListServerAssets(string) ([]lifecycle.ServerAsset, error) { return nil, f.err }

func (f *fakeServers) RemoveServerAsset(context.Context, string, assets.Collection, string) error {
	return f.err
}

func newDispatcher(configs *fakeConfigs, servers *fakeServers) (*Dispatcher, *memStorage) {
	store := &memStorage{}
	return NewDispatcher(configs, servers, events.NewEventBus(store), "test"), store
}

func TestKinds(t *testing.T) {
	kinds := Kinds()
	assert.Len(t, kinds, 19)

	seen := map[Kind]bool{}
	for _, k := range kinds {
		assert.False(t, seen[k], "duplicate kind %s", k)
		seen[k] = true

		req, err := Decode(string(k), nil)
		require.NoError(t, err)
		assert.Equal(t, k, req.Kind())
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		body    string
		want    Request
		wantErr bool
	}{
		{
			name: "up server",
			kind: "up-server",
			body: `{"name":"s1","port":25565}`,
			want: UpServer{Name: "s1", Port: 25565},
		},
		{
			name: "add asset",
			kind: "add-asset",
			body: `{"config":"c1","collection":"mods","name":"m1","link":"https://x/m1.jar","side":"server"}`,
			want: AddAsset{Config: "c1", Collection: "mods", Name: "m1", Link: "https://x/m1.jar", Side: "server"},
		},
		{
			name: "empty body",
			kind: "list-servers",
			body: "  ",
			want: ListServers{},
		},
		{name: "unknown kind", kind: "explode-server", body: `{}`, wantErr: true},
		{name: "unknown field", kind: "down-server", body: `{"name":"s1","force":true}`, wantErr: true},
		{name: "malformed", kind: "down-server", body: `{"name":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := Decode(tt.kind, []byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, failure.Is(err, failure.Precondition))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, req)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr string
	}{
		{"create config ok", CreateConfig{Name: "c1", ModLoader: "forge", Version: "1.20.1"}, ""},
		{"create config no version", CreateConfig{Name: "c1", ModLoader: "forge"}, "version is required"},
		{"up without port", UpServer{Name: "s1"}, "port must be between"},
		{"up port too high", UpServer{Name: "s1", Port: 70000}, "port must be between"},
		{"blank name", DownServer{Name: "  "}, "name is required"},
		{"bad collection", ListAssets{Config: "c1", Collection: "maps"}, "Unknown asset collection"},
		{"bad side", AddAsset{Config: "c1", Collection: "mods", Name: "m", Link: "l", Side: "both"}, "Unknown mod side"},
		{"empty property value allowed", SetServerProperty{Name: "s1", Key: "motd"}, ""},
		{"list servers", ListServers{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, failure.Is(err, failure.Precondition))
		})
	}
}

func TestExecutePublishesEvents(t *testing.T) {
	d, store := newDispatcher(&fakeConfigs{}, &fakeServers{})

	res, err := d.Execute(context.Background(), CreateConfig{Name: "c1", ModLoader: "vanilla", Version: "1.20.4"})
	require.NoError(t, err)
	assert.Equal(t, KindCreateConfig, res.Kind)
	assert.Equal(t, "Config c1 created.", res.Message)

	res, err = d.Execute(context.Background(), UpServer{Name: "s1", Port: 25565})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"pid": 4242, "port": 25565}, res.Data)

	assert.Equal(t, []events.EventType{
		events.EventConfigCreated,
		events.EventOperationSucceeded,
		events.EventServerStarted,
		events.EventOperationSucceeded,
	}, store.types())

	started, err := store.Query(events.EventFilters{Types: []events.EventType{events.EventServerStarted}})
	require.NoError(t, err)
	require.Len(t, started, 1)
	assert.Equal(t, "s1", started[0].Server)
	assert.Equal(t, "test", started[0].Source)
	assert.NotEmpty(t, started[0].OperationID)
}

func TestExecuteFailure(t *testing.T) {
	boom := failure.Bootstrapf(errors.New("exit status 1"), "Server s1 failed to boot.")
	d, store := newDispatcher(&fakeConfigs{}, &fakeServers{err: boom})

	_, err := d.Execute(context.Background(), CreateServer{Name: "s1", Config: "c1"})
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.Bootstrap))

	failed, err := store.Query(events.EventFilters{Types: []events.EventType{events.EventOperationFailed}})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "bootstrap", failed[0].Data["failure_kind"])
	assert.Equal(t, "s1", failed[0].Server)
	assert.Equal(t, "c1", failed[0].Config)
	assert.NotContains(t, store.types(), events.EventServerCreated)
}

func TestExecuteRejectsInvalid(t *testing.T) {
	d, store := newDispatcher(&fakeConfigs{}, &fakeServers{})

	_, err := d.Execute(context.Background(), RemoveServer{})
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.Precondition))
	assert.Empty(t, store.types(), "invalid requests never reach the core")

	_, err = d.Execute(context.Background(), nil)
	assert.Error(t, err)
}

func TestServerStatusIsTotal(t *testing.T) {
	servers := &fakeServers{infos: map[string]lifecycle.Info{
		"s1": {Name: "s1", Status: lifecycle.Listening, PID: 7},
	}}
	d, _ := newDispatcher(&fakeConfigs{}, servers)

	res, err := d.Execute(context.Background(), ServerStatus{Name: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "LISTENING", res.Message)

	res, err = d.Execute(context.Background(), ServerStatus{Name: "ghost"})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Info{Name: "ghost", Status: lifecycle.None}, res.Data)
}

func TestAddAssetMapsRequest(t *testing.T) {
	configs := &fakeConfigs{}
	d, _ := newDispatcher(configs, &fakeServers{})

	_, err := d.Execute(context.Background(), AddAsset{Config: "c1", Collection: "MODS", Name: "m1", Link: "https://x/m1.jar"})
	require.NoError(t, err)
	_, err = d.Execute(context.Background(), AddAsset{Config: "c1", Collection: "worlds", Name: "w1", Link: "/tmp/w1", ServerDefault: true, Side: "client"})
	require.NoError(t, err)

	require.Len(t, configs.added, 2)
	assert.Equal(t, assets.Mods, configs.added[0].Collection)
	assert.Equal(t, assets.SideGlobal, configs.added[0].Side)
	assert.Equal(t, assets.Worlds, configs.added[1].Collection)
	assert.Equal(t, assets.Side(""), configs.added[1].Side, "side only applies to mods")
	assert.True(t, configs.added[1].ServerDefault)
}

func TestSendCommandReply(t *testing.T) {
	d, _ := newDispatcher(&fakeConfigs{}, &fakeServers{})

	res, err := d.Execute(context.Background(), SendCommand{Name: "s1", Command: "list"})
	require.NoError(t, err)
	assert.Equal(t, "ok: list", res.Message)
}
