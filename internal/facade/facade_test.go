package facade

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/HefnySco/droneengage-mavlink/internal/identity"
	"github.com/HefnySco/droneengage-mavlink/internal/protocol"
	"github.com/HefnySco/droneengage-mavlink/internal/vehicle"
)

type sent struct {
	shape    string
	target   string
	msgType  int
	internal bool
	cmd      map[string]any
	binary   []byte
	command  int
}

// recordingSender captures every call instead of transmitting.
type recordingSender struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (r *recordingSender) SendJSON(target string, msgType int, internal bool, cmd map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{shape: "json", target: target, msgType: msgType, internal: internal, cmd: cmd})
	return r.err
}

func (r *recordingSender) SendBinary(target string, msgType int, internal bool, cmd map[string]any, binary []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{shape: "binary", target: target, msgType: msgType, internal: internal, cmd: cmd, binary: binary})
	return r.err
}

func (r *recordingSender) SendRemoteExecute(command int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{shape: "remote", command: command})
	return r.err
}

func (r *recordingSender) calls() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sent(nil), r.sent...)
}

func newTestFacade(t *testing.T) (*Facade, *recordingSender, *vehicle.State) {
	t.Helper()
	rs := &recordingSender{}
	v := vehicle.NewState()
	self := identity.New("FCB_Main", "key", time.Now())
	self.SetParty("drone-1", "g1")
	f, err := New(rs, v, self)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f, rs, v
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(nil, vehicle.NewState(), nil); !errors.Is(err, ErrNoSender) {
		t.Errorf("New(nil sender) error = %v, want ErrNoSender", err)
	}
	if _, err := New(&recordingSender{}, nil, nil); !errors.Is(err, ErrNoVehicle) {
		t.Errorf("New(nil vehicle) error = %v, want ErrNoVehicle", err)
	}
}

func TestOperationsSelectShapeAndType(t *testing.T) {
	tests := []struct {
		name      string
		call      func(f *Facade) error
		wantShape string
		wantType  int
		wantKey   string
	}{
		{"SendID", func(f *Facade) error { return f.SendID("gcs") }, "json", protocol.TypeID, "VT"},
		{"RequestID", func(f *Facade) error { return f.RequestID("gcs") }, "json", protocol.TypeRemoteExecute, "C"},
		{"SendTelemetryPanic", func(f *Facade) error { return f.SendTelemetryPanic("gcs") }, "json", protocol.TypeError, "EN"},
		{"SendErrorMessage", func(f *Facade) error { return f.SendErrorMessage("gcs", 1, 2, 3, "x") }, "json", protocol.TypeError, "DS"},
		{"SendGPSInfo", func(f *Facade) error { return f.SendGPSInfo("gcs") }, "json", protocol.TypeGPS, "la"},
		{"SendNavInfo", func(f *Facade) error { return f.SendNavInfo("gcs") }, "json", protocol.TypeNavInfo, "y"},
		{"SendParameterValue", func(f *Facade) error { return f.SendParameterValue("gcs", vehicle.Param{Name: "X"}) }, "json", protocol.TypeParameterValue, "P"},
		{"SendPowerInfo", func(f *Facade) error { return f.SendPowerInfo("gcs") }, "json", protocol.TypePower, "BV"},
		{"SendHomeLocation", func(f *Facade) error { return f.SendHomeLocation("gcs") }, "json", protocol.TypeHomeLocation, "a"},
		{"SendFCBTargetLocation", func(f *Facade) error { return f.SendFCBTargetLocation("gcs", 1, 2, 3) }, "json", protocol.TypeDestinationLocation, "l"},
		{"SendWayPoints", func(f *Facade) error { return f.SendWayPoints("gcs") }, "json", protocol.TypeWayPoints, "W"},
		{"SendTelemetryData", func(f *Facade) error { return f.SendTelemetryData("gcs", []byte{0xFD}) }, "binary", protocol.TypeLightTelemetry, ""},
		{"SendMavlinkData", func(f *Facade) error { return f.SendMavlinkData("gcs", []byte{0xFD}) }, "binary", protocol.TypeMavlink, ""},
		{"SendServoReadings", func(f *Facade) error { return f.SendServoReadings("gcs") }, "json", protocol.TypeServoChannel, "S"},
		{"SendWayPointReached", func(f *Facade) error { return f.SendWayPointReached("gcs", 4) }, "json", protocol.TypeWayPointReached, "s"},
		{"SendGeoFenceAttachedStatus", func(f *Facade) error { return f.SendGeoFenceAttachedStatus("gcs", "f1") }, "json", protocol.TypeGeoFenceAttachStatus, "a"},
		{"SendGeoFenceHit", func(f *Facade) error { return f.SendGeoFenceHit("gcs", "f1", 12.5, true, false) }, "json", protocol.TypeGeoFenceHit, "z"},
		{"SendSyncEvent", func(f *Facade) error { return f.SendSyncEvent("gcs", 7) }, "json", protocol.TypeSyncEventFire, "a"},
		{"RequestToFollowLeader", func(f *Facade) error { return f.RequestToFollowLeader("gcs", 2) }, "json", protocol.TypeFollowHimRequest, "b"},
		{"RequestUnfollowLeader", func(f *Facade) error { return f.RequestUnfollowLeader("gcs") }, "json", protocol.TypeFollowHimRequest, "f"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, rs, _ := newTestFacade(t)
			if err := tt.call(f); err != nil {
				t.Fatalf("%s: %v", tt.name, err)
			}

			calls := rs.calls()
			if len(calls) != 1 {
				t.Fatalf("sender calls = %d, want 1", len(calls))
			}
			c := calls[0]
			if c.shape != tt.wantShape {
				t.Errorf("shape = %s, want %s", c.shape, tt.wantShape)
			}
			if c.msgType != tt.wantType {
				t.Errorf("msgType = %d, want %d", c.msgType, tt.wantType)
			}
			if c.target != "gcs" {
				t.Errorf("target = %q, want gcs", c.target)
			}
			if c.internal {
				t.Error("party-addressed message marked internal")
			}
			if tt.wantKey != "" {
				if _, ok := c.cmd[tt.wantKey]; !ok {
					t.Errorf("command %v missing key %q", c.cmd, tt.wantKey)
				}
			}
		})
	}
}

func TestSendErrorMessageFields(t *testing.T) {
	f, rs, _ := newTestFacade(t)
	if err := f.SendErrorMessage("gcs", ErrorGeoFence, InfoTypeGeoFence, NotifyWarning, "fence breached"); err != nil {
		t.Fatalf("SendErrorMessage: %v", err)
	}
	cmd := rs.calls()[0].cmd
	if cmd["EN"] != ErrorGeoFence || cmd["IT"] != InfoTypeGeoFence || cmd["NT"] != NotifyWarning || cmd["DS"] != "fence breached" {
		t.Errorf("command = %v", cmd)
	}
}

func TestSendMavlinkData2Concatenates(t *testing.T) {
	f, rs, _ := newTestFacade(t)
	if err := f.SendMavlinkData2("gcs", []byte{1, 0, 2}, []byte{3, 0}); err != nil {
		t.Fatalf("SendMavlinkData2: %v", err)
	}
	calls := rs.calls()
	if len(calls) != 1 {
		t.Fatalf("sender calls = %d, want one envelope", len(calls))
	}
	if want := []byte{1, 0, 2, 3, 0}; !bytes.Equal(calls[0].binary, want) {
		t.Errorf("binary = %v, want %v", calls[0].binary, want)
	}
}

func TestEmptyFramesRejected(t *testing.T) {
	f, rs, _ := newTestFacade(t)

	calls := []func() error{
		func() error { return f.SendTelemetryData("gcs", nil) },
		func() error { return f.SendMavlinkData("gcs", []byte{}) },
		func() error { return f.SendMavlinkData2("gcs", []byte{1}, nil) },
	}
	for i, call := range calls {
		if err := call(); !errors.Is(err, ErrEmptyFrame) {
			t.Errorf("call %d error = %v, want ErrEmptyFrame", i, err)
		}
	}
	if n := len(rs.calls()); n != 0 {
		t.Errorf("sender called %d times for empty frames", n)
	}
}

func TestSendParameterListChunks(t *testing.T) {
	tests := []struct {
		name       string
		params     int
		wantChunks int
	}{
		{name: "empty", params: 0, wantChunks: 1},
		{name: "single chunk", params: 5, wantChunks: 1},
		{name: "exact chunk", params: paramChunk, wantChunks: 1},
		{name: "two chunks", params: paramChunk + 1, wantChunks: 2},
		{name: "three chunks", params: 2*paramChunk + 3, wantChunks: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, rs, v := newTestFacade(t)
			for i := 0; i < tt.params; i++ {
				v.SetParam(vehicle.Param{Name: string(rune('A'+i%26)) + string(rune('a'+i/26)), Index: i})
			}

			if err := f.SendParameterList("gcs"); err != nil {
				t.Fatalf("SendParameterList: %v", err)
			}

			calls := rs.calls()
			if len(calls) != tt.wantChunks {
				t.Fatalf("chunks = %d, want %d", len(calls), tt.wantChunks)
			}
			total := 0
			for i, c := range calls {
				total += len(c.cmd["P"].([]any))
				last := c.cmd["L"].(bool)
				if last != (i == len(calls)-1) {
					t.Errorf("chunk %d L = %v", i, last)
				}
			}
			if total != tt.params {
				t.Errorf("parameters sent = %d, want %d", total, tt.params)
			}
		})
	}
}

func TestSendGeoFence(t *testing.T) {
	f, rs, v := newTestFacade(t)

	if err := f.SendGeoFence("gcs", "missing"); !errors.Is(err, ErrUnknownFence) {
		t.Fatalf("SendGeoFence(missing) error = %v, want ErrUnknownFence", err)
	}

	v.PutFence(vehicle.GeoFence{
		Name:              "field",
		Type:              vehicle.FencePolygon,
		ShouldKeepOutside: true,
		Points:            []vehicle.Location{{Latitude: 30, Longitude: 31}, {Latitude: 30.1, Longitude: 31.1}},
	})
	if err := f.SendGeoFence("gcs", "field"); err != nil {
		t.Fatalf("SendGeoFence: %v", err)
	}
	cmd := rs.calls()[0].cmd
	if cmd["n"] != "field" || cmd["o"] != true {
		t.Errorf("command = %v", cmd)
	}
	if pts := cmd["p"].([]any); len(pts) != 2 {
		t.Errorf("points = %d, want 2", len(pts))
	}
}

func TestSendGeoFenceAttachedStatus(t *testing.T) {
	f, rs, v := newTestFacade(t)
	v.PutFence(vehicle.GeoFence{Name: "attached"})

	_ = f.SendGeoFenceAttachedStatus("gcs", "attached")
	_ = f.SendGeoFenceAttachedStatus("gcs", "other")

	calls := rs.calls()
	if calls[0].cmd["a"] != true {
		t.Error("attached fence reported detached")
	}
	if calls[1].cmd["a"] != false {
		t.Error("unknown fence reported attached")
	}
}

func TestFollowRequestsCarryOwnParty(t *testing.T) {
	f, rs, _ := newTestFacade(t)
	_ = f.RequestToFollowLeader("leader-1", 3)
	_ = f.RequestUnfollowLeader("leader-1")

	calls := rs.calls()
	if calls[0].cmd["c"] != "drone-1" || calls[0].cmd["f"] != FollowActionFollow || calls[0].cmd["b"] != 3 {
		t.Errorf("follow command = %v", calls[0].cmd)
	}
	if calls[1].cmd["f"] != FollowActionUnfollow {
		t.Errorf("unfollow command = %v", calls[1].cmd)
	}
}

func TestReloadSavedTasksUsesRemoteExecute(t *testing.T) {
	f, rs, _ := newTestFacade(t)
	if err := f.ReloadSavedTasks(protocol.RemoteReloadSavedTasks); err != nil {
		t.Fatalf("ReloadSavedTasks: %v", err)
	}
	c := rs.calls()[0]
	if c.shape != "remote" || c.command != protocol.RemoteReloadSavedTasks {
		t.Errorf("call = %+v, want remote execute %d", c, protocol.RemoteReloadSavedTasks)
	}
}

func TestSenderErrorWrapped(t *testing.T) {
	f, rs, _ := newTestFacade(t)
	boom := errors.New("socket closed")
	rs.err = boom

	err := f.SendGPSInfo("gcs")
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want wrapped sender error", err)
	}
	if n := len(rs.calls()); n != 1 {
		t.Errorf("sender called %d times, want 1 (no retry)", n)
	}
}

func TestConcurrentProducers(t *testing.T) {
	f, rs, _ := newTestFacade(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = f.SendSyncEvent("gcs", i)
		}(i)
	}
	wg.Wait()

	if n := len(rs.calls()); n != 20 {
		t.Errorf("sender calls = %d, want 20", n)
	}
}
