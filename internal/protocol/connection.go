package protocol

import (
	"github.com/danmuck/satellite/internal/protocol/fields"
	"github.com/danmuck/satellite/internal/protocol/schema"
)

type HelloRequest struct {
	ClientInfo      string
	APIVersionMajor uint32
	APIVersionMinor uint32
}

func (*HelloRequest) Type() uint32 { return schema.MsgHelloRequest }

func (m *HelloRequest) Marshal() []byte {
	var b fields.Builder
	return b.String(1, m.ClientInfo).
		Uint32(2, m.APIVersionMajor).
		Uint32(3, m.APIVersionMinor).
		Build()
}

func (m *HelloRequest) Unmarshal(payload []byte) error {
	return fields.Walk(payload, func(f fields.Field) error {
		switch f.Num {
		case 1:
			m.ClientInfo = f.Text()
		case 2:
			m.APIVersionMajor = f.Uint32()
		case 3:
			m.APIVersionMinor = f.Uint32()
		}
		return nil
	})
}

type HelloResponse struct {
	APIVersionMajor uint32
	APIVersionMinor uint32
	ServerInfo      string
	Name            string
}

func (*HelloResponse) Type() uint32 { return schema.MsgHelloResponse }

func (m *HelloResponse) Marshal() []byte {
	var b fields.Builder
	return b.Uint32(1, m.APIVersionMajor).
		Uint32(2, m.APIVersionMinor).
		String(3, m.ServerInfo).
		String(4, m.Name).
		Build()
}

func (m *HelloResponse) Unmarshal(payload []byte) error {
	return fields.Walk(payload, func(f fields.Field) error {
		switch f.Num {
		case 1:
			m.APIVersionMajor = f.Uint32()
		case 2:
			m.APIVersionMinor = f.Uint32()
		case 3:
			m.ServerInfo = f.Text()
		case 4:
			m.Name = f.Text()
		}
		return nil
	})
}

type ConnectRequest struct {
	Password string
}

func (*ConnectRequest) Type() uint32 { return schema.MsgConnectRequest }

func (m *ConnectRequest) Marshal() []byte {
	var b fields.Builder
	return b.String(1, m.Password).Build()
}

func (m *ConnectRequest) Unmarshal(payload []byte) error {
	return fields.Walk(payload, func(f fields.Field) error {
		if f.Num == 1 {
			m.Password = f.Text()
		}
		return nil
	})
}

type ConnectResponse struct {
	InvalidPassword bool
}

func (*ConnectResponse) Type() uint32 { return schema.MsgConnectResponse }

func (m *ConnectResponse) Marshal() []byte {
	var b fields.Builder
	return b.Bool(1, m.InvalidPassword).Build()
}

func (m *ConnectResponse) Unmarshal(payload []byte) error {
	return fields.Walk(payload, func(f fields.Field) error {
		if f.Num == 1 {
			m.InvalidPassword = f.Bool()
		}
		return nil
	})
}

type DisconnectRequest struct{}

func (*DisconnectRequest) Type() uint32           { return schema.MsgDisconnectRequest }
func (*DisconnectRequest) Marshal() []byte        { return []byte{} }
func (*DisconnectRequest) Unmarshal([]byte) error { return nil }

type DisconnectResponse struct{}

func (*DisconnectResponse) Type() uint32           { return schema.MsgDisconnectResponse }
func (*DisconnectResponse) Marshal() []byte        { return []byte{} }
func (*DisconnectResponse) Unmarshal([]byte) error { return nil }

type PingRequest struct{}

func (*PingRequest) Type() uint32           { return schema.MsgPingRequest }
func (*PingRequest) Marshal() []byte        { return []byte{} }
func (*PingRequest) Unmarshal([]byte) error { return nil }

type PingResponse struct{}

func (*PingResponse) Type() uint32           { return schema.MsgPingResponse }
func (*PingResponse) Marshal() []byte        { return []byte{} }
func (*PingResponse) Unmarshal([]byte) error { return nil }

type DeviceInfoRequest struct{}

func (*DeviceInfoRequest) Type() uint32           { return schema.MsgDeviceInfoRequest }
func (*DeviceInfoRequest) Marshal() []byte        { return []byte{} }
func (*DeviceInfoRequest) Unmarshal([]byte) error { return nil }

type DeviceInfoResponse struct {
	UsesPassword               bool
	Name                       string
	MACAddress                 string
	ESPHomeVersion             string
	CompilationTime            string
	Model                      string
	HasDeepSleep               bool
	ProjectName                string
	ProjectVersion             string
	WebserverPort              uint32
	Manufacturer               string
	FriendlyName               string
	SuggestedArea              string
	VoiceAssistantFeatureFlags uint32
}

func (*DeviceInfoResponse) Type() uint32 { return schema.MsgDeviceInfoResponse }

func (m *DeviceInfoResponse) Marshal() []byte {
	var b fields.Builder
	return b.Bool(1, m.UsesPassword).
		String(2, m.Name).
		String(3, m.MACAddress).
		String(4, m.ESPHomeVersion).
		String(5, m.CompilationTime).
		String(6, m.Model).
		Bool(7, m.HasDeepSleep).
		String(8, m.ProjectName).
		String(9, m.ProjectVersion).
		Uint32(10, m.WebserverPort).
		String(12, m.Manufacturer).
		String(13, m.FriendlyName).
		String(16, m.SuggestedArea).
		Uint32(17, m.VoiceAssistantFeatureFlags).
		Build()
}

func (m *DeviceInfoResponse) Unmarshal(payload []byte) error {
	return fields.Walk(payload, func(f fields.Field) error {
		switch f.Num {
		case 1:
			m.UsesPassword = f.Bool()
		case 2:
			m.Name = f.Text()
		case 3:
			m.MACAddress = f.Text()
		case 4:
			m.ESPHomeVersion = f.Text()
		case 5:
			m.CompilationTime = f.Text()
		case 6:
			m.Model = f.Text()
		case 7:
			m.HasDeepSleep = f.Bool()
		case 8:
			m.ProjectName = f.Text()
		case 9:
			m.ProjectVersion = f.Text()
		case 10:
			m.WebserverPort = f.Uint32()
		case 12:
			m.Manufacturer = f.Text()
		case 13:
			m.FriendlyName = f.Text()
		case 16:
			m.SuggestedArea = f.Text()
		case 17:
			m.VoiceAssistantFeatureFlags = f.Uint32()
		}
		return nil
	})
}

type ListEntitiesRequest struct{}

func (*ListEntitiesRequest) Type() uint32           { return schema.MsgListEntitiesRequest }
func (*ListEntitiesRequest) Marshal() []byte        { return []byte{} }
func (*ListEntitiesRequest) Unmarshal([]byte) error { return nil }

type ListEntitiesDoneResponse struct{}

func (*ListEntitiesDoneResponse) Type() uint32           { return schema.MsgListEntitiesDoneResponse }
func (*ListEntitiesDoneResponse) Marshal() []byte        { return []byte{} }
func (*ListEntitiesDoneResponse) Unmarshal([]byte) error { return nil }

type SubscribeStatesRequest struct{}

func (*SubscribeStatesRequest) Type() uint32           { return schema.MsgSubscribeStatesRequest }
func (*SubscribeStatesRequest) Marshal() []byte        { return []byte{} }
func (*SubscribeStatesRequest) Unmarshal([]byte) error { return nil }

// SubscribeLogsRequest is accepted and ignored; device logs stay local.
type SubscribeLogsRequest struct {
	Level      uint32
	DumpConfig bool
}

func (*SubscribeLogsRequest) Type() uint32 { return schema.MsgSubscribeLogsRequest }

func (m *SubscribeLogsRequest) Marshal() []byte {
	var b fields.Builder
	return b.Uint32(1, m.Level).Bool(2, m.DumpConfig).Build()
}

func (m *SubscribeLogsRequest) Unmarshal(payload []byte) error {
	return fields.Walk(payload, func(f fields.Field) error {
		switch f.Num {
		case 1:
			m.Level = f.Uint32()
		case 2:
			m.DumpConfig = f.Bool()
		}
		return nil
	})
}

type SubscribeHomeassistantServicesRequest struct{}

func (*SubscribeHomeassistantServicesRequest) Type() uint32 {
	return schema.MsgSubscribeHomeassistantServices
}
func (*SubscribeHomeassistantServicesRequest) Marshal() []byte        { return []byte{} }
func (*SubscribeHomeassistantServicesRequest) Unmarshal([]byte) error { return nil }

type SubscribeHomeAssistantStatesRequest struct{}

func (*SubscribeHomeAssistantStatesRequest) Type() uint32 {
	return schema.MsgSubscribeHomeAssistantStates
}
func (*SubscribeHomeAssistantStatesRequest) Marshal() []byte        { return []byte{} }
func (*SubscribeHomeAssistantStatesRequest) Unmarshal([]byte) error { return nil }
