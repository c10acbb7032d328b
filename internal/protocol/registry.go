package protocol

import (
	"fmt"

	"github.com/danmuck/satellite/internal/protocol/fields"
	"github.com/danmuck/satellite/internal/protocol/frame"
	"github.com/danmuck/satellite/internal/protocol/schema"
)

// Message is one typed native API message.
type Message interface {
	Type() uint32
	Marshal() []byte
	Unmarshal(payload []byte) error
}

var constructors = map[uint32]func() Message{
	schema.MsgHelloRequest:                        func() Message { return &HelloRequest{} },
	schema.MsgHelloResponse:                       func() Message { return &HelloResponse{} },
	schema.MsgConnectRequest:                      func() Message { return &ConnectRequest{} },
	schema.MsgConnectResponse:                     func() Message { return &ConnectResponse{} },
	schema.MsgDisconnectRequest:                   func() Message { return &DisconnectRequest{} },
	schema.MsgDisconnectResponse:                  func() Message { return &DisconnectResponse{} },
	schema.MsgPingRequest:                         func() Message { return &PingRequest{} },
	schema.MsgPingResponse:                        func() Message { return &PingResponse{} },
	schema.MsgDeviceInfoRequest:                   func() Message { return &DeviceInfoRequest{} },
	schema.MsgDeviceInfoResponse:                  func() Message { return &DeviceInfoResponse{} },
	schema.MsgListEntitiesRequest:                 func() Message { return &ListEntitiesRequest{} },
	schema.MsgListEntitiesBinarySensorResponse:    func() Message { return &ListEntitiesBinarySensorResponse{} },
	schema.MsgListEntitiesSensorResponse:          func() Message { return &ListEntitiesSensorResponse{} },
	schema.MsgListEntitiesTextSensorResponse:      func() Message { return &ListEntitiesTextSensorResponse{} },
	schema.MsgListEntitiesDoneResponse:            func() Message { return &ListEntitiesDoneResponse{} },
	schema.MsgSubscribeStatesRequest:              func() Message { return &SubscribeStatesRequest{} },
	schema.MsgBinarySensorStateResponse:           func() Message { return &BinarySensorStateResponse{} },
	schema.MsgSensorStateResponse:                 func() Message { return &SensorStateResponse{} },
	schema.MsgTextSensorStateResponse:             func() Message { return &TextSensorStateResponse{} },
	schema.MsgSubscribeLogsRequest:                func() Message { return &SubscribeLogsRequest{} },
	schema.MsgSubscribeHomeassistantServices:      func() Message { return &SubscribeHomeassistantServicesRequest{} },
	schema.MsgSubscribeHomeAssistantStates:        func() Message { return &SubscribeHomeAssistantStatesRequest{} },
	schema.MsgListEntitiesServicesResponse:        func() Message { return &ListEntitiesServicesResponse{} },
	schema.MsgExecuteServiceRequest:               func() Message { return &ExecuteServiceRequest{} },
	schema.MsgListEntitiesButtonResponse:          func() Message { return &ListEntitiesButtonResponse{} },
	schema.MsgButtonCommandRequest:                func() Message { return &ButtonCommandRequest{} },
	schema.MsgListEntitiesMediaPlayerResponse:     func() Message { return &ListEntitiesMediaPlayerResponse{} },
	schema.MsgMediaPlayerStateResponse:            func() Message { return &MediaPlayerStateResponse{} },
	schema.MsgMediaPlayerCommandRequest:           func() Message { return &MediaPlayerCommandRequest{} },
	schema.MsgSubscribeVoiceAssistantRequest:      func() Message { return &SubscribeVoiceAssistantRequest{} },
	schema.MsgVoiceAssistantRequest:               func() Message { return &VoiceAssistantRequest{} },
	schema.MsgVoiceAssistantResponse:              func() Message { return &VoiceAssistantResponse{} },
	schema.MsgVoiceAssistantEventResponse:         func() Message { return &VoiceAssistantEventResponse{} },
	schema.MsgVoiceAssistantAudio:                 func() Message { return &VoiceAssistantAudio{} },
	schema.MsgVoiceAssistantTimerEventResponse:    func() Message { return &VoiceAssistantTimerEventResponse{} },
	schema.MsgVoiceAssistantAnnounceRequest:       func() Message { return &VoiceAssistantAnnounceRequest{} },
	schema.MsgVoiceAssistantAnnounceFinished:      func() Message { return &VoiceAssistantAnnounceFinished{} },
	schema.MsgVoiceAssistantConfigurationRequest:  func() Message { return &VoiceAssistantConfigurationRequest{} },
	schema.MsgVoiceAssistantConfigurationResponse: func() Message { return &VoiceAssistantConfigurationResponse{} },
	schema.MsgVoiceAssistantSetConfiguration:      func() Message { return &VoiceAssistantSetConfiguration{} },
}

// New returns an empty message for a type id.
func New(messageType uint32) (Message, error) {
	ctor, ok := constructors[messageType]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, messageType)
	}
	return ctor(), nil
}

// Name returns the wire name of a message.
func Name(msg Message) string {
	if msg == nil {
		return "nil"
	}
	return schema.Name(msg.Type())
}

// Decode converts one frame into a typed message. Unknown type ids report
// ErrUnknownType so callers can skip them; malformed payloads report
// ErrProtocol.
func Decode(f frame.Frame) (Message, error) {
	msg, err := New(f.Type)
	if err != nil {
		return nil, err
	}
	fs, err := fields.Decode(f.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrProtocol, schema.Name(f.Type), err)
	}
	if err := schema.Validate(f.Type, fs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	if err := msg.Unmarshal(f.Payload); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrProtocol, schema.Name(f.Type), err)
	}
	return msg, nil
}

// Encode converts a message into a frame.
func Encode(msg Message) (frame.Frame, error) {
	if msg == nil {
		return frame.Frame{}, ErrNilMessage
	}
	return frame.Frame{Type: msg.Type(), Payload: msg.Marshal()}, nil
}

// Marshal encodes a message straight to wire bytes.
func Marshal(msg Message, limits frame.Limits) ([]byte, error) {
	f, err := Encode(msg)
	if err != nil {
		return nil, err
	}
	return frame.Encode(f, limits)
}
