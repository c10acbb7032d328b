package schema

import (
	"fmt"

	"github.com/danmuck/satellite/internal/protocol/fields"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/encoding/protowire"
)

// API version advertised in HelloResponse.
const (
	APIVersionMajor uint32 = 1
	APIVersionMinor uint32 = 10
)

// Message type IDs of the native API.
const (
	MsgHelloRequest                        uint32 = 1
	MsgHelloResponse                       uint32 = 2
	MsgConnectRequest                      uint32 = 3
	MsgConnectResponse                     uint32 = 4
	MsgDisconnectRequest                   uint32 = 5
	MsgDisconnectResponse                  uint32 = 6
	MsgPingRequest                         uint32 = 7
	MsgPingResponse                        uint32 = 8
	MsgDeviceInfoRequest                   uint32 = 9
	MsgDeviceInfoResponse                  uint32 = 10
	MsgListEntitiesRequest                 uint32 = 11
	MsgListEntitiesBinarySensorResponse    uint32 = 12
	MsgListEntitiesSensorResponse          uint32 = 16
	MsgListEntitiesTextSensorResponse      uint32 = 18
	MsgListEntitiesDoneResponse            uint32 = 19
	MsgSubscribeStatesRequest              uint32 = 20
	MsgBinarySensorStateResponse           uint32 = 21
	MsgSensorStateResponse                 uint32 = 25
	MsgTextSensorStateResponse             uint32 = 27
	MsgSubscribeLogsRequest                uint32 = 28
	MsgSubscribeHomeassistantServices      uint32 = 34
	MsgSubscribeHomeAssistantStates        uint32 = 38
	MsgListEntitiesServicesResponse        uint32 = 41
	MsgExecuteServiceRequest               uint32 = 42
	MsgListEntitiesButtonResponse          uint32 = 61
	MsgButtonCommandRequest                uint32 = 62
	MsgListEntitiesMediaPlayerResponse     uint32 = 63
	MsgMediaPlayerStateResponse            uint32 = 64
	MsgMediaPlayerCommandRequest           uint32 = 65
	MsgSubscribeVoiceAssistantRequest      uint32 = 89
	MsgVoiceAssistantRequest               uint32 = 90
	MsgVoiceAssistantResponse              uint32 = 91
	MsgVoiceAssistantEventResponse         uint32 = 92
	MsgVoiceAssistantAudio                 uint32 = 106
	MsgVoiceAssistantTimerEventResponse    uint32 = 115
	MsgVoiceAssistantAnnounceRequest       uint32 = 119
	MsgVoiceAssistantAnnounceFinished      uint32 = 120
	MsgVoiceAssistantConfigurationRequest  uint32 = 121
	MsgVoiceAssistantConfigurationResponse uint32 = 122
	MsgVoiceAssistantSetConfiguration      uint32 = 123
)

var names = map[uint32]string{
	MsgHelloRequest:                        "HelloRequest",
	MsgHelloResponse:                       "HelloResponse",
	MsgConnectRequest:                      "ConnectRequest",
	MsgConnectResponse:                     "ConnectResponse",
	MsgDisconnectRequest:                   "DisconnectRequest",
	MsgDisconnectResponse:                  "DisconnectResponse",
	MsgPingRequest:                         "PingRequest",
	MsgPingResponse:                        "PingResponse",
	MsgDeviceInfoRequest:                   "DeviceInfoRequest",
	MsgDeviceInfoResponse:                  "DeviceInfoResponse",
	MsgListEntitiesRequest:                 "ListEntitiesRequest",
	MsgListEntitiesBinarySensorResponse:    "ListEntitiesBinarySensorResponse",
	MsgListEntitiesSensorResponse:          "ListEntitiesSensorResponse",
	MsgListEntitiesTextSensorResponse:      "ListEntitiesTextSensorResponse",
	MsgListEntitiesDoneResponse:            "ListEntitiesDoneResponse",
	MsgSubscribeStatesRequest:              "SubscribeStatesRequest",
	MsgBinarySensorStateResponse:           "BinarySensorStateResponse",
	MsgSensorStateResponse:                 "SensorStateResponse",
	MsgTextSensorStateResponse:             "TextSensorStateResponse",
	MsgSubscribeLogsRequest:                "SubscribeLogsRequest",
	MsgSubscribeHomeassistantServices:      "SubscribeHomeassistantServicesRequest",
	MsgSubscribeHomeAssistantStates:        "SubscribeHomeAssistantStatesRequest",
	MsgListEntitiesServicesResponse:        "ListEntitiesServicesResponse",
	MsgExecuteServiceRequest:               "ExecuteServiceRequest",
	MsgListEntitiesButtonResponse:          "ListEntitiesButtonResponse",
	MsgButtonCommandRequest:                "ButtonCommandRequest",
	MsgListEntitiesMediaPlayerResponse:     "ListEntitiesMediaPlayerResponse",
	MsgMediaPlayerStateResponse:            "MediaPlayerStateResponse",
	MsgMediaPlayerCommandRequest:           "MediaPlayerCommandRequest",
	MsgSubscribeVoiceAssistantRequest:      "SubscribeVoiceAssistantRequest",
	MsgVoiceAssistantRequest:               "VoiceAssistantRequest",
	MsgVoiceAssistantResponse:              "VoiceAssistantResponse",
	MsgVoiceAssistantEventResponse:         "VoiceAssistantEventResponse",
	MsgVoiceAssistantAudio:                 "VoiceAssistantAudio",
	MsgVoiceAssistantTimerEventResponse:    "VoiceAssistantTimerEventResponse",
	MsgVoiceAssistantAnnounceRequest:       "VoiceAssistantAnnounceRequest",
	MsgVoiceAssistantAnnounceFinished:      "VoiceAssistantAnnounceFinished",
	MsgVoiceAssistantConfigurationRequest:  "VoiceAssistantConfigurationRequest",
	MsgVoiceAssistantConfigurationResponse: "VoiceAssistantConfigurationResponse",
	MsgVoiceAssistantSetConfiguration:      "VoiceAssistantSetConfiguration",
}

// Name returns the message name, or "unknown(<id>)".
func Name(messageType uint32) string {
	if n, ok := names[messageType]; ok {
		return n
	}
	return fmt.Sprintf("unknown(%d)", messageType)
}

// Known reports whether messageType is part of the contract.
func Known(messageType uint32) bool {
	_, ok := names[messageType]
	return ok
}

// Voice assistant feature flags reported in DeviceInfoResponse.
const (
	FeatureVoiceAssistant    uint32 = 1 << 0
	FeatureSpeaker           uint32 = 1 << 1
	FeatureAPIAudio          uint32 = 1 << 2
	FeatureTimers            uint32 = 1 << 3
	FeatureAnnounce          uint32 = 1 << 4
	FeatureStartConversation uint32 = 1 << 5
)

// VoiceAssistantEventResponse event types.
const (
	VoiceEventError          uint32 = 0
	VoiceEventRunStart       uint32 = 1
	VoiceEventRunEnd         uint32 = 2
	VoiceEventSTTStart       uint32 = 3
	VoiceEventSTTEnd         uint32 = 4
	VoiceEventIntentStart    uint32 = 5
	VoiceEventIntentEnd      uint32 = 6
	VoiceEventTTSStart       uint32 = 7
	VoiceEventTTSEnd         uint32 = 8
	VoiceEventWakeWordStart  uint32 = 9
	VoiceEventWakeWordEnd    uint32 = 10
	VoiceEventSTTVADStart    uint32 = 11
	VoiceEventSTTVADEnd      uint32 = 12
	VoiceEventTTSStreamStart uint32 = 98
	VoiceEventTTSStreamEnd   uint32 = 99
	VoiceEventIntentProgress uint32 = 100
)

// VoiceAssistantTimerEventResponse event types.
const (
	TimerEventStarted   uint32 = 0
	TimerEventUpdated   uint32 = 1
	TimerEventCancelled uint32 = 2
	TimerEventFinished  uint32 = 3
)

// Media player states and commands.
const (
	MediaStateNone    uint32 = 0
	MediaStateIdle    uint32 = 1
	MediaStatePlaying uint32 = 2
	MediaStatePaused  uint32 = 3

	MediaCommandPlay   uint32 = 0
	MediaCommandPause  uint32 = 1
	MediaCommandStop   uint32 = 2
	MediaCommandMute   uint32 = 3
	MediaCommandUnmute uint32 = 4
)

// MediaPlayerFormatPurpose values.
const (
	MediaPurposeDefault      uint32 = 0
	MediaPurposeAnnouncement uint32 = 1
)

// Service argument types.
const (
	ServiceArgBool   uint32 = 0
	ServiceArgInt    uint32 = 1
	ServiceArgFloat  uint32 = 2
	ServiceArgString uint32 = 3
)

// Sensor state classes and entity categories.
const (
	StateClassNone        uint32 = 0
	StateClassMeasurement uint32 = 1

	EntityCategoryNone       uint32 = 0
	EntityCategoryConfig     uint32 = 1
	EntityCategoryDiagnostic uint32 = 2
)

type Requirement struct {
	Num      protowire.Number
	Type     protowire.Type
	Required bool
}

type ValidationError struct {
	MessageType uint32
	Field       protowire.Number
	Reason      string
}

func (e ValidationError) Error() string {
	if e.Field == 0 {
		return fmt.Sprintf("schema: message_type=%d: %s", e.MessageType, e.Reason)
	}
	return fmt.Sprintf("schema: message_type=%d field=%d: %s", e.MessageType, e.Field, e.Reason)
}

// Inbound messages whose fields drive side effects.
var requirements = map[uint32][]Requirement{
	MsgConnectRequest: {
		{1, protowire.BytesType, false},
	},
	MsgButtonCommandRequest: {
		{1, protowire.Fixed32Type, true},
	},
	MsgMediaPlayerCommandRequest: {
		{1, protowire.Fixed32Type, true},
		{3, protowire.VarintType, false},
		{5, protowire.Fixed32Type, false},
		{7, protowire.BytesType, false},
	},
	MsgExecuteServiceRequest: {
		{1, protowire.Fixed32Type, true},
		{2, protowire.BytesType, false},
	},
	MsgVoiceAssistantEventResponse: {
		{1, protowire.VarintType, false},
		{2, protowire.BytesType, false},
	},
	MsgVoiceAssistantAudio: {
		{1, protowire.BytesType, false},
	},
	MsgVoiceAssistantTimerEventResponse: {
		{2, protowire.BytesType, false},
		{4, protowire.VarintType, false},
		{5, protowire.VarintType, false},
	},
	MsgVoiceAssistantAnnounceRequest: {
		{1, protowire.BytesType, false},
		{2, protowire.BytesType, false},
	},
}

// Validate checks wire types and required presence for a message type.
// Unknown fields and unlisted message types pass.
func Validate(messageType uint32, fs []fields.Field) error {
	if !Known(messageType) {
		log.Debug().Uint32("message_type", messageType).Msg("schema.Validate unknown message_type")
		return ValidationError{MessageType: messageType, Reason: "unknown message_type"}
	}
	for _, req := range requirements[messageType] {
		f, found := fields.Get(fs, req.Num)
		if !found {
			if req.Required {
				log.Warn().
					Str("msg_type", Name(messageType)).
					Int32("field", int32(req.Num)).
					Msg("schema.Validate missing field")
				return ValidationError{MessageType: messageType, Field: req.Num, Reason: "missing required field"}
			}
			continue
		}
		if f.Type != req.Type {
			log.Warn().
				Str("msg_type", Name(messageType)).
				Int32("field", int32(req.Num)).
				Int("got", int(f.Type)).
				Int("want", int(req.Type)).
				Msg("schema.Validate type mismatch")
			return ValidationError{MessageType: messageType, Field: req.Num, Reason: "type mismatch"}
		}
	}
	return nil
}
