package entity

import (
	"github.com/danmuck/satellite/internal/protocol"
)

// ListResponse builds the ListEntities entry for e. VoiceAssistant
// entities are not listed; they surface through DeviceInfo feature flags.
func ListResponse(e Entity, device string) protocol.Message {
	a := e.Attrs
	switch e.Kind {
	case KindSensor:
		return &protocol.ListEntitiesSensorResponse{
			ObjectID:          e.ObjectID,
			Key:               e.Key,
			Name:              e.Name,
			UniqueID:          e.UniqueID(device),
			Icon:              a.Icon,
			UnitOfMeasurement: a.Unit,
			AccuracyDecimals:  a.AccuracyDecimals,
			ForceUpdate:       a.ForceUpdate,
			DeviceClass:       a.DeviceClass,
			StateClass:        a.StateClass,
			DisabledByDefault: a.Disabled,
			EntityCategory:    a.EntityCategory,
		}
	case KindBinarySensor:
		return &protocol.ListEntitiesBinarySensorResponse{
			ObjectID:          e.ObjectID,
			Key:               e.Key,
			Name:              e.Name,
			UniqueID:          e.UniqueID(device),
			DeviceClass:       a.DeviceClass,
			DisabledByDefault: a.Disabled,
			Icon:              a.Icon,
			EntityCategory:    a.EntityCategory,
		}
	case KindTextSensor:
		return &protocol.ListEntitiesTextSensorResponse{
			ObjectID:          e.ObjectID,
			Key:               e.Key,
			Name:              e.Name,
			UniqueID:          e.UniqueID(device),
			Icon:              a.Icon,
			DisabledByDefault: a.Disabled,
			EntityCategory:    a.EntityCategory,
			DeviceClass:       a.DeviceClass,
		}
	case KindButton:
		return &protocol.ListEntitiesButtonResponse{
			ObjectID:          e.ObjectID,
			Key:               e.Key,
			Name:              e.Name,
			UniqueID:          e.UniqueID(device),
			Icon:              a.Icon,
			DisabledByDefault: a.Disabled,
			EntityCategory:    a.EntityCategory,
			DeviceClass:       a.DeviceClass,
		}
	case KindMediaPlayer:
		formats := make([]protocol.MediaPlayerSupportedFormat, len(a.Formats))
		copy(formats, a.Formats)
		return &protocol.ListEntitiesMediaPlayerResponse{
			ObjectID:          e.ObjectID,
			Key:               e.Key,
			Name:              e.Name,
			UniqueID:          e.UniqueID(device),
			Icon:              a.Icon,
			DisabledByDefault: a.Disabled,
			EntityCategory:    a.EntityCategory,
			SupportsPause:     a.SupportsPause,
			SupportedFormats:  formats,
		}
	case KindService:
		args := make([]protocol.ListEntitiesServicesArgument, 0, len(a.ServiceArgs))
		for _, arg := range a.ServiceArgs {
			args = append(args, protocol.ListEntitiesServicesArgument{Name: arg.Name, Type: arg.Type})
		}
		return &protocol.ListEntitiesServicesResponse{
			Name: e.ObjectID,
			Key:  e.Key,
			Args: args,
		}
	}
	return nil
}

// StateResponse builds the state message for e, or nil for stateless kinds.
func StateResponse(e Entity) protocol.Message {
	missing := !e.Value.Valid
	switch e.Kind {
	case KindSensor:
		return &protocol.SensorStateResponse{Key: e.Key, State: e.Value.Float, MissingState: missing}
	case KindBinarySensor:
		return &protocol.BinarySensorStateResponse{Key: e.Key, State: e.Value.Bool, MissingState: missing}
	case KindTextSensor:
		return &protocol.TextSensorStateResponse{Key: e.Key, State: e.Value.Text, MissingState: missing}
	case KindMediaPlayer:
		m := e.Value.Media
		return &protocol.MediaPlayerStateResponse{Key: e.Key, State: m.State, Volume: m.Volume, Muted: m.Muted}
	}
	return nil
}
