package protocol

import (
	"github.com/danmuck/satellite/internal/protocol/fields"
	"github.com/danmuck/satellite/internal/protocol/schema"
)

type ListEntitiesBinarySensorResponse struct {
	ObjectID             string
	Key                  uint32
	Name                 string
	UniqueID             string
	DeviceClass          string
	IsStatusBinarySensor bool
	DisabledByDefault    bool
	Icon                 string
	EntityCategory       uint32
}

func (*ListEntitiesBinarySensorResponse) Type() uint32 {
	return schema.MsgListEntitiesBinarySensorResponse
}

func (m *ListEntitiesBinarySensorResponse) Marshal() []byte {
	var b fields.Builder
	return b.String(1, m.ObjectID).
		Fixed32(2, m.Key).
		String(3, m.Name).
		String(4, m.UniqueID).
		String(5, m.DeviceClass).
		Bool(6, m.IsStatusBinarySensor).
		Bool(7, m.DisabledByDefault).
		String(8, m.Icon).
		Uint32(9, m.EntityCategory).
		Build()
}

func (m *ListEntitiesBinarySensorResponse) Unmarshal(payload []byte) error {
	return fields.Walk(payload, func(f fields.Field) error {
		switch f.Num {
		case 1:
			m.ObjectID = f.Text()
		case 2:
			m.Key = f.Uint32()
		case 3:
			m.Name = f.Text()
		case 4:
			m.UniqueID = f.Text()
		case 5:
			m.DeviceClass = f.Text()
		case 6:
			m.IsStatusBinarySensor = f.Bool()
		case 7:
			m.DisabledByDefault = f.Bool()
		case 8:
			m.Icon = f.Text()
		case 9:
			m.EntityCategory = f.Uint32()
		}
		return nil
	})
}

type ListEntitiesSensorResponse struct {
	ObjectID          string
	Key               uint32
	Name              string
	UniqueID          string
	Icon              string
	UnitOfMeasurement string
	AccuracyDecimals  int32
	ForceUpdate       bool
	DeviceClass       string
	StateClass        uint32
	DisabledByDefault bool
	EntityCategory    uint32
}

func (*ListEntitiesSensorResponse) Type() uint32 { return schema.MsgListEntitiesSensorResponse }

func (m *ListEntitiesSensorResponse) Marshal() []byte {
	var b fields.Builder
	return b.String(1, m.ObjectID).
		Fixed32(2, m.Key).
		String(3, m.Name).
		String(4, m.UniqueID).
		String(5, m.Icon).
		String(6, m.UnitOfMeasurement).
		Int32(7, m.AccuracyDecimals).
		Bool(8, m.ForceUpdate).
		String(9, m.DeviceClass).
		Uint32(10, m.StateClass).
		Bool(12, m.DisabledByDefault).
		Uint32(13, m.EntityCategory).
		Build()
}

func (m *ListEntitiesSensorResponse) Unmarshal(payload []byte) error {
	return fields.Walk(payload, func(f fields.Field) error {
		switch f.Num {
		case 1:
			m.ObjectID = f.Text()
		case 2:
			m.Key = f.Uint32()
		case 3:
			m.Name = f.Text()
		case 4:
			m.UniqueID = f.Text()
		case 5:
			m.Icon = f.Text()
		case 6:
			m.UnitOfMeasurement = f.Text()
		case 7:
			m.AccuracyDecimals = f.Int32()
		case 8:
			m.ForceUpdate = f.Bool()
		case 9:
			m.DeviceClass = f.Text()
		case 10:
			m.StateClass = f.Uint32()
		case 12:
			m.DisabledByDefault = f.Bool()
		case 13:
			m.EntityCategory = f.Uint32()
		}
		return nil
	})
}

type ListEntitiesTextSensorResponse struct {
	ObjectID          string
	Key               uint32
	Name              string
	UniqueID          string
	Icon              string
	DisabledByDefault bool
	EntityCategory    uint32
	DeviceClass       string
}

func (*ListEntitiesTextSensorResponse) Type() uint32 {
	return schema.MsgListEntitiesTextSensorResponse
}

func (m *ListEntitiesTextSensorResponse) Marshal() []byte {
	var b fields.Builder
	return b.String(1, m.ObjectID).
		Fixed32(2, m.Key).
		String(3, m.Name).
		String(4, m.UniqueID).
		String(5, m.Icon).
		Bool(6, m.DisabledByDefault).
		Uint32(7, m.EntityCategory).
		String(8, m.DeviceClass).
		Build()
}

func (m *ListEntitiesTextSensorResponse) Unmarshal(payload []byte) error {
	return fields.Walk(payload, func(f fields.Field) error {
		switch f.Num {
		case 1:
			m.ObjectID = f.Text()
		case 2:
			m.Key = f.Uint32()
		case 3:
			m.Name = f.Text()
		case 4:
			m.UniqueID = f.Text()
		case 5:
			m.Icon = f.Text()
		case 6:
			m.DisabledByDefault = f.Bool()
		case 7:
			m.EntityCategory = f.Uint32()
		case 8:
			m.DeviceClass = f.Text()
		}
		return nil
	})
}

type ListEntitiesButtonResponse struct {
	ObjectID          string
	Key               uint32
	Name              string
	UniqueID          string
	Icon              string
	DisabledByDefault bool
	EntityCategory    uint32
	DeviceClass       string
}

func (*ListEntitiesButtonResponse) Type() uint32 { return schema.MsgListEntitiesButtonResponse }

func (m *ListEntitiesButtonResponse) Marshal() []byte {
	var b fields.Builder
	return b.String(1, m.ObjectID).
		Fixed32(2, m.Key).
		String(3, m.Name).
		String(4, m.UniqueID).
		String(5, m.Icon).
		Bool(6, m.DisabledByDefault).
		Uint32(7, m.EntityCategory).
		String(8, m.DeviceClass).
		Build()
}

func (m *ListEntitiesButtonResponse) Unmarshal(payload []byte) error {
	return fields.Walk(payload, func(f fields.Field) error {
		switch f.Num {
		case 1:
			m.ObjectID = f.Text()
		case 2:
			m.Key = f.Uint32()
		case 3:
			m.Name = f.Text()
		case 4:
			m.UniqueID = f.Text()
		case 5:
			m.Icon = f.Text()
		case 6:
			m.DisabledByDefault = f.Bool()
		case 7:
			m.EntityCategory = f.Uint32()
		case 8:
			m.DeviceClass = f.Text()
		}
		return nil
	})
}

type MediaPlayerSupportedFormat struct {
	Format      string
	SampleRate  uint32
	NumChannels uint32
	Purpose     uint32
	SampleBytes uint32
}

func (m *MediaPlayerSupportedFormat) marshal() []byte {
	var b fields.Builder
	return b.String(1, m.Format).
		Uint32(2, m.SampleRate).
		Uint32(3, m.NumChannels).
		Uint32(4, m.Purpose).
		Uint32(5, m.SampleBytes).
		Build()
}

func (m *MediaPlayerSupportedFormat) unmarshal(payload []byte) error {
	return fields.Walk(payload, func(f fields.Field) error {
		switch f.Num {
		case 1:
			m.Format = f.Text()
		case 2:
			m.SampleRate = f.Uint32()
		case 3:
			m.NumChannels = f.Uint32()
		case 4:
			m.Purpose = f.Uint32()
		case 5:
			m.SampleBytes = f.Uint32()
		}
		return nil
	})
}

type ListEntitiesMediaPlayerResponse struct {
	ObjectID          string
	Key               uint32
	Name              string
	UniqueID          string
	Icon              string
	DisabledByDefault bool
	EntityCategory    uint32
	SupportsPause     bool
	SupportedFormats  []MediaPlayerSupportedFormat
}

func (*ListEntitiesMediaPlayerResponse) Type() uint32 {
	return schema.MsgListEntitiesMediaPlayerResponse
}

func (m *ListEntitiesMediaPlayerResponse) Marshal() []byte {
	var b fields.Builder
	b.String(1, m.ObjectID).
		Fixed32(2, m.Key).
		String(3, m.Name).
		String(4, m.UniqueID).
		String(5, m.Icon).
		Bool(6, m.DisabledByDefault).
		Uint32(7, m.EntityCategory).
		Bool(8, m.SupportsPause)
	for i := range m.SupportedFormats {
		b.Message(9, m.SupportedFormats[i].marshal())
	}
	return b.Build()
}

func (m *ListEntitiesMediaPlayerResponse) Unmarshal(payload []byte) error {
	return fields.Walk(payload, func(f fields.Field) error {
		switch f.Num {
		case 1:
			m.ObjectID = f.Text()
		case 2:
			m.Key = f.Uint32()
		case 3:
			m.Name = f.Text()
		case 4:
			m.UniqueID = f.Text()
		case 5:
			m.Icon = f.Text()
		case 6:
			m.DisabledByDefault = f.Bool()
		case 7:
			m.EntityCategory = f.Uint32()
		case 8:
			m.SupportsPause = f.Bool()
		case 9:
			var sf MediaPlayerSupportedFormat
			if err := sf.unmarshal(f.Bytes); err != nil {
				return err
			}
			m.SupportedFormats = append(m.SupportedFormats, sf)
		}
		return nil
	})
}

type ListEntitiesServicesArgument struct {
	Name string
	Type uint32
}

type ListEntitiesServicesResponse struct {
	Name string
	Key  uint32
	Args []ListEntitiesServicesArgument
}

func (*ListEntitiesServicesResponse) Type() uint32 { return schema.MsgListEntitiesServicesResponse }

func (m *ListEntitiesServicesResponse) Marshal() []byte {
	var b fields.Builder
	b.String(1, m.Name).Fixed32(2, m.Key)
	for _, arg := range m.Args {
		var ab fields.Builder
		b.Message(3, ab.String(1, arg.Name).Uint32(2, arg.Type).Build())
	}
	return b.Build()
}

func (m *ListEntitiesServicesResponse) Unmarshal(payload []byte) error {
	return fields.Walk(payload, func(f fields.Field) error {
		switch f.Num {
		case 1:
			m.Name = f.Text()
		case 2:
			m.Key = f.Uint32()
		case 3:
			var arg ListEntitiesServicesArgument
			err := fields.Walk(f.Bytes, func(af fields.Field) error {
				switch af.Num {
				case 1:
					arg.Name = af.Text()
				case 2:
					arg.Type = af.Uint32()
				}
				return nil
			})
			if err != nil {
				return err
			}
			m.Args = append(m.Args, arg)
		}
		return nil
	})
}

type ExecuteServiceArgument struct {
	Bool   bool
	Float  float32
	String string
	Int    int32
}

type ExecuteServiceRequest struct {
	Key  uint32
	Args []ExecuteServiceArgument
}

func (*ExecuteServiceRequest) Type() uint32 { return schema.MsgExecuteServiceRequest }

func (m *ExecuteServiceRequest) Marshal() []byte {
	var b fields.Builder
	b.Fixed32(1, m.Key)
	for _, arg := range m.Args {
		var ab fields.Builder
		b.Message(2, ab.Bool(1, arg.Bool).
			Float(3, arg.Float).
			String(4, arg.String).
			Sint32(5, arg.Int).
			Build())
	}
	return b.Build()
}

func (m *ExecuteServiceRequest) Unmarshal(payload []byte) error {
	return fields.Walk(payload, func(f fields.Field) error {
		switch f.Num {
		case 1:
			m.Key = f.Uint32()
		case 2:
			var arg ExecuteServiceArgument
			err := fields.Walk(f.Bytes, func(af fields.Field) error {
				switch af.Num {
				case 1:
					arg.Bool = af.Bool()
				case 2:
					if arg.Int == 0 {
						arg.Int = af.Int32()
					}
				case 3:
					arg.Float = af.Float()
				case 4:
					arg.String = af.Text()
				case 5:
					arg.Int = af.Sint32()
				}
				return nil
			})
			if err != nil {
				return err
			}
			m.Args = append(m.Args, arg)
		}
		return nil
	})
}

type SensorStateResponse struct {
	Key          uint32
	State        float32
	MissingState bool
}

func (*SensorStateResponse) Type() uint32 { return schema.MsgSensorStateResponse }

func (m *SensorStateResponse) Marshal() []byte {
	var b fields.Builder
	return b.Fixed32(1, m.Key).Float(2, m.State).Bool(3, m.MissingState).Build()
}

func (m *SensorStateResponse) Unmarshal(payload []byte) error {
	return fields.Walk(payload, func(f fields.Field) error {
		switch f.Num {
		case 1:
			m.Key = f.Uint32()
		case 2:
			m.State = f.Float()
		case 3:
			m.MissingState = f.Bool()
		}
		return nil
	})
}

type BinarySensorStateResponse struct {
	Key          uint32
	State        bool
	MissingState bool
}

func (*BinarySensorStateResponse) Type() uint32 { return schema.MsgBinarySensorStateResponse }

func (m *BinarySensorStateResponse) Marshal() []byte {
	var b fields.Builder
	return b.Fixed32(1, m.Key).Bool(2, m.State).Bool(3, m.MissingState).Build()
}

func (m *BinarySensorStateResponse) Unmarshal(payload []byte) error {
	return fields.Walk(payload, func(f fields.Field) error {
		switch f.Num {
		case 1:
			m.Key = f.Uint32()
		case 2:
			m.State = f.Bool()
		case 3:
			m.MissingState = f.Bool()
		}
		return nil
	})
}

type TextSensorStateResponse struct {
	Key          uint32
	State        string
	MissingState bool
}

func (*TextSensorStateResponse) Type() uint32 { return schema.MsgTextSensorStateResponse }

func (m *TextSensorStateResponse) Marshal() []byte {
	var b fields.Builder
	return b.Fixed32(1, m.Key).String(2, m.State).Bool(3, m.MissingState).Build()
}

func (m *TextSensorStateResponse) Unmarshal(payload []byte) error {
	return fields.Walk(payload, func(f fields.Field) error {
		switch f.Num {
		case 1:
			m.Key = f.Uint32()
		case 2:
			m.State = f.Text()
		case 3:
			m.MissingState = f.Bool()
		}
		return nil
	})
}

type ButtonCommandRequest struct {
	Key uint32
}

func (*ButtonCommandRequest) Type() uint32 { return schema.MsgButtonCommandRequest }

func (m *ButtonCommandRequest) Marshal() []byte {
	var b fields.Builder
	return b.Fixed32(1, m.Key).Build()
}

func (m *ButtonCommandRequest) Unmarshal(payload []byte) error {
	return fields.Walk(payload, func(f fields.Field) error {
		if f.Num == 1 {
			m.Key = f.Uint32()
		}
		return nil
	})
}

type MediaPlayerStateResponse struct {
	Key    uint32
	State  uint32
	Volume float32
	Muted  bool
}

func (*MediaPlayerStateResponse) Type() uint32 { return schema.MsgMediaPlayerStateResponse }

func (m *MediaPlayerStateResponse) Marshal() []byte {
	var b fields.Builder
	return b.Fixed32(1, m.Key).
		Uint32(2, m.State).
		Float(3, m.Volume).
		Bool(4, m.Muted).
		Build()
}

func (m *MediaPlayerStateResponse) Unmarshal(payload []byte) error {
	return fields.Walk(payload, func(f fields.Field) error {
		switch f.Num {
		case 1:
			m.Key = f.Uint32()
		case 2:
			m.State = f.Uint32()
		case 3:
			m.Volume = f.Float()
		case 4:
			m.Muted = f.Bool()
		}
		return nil
	})
}

type MediaPlayerCommandRequest struct {
	Key             uint32
	HasCommand      bool
	Command         uint32
	HasVolume       bool
	Volume          float32
	HasMediaURL     bool
	MediaURL        string
	HasAnnouncement bool
	Announcement    bool
}

func (*MediaPlayerCommandRequest) Type() uint32 { return schema.MsgMediaPlayerCommandRequest }

func (m *MediaPlayerCommandRequest) Marshal() []byte {
	var b fields.Builder
	return b.Fixed32(1, m.Key).
		Bool(2, m.HasCommand).
		Uint32(3, m.Command).
		Bool(4, m.HasVolume).
		Float(5, m.Volume).
		Bool(6, m.HasMediaURL).
		String(7, m.MediaURL).
		Bool(8, m.HasAnnouncement).
		Bool(9, m.Announcement).
		Build()
}

func (m *MediaPlayerCommandRequest) Unmarshal(payload []byte) error {
	return fields.Walk(payload, func(f fields.Field) error {
		switch f.Num {
		case 1:
			m.Key = f.Uint32()
		case 2:
			m.HasCommand = f.Bool()
		case 3:
			m.Command = f.Uint32()
		case 4:
			m.HasVolume = f.Bool()
		case 5:
			m.Volume = f.Float()
		case 6:
			m.HasMediaURL = f.Bool()
		case 7:
			m.MediaURL = f.Text()
		case 8:
			m.HasAnnouncement = f.Bool()
		case 9:
			m.Announcement = f.Bool()
		}
		return nil
	})
}
