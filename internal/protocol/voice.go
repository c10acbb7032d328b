package protocol

import (
	"github.com/danmuck/satellite/internal/protocol/fields"
	"github.com/danmuck/satellite/internal/protocol/schema"
)

type SubscribeVoiceAssistantRequest struct {
	Subscribe bool
	Flags     uint32
}

func (*SubscribeVoiceAssistantRequest) Type() uint32 {
	return schema.MsgSubscribeVoiceAssistantRequest
}

func (m *SubscribeVoiceAssistantRequest) Marshal() []byte {
	var b fields.Builder
	return b.Bool(1, m.Subscribe).Uint32(2, m.Flags).Build()
}

func (m *SubscribeVoiceAssistantRequest) Unmarshal(payload []byte) error {
	return fields.Walk(payload, func(f fields.Field) error {
		switch f.Num {
		case 1:
			m.Subscribe = f.Bool()
		case 2:
			m.Flags = f.Uint32()
		}
		return nil
	})
}

type VoiceAssistantAudioSettings struct {
	NoiseSuppressionLevel uint32
	AutoGain              uint32
	VolumeMultiplier      float32
}

type VoiceAssistantRequest struct {
	Start          bool
	ConversationID string
	Flags          uint32
	AudioSettings  *VoiceAssistantAudioSettings
	WakeWordPhrase string
}

func (*VoiceAssistantRequest) Type() uint32 { return schema.MsgVoiceAssistantRequest }

func (m *VoiceAssistantRequest) Marshal() []byte {
	var b fields.Builder
	b.Bool(1, m.Start).
		String(2, m.ConversationID).
		Uint32(3, m.Flags)
	if s := m.AudioSettings; s != nil {
		var sb fields.Builder
		b.Message(4, sb.Uint32(1, s.NoiseSuppressionLevel).
			Uint32(2, s.AutoGain).
			Float(3, s.VolumeMultiplier).
			Build())
	}
	return b.String(5, m.WakeWordPhrase).Build()
}

func (m *VoiceAssistantRequest) Unmarshal(payload []byte) error {
	return fields.Walk(payload, func(f fields.Field) error {
		switch f.Num {
		case 1:
			m.Start = f.Bool()
		case 2:
			m.ConversationID = f.Text()
		case 3:
			m.Flags = f.Uint32()
		case 4:
			s := &VoiceAssistantAudioSettings{}
			err := fields.Walk(f.Bytes, func(sf fields.Field) error {
				switch sf.Num {
				case 1:
					s.NoiseSuppressionLevel = sf.Uint32()
				case 2:
					s.AutoGain = sf.Uint32()
				case 3:
					s.VolumeMultiplier = sf.Float()
				}
				return nil
			})
			if err != nil {
				return err
			}
			m.AudioSettings = s
		case 5:
			m.WakeWordPhrase = f.Text()
		}
		return nil
	})
}

// VoiceAssistantResponse answers a pipeline start. Port zero means audio
// travels over the API connection.
type VoiceAssistantResponse struct {
	Port  uint32
	Error bool
}

func (*VoiceAssistantResponse) Type() uint32 { return schema.MsgVoiceAssistantResponse }

func (m *VoiceAssistantResponse) Marshal() []byte {
	var b fields.Builder
	return b.Uint32(1, m.Port).Bool(2, m.Error).Build()
}

func (m *VoiceAssistantResponse) Unmarshal(payload []byte) error {
	return fields.Walk(payload, func(f fields.Field) error {
		switch f.Num {
		case 1:
			m.Port = f.Uint32()
		case 2:
			m.Error = f.Bool()
		}
		return nil
	})
}

type VoiceAssistantEventData struct {
	Name  string
	Value string
}

type VoiceAssistantEventResponse struct {
	EventType uint32
	Data      []VoiceAssistantEventData
}

func (*VoiceAssistantEventResponse) Type() uint32 { return schema.MsgVoiceAssistantEventResponse }

func (m *VoiceAssistantEventResponse) Marshal() []byte {
	var b fields.Builder
	b.Uint32(1, m.EventType)
	for _, d := range m.Data {
		var db fields.Builder
		b.Message(2, db.String(1, d.Name).String(2, d.Value).Build())
	}
	return b.Build()
}

func (m *VoiceAssistantEventResponse) Unmarshal(payload []byte) error {
	return fields.Walk(payload, func(f fields.Field) error {
		switch f.Num {
		case 1:
			m.EventType = f.Uint32()
		case 2:
			var d VoiceAssistantEventData
			err := fields.Walk(f.Bytes, func(df fields.Field) error {
				switch df.Num {
				case 1:
					d.Name = df.Text()
				case 2:
					d.Value = df.Text()
				}
				return nil
			})
			if err != nil {
				return err
			}
			m.Data = append(m.Data, d)
		}
		return nil
	})
}

// Value returns the first data value named name.
func (m *VoiceAssistantEventResponse) Value(name string) (string, bool) {
	for _, d := range m.Data {
		if d.Name == name {
			return d.Value, true
		}
	}
	return "", false
}

type VoiceAssistantAudio struct {
	Data []byte
	End  bool
}

func (*VoiceAssistantAudio) Type() uint32 { return schema.MsgVoiceAssistantAudio }

func (m *VoiceAssistantAudio) Marshal() []byte {
	var b fields.Builder
	return b.Bytes(1, m.Data).Bool(2, m.End).Build()
}

func (m *VoiceAssistantAudio) Unmarshal(payload []byte) error {
	return fields.Walk(payload, func(f fields.Field) error {
		switch f.Num {
		case 1:
			m.Data = f.Data()
		case 2:
			m.End = f.Bool()
		}
		return nil
	})
}

type VoiceAssistantTimerEventResponse struct {
	EventType    uint32
	TimerID      string
	Name         string
	TotalSeconds uint32
	SecondsLeft  uint32
	IsActive     bool
}

func (*VoiceAssistantTimerEventResponse) Type() uint32 {
	return schema.MsgVoiceAssistantTimerEventResponse
}

func (m *VoiceAssistantTimerEventResponse) Marshal() []byte {
	var b fields.Builder
	return b.Uint32(1, m.EventType).
		String(2, m.TimerID).
		String(3, m.Name).
		Uint32(4, m.TotalSeconds).
		Uint32(5, m.SecondsLeft).
		Bool(6, m.IsActive).
		Build()
}

func (m *VoiceAssistantTimerEventResponse) Unmarshal(payload []byte) error {
	return fields.Walk(payload, func(f fields.Field) error {
		switch f.Num {
		case 1:
			m.EventType = f.Uint32()
		case 2:
			m.TimerID = f.Text()
		case 3:
			m.Name = f.Text()
		case 4:
			m.TotalSeconds = f.Uint32()
		case 5:
			m.SecondsLeft = f.Uint32()
		case 6:
			m.IsActive = f.Bool()
		}
		return nil
	})
}

type VoiceAssistantAnnounceRequest struct {
	MediaID            string
	Text               string
	PreannounceMediaID string
	StartConversation  bool
}

func (*VoiceAssistantAnnounceRequest) Type() uint32 {
	return schema.MsgVoiceAssistantAnnounceRequest
}

func (m *VoiceAssistantAnnounceRequest) Marshal() []byte {
	var b fields.Builder
	return b.String(1, m.MediaID).
		String(2, m.Text).
		String(3, m.PreannounceMediaID).
		Bool(4, m.StartConversation).
		Build()
}

func (m *VoiceAssistantAnnounceRequest) Unmarshal(payload []byte) error {
	return fields.Walk(payload, func(f fields.Field) error {
		switch f.Num {
		case 1:
			m.MediaID = f.Text()
		case 2:
			m.Text = f.Text()
		case 3:
			m.PreannounceMediaID = f.Text()
		case 4:
			m.StartConversation = f.Bool()
		}
		return nil
	})
}

type VoiceAssistantAnnounceFinished struct {
	Success bool
}

func (*VoiceAssistantAnnounceFinished) Type() uint32 {
	return schema.MsgVoiceAssistantAnnounceFinished
}

func (m *VoiceAssistantAnnounceFinished) Marshal() []byte {
	var b fields.Builder
	return b.Bool(1, m.Success).Build()
}

func (m *VoiceAssistantAnnounceFinished) Unmarshal(payload []byte) error {
	return fields.Walk(payload, func(f fields.Field) error {
		if f.Num == 1 {
			m.Success = f.Bool()
		}
		return nil
	})
}

type VoiceAssistantWakeWord struct {
	ID               string
	WakeWord         string
	TrainedLanguages []string
}

func (m *VoiceAssistantWakeWord) marshal() []byte {
	var b fields.Builder
	return b.String(1, m.ID).
		String(2, m.WakeWord).
		Strings(3, m.TrainedLanguages).
		Build()
}

func (m *VoiceAssistantWakeWord) unmarshal(payload []byte) error {
	return fields.Walk(payload, func(f fields.Field) error {
		switch f.Num {
		case 1:
			m.ID = f.Text()
		case 2:
			m.WakeWord = f.Text()
		case 3:
			m.TrainedLanguages = append(m.TrainedLanguages, f.Text())
		}
		return nil
	})
}

// VoiceAssistantConfigurationRequest may carry hub-side wake words; they
// are not used by this device.
type VoiceAssistantConfigurationRequest struct{}

func (*VoiceAssistantConfigurationRequest) Type() uint32 {
	return schema.MsgVoiceAssistantConfigurationRequest
}
func (*VoiceAssistantConfigurationRequest) Marshal() []byte        { return []byte{} }
func (*VoiceAssistantConfigurationRequest) Unmarshal([]byte) error { return nil }

type VoiceAssistantConfigurationResponse struct {
	AvailableWakeWords []VoiceAssistantWakeWord
	ActiveWakeWords    []string
	MaxActiveWakeWords uint32
}

func (*VoiceAssistantConfigurationResponse) Type() uint32 {
	return schema.MsgVoiceAssistantConfigurationResponse
}

func (m *VoiceAssistantConfigurationResponse) Marshal() []byte {
	var b fields.Builder
	for i := range m.AvailableWakeWords {
		b.Message(1, m.AvailableWakeWords[i].marshal())
	}
	return b.Strings(2, m.ActiveWakeWords).
		Uint32(3, m.MaxActiveWakeWords).
		Build()
}

func (m *VoiceAssistantConfigurationResponse) Unmarshal(payload []byte) error {
	return fields.Walk(payload, func(f fields.Field) error {
		switch f.Num {
		case 1:
			var ww VoiceAssistantWakeWord
			if err := ww.unmarshal(f.Bytes); err != nil {
				return err
			}
			m.AvailableWakeWords = append(m.AvailableWakeWords, ww)
		case 2:
			m.ActiveWakeWords = append(m.ActiveWakeWords, f.Text())
		case 3:
			m.MaxActiveWakeWords = f.Uint32()
		}
		return nil
	})
}

type VoiceAssistantSetConfiguration struct {
	ActiveWakeWords []string
}

func (*VoiceAssistantSetConfiguration) Type() uint32 {
	return schema.MsgVoiceAssistantSetConfiguration
}

func (m *VoiceAssistantSetConfiguration) Marshal() []byte {
	var b fields.Builder
	return b.Strings(1, m.ActiveWakeWords).Build()
}

func (m *VoiceAssistantSetConfiguration) Unmarshal(payload []byte) error {
	return fields.Walk(payload, func(f fields.Field) error {
		if f.Num == 1 {
			m.ActiveWakeWords = append(m.ActiveWakeWords, f.Text())
		}
		return nil
	})
}
