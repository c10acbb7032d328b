package entity

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/danmuck/satellite/internal/protocol"
)

// Kind is fixed at registration.
type Kind string

const (
	KindSensor         Kind = "sensor"
	KindBinarySensor   Kind = "binary_sensor"
	KindTextSensor     Kind = "text_sensor"
	KindButton         Kind = "button"
	KindMediaPlayer    Kind = "media_player"
	KindService        Kind = "service"
	KindVoiceAssistant Kind = "voice_assistant"
)

// Stateful reports whether entities of this kind carry a current value.
func (k Kind) Stateful() bool {
	switch k {
	case KindSensor, KindBinarySensor, KindTextSensor, KindMediaPlayer:
		return true
	}
	return false
}

func (k Kind) valid() bool {
	switch k {
	case KindSensor, KindBinarySensor, KindTextSensor, KindButton,
		KindMediaPlayer, KindService, KindVoiceAssistant:
		return true
	}
	return false
}

// ServiceArg describes one user-defined service argument.
type ServiceArg struct {
	Name string
	Type uint32
}

// Attrs holds kind-specific attributes; unused fields stay zero.
type Attrs struct {
	Icon           string
	DeviceClass    string
	EntityCategory uint32
	Disabled       bool

	Unit             string
	AccuracyDecimals int32
	StateClass       uint32
	ForceUpdate      bool

	// Command is the dispatcher key a Button or Service triggers.
	Command string

	ServiceArgs []ServiceArg

	SupportsPause bool
	Formats       []protocol.MediaPlayerSupportedFormat
}

// MediaState is the MediaPlayer value.
type MediaState struct {
	State  uint32
	Volume float32
	Muted  bool
}

// Value is an entity's current value. Valid is false until first update.
type Value struct {
	Valid bool
	Float float32
	Bool  bool
	Text  string
	Media MediaState
}

func Float(v float32) Value    { return Value{Valid: true, Float: v} }
func Bool(v bool) Value        { return Value{Valid: true, Bool: v} }
func Text(v string) Value      { return Value{Valid: true, Text: v} }
func Media(v MediaState) Value { return Value{Valid: true, Media: v} }

// Entity is a snapshot of one registered capability.
type Entity struct {
	Key      uint32
	ObjectID string
	Name     string
	Kind     Kind
	Attrs    Attrs
	Value    Value
}

// UniqueID is stable across restarts for one device.
func (e Entity) UniqueID(device string) string {
	return fmt.Sprintf("%s%s%s", device, e.Kind, e.ObjectID)
}

// KeyFor derives the wire key from an object id (32-bit FNV-1).
func KeyFor(objectID string) uint32 {
	h := fnv.New32()
	_, _ = h.Write([]byte(objectID))
	return h.Sum32()
}

// ObjectIDFor derives an object id from a display name.
func ObjectIDFor(name string) string {
	var b strings.Builder
	lastSep := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSep = false
		default:
			if !lastSep {
				b.WriteByte('_')
				lastSep = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

func isValidObjectID(id string) bool {
	if id == "" {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		isLower := c >= 'a' && c <= 'z'
		isDigit := c >= '0' && c <= '9'
		if !(isLower || isDigit || c == '_') {
			return false
		}
	}
	return true
}
