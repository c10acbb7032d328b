package satellite

import (
	"fmt"
	"strings"

	"github.com/danmuck/satellite/internal/protocol"
	"github.com/danmuck/satellite/internal/protocol/frame"
	"github.com/danmuck/satellite/internal/protocol/schema"
	"github.com/danmuck/satellite/internal/protocol/session"
)

// Version is reported as the project version in DeviceInfo.
const Version = "0.3.0"

// Device identifies the emulated device to the hub.
type Device struct {
	Name           string
	FriendlyName   string
	MAC            string
	Manufacturer   string
	Model          string
	ProjectName    string
	ProjectVersion string
	ESPHomeVersion string
	SuggestedArea  string
}

// Config configures the hub server.
type Config struct {
	Device   Device
	Password string
	Session  session.Config
	Limits   frame.Limits
	// Features are the voice feature flags reported when a voice pipeline
	// is attached.
	Features uint32
	// ResultKey is the text sensor that carries command results; zero
	// disables result reporting.
	ResultKey uint32
}

func DefaultConfig() Config {
	return Config{
		Device: Device{
			Name:           "satellite",
			Manufacturer:   "danmuck",
			Model:          "Host Satellite",
			ProjectName:    "danmuck.satellite",
			ProjectVersion: Version,
			ESPHomeVersion: "2025.5.0",
		},
		Session: session.DefaultConfig(),
		Limits:  frame.DefaultLimits(),
		Features: schema.FeatureVoiceAssistant |
			schema.FeatureSpeaker |
			schema.FeatureAPIAudio |
			schema.FeatureTimers |
			schema.FeatureAnnounce |
			schema.FeatureStartConversation,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if strings.TrimSpace(c.Device.Name) == "" {
		c.Device.Name = d.Device.Name
	}
	if c.Device.FriendlyName == "" {
		c.Device.FriendlyName = c.Device.Name
	}
	if c.Device.Manufacturer == "" {
		c.Device.Manufacturer = d.Device.Manufacturer
	}
	if c.Device.Model == "" {
		c.Device.Model = d.Device.Model
	}
	if c.Device.ProjectName == "" {
		c.Device.ProjectName = d.Device.ProjectName
	}
	if c.Device.ProjectVersion == "" {
		c.Device.ProjectVersion = d.Device.ProjectVersion
	}
	if c.Device.ESPHomeVersion == "" {
		c.Device.ESPHomeVersion = d.Device.ESPHomeVersion
	}
	c.Session = c.Session.WithDefaults()
	if c.Limits.MaxPayloadBytes == 0 {
		c.Limits = d.Limits
	}
	if c.Features == 0 {
		c.Features = d.Features
	}
	return c
}

func (c Config) helloResponse() *protocol.HelloResponse {
	return &protocol.HelloResponse{
		APIVersionMajor: schema.APIVersionMajor,
		APIVersionMinor: schema.APIVersionMinor,
		ServerInfo:      fmt.Sprintf("%s (satellite %s)", c.Device.Name, Version),
		Name:            c.Device.Name,
	}
}

func (c Config) deviceInfo(voiceEnabled bool) *protocol.DeviceInfoResponse {
	info := &protocol.DeviceInfoResponse{
		UsesPassword:    c.Password != "",
		Name:            c.Device.Name,
		MACAddress:      strings.ToUpper(c.Device.MAC),
		ESPHomeVersion:  c.Device.ESPHomeVersion,
		CompilationTime: buildTime,
		Model:           c.Device.Model,
		ProjectName:     c.Device.ProjectName,
		ProjectVersion:  c.Device.ProjectVersion,
		Manufacturer:    c.Device.Manufacturer,
		FriendlyName:    c.Device.FriendlyName,
		SuggestedArea:   c.Device.SuggestedArea,
	}
	if voiceEnabled {
		info.VoiceAssistantFeatureFlags = c.Features
	}
	return info
}

// buildTime may be set with -ldflags "-X ...satellite.buildTime=...".
var buildTime = "unknown"
