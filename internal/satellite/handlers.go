package satellite

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/danmuck/satellite/internal/command"
	"github.com/danmuck/satellite/internal/entity"
	"github.com/danmuck/satellite/internal/protocol"
	"github.com/danmuck/satellite/internal/protocol/schema"
	"github.com/danmuck/satellite/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// handle processes one inbound message on the read loop. A returned error
// closes the connection.
func (c *Conn) handle(msg protocol.Message) error {
	switch m := msg.(type) {
	case *protocol.HelloRequest:
		return c.onHello(m)
	case *protocol.ConnectRequest:
		return c.onConnect(m)
	case *protocol.DisconnectRequest:
		_ = c.Send(&protocol.DisconnectResponse{})
		return ErrDisconnected
	case *protocol.DisconnectResponse:
		return ErrDisconnected
	case *protocol.PingRequest:
		return c.Send(&protocol.PingResponse{})
	case *protocol.PingResponse:
		return nil
	case *protocol.DeviceInfoRequest:
		return c.Send(c.srv.cfg.deviceInfo(c.srv.voice != nil))
	case *protocol.ListEntitiesRequest:
		return c.Send(c.srv.listEntities()...)
	case *protocol.SubscribeStatesRequest:
		c.gate.Subscribe()
		log.Info().
			Str("component", "satellite").
			Uint64("conn", c.id).
			Msg("hub subscribed to states")
		return c.Send(c.srv.stateSnapshot()...)
	case *protocol.SubscribeLogsRequest,
		*protocol.SubscribeHomeassistantServicesRequest,
		*protocol.SubscribeHomeAssistantStatesRequest:
		return nil
	case *protocol.ButtonCommandRequest:
		c.onButton(m)
		return nil
	case *protocol.ExecuteServiceRequest:
		c.onService(m)
		return nil
	case *protocol.MediaPlayerCommandRequest:
		c.onMediaPlayer(m)
		return nil
	case *protocol.SubscribeVoiceAssistantRequest:
		c.onVoiceSubscribe(m)
		return nil
	case *protocol.VoiceAssistantConfigurationRequest:
		if c.srv.voice == nil {
			return c.Send(&protocol.VoiceAssistantConfigurationResponse{})
		}
		return c.Send(c.srv.voice.WakeWords().Configuration())
	case *protocol.VoiceAssistantResponse,
		*protocol.VoiceAssistantEventResponse,
		*protocol.VoiceAssistantAudio,
		*protocol.VoiceAssistantTimerEventResponse,
		*protocol.VoiceAssistantAnnounceRequest,
		*protocol.VoiceAssistantSetConfiguration:
		c.toVoice(msg)
		return nil
	default:
		log.Debug().
			Str("component", "satellite").
			Uint64("conn", c.id).
			Str("msg_type", protocol.Name(msg)).
			Msg("ignoring message")
		return nil
	}
}

func (c *Conn) onHello(m *protocol.HelloRequest) error {
	authed := c.gate.Hello()
	c.authenticated.Store(authed)
	log.Info().
		Str("component", "satellite").
		Uint64("conn", c.id).
		Str("client", m.ClientInfo).
		Str("api", fmt.Sprintf("%d.%d", m.APIVersionMajor, m.APIVersionMinor)).
		Bool("authenticated", authed).
		Msg("hello")
	return c.Send(c.srv.cfg.helloResponse())
}

func (c *Conn) onConnect(m *protocol.ConnectRequest) error {
	err := c.gate.Connect(m.Password)
	switch {
	case errors.Is(err, session.ErrInvalidPassword):
		_ = c.Send(&protocol.ConnectResponse{InvalidPassword: true})
		return err
	case err != nil:
		return fmt.Errorf("%w: %w", protocol.ErrProtocol, err)
	}
	c.authenticated.Store(true)
	return c.Send(&protocol.ConnectResponse{})
}

func (c *Conn) onButton(m *protocol.ButtonCommandRequest) {
	cmd := command.Command{Source: command.SourceButton, EntityKey: m.Key}
	e, ok := c.srv.registry.Get(m.Key)
	switch {
	case ok && e.Kind == entity.KindButton && e.Attrs.Command != "":
		cmd.Key = command.Key(e.Attrs.Command)
	case ok:
		cmd.Key = command.Key("button." + e.ObjectID)
	default:
		cmd.Key = command.Key("entity." + strconv.FormatUint(uint64(m.Key), 10))
	}
	c.srv.dispatch(c.ctx, cmd)
}

func (c *Conn) onService(m *protocol.ExecuteServiceRequest) {
	cmd := command.Command{Source: command.SourceService, EntityKey: m.Key, Args: map[string]string{}}
	e, ok := c.srv.registry.Get(m.Key)
	if !ok || e.Kind != entity.KindService {
		cmd.Key = command.Key("entity." + strconv.FormatUint(uint64(m.Key), 10))
		c.srv.dispatch(c.ctx, cmd)
		return
	}
	cmd.Key = command.ServiceKey(e.ObjectID)
	if e.Attrs.Command != "" {
		cmd.Key = command.Key(e.Attrs.Command)
	}
	for i, arg := range e.Attrs.ServiceArgs {
		if i >= len(m.Args) {
			break
		}
		cmd.Args[arg.Name] = serviceArgText(arg.Type, m.Args[i])
	}
	c.srv.dispatch(c.ctx, cmd)
}

func serviceArgText(typ uint32, a protocol.ExecuteServiceArgument) string {
	switch typ {
	case schema.ServiceArgBool:
		return strconv.FormatBool(a.Bool)
	case schema.ServiceArgInt:
		return strconv.FormatInt(int64(a.Int), 10)
	case schema.ServiceArgFloat:
		return strconv.FormatFloat(float64(a.Float), 'f', -1, 32)
	default:
		return a.String
	}
}

// onMediaPlayer splits one media player request into dispatcher commands:
// media URL first, then volume, then the transport command.
func (c *Conn) onMediaPlayer(m *protocol.MediaPlayerCommandRequest) {
	base := command.Command{Source: command.SourceMedia, EntityKey: m.Key}
	if m.HasMediaURL {
		cmd := base
		cmd.Key = command.KeyMediaPlayURL
		cmd.Args = map[string]string{
			"url":          m.MediaURL,
			"announcement": strconv.FormatBool(m.HasAnnouncement && m.Announcement),
		}
		c.srv.dispatch(c.ctx, cmd)
	}
	if m.HasVolume {
		cmd := base
		cmd.Key = command.KeyMediaVolume
		cmd.Args = map[string]string{"volume": strconv.FormatFloat(float64(m.Volume), 'f', -1, 32)}
		c.srv.dispatch(c.ctx, cmd)
	}
	if m.HasCommand {
		cmd := base
		cmd.Key = mediaCommandKey(m.Command)
		c.srv.dispatch(c.ctx, cmd)
	}
}

func mediaCommandKey(code uint32) command.Key {
	switch code {
	case schema.MediaCommandPlay:
		return command.KeyMediaPlay
	case schema.MediaCommandPause:
		return command.KeyMediaPause
	case schema.MediaCommandStop:
		return command.KeyMediaStop
	case schema.MediaCommandMute:
		return command.KeyMediaMute
	case schema.MediaCommandUnmute:
		return command.KeyMediaUnmute
	default:
		return command.Key("media.command_" + strconv.FormatUint(uint64(code), 10))
	}
}

func (c *Conn) onVoiceSubscribe(m *protocol.SubscribeVoiceAssistantRequest) {
	if c.srv.voice == nil {
		return
	}
	var err error
	if m.Subscribe {
		err = c.srv.voice.Attach(c, m.Flags)
		c.voiceLinked.Store(err == nil)
		// A close during Attach released the conn before it was marked linked.
		if err == nil && c.Phase() >= session.PhaseClosing && c.voiceLinked.Swap(false) {
			_ = c.srv.voice.Detach(c)
			return
		}
	} else {
		c.voiceLinked.Store(false)
		err = c.srv.voice.Detach(c)
	}
	if err != nil {
		log.Warn().
			Err(err).
			Str("component", "satellite").
			Uint64("conn", c.id).
			Bool("subscribe", m.Subscribe).
			Msg("voice subscription not applied")
		return
	}
	log.Info().
		Str("component", "satellite").
		Uint64("conn", c.id).
		Bool("subscribe", m.Subscribe).
		Uint32("flags", m.Flags).
		Msg("voice assistant subscription")
}

func (c *Conn) toVoice(msg protocol.Message) {
	if c.srv.voice == nil {
		return
	}
	if err := c.srv.voice.HandleMessage(msg); err != nil {
		log.Warn().
			Err(err).
			Str("component", "satellite").
			Uint64("conn", c.id).
			Str("msg_type", protocol.Name(msg)).
			Msg("voice message rejected")
	}
}
