package satellite

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/satellite/internal/audio"
	"github.com/danmuck/satellite/internal/auth"
	"github.com/danmuck/satellite/internal/command"
	"github.com/danmuck/satellite/internal/discovery"
	"github.com/danmuck/satellite/internal/entity"
	"github.com/danmuck/satellite/internal/protocol"
	"github.com/danmuck/satellite/internal/protocol/schema"
	"github.com/danmuck/satellite/internal/protocol/session"
	"github.com/danmuck/satellite/internal/voice"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidMode   = errors.New("satellite: invalid mode")
	ErrHubAddress    = errors.New("satellite: hub address required without discovery")
	ErrInvalidSensor = errors.New("satellite: invalid sensor")
)

// Connection modes.
const (
	ModeListen = "listen"
	ModeDial   = "dial"
)

// Audio device backends.
const (
	DeviceNull      = "null"
	DevicePortAudio = "portaudio"
)

// Built-in command keys.
const (
	KeyVoiceWake   command.Key = "voice.wake"
	KeyVoiceStop   command.Key = "voice.stop"
	KeyTimerSet    command.Key = "timer.set"
	KeyTimerCancel command.Key = "timer.cancel"
	KeyNotify      command.Key = "service.notify"
)

type ButtonConfig struct {
	Name     string
	ObjectID string
	Icon     string
	Command  string
}

type SensorConfig struct {
	Kind        entity.Kind
	Name        string
	ObjectID    string
	Unit        string
	DeviceClass string
	Icon        string
	Accuracy    int32
	Measurement bool
	Command     []string
	Interval    time.Duration
}

type DiscoveryConfig struct {
	Enabled    bool
	Service    string
	Domain     string
	HubService string
	Reannounce time.Duration
	TTL        uint32
}

type VoiceConfig struct {
	Enabled         bool
	Device          string
	WakeThreshold   float32
	Silence         time.Duration
	MaxListen       time.Duration
	DuckFactor      float64
	OutboundQueue   int
	WakeWords       []voice.WakeWord
	ActiveWakeWords []string
	WakeupSound     string
	TimerSound      string
	PreferencesPath string
	CaptureDir      string
}

type CommandsConfig struct {
	Allowed []string
	Workers int
	Exec    map[string][]string
}

// ServiceConfig configures the satellite process.
type ServiceConfig struct {
	Name         string
	FriendlyName string
	MAC          string
	Listen       string
	Mode         string
	HubAddress   string
	Password     string
	AdminListen  string
	AdminToken   string
	CORSOrigins  []string
	PollInterval time.Duration
	Session      session.Config
	Discovery    DiscoveryConfig
	Voice        VoiceConfig
	Commands     CommandsConfig
	Buttons      []ButtonConfig
	Sensors      []SensorConfig
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name:         "satellite",
		Listen:       ":6053",
		Mode:         ModeListen,
		PollInterval: 30 * time.Second,
		Session:      session.DefaultConfig(),
		Discovery: DiscoveryConfig{
			Enabled:    true,
			Service:    discovery.ServiceESPHome,
			Domain:     discovery.DomainLocal,
			HubService: discovery.ServiceHub,
			Reannounce: 60 * time.Second,
			TTL:        120,
		},
		Voice: VoiceConfig{
			Enabled:       true,
			Device:        DeviceNull,
			WakeThreshold: 0.5,
			Silence:       time.Second,
			MaxListen:     8 * time.Second,
			DuckFactor:    0.3,
			OutboundQueue: 64,
		},
		Commands: CommandsConfig{
			Workers: 2,
			Exec: map[string][]string{
				"shutdown": {"shutdown", "-h", "now"},
				"restart":  {"shutdown", "-r", "now"},
			},
		},
		Buttons: []ButtonConfig{
			{Name: "Shutdown", Icon: "mdi:power", Command: "shutdown"},
			{Name: "Restart", Icon: "mdi:restart", Command: "restart"},
		},
	}
}

// Validate rejects configurations the service cannot start with.
func (c ServiceConfig) Validate() error {
	switch c.Mode {
	case ModeListen:
	case ModeDial:
		if strings.TrimSpace(c.HubAddress) == "" && !c.Discovery.Enabled {
			return ErrHubAddress
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, c.Mode)
	}
	for _, sc := range c.Sensors {
		switch sc.Kind {
		case entity.KindSensor, entity.KindBinarySensor, entity.KindTextSensor:
		default:
			return fmt.Errorf("%w: %s has kind %q", ErrInvalidSensor, sc.Name, sc.Kind)
		}
		if len(sc.Command) == 0 {
			return fmt.Errorf("%w: %s has no command", ErrInvalidSensor, sc.Name)
		}
	}
	return nil
}

type polledSensor struct {
	key      uint32
	src      SensorSource
	interval time.Duration
}

type builtinKeys struct {
	result     uint32
	voiceState uint32
	media      uint32
}

// Service wires the registry, dispatcher, voice pipeline, hub server,
// discovery and admin surface into one process.
type Service struct {
	cfg        ServiceConfig
	registry   *entity.Registry
	dispatcher *command.Dispatcher
	pipeline   *voice.Pipeline
	server     *Server
	admin      *Admin
	media      *MediaPlayer
	fetcher    *audio.Fetcher
	volume     *audio.SoftVolume
	input      audio.Input
	output     audio.Output
	keys       builtinKeys
	sensors    []polledSensor
	started    time.Time
}

// NewService builds every component. Entity and handler conflicts are
// startup errors.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Session = cfg.Session.WithDefaults()
	if cfg.Voice.OutboundQueue > 0 {
		cfg.Session.AudioOutboxSize = cfg.Voice.OutboundQueue
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultServiceConfig().PollInterval
	}
	s := &Service{
		cfg:      cfg,
		registry: entity.NewRegistry(),
		started:  time.Now(),
	}
	s.dispatcher = command.NewDispatcher(command.Config{
		Workers: cfg.Commands.Workers,
		Allowed: cfg.Commands.Allowed,
	})

	if cfg.Voice.Enabled {
		if err := s.buildVoice(); err != nil {
			s.closeDevices()
			return nil, err
		}
	}
	if err := s.registerEntities(); err != nil {
		s.closeDevices()
		return nil, err
	}
	if err := s.registerHandlers(); err != nil {
		s.closeDevices()
		return nil, err
	}

	var endpoint VoiceEndpoint
	if s.pipeline != nil {
		endpoint = s.pipeline
	}
	s.server = NewServer(Config{
		Device: Device{
			Name:         cfg.Name,
			FriendlyName: cfg.FriendlyName,
			MAC:          cfg.MAC,
		},
		Password:  cfg.Password,
		Session:   cfg.Session,
		ResultKey: s.keys.result,
	}, s.registry, endpoint)
	s.server.OnCommand(s.dispatcher.Dispatch)

	if cfg.AdminListen != "" {
		deps := AdminDeps{
			Registry: s.registry,
			Server:   s.server,
			Pipeline: s.pipeline,
			Dispatch: s.dispatcher.Dispatch,
		}
		if cfg.AdminToken != "" {
			deps.Auth = auth.StaticToken{Token: cfg.AdminToken}
		}
		s.admin = NewAdmin(cfg.Name, cfg.CORSOrigins, deps)
	}
	return s, nil
}

func (s *Service) Registry() *entity.Registry      { return s.registry }
func (s *Service) Server() *Server                 { return s.server }
func (s *Service) Pipeline() *voice.Pipeline       { return s.pipeline }
func (s *Service) Dispatcher() *command.Dispatcher { return s.dispatcher }

func (s *Service) buildVoice() error {
	vc := s.cfg.Voice
	s.volume = audio.NewSoftVolume(1)
	s.fetcher = audio.NewFetcher(audio.DefaultFetchConfig(), nil)

	deps := voice.Deps{
		VAD:    audio.NewEnergyVAD(0),
		Volume: s.volume,
		Media:  s.fetcher,
	}
	switch vc.Device {
	case DevicePortAudio:
		in, err := audio.OpenInput()
		if err != nil {
			return fmt.Errorf("%w: %w", voice.ErrAudioDevice, err)
		}
		s.input = in
		out, err := audio.OpenOutput(s.volume)
		if err != nil {
			return fmt.Errorf("%w: %w", voice.ErrAudioDevice, err)
		}
		s.output = out
		deps.Capture = in
		deps.Sink = out
	case DeviceNull, "":
		s.output = audio.NewNullOutput()
		deps.Sink = s.output
	default:
		return fmt.Errorf("%w: unknown device %q", voice.ErrAudioDevice, vc.Device)
	}

	cfg := voice.Config{
		WakeThreshold:   vc.WakeThreshold,
		Silence:         vc.Silence,
		MaxListen:       vc.MaxListen,
		DuckFactor:      vc.DuckFactor,
		WakeWords:       vc.WakeWords,
		ActiveWakeWords: vc.ActiveWakeWords,
		PreferencesPath: vc.PreferencesPath,
		CaptureDir:      vc.CaptureDir,
	}
	if vc.WakeupSound != "" {
		clip, err := audio.LoadWAV(vc.WakeupSound)
		if err != nil {
			return fmt.Errorf("wakeup sound: %w", err)
		}
		cfg.WakeSound = clip
	}
	if vc.TimerSound != "" {
		clip, err := audio.LoadWAV(vc.TimerSound)
		if err != nil {
			return fmt.Errorf("timer sound: %w", err)
		}
		cfg.TimerSound = clip
	}
	p, err := voice.New(cfg, deps)
	if err != nil {
		return err
	}
	s.pipeline = p
	return nil
}

func (s *Service) registerEntities() error {
	reg := func(e entity.Entity) (uint32, error) {
		got, err := s.registry.Register(e)
		if err != nil {
			return 0, err
		}
		return got.Key, nil
	}

	for _, b := range s.cfg.Buttons {
		if _, err := reg(entity.Entity{
			Kind:     entity.KindButton,
			Name:     b.Name,
			ObjectID: b.ObjectID,
			Attrs:    entity.Attrs{Icon: b.Icon, Command: b.Command},
		}); err != nil {
			return err
		}
	}

	uptime, err := reg(entity.Entity{
		Kind:     entity.KindSensor,
		Name:     "Uptime",
		ObjectID: "uptime",
		Attrs: entity.Attrs{
			Icon:           "mdi:timer-outline",
			Unit:           "s",
			DeviceClass:    "duration",
			StateClass:     schema.StateClassMeasurement,
			EntityCategory: schema.EntityCategoryDiagnostic,
		},
	})
	if err != nil {
		return err
	}
	s.sensors = append(s.sensors, polledSensor{key: uptime, src: Uptime(s.started), interval: s.cfg.PollInterval})

	for _, sc := range s.cfg.Sensors {
		attrs := entity.Attrs{
			Icon:             sc.Icon,
			Unit:             sc.Unit,
			DeviceClass:      sc.DeviceClass,
			AccuracyDecimals: sc.Accuracy,
		}
		if sc.Measurement {
			attrs.StateClass = schema.StateClassMeasurement
		}
		key, err := reg(entity.Entity{Kind: sc.Kind, Name: sc.Name, ObjectID: sc.ObjectID, Attrs: attrs})
		if err != nil {
			return err
		}
		interval := sc.Interval
		if interval <= 0 {
			interval = s.cfg.PollInterval
		}
		s.sensors = append(s.sensors, polledSensor{
			key:      key,
			src:      ExecSensor{Argv: sc.Command, Kind: sc.Kind},
			interval: interval,
		})
	}

	if s.keys.result, err = reg(entity.Entity{
		Kind:     entity.KindTextSensor,
		Name:     "Last Command",
		ObjectID: "last_command",
		Attrs:    entity.Attrs{Icon: "mdi:console", EntityCategory: schema.EntityCategoryDiagnostic},
	}); err != nil {
		return err
	}

	if _, err := reg(entity.Entity{
		Kind:     entity.KindService,
		Name:     "notify",
		ObjectID: "notify",
		Attrs: entity.Attrs{
			Command: string(KeyNotify),
			ServiceArgs: []entity.ServiceArg{
				{Name: "message", Type: schema.ServiceArgString},
				{Name: "title", Type: schema.ServiceArgString},
			},
		},
	}); err != nil {
		return err
	}

	if s.pipeline != nil {
		if s.keys.voiceState, err = reg(entity.Entity{
			Kind:     entity.KindTextSensor,
			Name:     "Voice State",
			ObjectID: "voice_state",
			Attrs:    entity.Attrs{Icon: "mdi:microphone-message", EntityCategory: schema.EntityCategoryDiagnostic},
		}); err != nil {
			return err
		}
		if s.keys.media, err = reg(entity.Entity{
			Kind:     entity.KindMediaPlayer,
			Name:     "Speaker",
			ObjectID: "speaker",
			Attrs: entity.Attrs{
				Icon: "mdi:speaker",
				Formats: []protocol.MediaPlayerSupportedFormat{
					{Format: "wav", SampleRate: audio.SampleRate, NumChannels: audio.Channels},
					{Format: "mp3", SampleRate: 48000, NumChannels: 2},
					{Format: "ogg", SampleRate: 48000, NumChannels: 2},
				},
			},
		}); err != nil {
			return err
		}
		if _, err := reg(entity.Entity{
			Kind:     entity.KindVoiceAssistant,
			Name:     "Assistant",
			ObjectID: "assistant",
		}); err != nil {
			return err
		}
		s.media = NewMediaPlayer(s.registry, s.keys.media, s.pipeline, s.volume)
	}
	s.registry.Seal()
	return nil
}

func (s *Service) registerHandlers() error {
	exec := command.ExecExecutor{Argv: make(map[command.Key][]string, len(s.cfg.Commands.Exec))}
	for key, argv := range s.cfg.Commands.Exec {
		if len(argv) == 0 {
			continue
		}
		exec.Argv[command.Key(key)] = argv
	}
	for key := range exec.Argv {
		if err := s.dispatcher.Register(key, exec.Handler()); err != nil {
			return err
		}
	}

	if _, custom := exec.Argv[KeyNotify]; !custom {
		if err := s.dispatcher.Register(KeyNotify, command.Handler{Run: s.notify}); err != nil {
			return err
		}
	}
	if s.pipeline == nil {
		return nil
	}
	if err := s.media.Register(s.dispatcher); err != nil {
		return err
	}
	builtins := map[command.Key]command.Handler{
		KeyVoiceWake: {Run: func(context.Context, command.Command) (command.Ack, error) {
			return command.Ack{Message: "waking"}, s.pipeline.Wake()
		}},
		KeyVoiceStop: {Run: func(context.Context, command.Command) (command.Ack, error) {
			return command.Ack{Message: "stopped"}, s.pipeline.Stop()
		}},
		KeyTimerSet:    {Validate: validateTimer, Run: s.setTimer},
		KeyTimerCancel: {Run: s.cancelTimer},
	}
	for key, h := range builtins {
		if _, custom := exec.Argv[key]; custom {
			continue
		}
		if err := s.dispatcher.Register(key, h); err != nil {
			return err
		}
	}
	return nil
}

// notify logs the message and, with voice enabled, plays a chime.
func (s *Service) notify(_ context.Context, cmd command.Command) (command.Ack, error) {
	log.Info().
		Str("component", "satellite").
		Str("title", cmd.Arg("title")).
		Str("body", cmd.Arg("message")).
		Msg("notification")
	if s.pipeline != nil {
		if err := s.pipeline.Announce(voice.Announcement{Chime: true, Duck: true, Text: cmd.Arg("message")}); err != nil {
			return command.Ack{}, err
		}
	}
	return command.Ack{Message: "notified"}, nil
}

func validateTimer(cmd command.Command) error {
	secs, err := strconv.Atoi(cmd.Arg("seconds"))
	if err != nil || secs <= 0 {
		return fmt.Errorf("%w: seconds %q", command.ErrHandlerRejected, cmd.Arg("seconds"))
	}
	return nil
}

func (s *Service) setTimer(_ context.Context, cmd command.Command) (command.Ack, error) {
	secs, _ := strconv.Atoi(cmd.Arg("seconds"))
	d := time.Duration(secs) * time.Second
	id := cmd.Arg("id")
	if id == "" {
		id = uuid.NewString()
	}
	t := s.pipeline.Timers().Start(id, cmd.Arg("name"), d, d, true)
	return command.Ack{Message: "timer " + t.ID}, nil
}

func (s *Service) cancelTimer(_ context.Context, cmd command.Command) (command.Ack, error) {
	id := cmd.Arg("id")
	if !s.pipeline.Timers().Cancel(id) {
		return command.Ack{}, fmt.Errorf("%w: %q", voice.ErrUnknownTimer, id)
	}
	return command.Ack{Message: "cancelled " + id}, nil
}

// Run blocks until SIGINT or SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx)
}

// Serve runs every component until ctx ends or one of them fails.
func (s *Service) Serve(ctx context.Context) error {
	defer s.closeDevices()

	var (
		ln      net.Listener
		resolve ResolveFunc
		err     error
	)
	if s.cfg.Mode == ModeListen {
		ln, err = net.Listen("tcp", s.cfg.Listen)
		if err != nil {
			return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
		}
	} else if resolve, err = s.resolver(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	s.dispatcher.Start(ctx)
	defer s.dispatcher.Close()

	if s.pipeline != nil {
		transitions, stopWatch := s.pipeline.Watch(32)
		mediaFeed, stopMedia := s.pipeline.Watch(32)
		g.Go(func() error {
			defer stopWatch()
			defer stopMedia()
			return s.pipeline.Run(ctx)
		})
		g.Go(func() error {
			s.trackVoiceState(ctx, transitions)
			return nil
		})
		g.Go(func() error {
			s.media.Track(ctx, mediaFeed)
			return nil
		})
	}

	for _, ps := range s.sensors {
		ps := ps
		g.Go(func() error {
			PollSensor(ctx, s.registry, ps.key, ps.src, ps.interval)
			return nil
		})
	}

	if ln != nil {
		g.Go(func() error {
			return s.server.Serve(ctx, ln)
		})
		if s.cfg.Discovery.Enabled {
			adv := discovery.NewAdvertiser(s.advertiseConfig(ln.Addr()), nil)
			g.Go(func() error {
				return adv.Run(ctx)
			})
		}
	} else {
		g.Go(func() error {
			return s.server.DialLoop(ctx, resolve)
		})
	}

	if s.admin != nil {
		g.Go(func() error {
			return s.admin.Run(ctx, s.cfg.AdminListen)
		})
	}

	log.Info().
		Str("component", "satellite").
		Str("name", s.cfg.Name).
		Str("mode", s.cfg.Mode).
		Bool("voice", s.pipeline != nil).
		Int("entities", len(s.registry.List())).
		Int("commands", len(s.dispatcher.Keys())).
		Msg("satellite started")

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Info().Err(err).Str("component", "satellite").Msg("satellite stopped")
	return err
}

func (s *Service) trackVoiceState(ctx context.Context, transitions <-chan voice.Transition) {
	update := func(st voice.State) {
		if _, err := s.registry.Update(s.keys.voiceState, entity.Text(st.String())); err != nil {
			log.Warn().Err(err).Str("component", "satellite").Msg("voice state not published")
		}
	}
	update(s.pipeline.State())
	for {
		select {
		case <-ctx.Done():
			return
		case tr, ok := <-transitions:
			if !ok {
				return
			}
			update(tr.To)
		}
	}
}

func (s *Service) advertiseConfig(addr net.Addr) discovery.Config {
	port := 0
	if tcp, ok := addr.(*net.TCPAddr); ok {
		port = tcp.Port
	}
	return discovery.Config{
		Instance:     s.cfg.Name,
		FriendlyName: s.cfg.FriendlyName,
		MAC:          s.cfg.MAC,
		APIVersion:   fmt.Sprintf("%d.%d", schema.APIVersionMajor, schema.APIVersionMinor),
		Port:         port,
		Service:      s.cfg.Discovery.Service,
		Domain:       s.cfg.Discovery.Domain,
		TTL:          s.cfg.Discovery.TTL,
		Reannounce:   s.cfg.Discovery.Reannounce,
	}
}

func (s *Service) resolver() (ResolveFunc, error) {
	if addr := strings.TrimSpace(s.cfg.HubAddress); addr != "" {
		return func(context.Context) (string, error) { return addr, nil }, nil
	}
	if !s.cfg.Discovery.Enabled {
		return nil, ErrHubAddress
	}
	r := discovery.NewResolver(discovery.ResolverConfig{
		Service: s.cfg.Discovery.HubService,
		Domain:  s.cfg.Discovery.Domain,
	}, nil)
	return r.Resolve, nil
}

func (s *Service) closeDevices() {
	if s.input != nil {
		_ = s.input.Close()
		s.input = nil
	}
	if s.output != nil {
		_ = s.output.Close()
		s.output = nil
	}
	if s.fetcher != nil {
		_ = s.fetcher.Close()
		s.fetcher = nil
	}
}
