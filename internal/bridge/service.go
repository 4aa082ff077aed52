package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/qtmctl/internal/observability"
	"github.com/danmuck/qtmctl/internal/protocol"
	"github.com/danmuck/qtmctl/internal/protocol/component"
	"github.com/danmuck/qtmctl/internal/qtm"
)

const bodyPollInterval = time.Second

var (
	ErrBannerMissing = errors.New("bridge: no greeting from QTM")

	errBodySetChanged = errors.New("bridge: rigid body set changed")
)

// ServiceConfig configures the bridge standalone runtime.
type ServiceConfig struct {
	Name            string
	QTMAddr         string
	ProtocolVersion string
	StreamArgs      []string
	Units           string
	HTTPAddr        string
	CORSOrigins     []string
	CommandTimeout  time.Duration
	DialTimeout     time.Duration
	RetryInterval   time.Duration
	Logger          zerolog.Logger
}

// Bridge service defaults matching a QTM install on the same machine.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name:            "qtm-bridge",
		QTMAddr:         "localhost:22223",
		ProtocolVersion: "1.23",
		StreamArgs:      []string{"AllFrames", "6D"},
		Units:           "m",
		HTTPAddr:        ":9200",
		CommandTimeout:  time.Second,
		DialTimeout:     5 * time.Second,
		RetryInterval:   3 * time.Second,
	}
}

// Service supervises one QTM connection and the HTTP server around the
// shared tracker.
type Service struct {
	cfg     ServiceConfig
	tracker *Tracker
	server  *Server
	logger  zerolog.Logger
	live    atomic.Bool
}

func NewService(cfg ServiceConfig) *Service {
	def := DefaultServiceConfig()
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = def.Name
	}
	if strings.TrimSpace(cfg.QTMAddr) == "" {
		cfg.QTMAddr = def.QTMAddr
	}
	if strings.TrimSpace(cfg.ProtocolVersion) == "" {
		cfg.ProtocolVersion = def.ProtocolVersion
	}
	if len(cfg.StreamArgs) == 0 {
		cfg.StreamArgs = def.StreamArgs
	}
	if strings.TrimSpace(cfg.Units) == "" {
		cfg.Units = def.Units
	}
	if strings.TrimSpace(cfg.HTTPAddr) == "" {
		cfg.HTTPAddr = def.HTTPAddr
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = def.CommandTimeout
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = def.RetryInterval
	}

	s := &Service{
		cfg:     cfg,
		tracker: NewTracker(),
		logger:  cfg.Logger,
	}
	s.server = NewServer(cfg.Name, cfg.HTTPAddr, cfg.CORSOrigins, s.tracker, s.live.Load)
	return s
}

// Bridge runtime entrypoint that blocks until process signal shutdown.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.run(ctx)
}

func (s *Service) run(ctx context.Context) error {
	httpErr := make(chan error, 1)
	go func() { httpErr <- s.server.Run(ctx) }()

	superErr := make(chan error, 1)
	go func() { superErr <- s.supervise(ctx) }()

	for {
		select {
		case <-ctx.Done():
			if err := <-httpErr; err != nil {
				s.logger.Warn().Err(err).Msg("http shutdown")
			}
			s.logger.Info().Msg("bridge shutdown complete")
			return nil
		case err := <-httpErr:
			return fmt.Errorf("bridge: http server: %w", err)
		case err := <-superErr:
			if err != nil {
				return err
			}
			superErr = nil
		}
	}
}

// supervise re-runs the QTM session until ctx ends. Both stream failures
// and natural stream ends lead back to a fresh connection after the retry
// interval, mirroring how QTM file replays loop.
func (s *Service) supervise(ctx context.Context) error {
	attempt := 0
	for {
		err := s.connectAndStream(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			attempt++
			s.logger.Warn().
				Err(err).
				Int("attempt", attempt).
				Str("qtm_addr", s.cfg.QTMAddr).
				Msg("qtm connection lost, retrying")
		} else {
			attempt = 0
			s.logger.Info().Str("qtm_addr", s.cfg.QTMAddr).Msg("stream ended, reconnecting")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.cfg.RetryInterval):
		}
	}
}

// connectAndStream runs one full connection: greet, negotiate, discover
// bodies, then pump frames until the stream ends.
func (s *Service) connectAndStream(ctx context.Context) error {
	dialer := net.Dialer{Timeout: s.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.cfg.QTMAddr)
	if err != nil {
		return fmt.Errorf("bridge: dial qtm: %w", err)
	}
	ch := qtm.NewChannel(conn)
	defer ch.Close()

	sess := qtm.NewSession(ch, qtm.Config{
		CommandTimeout: s.cfg.CommandTimeout,
		Logger:         s.logger,
		OnEvent: func(code protocol.Event) {
			observability.RecordStreamEvent(s.cfg.Name, code.String())
		},
	})

	if !sess.WaitForBanner(ctx) {
		return ErrBannerMissing
	}
	s.logger.Info().Str("qtm_addr", s.cfg.QTMAddr).Msg("connected to qtm")

	start := time.Now()
	err = sess.SwitchToVersion(ctx, s.cfg.ProtocolVersion)
	observability.RecordCommand(s.cfg.Name, "Version", time.Since(start), err == nil)
	if err != nil {
		return err
	}

	names, err := s.discoverBodies(ctx, sess)
	if err != nil {
		return err
	}
	s.tracker.SetBodies(names)
	s.logger.Info().Int("bodies", len(names)).Strs("names", names).Msg("rigid bodies discovered, streaming")

	return s.pump(ctx, sess, names)
}

// discoverBodies polls the 6DOF parameter set until QTM has at least one
// rigid body defined.
func (s *Service) discoverBodies(ctx context.Context, sess *qtm.Session) ([]string, error) {
	for {
		start := time.Now()
		reply, err := sess.SendCommand(ctx, "GetParameters", "6d")
		observability.RecordCommand(s.cfg.Name, "GetParameters", time.Since(start), err == nil)
		if err != nil {
			return nil, err
		}
		names, err := parseBodyNames(reply.Body)
		if err != nil {
			return nil, err
		}
		if len(names) > 0 {
			return names, nil
		}
		s.logger.Debug().Msg("no rigid bodies defined yet")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(bodyPollInterval):
		}
	}
}

func (s *Service) pump(ctx context.Context, sess *qtm.Session, names []string) error {
	start := time.Now()
	stream, err := sess.StreamFrames(ctx, s.cfg.StreamArgs...)
	observability.RecordCommand(s.cfg.Name, "StreamFrames", time.Since(start), err == nil)
	if err != nil {
		return err
	}
	defer stream.Close()

	s.live.Store(true)
	defer s.live.Store(false)

	scale := unitScale(s.cfg.Units)
	for stream.Next(ctx) {
		body := stream.Body()
		observability.RecordDataPacket(s.cfg.Name, len(body))
		if err := s.publishFrame(body, names, scale); err != nil {
			if errors.Is(err, errBodySetChanged) {
				return err
			}
			s.logger.Warn().Err(err).Msg("dropping undecodable data packet")
		}
	}
	if err := stream.Err(); err != nil {
		return err
	}
	s.logger.Info().Msg("qtm ended the stream")
	return nil
}

// publishFrame decodes one data packet into the tracker. A change in the
// rigid body count means the QTM setup changed under us; the stream must
// be rebuilt from a fresh parameter set.
func (s *Service) publishFrame(body []byte, names []string, scale float64) error {
	hdr, comps, err := component.Split(body)
	if err != nil {
		return err
	}

	var snap FrameSnapshot
	if c, ok := component.Find(comps, component.Type6D); ok {
		comp6d, err := component.Parse6D(c.Data)
		if err != nil {
			return err
		}
		if len(comp6d.Bodies) != len(names) {
			return fmt.Errorf("%w: expected %d, frame carries %d",
				errBodySetChanged, len(names), len(comp6d.Bodies))
		}
		snap = snapshotFrom6D(names, hdr, comp6d, scale)
	} else if c, ok := component.Find(comps, component.Type6DEuler); ok {
		euler, err := component.Parse6DEuler(c.Data)
		if err != nil {
			return err
		}
		if len(euler.Bodies) != len(names) {
			return fmt.Errorf("%w: expected %d, frame carries %d",
				errBodySetChanged, len(names), len(euler.Bodies))
		}
		snap = snapshotFrom6DEuler(names, hdr, euler, scale)
	} else {
		return fmt.Errorf("bridge: frame %d carries no 6dof component", hdr.FrameNumber)
	}

	s.tracker.Update(snap)
	observability.RecordFrame(s.cfg.Name, snap.FrameNumber, snap.TrackedCount())
	return nil
}

// unitScale maps configured output units to a factor over QTM's native
// millimeters.
func unitScale(units string) float64 {
	if units == "mm" {
		return 1
	}
	return 1.0 / 1000.0
}
