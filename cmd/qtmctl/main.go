package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/qtmctl/internal/observability"
	"github.com/danmuck/qtmctl/internal/protocol"
	"github.com/danmuck/qtmctl/internal/protocol/component"
	"github.com/danmuck/qtmctl/internal/qtm"
)

const dialTimeout = 5 * time.Second

func main() {
	addr := flag.String("addr", "", "QTM address (host:port), overrides the defaults file")
	defaults := flag.String("defaults", "", "path to a defaults TOML file")
	version := flag.String("protocol-version", "", "protocol version to negotiate, overrides the defaults file")
	timeout := flag.Duration("timeout", 0, "command reply timeout, overrides the defaults file")
	flag.Usage = usage
	flag.Parse()

	cfg, err := loadCtlConfig(*defaults)
	if err != nil {
		fmt.Fprintf(os.Stderr, "qtmctl: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *version != "" {
		cfg.ProtocolVersion = *version
	}
	if *timeout > 0 {
		cfg.CommandTimeout = *timeout
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	logger := observability.InitLogger("qtmctl")

	switch args[0] {
	case "send":
		err = runSend(cfg, logger, args[1:])
	case "params":
		err = runParams(cfg, logger, args[1:])
	case "stream":
		err = runStream(cfg, logger, args[1:])
	case "events":
		err = runEvents(cfg, logger, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "qtmctl: unknown command %q\n\n", args[0])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "qtmctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `qtmctl talks to a Qualisys Track Manager over the real-time protocol.

Usage:
  qtmctl [flags] send <command> [args...]
  qtmctl [flags] params [groups...]
  qtmctl [flags] stream [-count n] [stream args...]
  qtmctl [flags] events [-count n]

Flags:
`)
	flag.PrintDefaults()
}

// dialSession establishes a greeted, version-negotiated session. The
// caller owns the returned channel and must close it.
func dialSession(ctx context.Context, cfg ctlConfig, logger zerolog.Logger) (*qtm.Channel, *qtm.Session, error) {
	conn, err := net.DialTimeout("tcp", cfg.Addr, dialTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", cfg.Addr, err)
	}
	ch := qtm.NewChannel(conn)
	sess := qtm.NewSession(ch, qtm.Config{
		CommandTimeout: cfg.CommandTimeout,
		Logger:         logger,
	})
	if !sess.WaitForBanner(ctx) {
		ch.Close()
		return nil, nil, fmt.Errorf("no greeting from %s", cfg.Addr)
	}
	if cfg.ProtocolVersion != "" {
		if err := sess.SwitchToVersion(ctx, cfg.ProtocolVersion); err != nil {
			ch.Close()
			return nil, nil, err
		}
	}
	return ch, sess, nil
}

func runSend(cfg ctlConfig, logger zerolog.Logger, args []string) error {
	if len(args) == 0 {
		return errors.New("send requires a command name")
	}
	ctx := context.Background()
	ch, sess, err := dialSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer ch.Close()

	reply, err := sess.SendCommand(ctx, args[0], args[1:]...)
	if err != nil {
		return err
	}
	fmt.Println(string(reply.Body))
	return nil
}

func runParams(cfg ctlConfig, logger zerolog.Logger, args []string) error {
	groups := args
	if len(groups) == 0 {
		groups = []string{"All"}
	}
	ctx := context.Background()
	ch, sess, err := dialSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer ch.Close()

	reply, err := sess.SendCommand(ctx, "GetParameters", groups...)
	if err != nil {
		return err
	}
	fmt.Println(string(reply.Body))
	return nil
}

func runStream(cfg ctlConfig, logger zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("stream", flag.ContinueOnError)
	count := fs.Int("count", 0, "stop after this many frames (0 streams until interrupted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	streamArgs := fs.Args()
	if len(streamArgs) == 0 {
		streamArgs = []string{"AllFrames", "6D"}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ch, sess, err := dialSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer ch.Close()

	st, err := sess.StreamFrames(ctx, streamArgs...)
	if err != nil {
		return err
	}
	defer st.Close()

	n := 0
	for st.Next(ctx) {
		printFrame(st.Body())
		n++
		if *count > 0 && n >= *count {
			break
		}
	}
	if err := st.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// printFrame renders one data packet as a line per rigid body, positions
// in millimeters as QTM reports them.
func printFrame(body []byte) {
	hdr, comps, err := component.Split(body)
	if err != nil {
		fmt.Printf("undecodable frame: %v\n", err)
		return
	}
	fmt.Printf("frame=%d timestamp_us=%d components=%d\n", hdr.FrameNumber, hdr.Timestamp, hdr.Count)
	if c, ok := component.Find(comps, component.Type6D); ok {
		sixd, err := component.Parse6D(c.Data)
		if err != nil {
			fmt.Printf("  6d: %v\n", err)
			return
		}
		for i, pose := range sixd.Bodies {
			if math.IsNaN(float64(pose.X)) {
				fmt.Printf("  body=%d lost\n", i)
				continue
			}
			fmt.Printf("  body=%d x=%.1f y=%.1f z=%.1f\n", i, pose.X, pose.Y, pose.Z)
		}
	}
	if c, ok := component.Find(comps, component.Type6DEuler); ok {
		euler, err := component.Parse6DEuler(c.Data)
		if err != nil {
			fmt.Printf("  6deuler: %v\n", err)
			return
		}
		for i, pose := range euler.Bodies {
			if math.IsNaN(float64(pose.X)) {
				fmt.Printf("  body=%d lost\n", i)
				continue
			}
			fmt.Printf("  body=%d x=%.1f y=%.1f z=%.1f roll=%.1f pitch=%.1f yaw=%.1f\n",
				i, pose.X, pose.Y, pose.Z, pose.Roll, pose.Pitch, pose.Yaw)
		}
	}
}

func runEvents(cfg ctlConfig, logger zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	count := fs.Int("count", 0, "stop after this many events (0 watches until interrupted)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ch, _, err := dialSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer ch.Close()

	// GetState makes QTM report its current state as an event, so the
	// watch shows something even on an idle system. The reply arrives
	// through the same raw receive loop as every later event.
	if err := ch.Send(protocol.NewCommand("GetState")); err != nil {
		return err
	}

	n := 0
	for {
		msg, err := ch.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		code, ok := msg.EventCode()
		if !ok {
			continue
		}
		fmt.Printf("%s event=%s code=%d\n", time.Now().Format(time.RFC3339), code, byte(code))
		n++
		if *count > 0 && n >= *count {
			return nil
		}
	}
}
