package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ayusman/physiopal/internal/app"
	"github.com/ayusman/physiopal/internal/config"
	"github.com/ayusman/physiopal/internal/landmark"
	"github.com/ayusman/physiopal/internal/logging"
	"github.com/ayusman/physiopal/internal/server"
	"github.com/ayusman/physiopal/internal/server/api"
	"github.com/ayusman/physiopal/internal/session"
	"github.com/ayusman/physiopal/internal/store"
)

const usage = `physiopal - rep counting and form feedback from pose landmarks

Usage:
  physiopal serve  [-config file] [-addr :8080]
  physiopal live   [-config file] [-exercise squat] [-level beginner] [-video file]
  physiopal replay [-config file] [-exercise squat] [-level beginner] [recording.jsonl]
  physiopal seed   [-config file]
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "serve":
		serve(args)
	case "live":
		live(args)
	case "replay":
		replay(args)
	case "seed":
		seed(args)
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
}

// setup parses the common flags, loads the configuration and installs the logger.
func setup(fs *flag.FlagSet, args []string) *config.Config {
	configPath := fs.String("config", "", "path to a YAML configuration file")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	var cfg *config.Config
	if *configPath == "" {
		d := config.Default()
		cfg = &d
	} else {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	if _, err := logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	return cfg
}

// openStore opens the configured database, defaulting to ~/.physiopal/physiopal.db.
func openStore(cfg *config.Config) *store.Store {
	dbPath := cfg.Store.Path
	if dbPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("Failed to get home directory: %v", err)
		}
		dbPath = filepath.Join(homeDir, ".physiopal", "physiopal.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	st, err := store.New(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	return st
}

func sessionOptions(cfg *config.Config) session.Options {
	opts, err := cfg.Tuning.SessionOptions()
	if err != nil {
		log.Fatalf("Invalid tuning: %v", err)
	}
	return opts
}

func serve(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", "", "listen address (overrides server.addr)")
	cfg := setup(fs, args)
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	st := openStore(cfg)
	defer st.Close()

	webDir := cfg.Server.StaticDir
	if webDir == "" {
		webDir = findWebDir()
	}
	if webDir != "" {
		slog.Info("serving static files", "dir", webDir)
	}

	srv := server.New(server.Config{
		StaticDir: webDir,
		Store:     st,
		Session:   sessionOptions(cfg),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := srv.ListenAndServe(ctx, cfg.Server.Addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func live(args []string) {
	fs := flag.NewFlagSet("live", flag.ExitOnError)
	exercise := fs.String("exercise", "", "exercise name (overrides tuning.exercise)")
	level := fs.String("level", "", "exercise level (overrides tuning.level)")
	video := fs.String("video", "", "play back a video file instead of the camera")
	cfg := setup(fs, args)
	if *exercise != "" {
		cfg.Tuning.Exercise = *exercise
	}
	if *level != "" {
		cfg.Tuning.Level = *level
	}
	if *video != "" {
		cfg.Camera.Video = *video
	}

	st := openStore(cfg)
	defer st.Close()

	profile, err := api.Resolve(st, cfg.Tuning.Exercise, cfg.Tuning.Level)
	if err != nil {
		log.Fatalf("Unknown exercise %s/%s: %v", cfg.Tuning.Exercise, cfg.Tuning.Level, err)
	}
	idleAfter, err := cfg.Camera.IdleWindow()
	if err != nil {
		log.Fatalf("Invalid camera config: %v", err)
	}

	a := app.New(app.Config{
		Profile:      profile,
		Session:      sessionOptions(cfg),
		Detector:     cfg.Detector,
		CameraID:     cfg.Camera.DeviceID,
		Video:        cfg.Camera.Video,
		ActiveFPS:    cfg.Camera.FPS,
		IdleFPS:      cfg.Camera.IdleFPS,
		IdleAfter:    idleAfter,
		MotionThresh: cfg.Camera.MotionThreshold,
	})
	if err := a.Start(); err != nil {
		log.Fatalf("Failed to start pipeline: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case <-ctx.Done():
	case <-a.Done():
	}

	stats := a.Stop()
	fmt.Printf("%s: %d reps (%d correct, %d incorrect)\n", profile.Key(), stats.Reps, stats.Correct, stats.Incorrect)
}

// replayLine is one line of replay output: an event, or the final stats.
type replayLine struct {
	Event *session.Event `json:"event,omitempty"`
	Stats *session.Stats `json:"stats,omitempty"`
}

func replay(args []string) {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	exercise := fs.String("exercise", "", "exercise name (overrides tuning.exercise)")
	level := fs.String("level", "", "exercise level (overrides tuning.level)")
	cfg := setup(fs, args)
	if *exercise != "" {
		cfg.Tuning.Exercise = *exercise
	}
	if *level != "" {
		cfg.Tuning.Level = *level
	}

	var in io.Reader = os.Stdin
	if fs.NArg() > 0 {
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			log.Fatalf("Failed to open recording: %v", err)
		}
		defer f.Close()
		in = f
	}

	var st *store.Store
	if cfg.Store.Path != "" {
		st = openStore(cfg)
		defer st.Close()
	}
	profile, err := api.Resolve(st, cfg.Tuning.Exercise, cfg.Tuning.Level)
	if err != nil {
		log.Fatalf("Unknown exercise %s/%s: %v", cfg.Tuning.Exercise, cfg.Tuning.Level, err)
	}

	sess, err := session.New(profile, sessionOptions(cfg))
	if err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}
	defer sess.Close()

	stats, err := runReplay(sess, landmark.NewDecoder(in), json.NewEncoder(os.Stdout))
	if err != nil {
		log.Fatalf("Replay failed: %v", err)
	}
	slog.Info("replay: done", "exercise", profile.Key(), "reps", stats.Reps,
		"correct", stats.Correct, "incorrect", stats.Incorrect, "abandoned", stats.Abandoned, "frames", stats.Frames)
}

// runReplay feeds every recorded message through the session and writes
// the events as JSON lines, then the final stats. Out-of-order messages
// are skipped.
func runReplay(sess *session.Session, dec *landmark.Decoder, enc *json.Encoder) (session.Stats, error) {
	asm := landmark.NewAssembler()
	for {
		msg, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return session.Stats{}, err
		}

		frame, err := asm.Assemble(msg.Timestamp(), msg.Pose())
		if err != nil {
			slog.Warn("replay: skipping message", "t", msg.TimestampMs, "error", err)
			continue
		}
		events, err := sess.Process(frame)
		if err != nil {
			return session.Stats{}, err
		}
		for i := range events {
			if err := enc.Encode(replayLine{Event: &events[i]}); err != nil {
				return session.Stats{}, err
			}
		}
	}

	stats := sess.Stats()
	return stats, enc.Encode(replayLine{Stats: &stats})
}

func seed(args []string) {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	cfg := setup(fs, args)

	st := openStore(cfg)
	defer st.Close()

	added, err := st.Profiles().SeedBuiltins()
	if err != nil {
		log.Fatalf("Failed to seed profiles: %v", err)
	}
	fmt.Printf("Seeded %d built-in profiles into %s\n", added, st.Path())
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.physiopal/web.
func findWebDir() string {
	for _, p := range []string{"web", "../web", "../../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if absPath, err := filepath.Abs(p); err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	homeWebDir := filepath.Join(homeDir, ".physiopal", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}
	return ""
}
