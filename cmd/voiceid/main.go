package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/loqalabs/loqa-voiceid/internal/bus"
	"github.com/loqalabs/loqa-voiceid/internal/config"
	"github.com/loqalabs/loqa-voiceid/internal/engine"
	"github.com/loqalabs/loqa-voiceid/internal/runtime"
	"github.com/loqalabs/loqa-voiceid/internal/voiceid"
)

var version = "0.1.0-dev"

const usage = "usage: voiceid [-config path] [-remote] <enroll|identify|profiles|version> [flags]"

func main() {
	var (
		configPath string
		remote     bool
	)
	flag.StringVar(&configPath, "config", "", "Path to configuration file (defaults plus VOICEID_* env when empty)")
	flag.BoolVar(&remote, "remote", false, "Send requests to a running voiceidd over bus.servers instead of running locally")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch args[0] {
	case "enroll":
		var sample, profileName string
		enrollCmd := flag.NewFlagSet("enroll", flag.ExitOnError)
		enrollCmd.StringVar(&sample, "sample", "", "WAV sample to enroll from")
		enrollCmd.StringVar(&profileName, "profile", "", "Name to store the profile under")
		enrollCmd.Parse(args[1:])
		if remote {
			err = withBus(ctx, configPath, func(c *bus.Client) error {
				return remoteEnroll(ctx, os.Stdout, c, sample, profileName)
			})
			break
		}
		err = withManager(ctx, configPath, func(m *voiceid.Manager) error {
			return runEnroll(ctx, os.Stdout, m, sample, profileName)
		})
	case "identify":
		var sample string
		identifyCmd := flag.NewFlagSet("identify", flag.ExitOnError)
		identifyCmd.StringVar(&sample, "sample", "", "WAV sample to identify")
		identifyCmd.Parse(args[1:])
		if remote {
			err = withBus(ctx, configPath, func(c *bus.Client) error {
				return remoteIdentify(ctx, os.Stdout, c, sample)
			})
			break
		}
		err = withManager(ctx, configPath, func(m *voiceid.Manager) error {
			return runIdentify(ctx, os.Stdout, m, sample)
		})
	case "profiles":
		if remote {
			err = withBus(ctx, configPath, func(c *bus.Client) error {
				return remoteProfiles(ctx, os.Stdout, c)
			})
			break
		}
		err = withManager(ctx, configPath, func(m *voiceid.Manager) error {
			return runProfiles(ctx, os.Stdout, m)
		})
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n%s\n", args[0], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func withManager(ctx context.Context, configPath string, fn func(*voiceid.Manager) error) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	components, err := runtime.Build(ctx, cfg, runtime.BuildOptions{}, logger)
	if err != nil {
		return err
	}
	defer components.Close()
	return fn(components.Manager)
}

func loadConfig(configPath string) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: runtime.ParseLevel(cfg.Telemetry.LogLevel)}))
	return cfg, logger, nil
}

func withBus(ctx context.Context, configPath string, fn func(*bus.Client) error) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	client, err := bus.Connect(ctx, cfg.Bus, "voiceid-cli", logger)
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}

func runEnroll(ctx context.Context, w io.Writer, m *voiceid.Manager, sample, profileName string) error {
	if sample == "" {
		return errors.New("enroll: -sample is required")
	}
	out, err := m.CreateProfile(ctx, sample, profileName, func(p engine.Progress) {
		fmt.Fprintf(w, "[enroll progress] %d%% %s\n", p.Percentage, p.Feedback.Message())
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "[enroll result] %d%% %s\n", out.Progress.Percentage, out.Message())
	return nil
}

func runIdentify(ctx context.Context, w io.Writer, m *voiceid.Manager, sample string) error {
	if sample == "" {
		return errors.New("identify: -sample is required")
	}
	out, err := m.DetectProfile(ctx, sample)
	if err != nil {
		return err
	}
	for _, s := range out.Scores {
		fmt.Fprintf(w, "score of %q %v\n", s.Profile, s.Score)
	}
	return nil
}

func runProfiles(ctx context.Context, w io.Writer, m *voiceid.Manager) error {
	names, err := m.Profiles(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(w, name)
	}
	return nil
}
