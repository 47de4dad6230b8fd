// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ducker/internal/config"
	"ducker/pkg/build"
)

// Commands selected on the command line.
const (
	CommandRun      = "run"
	CommandList     = "list"
	CommandCheck    = "check"
	CommandSimulate = "simulate"
)

// Options is the parsed command line: the command to execute and the
// configuration it runs with, flags already applied.
type Options struct {
	Command  string
	Headless bool   // run: no terminal monitor
	Pick     bool   // list: interactive device picker
	WAVPath  string // simulate: file to replay
	Config   *config.Config
}

// flagValues holds raw flag values until the config file is loaded.
type flagValues struct {
	configPath      string
	profile         string
	verbose         bool
	tick            time.Duration
	source          string
	device          int
	sampleRate      float64
	framesPerBuffer int
	lowLatency      bool
	wav             string
	loop            bool
	staticDB        float64
	record          string
	voiceBand       bool
	udp             string
	ws              string
	logEmissions    bool
}

// ParseArgs parses args (without the program name). A nil Options with a
// nil error means cobra already handled the invocation, e.g. --help.
func ParseArgs(args []string) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	defaults := config.Default()
	opts := &Options{}
	var fv flagValues

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Command = CommandRun
			return nil
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio input devices",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			opts.Command = CommandList
		},
	}
	listCmd.Flags().BoolVar(&opts.Pick, "pick", false,
		"Pick the mic interactively and print its config line")
	rootCmd.AddCommand(listCmd)

	// Check command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and profile and print them",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			opts.Command = CommandCheck
		},
	})

	// Simulate command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "simulate <file.wav>",
		Short: "Run the ducker offline against a recorded mic and print every volume change",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			opts.Command = CommandSimulate
			opts.WAVPath = args[0]
		},
	})

	flags := rootCmd.PersistentFlags()

	// Configuration files
	flags.StringVarP(&fv.configPath, "config", "c", "",
		"Configuration file (default: ./config.yaml or ./ducker.yaml if present)")
	flags.StringVarP(&fv.profile, "profile", "p", "",
		"Ducking profile file (default: built-in profile)")
	flags.DurationVarP(&fv.tick, "tick", "t", defaults.TickInterval,
		"How often the mic level is polled")

	// Mic level source
	flags.StringVar(&fv.source, "source", defaults.Device.Source,
		"Mic level source: portaudio, wav or static")
	flags.IntVarP(&fv.device, "device", "d", defaults.Device.InputDevice,
		"Input device ID. Use 'list' command to see available devices.")
	flags.Float64VarP(&fv.sampleRate, "sample-rate", "s", defaults.Device.SampleRate,
		"Sample rate, measured in Hertz (Hz)")
	flags.IntVarP(&fv.framesPerBuffer, "frames-per-buffer", "b", defaults.Device.FramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	flags.BoolVarP(&fv.lowLatency, "low-latency", "l", defaults.Device.LowLatency,
		"Use low latency mode for real-time processing")
	flags.StringVar(&fv.wav, "wav", "",
		"Replay this WAV file as the mic (implies --source wav)")
	flags.BoolVar(&fv.loop, "loop", false,
		"Restart the WAV file when it ends")
	flags.Float64Var(&fv.staticDB, "static-db", defaults.Device.StaticDB,
		"Fixed mic level in dBFS (implies --source static)")
	flags.StringVarP(&fv.record, "record", "r", "",
		"Record the mic to this WAV file while running")
	flags.BoolVar(&fv.voiceBand, "voice-band", false,
		"Ignore mic energy outside the speech band (hum, thumps, hiss)")

	// Monitoring
	flags.BoolVar(&opts.Headless, "headless", false,
		"Run without the terminal monitor")
	flags.StringVar(&fv.udp, "udp", "",
		"Send status datagrams to this address (e.g. 127.0.0.1:9090)")
	flags.StringVar(&fv.ws, "ws", "",
		"Serve status over WebSocket on this address (e.g. :8080)")
	flags.BoolVar(&fv.logEmissions, "log-emissions", false,
		"Log every routing volume change")

	// Debug Configuration
	flags.BoolVarP(&fv.verbose, "verbose", "v", false,
		"Show verbose output")

	// Execute the CLI. cobra falls back to os.Args for a nil slice.
	if args == nil {
		args = []string{}
	}
	rootCmd.SetArgs(args)
	executed, err := rootCmd.ExecuteC()
	if err != nil {
		return nil, err
	}
	if opts.Command == "" {
		return nil, nil
	}
	if opts.Command == CommandList {
		return opts, nil
	}

	cfg, err := config.LoadConfig(fv.configPath)
	if err != nil {
		return nil, err
	}
	applyFlags(cfg, &fv, executed.Flags().Changed)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	opts.Config = cfg
	return opts, nil
}

// applyFlags overrides cfg with every flag the user set explicitly.
func applyFlags(cfg *config.Config, fv *flagValues, changed func(string) bool) {
	if changed("profile") {
		cfg.Profile = fv.profile
	}
	if changed("verbose") {
		cfg.Debug = fv.verbose
	}
	if changed("tick") {
		cfg.TickInterval = fv.tick
	}

	d := &cfg.Device
	if changed("wav") {
		d.WAVPath = fv.wav
		d.Source = config.SourceWAV
	}
	if changed("static-db") {
		d.StaticDB = fv.staticDB
		d.Source = config.SourceStatic
	}
	if changed("source") {
		d.Source = fv.source
	}
	if changed("device") {
		d.InputDevice = fv.device
	}
	if changed("sample-rate") {
		d.SampleRate = fv.sampleRate
	}
	if changed("frames-per-buffer") {
		d.FramesPerBuffer = fv.framesPerBuffer
	}
	if changed("low-latency") {
		d.LowLatency = fv.lowLatency
	}
	if changed("loop") {
		d.Loop = fv.loop
	}
	if changed("record") {
		d.RecordPath = fv.record
	}
	if changed("voice-band") {
		d.VoiceBand = fv.voiceBand
	}

	t := &cfg.Transport
	if changed("udp") {
		t.UDPTargetAddress = fv.udp
		t.UDPEnabled = fv.udp != ""
	}
	if changed("ws") {
		t.WSAddress = fv.ws
		t.WSEnabled = fv.ws != ""
	}
	if changed("log-emissions") {
		t.LogEmissions = fv.logEmissions
	}
}
