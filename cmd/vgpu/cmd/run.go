package cmd

import (
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/vgpu/config"
	"github.com/sarchlab/vgpu/gpu/device"
	"github.com/sarchlab/vgpu/gpu/guestmem"
	"github.com/sarchlab/vgpu/gpu/hostmem"
	"github.com/sarchlab/vgpu/gpu/present"
	"github.com/sarchlab/vgpu/gpu/protocol"
	"github.com/sarchlab/vgpu/monitoring"
	"github.com/sarchlab/vgpu/scenario"
	"github.com/sarchlab/vgpu/session"
	"github.com/sarchlab/vgpu/sim/hooking"
	"github.com/sarchlab/vgpu/sim/timing"
	"github.com/sarchlab/vgpu/tracing"
)

var runFlags struct {
	envFiles    []string
	backend     string
	recorder    string
	guestMem    string
	noMonitor   bool
	monitorPort int
	openMonitor bool
	verbose     bool
	logEvents   bool
	logFrames   bool
	wait        bool
	renderer    rendererFlags
}

var runCmd = &cobra.Command{
	Use:   "run <scenario.yaml>",
	Short: "Replay a scenario against the device.",
	Long: "Replay a scenario against the device and record the commands, " +
		"responses and frames of the run. The configuration comes from the " +
		"environment, then the scenario, then the .env files.",
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return runScenario(args[0])
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringSliceVar(&runFlags.envFiles, "env-file", nil,
		"Read configuration from these files (default .env).")
	f.StringVar(&runFlags.backend, "backend", "",
		"Present through this backend (default: the best available).")
	f.StringVar(&runFlags.recorder, "recorder", "",
		"Record into this SQLite file or database URL.")
	f.StringVar(&runFlags.guestMem, "guest-mem", "1G",
		"Size of the guest memory.")
	f.BoolVar(&runFlags.noMonitor, "no-monitor", false,
		"Do not serve the monitoring page.")
	f.IntVar(&runFlags.monitorPort, "monitor-port", 0,
		"Serve the monitoring page on this port (default: random).")
	f.BoolVar(&runFlags.openMonitor, "open-monitor", false,
		"Open the monitoring page in a browser.")
	f.BoolVarP(&runFlags.verbose, "verbose", "v", false,
		"Print every command.")
	f.BoolVar(&runFlags.logEvents, "log-events", false,
		"Print every event the engine handles.")
	f.BoolVar(&runFlags.logFrames, "log-frames", false,
		"Print every presented and dropped frame.")
	f.BoolVar(&runFlags.wait, "wait", false,
		"Keep the monitoring page up after the run until interrupted.")
	runFlags.renderer.register(runCmd)
}

func runScenario(path string) error {
	sc, err := scenario.Load(path)
	if err != nil {
		return err
	}

	cfg, err := config.LoadWith(sc.Env, envFilesOrDefault(runFlags.envFiles)...)
	if err != nil {
		return err
	}

	if runFlags.backend != "" {
		cfg.Backend = runFlags.backend
	}

	if runFlags.recorder != "" {
		cfg.Recorder = runFlags.recorder
	}

	guestSize, err := config.ParseSize(runFlags.guestMem)
	if err != nil {
		return fmt.Errorf("guest memory: %w", err)
	}

	backends, backendName, err := present.Select(cfg.Backend)
	if err != nil {
		return err
	}

	if runFlags.noMonitor && runFlags.monitorPort != 0 {
		return fmt.Errorf("--monitor-port needs the monitor")
	}

	s := buildSession(cfg)
	s.Note("Scenario", sc.Name)
	s.Note("Backend", backendName)
	s.Note("Present Policy", cfg.Policy.String())
	s.Note("Vulkan ICD", setupICD(cfg))

	r := runFlags.renderer.build(cfg)
	atexit.Register(r.Close)

	memory := guestmem.NewStorage(guestSize)
	transcript := scenario.NewTranscript()

	b := cfg.Apply(device.MakeBuilder()).
		WithEngine(s.Engine()).
		WithRenderer(r).
		WithGuestMemory(memory).
		WithResponseSink(transcript).
		WithBackends(backends)

	var window *hostmem.Window
	if cfg.HostMemSize > 0 {
		window = hostmem.NewWindow(cfg.HostMemSize)
		b = b.WithHostMemory(window)
	}

	d := b.Build()
	s.RegisterDevice(d)

	if runFlags.verbose {
		d.AcceptHook(device.NewCommandLogger(log.New(os.Stderr, "", 0)))
	}

	if runFlags.logFrames {
		d.Pipeline().AcceptHook(hooking.NewLogHook(
			log.New(os.Stderr, "frame ", 0),
			present.HookPosPresented, present.HookPosDropped))
	}

	if runFlags.logEvents {
		s.Engine().AcceptHook(
			timing.NewEventLogger(log.New(os.Stderr, "event ", 0)))
	}

	runner := &scenario.Runner{
		Clock:      s.Engine(),
		Device:     d,
		Transcript: transcript,
		Memory:     memory,
		Window:     window,
	}

	trackProgress(s.Monitor(), sc, runner, transcript)

	err = runner.Run(sc)
	if err == nil {
		err = transcript.Check()
	}

	printTranscript(transcript)
	printLatencies(s.Latency())

	if runFlags.wait && s.Monitor() != nil {
		waitForInterrupt(s.Monitor())
	}

	if err != nil {
		log.Print(err)
		atexit.Exit(1)
	}

	atexit.Exit(0)

	return nil
}

func buildSession(cfg config.Config) *session.Session {
	b := session.MakeBuilder().WithRecorder(cfg.Recorder)

	switch {
	case runFlags.noMonitor:
		b = b.WithoutMonitoring()
	case runFlags.monitorPort != 0:
		b = b.WithMonitorPort(runFlags.monitorPort)
	}

	s := b.Build()

	if m := s.Monitor(); m != nil && runFlags.openMonitor {
		err := browser.OpenURL(m.URL())
		if err != nil {
			log.Printf("opening the monitor: %v", err)
		}
	}

	return s
}

func trackProgress(
	m *monitoring.Monitor,
	sc *scenario.Scenario,
	runner *scenario.Runner,
	transcript *scenario.Transcript,
) {
	if m == nil {
		return
	}

	bar := m.CreateProgressBar(sc.Name, uint64(sc.NumCommands()))

	runner.OnSubmit = func(int, *protocol.Command) {
		bar.Submit(1)
	}

	transcript.OnResponse = func(*scenario.TranscriptEntry) {
		bar.Answer(1)

		if bar.Done() {
			m.CompleteProgressBar(bar)
		}
	}
}

func printTranscript(t *scenario.Transcript) {
	for _, e := range t.Entries() {
		rsp := "-"
		if e.Answered() {
			rsp = e.Response.Type().String()
		}

		fmt.Printf("%4d  %-24s %s\n", e.Step, e.Command.Type(), rsp)
	}
}

func printLatencies(t *tracing.LatencyTracer) {
	for _, l := range t.Latencies() {
		fmt.Printf("%-24s n=%-5d mean=%dns max=%dns\n",
			l.What, l.Count, l.Mean(), l.Max)
	}
}

func waitForInterrupt(m *monitoring.Monitor) {
	fmt.Fprintf(os.Stderr, "Run finished; monitor stays at %s. "+
		"Press Ctrl-C to exit.\n", m.URL())

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	<-c
}
