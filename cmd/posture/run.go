package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/teslashibe/go-posture/pkg/agent"
)

type runFlags struct {
	device    string
	lockAfter time.Duration
	interval  time.Duration
	addr      string
	noWeb     bool
	noPing    bool
	sound     string
	broker    string
}

var runOpts runFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch posture until interrupted (the default command)",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&runOpts.device, "camera", "", "camera device id, default first found")
	f.DurationVar(&runOpts.lockAfter, "lock-after", 0, "bad posture duration before lockout")
	f.DurationVar(&runOpts.interval, "interval", 0, "time between predictions")
	f.StringVar(&runOpts.addr, "addr", "", "local page listen address")
	f.BoolVar(&runOpts.noWeb, "no-web", false, "disable the local page")
	f.BoolVar(&runOpts.noPing, "no-ping", false, "skip the service ping at startup")
	f.StringVar(&runOpts.sound, "sound", "", `local alarm: a WAV path or "tone"`)
	f.StringVar(&runOpts.broker, "mqtt", "", "MQTT broker URL for lockout events, e.g. tcp://localhost:1883")
}

// apply overrides config values with flags that were set.
func (o runFlags) apply() {
	if o.device != "" {
		cfg.Camera.Device = o.device
	}
	if o.lockAfter > 0 {
		cfg.LockAfter = o.lockAfter
	}
	if o.interval > 0 {
		cfg.Interval = o.interval
	}
	if o.addr != "" {
		cfg.Web.Addr = o.addr
	}
	if o.noWeb {
		cfg.Web.Enabled = false
	}
	if o.noPing {
		cfg.PingOnStart = false
	}
	if o.sound != "" {
		cfg.Alarm.Sound = o.sound
	}
	if o.broker != "" {
		cfg.MQTT.Broker = o.broker
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	runOpts.apply()

	app, err := agent.New(cfg, agent.WithSource(newSource(logger)), agent.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := app.Init(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("posture agent started",
		"api", cfg.APIBase,
		"lock_after", cfg.LockAfter,
		"web", cfg.Web.Enabled,
		"addr", cfg.Web.Addr)

	err = app.Run(ctx)
	app.Shutdown()
	return err
}

