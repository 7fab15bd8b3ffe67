// drillctl-go is the control host for the two-axis stepper drilling
// station: a linear feed axis and a drill spindle driven as step/dir
// outputs, sequenced through the multi-phase drilling cycle.
//
// Usage:
//
//	drillctl-go [options]
//
// Options:
//
//	-config string    Machine file (TOML); defaults are the CG4n51 values
//	-backend string   GPIO backend: rpio, sim or fake (default "rpio")
//	-sim-url string   GPIO simulator base URL (default "http://127.0.0.1:8100")
//	-logfile string   Rotating log file path (default: stderr)
//	-oplog string     Operational CSV directory (default "oplog")
//	-lcd string       Serial LCD device (optional)
//	-dashboard        Render the termbox status dashboard
//	-lockout string   Date lockout YYYY-MM-DD (optional)
//	-trace            Enable debug logging
//
// Examples:
//
//	# Run against the GPIO simulator
//	mock-gpio &
//	drillctl-go -backend sim -dashboard
//
//	# Run on the machine with a serial LCD
//	drillctl-go -config /etc/drillctl/machine.toml -lcd /dev/ttyUSB0
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"drillctl-go-migration/pkg/config"
	"drillctl-go-migration/pkg/control"
	"drillctl-go-migration/pkg/display"
	"drillctl-go-migration/pkg/gpio"
	"drillctl-go-migration/pkg/log"
	"drillctl-go-migration/pkg/oplog"
	"drillctl-go-migration/pkg/permit"
)

func main() {
	configFile := flag.String("config", "", "machine file (TOML)")
	backend := flag.String("backend", gpio.BackendRPIO, "GPIO backend: rpio, sim or fake")
	simURL := flag.String("sim-url", "http://127.0.0.1:8100", "GPIO simulator base URL")
	logFile := flag.String("logfile", "", "log file path (default: stderr)")
	opDir := flag.String("oplog", "oplog", "operational CSV directory")
	lcdDev := flag.String("lcd", "", "serial LCD device")
	dashboardOn := flag.Bool("dashboard", false, "render the termbox status dashboard")
	lockout := flag.String("lockout", "", "date lockout YYYY-MM-DD")
	trace := flag.Bool("trace", false, "enable debug logging")
	flag.Parse()

	logger := log.Default()
	if *trace {
		logger.SetLevel(log.DEBUG)
	}
	if *logFile != "" {
		w, err := log.NewRotatingFileWriter(log.RotationConfig{Filename: *logFile})
		if err != nil {
			fmt.Fprintf(os.Stderr, "drillctl-go: %v\n", err)
			os.Exit(1)
		}
		defer w.Close()
		logger.SetWriter(w)
		logger.SetColorize(false)
	}

	machine := config.Default()
	if *configFile != "" {
		var err error
		machine, err = config.Load(*configFile)
		if err != nil {
			logger.Error("config: %v", err)
			os.Exit(1)
		}
		logger.Info("machine file %s loaded", *configFile)
	}

	conn, err := gpio.Open(*backend, gpio.Options{SimURL: *simURL})
	if err != nil {
		// HardwareUnavailable is fatal: there is no degraded mode.
		logger.Error("GPIO backend: %v", err)
		os.Exit(1)
	}
	defer conn.Close()
	logger.Info("GPIO backend '%s' ready", *backend)

	sinks := []display.Sink{display.NewConsole()}
	if *lcdDev != "" {
		lcd, err := display.NewSerialLCD(*lcdDev)
		if err != nil {
			logger.Error("lcd: %v", err)
			os.Exit(1)
		}
		sinks = append(sinks, lcd)
	}
	sink := display.NewMulti(sinks...)
	defer sink.Close()

	opLogger, err := oplog.New(*opDir)
	if err != nil {
		logger.Error("oplog: %v", err)
		os.Exit(1)
	}
	defer opLogger.Close()

	var opPermit control.Permit = permit.Always{}
	if *lockout != "" {
		t, err := time.ParseInLocation("2006-01-02", *lockout, time.Local)
		if err != nil {
			logger.Error("bad -lockout value %q: %v", *lockout, err)
			os.Exit(1)
		}
		opPermit = permit.NewDateLockout(t.Year(), t.Month(), t.Day())
		logger.Info("date lockout armed for %s", *lockout)
	}

	controller := control.New(control.Deps{
		Conn:    conn,
		Config:  machine,
		Logger:  logger,
		Permit:  opPermit,
		Display: sink.WriteLine,
		Event: func(category, event, detail string) {
			opLogger.Operation(category, "", event, detail)
		},
	})

	errCh := make(chan error, 1)
	go func() { errCh <- controller.Run() }()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	if *dashboardOn {
		if err := runDashboard(controller, sigs); err != nil {
			logger.Warn("dashboard: %v", err)
			<-sigs
		}
	} else {
		select {
		case sig := <-sigs:
			logger.Info("signal %v, shutting down", sig)
		case err := <-errCh:
			if err != nil {
				logger.Error("control task failed: %v", err)
				os.Exit(1)
			}
			return
		}
	}

	controller.Stop()
	select {
	case <-controller.Done():
	case <-time.After(5 * time.Second):
		logger.Warn("control task did not stop in time")
	}
}
