// hardware-test exercises the drill station wiring during bring-up:
// it reports every input level and the joystick channel, blinks each
// output line, and runs a short step burst on both axes.
//
// Usage:
//
//	hardware-test [-backend rpio|sim|fake] [-sim-url URL] [-config FILE]
package main

import (
	"flag"
	"fmt"
	"os"

	"drillctl-go-migration/pkg/config"
	"drillctl-go-migration/pkg/gpio"
	"drillctl-go-migration/pkg/pulse"
)

func main() {
	backend := flag.String("backend", gpio.BackendRPIO, "GPIO backend: rpio, sim or fake")
	simURL := flag.String("sim-url", "http://127.0.0.1:8100", "GPIO simulator base URL")
	configFile := flag.String("config", "", "machine file (TOML)")
	flag.Parse()

	machine := config.Default()
	if *configFile != "" {
		var err error
		machine, err = config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hardware-test: %v\n", err)
			os.Exit(1)
		}
	}

	conn, err := gpio.Open(*backend, gpio.Options{SimURL: *simURL})
	if err != nil {
		fmt.Fprintf(os.Stderr, "hardware-test: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	pins := machine.Pins
	fmt.Println("=== Inputs ===")
	inputs := []struct {
		name string
		pin  int
	}{
		{"btn_reset", pins.BtnReset},
		{"btn_start", pins.BtnStart},
		{"btn_stop", pins.BtnStop},
		{"btn_drill", pins.BtnDrill},
		{"safety", pins.Safety},
		{"limit_home", pins.LimitHome},
		{"limit_final", pins.LimitFinal},
	}
	for _, in := range inputs {
		gpio.SetupInput(conn, in.pin)
		fmt.Printf("  %-12s (pin %2d) = %d\n", in.name, in.pin, conn.ReadDigital(in.pin))
	}

	if v, err := conn.ReadAnalog(pins.JoystickChannel); err != nil {
		fmt.Printf("  joystick     (ch %d)  unavailable: %v\n", pins.JoystickChannel, err)
	} else {
		fmt.Printf("  joystick     (ch %d)  = %d\n", pins.JoystickChannel, v)
	}

	fmt.Println("=== Outputs ===")
	outputs := []struct {
		name string
		pin  int
	}{
		{"linear_step", pins.LinearStep},
		{"linear_dir", pins.LinearDir},
		{"drill_step", pins.DrillStep},
		{"drill_dir", pins.DrillDir},
	}
	for _, out := range outputs {
		fmt.Printf("  blinking %-12s (pin %2d)\n", out.name, out.pin)
		gpio.SetupOutput(conn, out.pin)
		for i := 0; i < 4; i++ {
			conn.WriteDigital(out.pin, 1)
			conn.SleepMicros(250_000)
			conn.WriteDigital(out.pin, 0)
			conn.SleepMicros(250_000)
		}
	}

	fmt.Println("=== Step bursts ===")
	linear := pulse.NewAxis(conn, "linear", pins.LinearStep, pins.LinearDir,
		machine.Constants.LinearDirectionInvert)
	drill := pulse.NewAxis(conn, "drill", pins.DrillStep, pins.DrillDir,
		machine.Constants.DrillDirectionInvert)

	for _, axis := range []*pulse.Axis{linear, drill} {
		fmt.Printf("  %s: 50 steps each way\n", axis.Name())
		axis.SetDirection(pulse.TowardFinal)
		axis.StepBlocking(50, 2000, nil)
		axis.SetDirection(pulse.TowardHome)
		axis.StepBlocking(50, 2000, nil)
		axis.Enable(false)
	}

	fmt.Println("done")
}
