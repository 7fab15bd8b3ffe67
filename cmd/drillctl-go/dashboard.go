// Termbox status dashboard
//
// Renders the coordinator's status snapshot and maps a few keys onto
// the virtual operator buttons.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nsf/termbox-go"

	"drillctl-go-migration/pkg/control"
)

type lineWriter struct {
	line int
}

func (w *lineWriter) writeLine(str string) {
	for x, r := range str {
		termbox.SetCell(x, w.line, r, termbox.ColorWhite, termbox.ColorBlack)
	}
	w.line++
}

func (w *lineWriter) indentLine(str string) {
	for x, r := range str {
		termbox.SetCell(x+3, w.line, r, termbox.ColorWhite, termbox.ColorBlack)
	}
	w.line++
}

func renderDashboard(status control.Status) {
	writer := &lineWriter{}
	termbox.Clear(termbox.ColorDefault, termbox.ColorDefault)

	writer.writeLine("=== Drill Station ===")
	writer.indentLine(fmt.Sprintf("Mode:  %d", status.ActiveMode))
	writer.indentLine(fmt.Sprintf("Phase: %s", strings.ToUpper(status.Phase)))
	writer.indentLine(fmt.Sprintf("Revs:  %d", status.SpindleRevs))

	writer.writeLine("=== State ===")
	flags := make([]string, 0, 3)
	if status.Running {
		flags = append(flags, "RUNNING")
	}
	if status.Paused {
		flags = append(flags, "PAUSED")
	}
	if status.Manual {
		flags = append(flags, "MANUAL")
	}
	if len(flags) == 0 {
		flags = append(flags, "IDLE")
	}
	writer.indentLine(strings.Join(flags, " "))
	if status.Error != "" {
		writer.indentLine("ERROR: " + status.Error)
	}

	writer.writeLine("")
	writer.writeLine("[1-5] mode  [m] manual  [s] start  [p] stop  [r] reset  [e] E-STOP  [q] quit")

	termbox.Flush()
}

// runDashboard owns the terminal until quit or an external signal.
func runDashboard(controller *control.Controller, sigs chan os.Signal) error {
	if err := termbox.Init(); err != nil {
		return err
	}
	defer termbox.Close()

	events := make(chan termbox.Event, 8)
	go func() {
		for {
			events <- termbox.PollEvent()
		}
	}()

	refresh := time.NewTicker(250 * time.Millisecond)
	defer refresh.Stop()

	manualOn := false
	for {
		renderDashboard(controller.Snapshot())

		select {
		case <-sigs:
			return nil
		case <-refresh.C:
		case ev := <-events:
			if ev.Type != termbox.EventKey {
				continue
			}
			switch ev.Ch {
			case 'q':
				return nil
			case '1', '2', '3', '4', '5':
				controller.SelectMode(int(ev.Ch - '0'))
			case 'm':
				manualOn = !manualOn
				controller.SelectManual(manualOn)
			case 's':
				controller.PressStart()
			case 'p':
				controller.PressStop()
			case 'r':
				controller.Reset()
			case 'e':
				controller.EmergencyStop()
			}
		}
	}
}
