// SPDX-License-Identifier: MIT
package app

import (
	"fmt"
	"io"

	"ducker/internal/audio"
	applog "ducker/internal/log"
	"ducker/internal/tui"
)

// ListDevices prints the PortAudio devices. With pick set it opens the
// interactive picker instead and prints the chosen device as a config line.
func ListDevices(w io.Writer, pick bool) error {
	if err := audio.Initialize(); err != nil {
		return fmt.Errorf("initialize PortAudio: %w", err)
	}
	defer func() {
		if err := audio.Terminate(); err != nil {
			applog.Warnf("Audio: Terminate: %v", err)
		}
	}()

	if !pick {
		return audio.ListDevices()
	}

	id, ok, err := tui.PickInputDevice(audio.HostDevices)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(w, "No device selected")
		return nil
	}
	fmt.Fprintf(w, "device:\n  input_device: %d\n", id)
	return nil
}
