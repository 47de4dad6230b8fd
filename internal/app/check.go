// SPDX-License-Identifier: MIT
package app

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"ducker/internal/config"
	"ducker/internal/profile"
)

// Check prints the effective configuration and profile and reports the
// problems that would make the ducker do nothing. It returns an error only
// when the profile cannot be loaded.
func Check(w io.Writer, cfg *config.Config) error {
	duck, err := LoadProfile(cfg.Profile)
	if err != nil {
		return err
	}

	cfgData, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal configuration: %w", err)
	}
	profData, err := profile.Marshal(duck)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	name := cfg.Profile
	if name == "" {
		name = "built-in"
	}

	fmt.Fprintf(w, "# Configuration\n%s\n", cfgData)
	fmt.Fprintf(w, "# Profile (%s)\n%s\n", name, profData)

	fmt.Fprintln(w, "# Ducked routes")
	cells := profile.RoutedCells(duck)
	for _, c := range cells {
		fmt.Fprintf(w, "  %s\n", c)
	}

	var warnings []string
	switch {
	case !duck.Enabled:
		warnings = append(warnings, "ducking is disabled")
	case !duck.Active():
		warnings = append(warnings, "no input sources trigger ducking")
	}
	if len(duck.DuckSteps) == 0 {
		warnings = append(warnings, "ducking transition is empty, the engine will stay idle")
	}
	if len(duck.UnduckSteps) == 0 {
		warnings = append(warnings, "unducking transition is empty, the engine will stay idle")
	}
	if len(cells) == 0 {
		warnings = append(warnings, "no routes are ducked, steps will not change any volume")
	}

	fmt.Fprintln(w)
	if len(warnings) == 0 {
		fmt.Fprintln(w, "OK")
		return nil
	}
	for _, msg := range warnings {
		fmt.Fprintf(w, "warning: %s\n", msg)
	}
	return nil
}
