package uat978

/*------------------------------------------------------------------
 *
 * Purpose:	Optional decoder configuration file.
 *
 * Description:	The shift schedule and the ground-station prefix list
 *		are empirical data, not code, so they can be replaced
 *		without a recompile.  The file is YAML:
 *
 *		    schedule:
 *		      - { phase: none,   percent: 0 }
 *		      - { phase: after,  percent: 75 }
 *		      - { phase: before, percent: 75 }
 *		    station_prefixes:
 *		      - 38f18185534c
 *		    verify_overlay: true
 *
 *		Explicit --config wins; otherwise the search list below
 *		is tried and a missing file just means defaults.
 *
 *------------------------------------------------------------------*/

import (
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var configSearchList = []string{
	"keeshond.yaml", // Current working directory
	"/usr/local/share/keeshond/keeshond.yaml",
	"/usr/share/keeshond/keeshond.yaml",
}

type ConfigFile struct {
	Schedule        []ConfigScheduleEntry `yaml:"schedule"`
	StationPrefixes []string              `yaml:"station_prefixes"`
	VerifyOverlay   *bool                 `yaml:"verify_overlay"`
}

type ConfigScheduleEntry struct {
	Phase   string `yaml:"phase"`
	Percent int    `yaml:"percent"`
}

// loadConfig reads path, or walks the search list when path is empty.
// No file found while searching is not an error.
func loadConfig(path string) (*ConfigFile, error) {
	var paths = []string{path}
	if path == "" {
		paths = configSearchList
	}

	var raw []byte
	var err error
	for _, p := range paths {
		if raw, err = os.ReadFile(p); err == nil {
			break
		}
	}
	if raw == nil {
		if path != "" {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		return nil, nil
	}

	var cf ConfigFile
	if err = yaml.Unmarshal(raw, &cf); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return &cf, nil
}

// schedule converts the file entries to the internal table.
func (cf *ConfigFile) schedule() ([]shiftStep, error) {
	if cf == nil || len(cf.Schedule) == 0 {
		return nil, nil
	}

	var steps = make([]shiftStep, 0, len(cf.Schedule))
	for _, e := range cf.Schedule {
		var step shiftStep
		switch e.Phase {
		case "none":
			step.phase = phaseNone
		case "before":
			step.phase = phaseBefore
		case "after":
			step.phase = phaseAfter
		default:
			return nil, fmt.Errorf("schedule phase %q: want none, before or after", e.Phase)
		}
		if e.Percent < 0 || e.Percent > 99 {
			return nil, fmt.Errorf("schedule percent %d out of range", e.Percent)
		}
		step.percent = e.Percent
		steps = append(steps, step)
	}

	return steps, nil
}

// prefixes decodes the configured station identity prefixes.
func (cf *ConfigFile) prefixes() ([][]byte, error) {
	if cf == nil {
		return nil, nil
	}
	return parsePrefixes(cf.StationPrefixes)
}

// parsePrefixes turns hex strings into 6-byte overlay candidates.  Also
// used directly by the --prefix flag.
func parsePrefixes(in []string) ([][]byte, error) {
	var out = make([][]byte, 0, len(in))
	for _, s := range in {
		var b, err = hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("station prefix %q: %w", s, err)
		}
		if len(b) != UplinkPrefixBytes {
			return nil, fmt.Errorf("station prefix %q: want %d bytes, got %d", s, UplinkPrefixBytes, len(b))
		}
		out = append(out, b)
	}
	return out, nil
}
