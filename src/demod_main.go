package uat978

import (
	"bufio"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
)

// DemodMain is the demod978 entry point.
//
// Usage:  <sdr-program 2083334 CS16> | demod978 [OPTIONS] | ec978 ...
func DemodMain() {
	var fisbOnly = pflag.Bool("fisb-only", false, "Capture FIS-B uplink packets only.")
	var adsbOnly = pflag.Bool("adsb-only", false, "Capture ADS-B packets only.")

	var level = pflag.Float64P("level", "l", 0.9, "Noise cutoff level, in millionths of the running signal level.  Sync search is skipped below it; 0 disables the gate.")

	var replayTime = pflag.BoolP("replay-time", "x", false, "Reading a capture file, not real time: use a counter for packet arrival times so they stay unique and sorted.")

	var help = pflag.Bool("help", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - Demodulate 978 MHz UAT samples and capture FIS-B and ADS-B packets\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Usage: <sdr-program 2083334 CS16> | %s [OPTIONS]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Reads little-endian CS16 samples on standard input and writes packet\n")
		fmt.Fprintf(os.Stderr, "frames for ec978 on standard output.\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	if *fisbOnly && *adsbOnly {
		fmt.Fprintf(os.Stderr, "Only one of --fisb-only and --adsb-only may be set; use neither to capture both.\n\n")
		pflag.Usage()
		os.Exit(2)
	}

	if *level < 0 {
		fmt.Fprintf(os.Stderr, "--level must not be negative.\n\n")
		pflag.Usage()
		os.Exit(2)
	}

	var cfg = DemodConfig{
		Fisb:       !*adsbOnly,
		Adsb:       !*fisbOnly,
		Threshold:  uint32(*level * 1e6),
		ReplayTime: *replayTime,
	}

	var out = bufio.NewWriterSize(os.Stdout, 64*1024)

	var err = NewDemodulator(os.Stdin, out, cfg).Run()
	if flushErr := out.Flush(); err == nil {
		err = flushErr
	}
	if err != nil {
		log.Fatal("demodulator stopped", "err", err)
	}
}
