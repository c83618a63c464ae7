package uat978

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
)

// ECMain is the ec978 entry point.
func ECMain() {
	var failFisb = pflag.Bool("fail-fisb", false, "Print failed FIS-B packet information as a comment line.")
	var failAdsb = pflag.Bool("fail-adsb", false, "Print failed ADS-B packet information as a comment line.")
	var lowestLevels = pflag.Bool("lowest-levels", false, "Report the lowest signal level that still decoded, per packet type.")

	var saveFailed = pflag.String("save-failed", "", "Directory to save frames that failed error correction (requires --fail-fisb and/or --fail-adsb).")
	var saveRaw = pflag.String("save-raw", "", "Directory to save every input frame.")
	var timestampFormat = pflag.StringP("timestamp-format", "T", "", "Name saved frames with this 'strftime' format instead of the epoch.")
	var reprocess = pflag.String("reprocess", "", "Reprocess saved .i32 frames from this directory instead of reading standard input.")

	var noFixedBits = pflag.Bool("no-fixed-bits", false, "Disable the block 0 fixed-bit repair.")
	var noTrailingZeros = pflag.Bool("no-trailing-zeros", false, "Disable the trailing-zero repair.")

	var prefixFlags = pflag.StringArray("prefix", nil, "Ground-station first-six-byte candidate as 12 hex digits.  May repeat.")
	var verifyOverlay = pflag.Bool("verify-overlay", true, "Reject prefix-overlay decodes whose corrected bytes contradict the overlay.")

	var dump978Format = pflag.Bool("dump978-format", false, "Emit legacy dump978-style output lines.")

	var configPath = pflag.String("config", "", "Decoder configuration file (shift schedule, station prefixes).")

	var help = pflag.Bool("help", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - Error correct FIS-B and ADS-B packet frames from demod978\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Usage: demod978 ... | %s [OPTIONS]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Decoded packets are printed one per line on standard output.  By\n")
		fmt.Fprintf(os.Stderr, "default failed packets produce no output at all.\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	if *saveFailed != "" && !*failFisb && !*failAdsb {
		fmt.Fprintf(os.Stderr, "--save-failed needs --fail-fisb and/or --fail-adsb to pick which failures to save.\n\n")
		pflag.Usage()
		os.Exit(2)
	}

	var cf, err = loadConfig(*configPath)
	if err != nil {
		log.Fatal("configuration", "err", err)
	}

	var schedule []shiftStep
	if schedule, err = cf.schedule(); err != nil {
		log.Fatal("configuration", "err", err)
	}

	var prefixes [][]byte
	if prefixes, err = cf.prefixes(); err != nil {
		log.Fatal("configuration", "err", err)
	}

	var flagPrefixes [][]byte
	if flagPrefixes, err = parsePrefixes(*prefixFlags); err != nil {
		log.Fatal("bad --prefix", "err", err)
	}
	prefixes = append(prefixes, flagPrefixes...)

	// The flag wins when given; otherwise the file may set the policy.
	var verify = *verifyOverlay
	if !pflag.CommandLine.Changed("verify-overlay") && cf != nil && cf.VerifyOverlay != nil {
		verify = *cf.VerifyOverlay
	}

	var cfg = ECConfig{
		ShowFailedFisb:   *failFisb,
		ShowFailedAdsb:   *failAdsb,
		ShowLowestLevels: *lowestLevels,
		SaveFailedDir:    *saveFailed,
		SaveRawDir:       *saveRaw,
		RawNameFormat:    *timestampFormat,
		NoFixedBits:      *noFixedBits,
		NoTrailingZeros:  *noTrailingZeros,
		Prefixes:         prefixes,
		VerifyOverlay:    verify,
		Dump978Format:    *dump978Format,
		Schedule:         schedule,
	}

	var c *Corrector
	if c, err = NewCorrector(os.Stdin, os.Stdout, cfg); err != nil {
		log.Fatal("corrector", "err", err)
	}

	if *reprocess != "" {
		err = c.Reprocess(*reprocess)
	} else {
		err = c.Run()
	}
	if err != nil {
		log.Fatal("corrector stopped", "err", err)
	}
}
