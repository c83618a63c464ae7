package uat978

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
)

// ServerMain is the server978 entry point.
func ServerMain() {
	var port = pflag.IntP("port", "p", DefaultFanoutPort, "TCP port to listen on.")

	var help = pflag.Bool("help", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - Fan decoded packet lines out to TCP clients\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Usage: ec978 ... | %s [OPTIONS]\n", os.Args[0])
		pflag.PrintDefaults()
	}

	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	if *port <= 0 || *port > 65535 {
		fmt.Fprintf(os.Stderr, "--port must be between 1 and 65535.\n\n")
		pflag.Usage()
		os.Exit(2)
	}

	if err := NewFanoutServer(*port).Run(os.Stdin); err != nil {
		log.Fatal("fan-out server stopped", "err", err)
	}
}
