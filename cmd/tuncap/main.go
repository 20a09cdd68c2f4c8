package main

import (
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/slackhq/tuncap"
	"github.com/slackhq/tuncap/config"
	"github.com/slackhq/tuncap/util"
)

// A version string that can be set with
//
//	-ldflags "-X main.Build=SOMEVERSION"
//
// at compile-time.
var Build string

func init() {
	if Build == "" {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}

		Build = strings.TrimPrefix(info.Main.Version, "v")
	}
}

func main() {
	configPath := flag.String("config", "", "Path to either a file or directory to load configuration from, defaults capture tun0")
	configTest := flag.Bool("test", false, "Test the config and print the end result. Non zero exit indicates a faulty config")
	printVersion := flag.Bool("version", false, "Print version")
	printUsage := flag.Bool("help", false, "Print command line usage")

	flag.Parse()

	if *printVersion {
		fmt.Printf("Version: %s\n", Build)
		os.Exit(0)
	}

	if *printUsage {
		flag.Usage()
		os.Exit(0)
	}

	// Datagram diagnostics are not program output, keep them off stdout
	l := logrus.New()
	l.Out = os.Stderr

	c := config.NewC(l)
	if *configPath != "" {
		err := c.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %s\n", err)
			os.Exit(1)
		}
	}

	ctrl, err := tuncap.Main(c, *configTest, Build, l, nil)
	if err != nil {
		util.LogWithContextIfNeeded("Failed to start", err, l)
		os.Exit(1)
	}

	if *configTest {
		os.Exit(0)
	}

	if err = ctrl.Start(); err != nil {
		util.LogWithContextIfNeeded("Failed to start", err, l)
		os.Exit(1)
	}

	notifyReady(l)

	if err = ctrl.ShutdownBlock(); err != nil {
		util.LogWithContextIfNeeded("Capture failed", err, l)
		os.Exit(2)
	}

	os.Exit(0)
}
