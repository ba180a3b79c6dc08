// Command renderer draws the models listed in its configuration with a
// two-subpass deferred pipeline.
//
// Exit status is 0 after a clean shutdown, 1 when initialization fails and
// 2 when a frame fails afterwards.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/deferred-renderer/internal/config"
	"github.com/vkngwrapper/deferred-renderer/internal/logging"
)

const (
	exitOK      = 0
	exitInit    = 1
	exitRuntime = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errInit):
		return exitInit
	}
	return exitRuntime
}

func run(args []string) int {
	fs := flag.NewFlagSet("renderer", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a TOML configuration file")
	headlessRun := fs.Bool("headless", false, "render on the software device without a window")
	frames := fs.Int("frames", 3, "frames to draw in headless mode")
	if err := fs.Parse(args); err != nil {
		return exitInit
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		return exitInit
	}
	logger, err := logging.New(logging.Options{
		Level:        cfg.Logging.Level,
		ReportCaller: cfg.Logging.ReportCaller,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		return exitInit
	}

	app := &application{
		cfg:      cfg,
		logger:   logger,
		headless: *headlessRun,
		frames:   *frames,
	}
	err = app.Run()
	if err != nil {
		logger.Error(fmt.Sprintf("%+v", err))
	}
	return exitCode(err)
}
