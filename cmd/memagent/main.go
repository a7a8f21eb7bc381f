// Command memagent serves the agent's RPC methods for one target. It speaks
// line-delimited JSON on stdin/stdout, or runs an interactive prompt when
// stdin is a terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"memagent/agent"
	"memagent/config"
	"memagent/eventloop"
	"memagent/process"
	"memagent/process_blob"
	"memagent/rpc"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"github.com/caarlos0/ctrlc"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

func main() {
	pidFlag := flag.Int("pid", 0, "Process ID to attach to")
	nameFlag := flag.String("name", "", "Attach to the lowest-PID process with this name")
	dumpFlag := flag.String("dump", "", "Serve a saved process dump instead of a live process")
	demoFlag := flag.Bool("demo", false, "Serve a small built-in process image")
	configFlag := flag.String("config", "", "Path to a JSON config file (default $"+config.EnvPath+")")
	replFlag := flag.Bool("repl", false, "Force the interactive prompt")
	scanLimitFlag := flag.Int("scan-limit", 0, "Override the default scan match limit")
	pollFlag := flag.Int64("poll-ms", 0, "Override the observer poll interval for live targets")
	flag.Parse()

	log := logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "memagent"))

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	if *scanLimitFlag > 0 {
		cfg.ScanLimit = *scanLimitFlag
	}
	if *pollFlag > 0 {
		cfg.PollIntervalMs = *pollFlag
	}

	engine, err := openEngine(*pidFlag, *nameFlag, *dumpFlag, *demoFlag, cfg.PollInterval())
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		flag.Usage()
		os.Exit(1)
	}
	defer engine.Close()
	log.Infoln("serving", engine.Arch(), "target, pid", engine.GetPID())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interactive := *replFlag || term.IsTerminal(int(os.Stdin.Fd()))
	finished := make(chan error, 1)
	err = ctrlc.Default.Run(ctx, func() error {
		err := run(ctx, engine, cfg, interactive)
		finished <- err
		return err
	})
	if err != nil {
		select {
		case <-finished:
		default:
			// interrupted: let the agent release the target before exiting
			log.Infoln("interrupted, shutting down")
			cancel()
			err = <-finished
		}
	}
	if err != nil {
		log.Warn("agent stopped: ", err)
		os.Exit(1)
	}
}

func openEngine(pid int, name, dump string, demo bool, poll time.Duration) (process.Engine, error) {
	switch {
	case demo:
		return process_blob.NewSample(), nil
	case dump != "":
		d := process_blob.NewProcessDump()
		if err := d.Load(dump); err != nil {
			return nil, err
		}
		return d, nil
	case name != "" || pid != 0:
		return openLive(pid, name, poll)
	}
	return nil, errors.New("one of -pid, -name, -dump or -demo is required")
}

// run serves until input ends or ctx is cancelled. The loop keeps running
// until the agent has released its timers, hooks and observers.
func run(ctx context.Context, engine process.Engine, cfg config.Config, interactive bool) error {
	loop := eventloop.New()

	var conn *rpc.Conn
	var sink rpc.Sink
	if interactive {
		sink = newConsoleSink(os.Stdout)
	} else {
		conn = rpc.NewConn(os.Stdin, os.Stdout)
		sink = conn
	}
	a := agent.New(engine, loop, sink, cfg)

	loopCtx, stopLoop := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(loopCtx)
	})
	g.Go(func() error {
		defer stopLoop()

		var err error
		if interactive {
			err = runREPL(gctx, a, cfg.Prompt, os.Stdout)
		} else {
			err = a.Serve(gctx, conn)
		}
		if errors.Is(err, os.ErrClosed) {
			err = nil
		}
		if serr := a.Shutdown(); serr != nil && err == nil {
			err = serr
		}
		return err
	})

	// unblock a reader waiting on stdin
	go func() {
		<-gctx.Done()
		os.Stdin.Close()
	}()

	return g.Wait()
}
