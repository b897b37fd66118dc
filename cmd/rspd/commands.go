package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"

	sys "golang.org/x/sys/unix"

	"github.com/spf13/cobra"

	"github.com/tracedbg/rspd/pkg/config"
	"github.com/tracedbg/rspd/pkg/logflags"
	"github.com/tracedbg/rspd/pkg/rsp"
	"github.com/tracedbg/rspd/pkg/trace"

	_ "github.com/tracedbg/rspd/pkg/trace/sifive"
	_ "github.com/tracedbg/rspd/pkg/trace/spike"
)

// exitStatus carries the process exit code out of a cobra Run function,
// since Execute itself only ever reports flag-parsing errors. Exit codes
// follow spec §6: 0 clean shutdown, 1 bind failure, 2 trace-parse failure.
var exitStatus int

var (
	logFlag   bool
	logOutput string
	host      string
	port      int
	format    string

	conf *config.Config
)

const rspdCommandLongDesc = `rspd serves a recorded instruction trace as a
GDB Remote Serial Protocol target: register reads and memory reads answer
from the trace instead of a live CPU, and stepping moves a cursor forward
or backward through it.

Attach with:

	gdb-multiarch -ex "target remote localhost:1234"`

// newRootCommand returns the rspd command tree: a root carrying the
// logging and network flags shared by every subcommand, plus the
// 'replay' subcommand that actually serves a trace.
func newRootCommand() *cobra.Command {
	conf = config.LoadConfig()

	root := &cobra.Command{
		Use:   "rspd",
		Short: "rspd replays a recorded instruction trace over GDB's Remote Serial Protocol.",
		Long:  rspdCommandLongDesc,
	}

	root.PersistentFlags().BoolVarP(&logFlag, "log", "", false, "Enable debugging server logging.")
	root.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", "Comma separated list of components that should produce debug output: codec, replay, session, rpc.")
	root.PersistentFlags().StringVar(&host, "host", conf.Host, "Address to bind the RSP listener to.")
	root.PersistentFlags().IntVar(&port, "port", conf.Port, "TCP port to bind the RSP listener to.")

	replayCommand := &cobra.Command{
		Use:   "replay <trace-file>",
		Short: "Serve a recorded trace as a GDB remote target.",
		Long: `Parses <trace-file> with the format selected by --format and serves it
over the Remote Serial Protocol on --host:--port until the listener is
closed or the process receives SIGINT/SIGTERM.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("you must provide a path to a trace file")
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			exitStatus = executeReplay(args[0])
		},
	}
	replayCommand.Flags().StringVarP(&format, "format", "f", "spike", fmt.Sprintf("Trace format (%v).", trace.Names()))
	root.AddCommand(replayCommand)

	return root
}

// executeReplay parses the trace at path with the selected format and
// serves it until interrupted, returning the process exit status.
func executeReplay(path string) int {
	if logFlag && logOutput == "" && conf != nil {
		logOutput = conf.LogOutput
	}
	if err := logflags.Setup(logFlag, logOutput); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	parser, ok := trace.Lookup(format)
	if !ok {
		fmt.Fprintf(os.Stderr, "rspd: %v\n", &trace.ErrUnknownFormat{Name: format})
		return 2
	}

	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rspd: could not open trace file: %v\n", err)
		return 2
	}
	seq, err := parser.Parse(f)
	f.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "rspd: could not parse trace: %v\n", err)
		return 2
	}
	if err := trace.Validate(seq); err != nil {
		fmt.Fprintf(os.Stderr, "rspd: malformed trace: %v\n", err)
		return 2
	}

	addr := fmt.Sprintf("%s:%d", host, port)
	srv, err := rsp.NewServer(addr, trace.RV64Capability, seq, logflags.SessionLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "rspd: couldn't start listener: %v\n", err)
		return 1
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Run() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, sys.SIGINT, sys.SIGTERM)

	select {
	case <-sigCh:
		srv.Close()
		<-serveErr
	case err := <-serveErr:
		if err != nil {
			fmt.Fprintf(os.Stderr, "rspd: %v\n", err)
			return 1
		}
	}
	return 0
}
