// Command tradectl flips or inspects the trading kill switch shared with a
// running executor.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Rajchodisetti/intraday-executor/internal/config"
	"github.com/Rajchodisetti/intraday-executor/internal/control"
)

var errUsage = errors.New("usage: tradectl [-config path] [-state-path path] [-reason text] enable|disable|status")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("tradectl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var cfgPath, statePath, reason string
	fs.StringVar(&cfgPath, "config", "config/config.yaml", "config path, used to locate the trading state file")
	fs.StringVar(&statePath, "state-path", "", "trading state file (overrides config)")
	fs.StringVar(&reason, "reason", "manual", "reason recorded with enable/disable")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != 1 {
		return errUsage
	}

	if statePath == "" {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		statePath = cfg.State.TradingPath
	}
	gate := control.NewGate(statePath)

	var st control.State
	var err error
	switch fs.Arg(0) {
	case "enable":
		st, err = gate.Enable(reason)
	case "disable":
		st, err = gate.Disable(reason)
	case "status":
		st, err = gate.Status()
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, fs.Arg(0))
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "enabled=%t updated_at=%s reason=%s\n", st.Enabled, st.UpdatedAt, st.Reason)
	return nil
}
