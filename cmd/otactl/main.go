// otactl is the operator tool for otagate: it manages API clients, mints
// caller tokens and test grants, inspects and revokes grants, and applies
// database migrations.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

type command struct {
	summary string
	run     func(ctx context.Context, args []string, out io.Writer) error
}

var commands = map[string]command{
	"add-client":     {"generate an API key for a subject and store its hash", runAddClient},
	"disable-client": {"disable a subject's API key", runDisableClient},
	"hash-key":       {"print a new API key and its bcrypt hash", runHashKey},
	"caller-token":   {"mint a caller bearer token", runCallerToken},
	"mint-grant":     {"mint a download grant for a resource path", runMintGrant},
	"inspect":        {"verify and print a grant token", runInspect},
	"revoke":         {"deny a grant until it expires", runRevoke},
	"migrate":        {"apply database migrations", runMigrate},
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "otactl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		usage(out)
		return nil
	}

	cmd, ok := commands[args[0]]
	if !ok {
		usage(out)
		return fmt.Errorf("unknown command %q", args[0])
	}
	return cmd.run(ctx, args[1:], out)
}

func usage(out io.Writer) {
	fmt.Fprintln(out, "usage: otactl <command> [flags]")
	fmt.Fprintln(out)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-15s %s\n", name, commands[name].summary)
	}
}

// parseFlags parses args into fs, treating --help as success.
func parseFlags(fs *pflag.FlagSet, args []string, out io.Writer) (bool, error) {
	fs.SetOutput(out)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
