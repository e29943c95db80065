// cmd/sweeper/main.go
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/xkilldash9x/sweeper-cli/cmd"
	"github.com/xkilldash9x/sweeper-cli/internal/observability"
)

const panicLogFile = "panic.log"

const banner = `
  sweeper %s
  Clears your LinkedIn activity: posts, comments, reactions.
  Type "help" for commands, "exit" to leave.

`

// Swapped out in tests.
var (
	osWriteFile = os.WriteFile
	osExit      = os.Exit
)

func main() {
	defer handlePanic()
	defer observability.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 {
		if err := cmd.Execute(ctx); err != nil {
			if !errors.Is(err, context.Canceled) {
				fmt.Fprintln(os.Stderr, "Error:", err)
			}
			observability.Sync()
			stop()
			if errors.Is(err, context.Canceled) {
				osExit(0)
			}
			osExit(1)
		}
		return
	}

	fmt.Printf(banner, cmd.Version)
	if err := runShell(ctx, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "Error reading from stdin:", err)
		osExit(1)
	}
	fmt.Println("Exiting sweeper.")
}

// runShell reads commands line by line until exit, end of input or ctx ends.
func runShell(ctx context.Context, in io.Reader, out, errOut io.Writer) error {
	scanner := bufio.NewScanner(in)
	for ctx.Err() == nil {
		fmt.Fprint(out, "sweeper > ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		executeLine(ctx, line, in, out, errOut)
	}
	return scanner.Err()
}

// executeLine runs one shell command on a fresh command tree. Errors and
// panics are reported without leaving the shell.
func executeLine(ctx context.Context, line string, in io.Reader, out, errOut io.Writer) {
	rootCmd := cmd.NewRootCommand()
	rootCmd.SetArgs(strings.Fields(line))
	rootCmd.SetIn(in)
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(errOut, "Error: command panicked: %v\n", r)
		}
	}()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(errOut, "Command aborted.")
			return
		}
		fmt.Fprintln(errOut, "Error:", err)
	}
}

// handlePanic writes the panic and its stack to panic.log and exits non-zero.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.Sync()

	report := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := osWriteFile(panicLogFile, []byte(report), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: failed to write %s: %v\n%s\n", panicLogFile, err, report)
		osExit(1)
		return
	}
	fmt.Fprintf(os.Stderr, "\nsweeper crashed. Details were written to %s.\n", panicLogFile)
	osExit(2)
}
