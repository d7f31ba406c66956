// Package testutil provides test utilities: a re-executable helper child
// process that stands in for the converter.
package testutil

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"testing"
	"time"
)

// HelperEnvVar selects a helper scenario when the test binary is re-executed.
const HelperEnvVar = "CVREXPORT_TEST_HELPER"

// Helper scenarios. Arguments are taken from the child's argv.
const (
	// ScenarioEmit writes args[0] copies of args[1] to stdout, then exits
	// with code args[2].
	ScenarioEmit = "emit"
	// ScenarioFail writes args[0] to stderr and exits with code args[1].
	ScenarioFail = "fail"
	// ScenarioMixed writes args[0] copies of "A" to stdout, args[1] to
	// stderr, and exits with code args[2].
	ScenarioMixed = "mixed"
	// ScenarioStream writes "tick" lines until SIGINT, then prints
	// "interrupted" and exits 130.
	ScenarioStream = "stream"
	// ScenarioStubborn prints "ready" and ignores SIGINT until killed.
	ScenarioStubborn = "stubborn"
	// ScenarioCountInterrupts prints "ready", then after the first SIGINT
	// keeps counting SIGINTs for args[0] milliseconds, prints
	// "interrupts N" and exits 130.
	ScenarioCountInterrupts = "count-interrupts"
	// ScenarioSilent sleeps for args[0] milliseconds without output.
	ScenarioSilent = "silent"
	// ScenarioArgs prints each argument on its own line.
	ScenarioArgs = "args"
	// ScenarioConvert behaves like the converter: it expects
	// [folder, "", type, limit, limit], reports each CVR file it finds
	// and honours SIGINT between files.
	ScenarioConvert = "convert"
)

// MaybeRunHelper turns the current process into a helper child when
// HelperEnvVar is set. Call it first thing in TestMain.
func MaybeRunHelper() {
	scenario := os.Getenv(HelperEnvVar)
	if scenario == "" {
		return
	}
	os.Exit(runHelper(scenario, os.Args[1:]))
}

// HelperExecutable returns the path of the running test binary.
func HelperExecutable(t testing.TB) string {
	t.Helper()
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("resolve test executable: %v", err)
	}
	return exe
}

// HelperEnv returns the environment entries that select scenario.
func HelperEnv(scenario string) []string {
	return []string{HelperEnvVar + "=" + scenario}
}

// HelperArgv returns an argv that runs the test binary with args.
func HelperArgv(t testing.TB, args ...string) []string {
	t.Helper()
	return append([]string{HelperExecutable(t)}, args...)
}

func runHelper(scenario string, args []string) int {
	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}
	num := func(i, def int) int {
		n, err := strconv.Atoi(arg(i))
		if err != nil {
			return def
		}
		return n
	}

	switch scenario {
	case ScenarioEmit:
		emit(num(0, 0), arg(1))
		return num(2, 0)
	case ScenarioFail:
		fmt.Fprintln(os.Stderr, arg(0))
		return num(1, 1)
	case ScenarioMixed:
		emit(num(0, 0), "A")
		fmt.Fprintln(os.Stderr, arg(1))
		return num(2, 0)
	case ScenarioStream:
		return streamUntilInterrupt()
	case ScenarioStubborn:
		signal.Ignore(os.Interrupt)
		fmt.Println("ready")
		time.Sleep(time.Minute)
		return 0
	case ScenarioCountInterrupts:
		return countInterrupts(time.Duration(num(0, 200)) * time.Millisecond)
	case ScenarioSilent:
		time.Sleep(time.Duration(num(0, 0)) * time.Millisecond)
		return 0
	case ScenarioArgs:
		for _, a := range args {
			fmt.Println(a)
		}
		return 0
	case ScenarioConvert:
		return convert(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown helper scenario %q\n", scenario)
		return 2
	}
}

func emit(count int, s string) {
	if s == "" {
		s = "A"
	}
	// Several writes so the parent sees output arrive in pieces.
	const batch = 64
	for count > 0 {
		n := min(count, batch)
		_, _ = os.Stdout.WriteString(strings.Repeat(s, n))
		count -= n
	}
}

func streamUntilInterrupt() int {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-sigs:
			fmt.Println("interrupted")
			return 130
		case <-ticker.C:
			fmt.Println("tick")
		}
	}
}

func countInterrupts(window time.Duration) int {
	sigs := make(chan os.Signal, 8)
	signal.Notify(sigs, os.Interrupt)
	fmt.Println("ready")

	<-sigs
	n := 1
	deadline := time.After(window)
	for {
		select {
		case <-sigs:
			n++
		case <-deadline:
			fmt.Printf("interrupts %d\n", n)
			return 130
		}
	}
}

func convert(args []string) int {
	if len(args) < 5 {
		fmt.Fprintf(os.Stderr, "usage: convert <folder> \"\" <type> <limit> <limit>, got %d args\n", len(args))
		return 2
	}
	folder, fileType := args[0], args[2]
	limit, err := strconv.Atoi(args[3])
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad limit %q\n", args[3])
		return 2
	}

	entries, err := os.ReadDir(folder)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot read folder: %v\n", err)
		return 1
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)

	fmt.Printf("Processing %s as %s\n", folder, fileType)
	done := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if limit >= 0 && done >= limit {
			break
		}
		select {
		case <-sigs:
			fmt.Printf("Stopped after %d files\n", done)
			return 130
		default:
		}
		fmt.Printf("Converted %s\n", e.Name())
		done++
	}
	fmt.Printf("Done: %d files\n", done)
	return 0
}
