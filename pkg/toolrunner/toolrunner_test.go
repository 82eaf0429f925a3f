package toolrunner_test

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/crossforge/crossforge/pkg/toolrunner"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-based runner tests are POSIX only")
	}
}

func TestRunCapturesCombinedOutput(t *testing.T) {
	requireShell(t)
	r := toolrunner.NewExecRunner(nil)

	res, err := r.Run(context.Background(), toolrunner.Command{
		Name: "sh",
		Args: []string{"-c", "echo out; echo err >&2"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit = %d", res.ExitCode)
	}
	out := string(res.Output)
	if !strings.Contains(out, "out") || !strings.Contains(out, "err") {
		t.Errorf("combined output = %q", out)
	}
	if res.Duration <= 0 {
		t.Error("duration not recorded")
	}
}

func TestRunNonzeroExitIsNotAnError(t *testing.T) {
	requireShell(t)
	r := toolrunner.NewExecRunner(nil)

	res, err := r.Run(context.Background(), toolrunner.Command{
		Name: "sh",
		Args: []string{"-c", "exit 3"},
	})
	if err != nil {
		t.Fatalf("nonzero exit surfaced as error: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit = %d, want 3", res.ExitCode)
	}
}

func TestRunUnknownBinaryIsNotStarted(t *testing.T) {
	r := toolrunner.NewExecRunner(nil)

	_, err := r.Run(context.Background(), toolrunner.Command{Name: "definitely-not-a-binary-xyz"})
	if !errors.Is(err, toolrunner.ErrNotStarted) {
		t.Errorf("err = %v, want ErrNotStarted", err)
	}
}

func TestRunRespectsCancellation(t *testing.T) {
	requireShell(t)
	r := toolrunner.NewExecRunner(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.Run(ctx, toolrunner.Command{Name: "sh", Args: []string{"-c", "sleep 10"}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

func TestRunExtraEnvReachesChild(t *testing.T) {
	requireShell(t)
	r := toolrunner.NewExecRunner(nil)

	res, err := r.Run(context.Background(), toolrunner.Command{
		Name: "sh",
		Args: []string{"-c", "echo $CROSSFORGE_TEST_VAR"},
		Env:  []string{"CROSSFORGE_TEST_VAR=hello"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(res.Output), "hello") {
		t.Errorf("child did not see extra env: %q", res.Output)
	}
}

func TestCommandString(t *testing.T) {
	cmd := toolrunner.Command{Name: "cmake", Args: []string{"--preset", "ios-arm64"}}
	if got := cmd.String(); got != "cmake --preset ios-arm64" {
		t.Errorf("String() = %q", got)
	}
}
