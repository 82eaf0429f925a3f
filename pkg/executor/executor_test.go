package executor_test

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/crossforge/crossforge/pkg/executor"
	"github.com/crossforge/crossforge/pkg/logger"
	"github.com/crossforge/crossforge/pkg/toolrunner"
	"github.com/crossforge/crossforge/pkg/types"
)

// fakeRunner returns scripted results in call order and records every command.
type fakeRunner struct {
	calls   []toolrunner.Command
	scripts []func(ctx context.Context) (toolrunner.Result, error)
}

func (f *fakeRunner) Run(ctx context.Context, cmd toolrunner.Command) (toolrunner.Result, error) {
	f.calls = append(f.calls, cmd)
	if len(f.scripts) == 0 {
		return toolrunner.Result{}, nil
	}
	script := f.scripts[0]
	f.scripts = f.scripts[1:]
	return script(ctx)
}

func exit(code int, output string) func(context.Context) (toolrunner.Result, error) {
	return func(context.Context) (toolrunner.Result, error) {
		return toolrunner.Result{ExitCode: code, Output: []byte(output)}, nil
	}
}

func testLog() logger.Logger {
	return logger.NewWithOutput("error", io.Discard)
}

func desktopSpec(t *testing.T) *types.PlatformSpec {
	t.Helper()
	return &types.PlatformSpec{
		Name:      "linux-x64",
		Preset:    "linux-x64",
		Family:    types.FamilyDesktop,
		Arch:      "x86_64",
		OutputDir: filepath.Join(t.TempDir(), "build-linux-x64"),
	}
}

func TestExecuteRunsBothPhases(t *testing.T) {
	runner := &fakeRunner{scripts: []func(context.Context) (toolrunner.Result, error){
		exit(0, "configure ok"),
		exit(0, "compile ok"),
	}}
	exec := executor.New(runner, testLog(), executor.Options{Root: "/proj"})

	result, err := exec.Execute(context.Background(), desktopSpec(t))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != types.StatusSucceeded {
		t.Errorf("status = %v", result.Status)
	}
	if len(result.Phases) != 2 {
		t.Fatalf("got %d phases, want 2", len(result.Phases))
	}

	if want := []string{"--preset", "linux-x64"}; !reflect.DeepEqual(runner.calls[0].Args, want) {
		t.Errorf("configure args = %v, want %v", runner.calls[0].Args, want)
	}
	if want := []string{"--build", "--preset", "linux-x64"}; !reflect.DeepEqual(runner.calls[1].Args, want) {
		t.Errorf("compile args = %v, want %v", runner.calls[1].Args, want)
	}
	if runner.calls[0].Name != "cmake" {
		t.Errorf("tool = %q, want cmake", runner.calls[0].Name)
	}
	if runner.calls[0].Dir != "/proj" {
		t.Errorf("dir = %q, want /proj", runner.calls[0].Dir)
	}
}

func TestExecuteConfigureFailureShortCircuits(t *testing.T) {
	runner := &fakeRunner{scripts: []func(context.Context) (toolrunner.Result, error){
		exit(3, "CMake Error: bad preset"),
	}}
	exec := executor.New(runner, testLog(), executor.Options{})

	result, err := exec.Execute(context.Background(), desktopSpec(t))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != types.StatusFailedConfigure {
		t.Errorf("status = %v", result.Status)
	}
	if len(runner.calls) != 1 {
		t.Errorf("runner called %d times, want 1 (no compile after failed configure)", len(runner.calls))
	}
	phase := result.Phase(types.PhaseConfigure)
	if phase == nil || phase.ExitCode != 3 || phase.Output != "CMake Error: bad preset" {
		t.Errorf("configure phase = %+v", phase)
	}
}

func TestExecuteCompileFailureKeepsBothPhases(t *testing.T) {
	runner := &fakeRunner{scripts: []func(context.Context) (toolrunner.Result, error){
		exit(0, "configure ok"),
		exit(2, "ld: undefined symbol"),
	}}
	exec := executor.New(runner, testLog(), executor.Options{})

	result, _ := exec.Execute(context.Background(), desktopSpec(t))
	if result.Status != types.StatusFailedCompile {
		t.Errorf("status = %v", result.Status)
	}
	if len(result.Phases) != 2 {
		t.Errorf("got %d phases, want 2", len(result.Phases))
	}
}

func TestExecuteMissingEnvironmentSpawnsNothing(t *testing.T) {
	t.Setenv("ANDROID_NDK_ROOT", "")

	runner := &fakeRunner{}
	exec := executor.New(runner, testLog(), executor.Options{})
	spec := &types.PlatformSpec{
		Name:        "android-arm64",
		Preset:      "android-arm64",
		Family:      types.FamilyAndroid,
		OutputDir:   filepath.Join(t.TempDir(), "build-android-arm64"),
		RequiredEnv: []string{"ANDROID_NDK_ROOT"},
	}

	result, err := exec.Execute(context.Background(), spec)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != types.StatusFailedEnvironment {
		t.Errorf("status = %v", result.Status)
	}
	if result.Reason == "" {
		t.Error("reason should name the missing variable")
	}
	if len(runner.calls) != 0 {
		t.Errorf("runner called %d times, want 0", len(runner.calls))
	}
}

func TestExecuteAndroidNDKOptionSatisfiesAndInjectsEnv(t *testing.T) {
	t.Setenv("ANDROID_NDK_ROOT", "")

	runner := &fakeRunner{scripts: []func(context.Context) (toolrunner.Result, error){
		exit(0, ""), exit(0, ""),
	}}
	exec := executor.New(runner, testLog(), executor.Options{AndroidNDK: "/opt/ndk"})
	spec := &types.PlatformSpec{
		Name:        "android-arm64",
		Preset:      "android-arm64",
		Family:      types.FamilyAndroid,
		OutputDir:   filepath.Join(t.TempDir(), "build-android-arm64"),
		RequiredEnv: []string{"ANDROID_NDK_ROOT"},
	}

	result, err := exec.Execute(context.Background(), spec)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != types.StatusSucceeded {
		t.Errorf("status = %v", result.Status)
	}

	wantEnv := []string{"ANDROID_NDK_ROOT=/opt/ndk", "ANDROID_NDK_HOME=/opt/ndk"}
	if !reflect.DeepEqual(runner.calls[0].Env, wantEnv) {
		t.Errorf("env = %v, want %v", runner.calls[0].Env, wantEnv)
	}
}

func TestExecuteMultiConfigAddsConfigFlag(t *testing.T) {
	runner := &fakeRunner{scripts: []func(context.Context) (toolrunner.Result, error){
		exit(0, ""), exit(0, ""),
	}}
	exec := executor.New(runner, testLog(), executor.Options{BuildConfig: "Debug"})
	spec := desktopSpec(t)
	spec.MultiConfig = true

	if _, err := exec.Execute(context.Background(), spec); err != nil {
		t.Fatal(err)
	}
	want := []string{"--build", "--preset", "linux-x64", "--config", "Debug"}
	if !reflect.DeepEqual(runner.calls[1].Args, want) {
		t.Errorf("compile args = %v, want %v", runner.calls[1].Args, want)
	}
}

func TestExecuteSpawnFailureIsExecutionError(t *testing.T) {
	spawnErr := errors.New("exec: \"cmake\": executable file not found")
	runner := &fakeRunner{scripts: []func(context.Context) (toolrunner.Result, error){
		func(context.Context) (toolrunner.Result, error) {
			return toolrunner.Result{}, spawnErr
		},
	}}
	exec := executor.New(runner, testLog(), executor.Options{})

	result, err := exec.Execute(context.Background(), desktopSpec(t))
	if !errors.Is(err, executor.ErrExecution) {
		t.Errorf("err = %v, want ErrExecution", err)
	}
	if result.Status != types.StatusFailedConfigure {
		t.Errorf("status = %v", result.Status)
	}
	if result.Reason == "" {
		t.Error("reason should carry the spawn failure")
	}
}

func TestExecuteCancellationMarksCancelled(t *testing.T) {
	runner := &fakeRunner{scripts: []func(context.Context) (toolrunner.Result, error){
		func(context.Context) (toolrunner.Result, error) {
			return toolrunner.Result{}, context.Canceled
		},
	}}
	exec := executor.New(runner, testLog(), executor.Options{})

	result, err := exec.Execute(context.Background(), desktopSpec(t))
	if err != nil {
		t.Fatalf("cancellation should not surface an error, got %v", err)
	}
	if result.Status != types.StatusCancelled {
		t.Errorf("status = %v", result.Status)
	}
}
