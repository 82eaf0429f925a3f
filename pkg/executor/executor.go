// Package executor runs the two-phase external build for one platform and
// folds the outcome into a BuildResult.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/crossforge/crossforge/pkg/logger"
	"github.com/crossforge/crossforge/pkg/toolrunner"
	"github.com/crossforge/crossforge/pkg/types"
)

// Sentinel errors. A build exiting nonzero is not an error; these cover the
// conditions where the build never meaningfully ran.
var (
	// ErrEnvironment indicates a required environment precondition was
	// missing, so no external tool was invoked for the platform.
	ErrEnvironment = errors.New("missing environment precondition")

	// ErrExecution indicates the external tool could not be launched or
	// the output directory could not be created.
	ErrExecution = errors.New("build tool execution failed")
)

// Options configures an Executor.
type Options struct {
	// Tool is the external build tool binary. Defaults to "cmake".
	Tool string
	// Root is the working directory the tool runs in (the directory that
	// holds the preset descriptor).
	Root string
	// BuildConfig is passed as --config for multi-config generators.
	BuildConfig string
	// AndroidNDK, when set, satisfies the Android toolchain precondition
	// and is exported to the child process.
	AndroidNDK string
}

// Executor executes build tasks. It is safe for concurrent use: each
// platform owns a disjoint output directory, and the executor holds no
// mutable state.
type Executor struct {
	runner toolrunner.Runner
	log    logger.Logger
	opts   Options
}

// New creates an executor over the given tool runner.
func New(runner toolrunner.Runner, log logger.Logger, opts Options) *Executor {
	if opts.Tool == "" {
		opts.Tool = "cmake"
	}
	if opts.BuildConfig == "" {
		opts.BuildConfig = "Release"
	}
	return &Executor{runner: runner, log: log, opts: opts}
}

// Execute runs configure then compile for the platform. A failing build is
// a normal, fully-reported outcome: the returned error is non-nil only for
// ErrExecution conditions, and even then the result carries what happened.
func (e *Executor) Execute(ctx context.Context, spec *types.PlatformSpec) (types.BuildResult, error) {
	log := e.log.WithPlatform(spec.Name)
	result := types.BuildResult{Platform: spec.Name}

	if missing := e.missingEnv(spec); len(missing) != 0 {
		err := fmt.Errorf("%w: %v", ErrEnvironment, missing)
		log.Warn("skipping build: " + err.Error())
		result.Status = types.StatusFailedEnvironment
		result.Reason = err.Error()
		return result, nil
	}

	if err := os.MkdirAll(spec.OutputDir, 0o755); err != nil {
		execErr := fmt.Errorf("%w: creating %s: %v", ErrExecution, spec.OutputDir, err)
		result.Status = types.StatusFailedConfigure
		result.Reason = execErr.Error()
		return result, execErr
	}

	log.Info("configuring preset " + spec.Preset)
	phase, err := e.runPhase(ctx, spec, types.PhaseConfigure)
	result.Phases = append(result.Phases, phase)
	if err != nil {
		return e.phaseAborted(log, result, types.StatusFailedConfigure, err)
	}
	if phase.ExitCode != 0 {
		log.Error("configure failed", logger.WithField("exit", phase.ExitCode))
		result.Status = types.StatusFailedConfigure
		return result, nil
	}

	log.Info("building preset "+spec.Preset, logger.WithField("config", e.opts.BuildConfig))
	phase, err = e.runPhase(ctx, spec, types.PhaseCompile)
	result.Phases = append(result.Phases, phase)
	if err != nil {
		return e.phaseAborted(log, result, types.StatusFailedCompile, err)
	}
	if phase.ExitCode != 0 {
		log.Error("compile failed", logger.WithField("exit", phase.ExitCode))
		result.Status = types.StatusFailedCompile
		return result, nil
	}

	log.Success("build succeeded")
	result.Status = types.StatusSucceeded
	return result, nil
}

// runPhase invokes the external tool for one phase and captures its output
// verbatim regardless of outcome.
func (e *Executor) runPhase(ctx context.Context, spec *types.PlatformSpec, phase types.BuildPhase) (types.PhaseResult, error) {
	cmd := toolrunner.Command{
		Name: e.opts.Tool,
		Dir:  e.opts.Root,
		Env:  e.childEnv(spec),
	}
	switch phase {
	case types.PhaseConfigure:
		cmd.Args = []string{"--preset", spec.Preset}
	case types.PhaseCompile:
		cmd.Args = []string{"--build", "--preset", spec.Preset}
		if spec.MultiConfig {
			cmd.Args = append(cmd.Args, "--config", e.opts.BuildConfig)
		}
	}

	res, err := e.runner.Run(ctx, cmd)
	pr := types.PhaseResult{
		Phase:    phase,
		ExitCode: res.ExitCode,
		Output:   string(res.Output),
		Duration: res.Duration,
	}
	return pr, err
}

// phaseAborted classifies a runner error: cancellation marks the task
// cancelled, anything else is an ErrExecution surfaced alongside the result.
func (e *Executor) phaseAborted(log logger.Logger, result types.BuildResult, failStatus types.BuildStatus, err error) (types.BuildResult, error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		log.Warn("build cancelled")
		result.Status = types.StatusCancelled
		result.Reason = err.Error()
		return result, nil
	}
	execErr := fmt.Errorf("%w: %v", ErrExecution, err)
	log.Error(execErr.Error())
	result.Status = failStatus
	result.Reason = execErr.Error()
	return result, execErr
}

// missingEnv lists the spec's required environment variables that are
// satisfied neither by the process environment nor by executor options.
func (e *Executor) missingEnv(spec *types.PlatformSpec) []string {
	var missing []string
	for _, key := range spec.RequiredEnv {
		if os.Getenv(key) != "" {
			continue
		}
		if key == "ANDROID_NDK_ROOT" && e.opts.AndroidNDK != "" {
			continue
		}
		missing = append(missing, key)
	}
	return missing
}

// childEnv builds the extra environment for the platform's subprocesses.
// Android builds receive the NDK location under both names toolchains look
// for.
func (e *Executor) childEnv(spec *types.PlatformSpec) []string {
	if spec.Family != types.FamilyAndroid {
		return nil
	}
	ndk := e.opts.AndroidNDK
	if ndk == "" {
		ndk = os.Getenv("ANDROID_NDK_ROOT")
	}
	if ndk == "" {
		return nil
	}
	return []string{
		"ANDROID_NDK_ROOT=" + ndk,
		"ANDROID_NDK_HOME=" + ndk,
	}
}
