// Package types provides the core records shared by the crossforge components.
package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PlatformFamily groups presets that share toolchain requirements and
// post-build handling.
type PlatformFamily string

const (
	FamilyDesktop PlatformFamily = "desktop"
	FamilyIOS     PlatformFamily = "ios"
	FamilyAndroid PlatformFamily = "android"
)

// BuildPhase is one of the two external tool invocations a platform build
// consists of.
type BuildPhase string

const (
	PhaseConfigure BuildPhase = "configure"
	PhaseCompile   BuildPhase = "compile"
)

// BuildStatus is the terminal outcome of one platform task.
type BuildStatus string

const (
	StatusSucceeded         BuildStatus = "succeeded"
	StatusFailedConfigure   BuildStatus = "failed-configure"
	StatusFailedCompile     BuildStatus = "failed-compile"
	StatusFailedEnvironment BuildStatus = "failed-environment"
	StatusCancelled         BuildStatus = "cancelled"
)

// PlatformSpec describes one buildable platform/arch combination as loaded
// from the preset descriptor. Specs are immutable after registry load.
type PlatformSpec struct {
	// Name is the unique platform identifier, e.g. "ios-simulator-arm64".
	Name string `json:"name" yaml:"name"`
	// Preset is the configure-preset name passed to the build tool.
	// Equal to Name for CMakePresets descriptors.
	Preset string `json:"preset" yaml:"preset"`
	// Generator is the descriptor's generator string, if any.
	Generator string `json:"generator,omitempty" yaml:"generator,omitempty"`
	// OutputDir is the platform's exclusive build directory. No two
	// specs share an OutputDir.
	OutputDir string         `json:"outputDir" yaml:"outputDir"`
	Family    PlatformFamily `json:"family" yaml:"family"`
	// Arch is the toolchain architecture identifier ("arm64", "x86_64").
	Arch string `json:"arch" yaml:"arch"`
	// ABI is the Android ABI tag ("arm64-v8a"); empty for other families.
	ABI string `json:"abi,omitempty" yaml:"abi,omitempty"`
	// RequiredEnv lists environment variables that must be resolvable
	// before the external tool is invoked for this platform.
	RequiredEnv []string `json:"requiredEnv,omitempty" yaml:"requiredEnv,omitempty"`
	// LibPath is the library file this platform's build is expected to
	// produce once it succeeds.
	LibPath string `json:"libPath" yaml:"libPath"`
	// MultiConfig is true for generators that take an explicit
	// --config at compile time (Xcode, Visual Studio).
	MultiConfig bool `json:"multiConfig,omitempty" yaml:"multiConfig,omitempty"`
}

// IsSimulator reports whether the spec targets an iOS simulator.
func (s *PlatformSpec) IsSimulator() bool {
	return s.Family == FamilyIOS && strings.Contains(s.Name, "-simulator-")
}

// PhaseResult captures one external invocation: its exit status and the
// verbatim combined output, kept regardless of outcome so failures are
// diagnosable without re-running.
type PhaseResult struct {
	Phase    BuildPhase    `json:"phase"`
	ExitCode int           `json:"exitCode"`
	Output   string        `json:"output"`
	Duration time.Duration `json:"duration"`
}

// BuildResult is the outcome of one platform task.
type BuildResult struct {
	Platform string        `json:"platform"`
	Status   BuildStatus   `json:"status"`
	Phases   []PhaseResult `json:"phases,omitempty"`
	// Reason holds the environment or execution error detail when no
	// ordinary phase failure explains the status.
	Reason string `json:"reason,omitempty"`
	// Optional marks a group-expanded platform whose preconditions were
	// known to be missing up front; its failure is reported but does
	// not affect the session exit status.
	Optional bool `json:"optional,omitempty"`
}

// Succeeded reports whether the platform built completely.
func (r *BuildResult) Succeeded() bool {
	return r.Status == StatusSucceeded
}

// Phase returns the result of the given phase, or nil if it never ran.
func (r *BuildResult) Phase(p BuildPhase) *PhaseResult {
	for i := range r.Phases {
		if r.Phases[i].Phase == p {
			return &r.Phases[i]
		}
	}
	return nil
}

// BuildSession is the top-level aggregate for one invocation: the requested
// platform set and one result per expanded platform, in request order.
type BuildSession struct {
	ID        uuid.UUID     `json:"id"`
	Requested []string      `json:"requested"`
	Results   []BuildResult `json:"results"`
	StartedAt time.Time     `json:"startedAt"`
	EndedAt   time.Time     `json:"endedAt"`
}

// NewBuildSession creates a session for the given expanded platform names.
func NewBuildSession(requested []string) *BuildSession {
	return &BuildSession{
		ID:        uuid.New(),
		Requested: requested,
		Results:   make([]BuildResult, 0, len(requested)),
		StartedAt: time.Now(),
	}
}

// Result returns the result for a platform name, or nil if absent.
func (s *BuildSession) Result(platform string) *BuildResult {
	for i := range s.Results {
		if s.Results[i].Platform == platform {
			return &s.Results[i]
		}
	}
	return nil
}

// Succeeded reports whether every required (non-optional) platform built.
func (s *BuildSession) Succeeded() bool {
	for i := range s.Results {
		if !s.Results[i].Optional && !s.Results[i].Succeeded() {
			return false
		}
	}
	return true
}

// FailureCount counts non-optional results that did not succeed.
func (s *BuildSession) FailureCount() int {
	n := 0
	for i := range s.Results {
		if !s.Results[i].Optional && !s.Results[i].Succeeded() {
			n++
		}
	}
	return n
}
