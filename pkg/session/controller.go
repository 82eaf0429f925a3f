// Package session coordinates a build session: request expansion, fault
// isolated task execution, and artifact cleanup.
package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/crossforge/crossforge/pkg/logger"
	"github.com/crossforge/crossforge/pkg/registry"
	"github.com/crossforge/crossforge/pkg/types"
)

// TaskExecutor runs one platform task. The production implementation is
// executor.Executor; tests substitute fakes.
type TaskExecutor interface {
	Execute(ctx context.Context, spec *types.PlatformSpec) (types.BuildResult, error)
}

// Options configures a Controller.
type Options struct {
	// Jobs bounds concurrent platform tasks. Values below 2 keep the
	// sequential baseline. Phases within one platform are always
	// serialized, and per-platform output directories are disjoint, so
	// no extra locking is needed.
	Jobs int
	// MarkOptional, when set, flags group-expanded platforms whose
	// failure should not affect the session exit status (e.g. Android
	// presets when no NDK is configured). Explicitly requested
	// platforms are never optional.
	MarkOptional func(spec *types.PlatformSpec) bool
}

// Controller owns one invocation's build session.
type Controller struct {
	reg  *registry.Registry
	exec TaskExecutor
	log  logger.Logger
	opts Options
}

// NewController creates a session controller.
func NewController(reg *registry.Registry, exec TaskExecutor, log logger.Logger, opts Options) *Controller {
	if opts.Jobs < 1 {
		opts.Jobs = 1
	}
	return &Controller{reg: reg, exec: exec, log: log, opts: opts}
}

// Run expands the requested names and executes one task per platform.
// Expansion failures (unknown names) abort before any task runs. After
// that, individual failures never stop the session: for N expanded
// platforms the session always holds exactly N results, in request order.
func (c *Controller) Run(ctx context.Context, names ...string) (*types.BuildSession, error) {
	specs, err := c.reg.Resolve(names...)
	if err != nil {
		return nil, err
	}

	expanded := make([]string, len(specs))
	explicit := make(map[string]bool, len(names))
	for _, n := range names {
		explicit[n] = true
	}
	for i := range specs {
		expanded[i] = specs[i].Name
	}

	session := types.NewBuildSession(expanded)
	c.log.Info("starting build session",
		logger.WithField("session", session.ID),
		logger.WithField("platforms", len(specs)),
		logger.WithField("jobs", c.opts.Jobs))

	results := make([]types.BuildResult, len(specs))
	if c.opts.Jobs > 1 {
		c.runParallel(ctx, specs, results)
	} else {
		c.runSequential(ctx, specs, results)
	}

	for i := range results {
		if c.isOptional(&specs[i], explicit) {
			results[i].Optional = true
		}
		session.Results = append(session.Results, results[i])
	}
	session.EndedAt = time.Now()
	return session, nil
}

func (c *Controller) runSequential(ctx context.Context, specs []types.PlatformSpec, results []types.BuildResult) {
	for i := range specs {
		results[i] = c.runOne(ctx, &specs[i])
	}
}

func (c *Controller) runParallel(ctx context.Context, specs []types.PlatformSpec, results []types.BuildResult) {
	group := newSafeGroup(c.log)
	group.SetLimit(c.opts.Jobs)
	for i := range specs {
		// Placeholder keeps the slot attributable if the task panics
		// before runOne returns a result.
		results[i] = types.BuildResult{
			Platform: specs[i].Name,
			Status:   types.StatusFailedCompile,
			Reason:   "platform task aborted",
		}
		group.Go(func() {
			results[i] = c.runOne(ctx, &specs[i])
		})
	}
	group.Wait()
}

// runOne executes a single task, converting every failure mode into a
// recorded result so the surrounding loop never aborts.
func (c *Controller) runOne(ctx context.Context, spec *types.PlatformSpec) types.BuildResult {
	if ctx.Err() != nil {
		return types.BuildResult{
			Platform: spec.Name,
			Status:   types.StatusCancelled,
			Reason:   ctx.Err().Error(),
		}
	}

	result, err := c.exec.Execute(ctx, spec)
	if err != nil {
		// Execution errors (tool unspawnable, output dir uncreatable)
		// are already reflected in the result; the session continues
		// with the remaining platforms.
		c.log.WithPlatform(spec.Name).Error(err.Error())
	}
	if !result.Succeeded() {
		c.log.WithPlatform(spec.Name).Warn("continuing with remaining platforms",
			logger.WithField("status", result.Status))
	}
	return result
}

func (c *Controller) isOptional(spec *types.PlatformSpec, explicit map[string]bool) bool {
	if c.opts.MarkOptional == nil || explicit[spec.Name] {
		return false
	}
	return c.opts.MarkOptional(spec)
}

// Clean removes every known platform's output directory and the stale
// root-level configuration cache the build tool leaves behind. It is
// idempotent: with nothing to remove it succeeds without touching the
// filesystem. Clean must not run concurrently with builds or assembly;
// the command surface guarantees that by construction.
func (c *Controller) Clean(root string) error {
	var errs []error

	for _, spec := range c.reg.ResolveAll() {
		if err := c.removeIfPresent(spec.OutputDir); err != nil {
			errs = append(errs, err)
		}
	}

	for _, stale := range []string{"CMakeCache.txt", "CMakeFiles"} {
		if err := c.removeIfPresent(filepath.Join(root, stale)); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		c.log.Success("cleanup complete")
	}
	return errors.Join(errs...)
}

func (c *Controller) removeIfPresent(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	c.log.Info("removing " + path)
	return os.RemoveAll(path)
}
