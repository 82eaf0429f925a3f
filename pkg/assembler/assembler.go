// Package assembler turns successful per-architecture build outputs into
// distributable artifacts: multi-architecture merged libraries and
// architecture-keyed bundle trees.
package assembler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/crossforge/crossforge/pkg/logger"
	"github.com/crossforge/crossforge/pkg/toolrunner"
	"github.com/crossforge/crossforge/pkg/types"
)

// ErrAssembly indicates a missing/empty slice or an architecture-set
// mismatch. On this error no partial artifact is left behind.
var ErrAssembly = errors.New("artifact assembly failed")

// Slice is one architecture-specific library produced by a successful
// platform build. The assembler references the file, it does not own it.
type Slice struct {
	Platform string `json:"platform"`
	Arch     string `json:"arch"`
	Path     string `json:"path"`
}

// MergeSpec describes one fat-library merge.
type MergeSpec struct {
	// Output is the final merged library path; it is only ever written
	// whole, via a temporary file renamed into place.
	Output string
	Slices []Slice
}

// manifest is written next to a merged library and records what went into it.
type manifest struct {
	Library   string    `json:"library"`
	Archs     []string  `json:"archs"`
	Slices    []Slice   `json:"slices"`
	CreatedAt time.Time `json:"createdAt"`
}

// Assembler performs post-build artifact assembly.
type Assembler struct {
	runner toolrunner.Runner
	log    logger.Logger
}

// New creates an assembler using the given tool runner for lipo calls.
func New(runner toolrunner.Runner, log logger.Logger) *Assembler {
	return &Assembler{runner: runner, log: log}
}

// SlicesFor gates assembly on the session's results: every constituent
// platform must have status succeeded, otherwise assembly must not start.
// It never re-invokes a build.
func SlicesFor(session *types.BuildSession, specs []types.PlatformSpec) ([]Slice, error) {
	slices := make([]Slice, 0, len(specs))
	for i := range specs {
		res := session.Result(specs[i].Name)
		if res == nil || !res.Succeeded() {
			status := "missing"
			if res != nil {
				status = string(res.Status)
			}
			return nil, fmt.Errorf("%w: platform %s did not succeed (%s)",
				ErrAssembly, specs[i].Name, status)
		}
		slices = append(slices, Slice{
			Platform: specs[i].Name,
			Arch:     specs[i].Arch,
			Path:     specs[i].LibPath,
		})
	}
	return slices, nil
}

// MergeFat merges the slices into one multi-architecture static library.
// Every slice must exist and be non-empty; after the merge the combined
// library must report exactly the expected architecture set, or the
// partially merged output is discarded. On success an architecture
// manifest is written next to the library.
func (a *Assembler) MergeFat(ctx context.Context, spec MergeSpec) error {
	if len(spec.Slices) == 0 {
		return fmt.Errorf("%w: no slices to merge", ErrAssembly)
	}
	if err := verifySlices(spec.Slices); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(spec.Output), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrAssembly, err)
	}

	tmp := spec.Output + ".partial"
	defer os.Remove(tmp)

	args := []string{"-create"}
	for _, s := range spec.Slices {
		args = append(args, s.Path)
	}
	args = append(args, "-output", tmp)

	a.log.Info("merging " + filepath.Base(spec.Output),
		logger.WithField("slices", len(spec.Slices)))
	res, err := a.runner.Run(ctx, toolrunner.Command{Name: "lipo", Args: args})
	if err != nil {
		return fmt.Errorf("%w: lipo: %v", ErrAssembly, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%w: lipo exited %d: %s", ErrAssembly, res.ExitCode, strings.TrimSpace(string(res.Output)))
	}

	expected := expectedArchs(spec.Slices)
	actual, err := a.readArchs(ctx, tmp)
	if err != nil {
		return err
	}
	if !sameSet(expected, actual) {
		return fmt.Errorf("%w: merged library reports archs %v, expected %v",
			ErrAssembly, actual, expected)
	}

	if err := os.Rename(tmp, spec.Output); err != nil {
		return fmt.Errorf("%w: publishing %s: %v", ErrAssembly, spec.Output, err)
	}

	if err := a.writeManifest(spec, expected); err != nil {
		return err
	}
	a.log.Success("merged library written to " + spec.Output)
	return nil
}

// verifySlices checks that every slice file exists and is non-empty.
func verifySlices(slices []Slice) error {
	for _, s := range slices {
		info, err := os.Stat(s.Path)
		if err != nil {
			return fmt.Errorf("%w: slice %s: %v", ErrAssembly, s.Platform, err)
		}
		if info.Size() == 0 {
			return fmt.Errorf("%w: slice %s is empty: %s", ErrAssembly, s.Platform, s.Path)
		}
	}
	return nil
}

// readArchs queries the architecture list the merged library reports.
func (a *Assembler) readArchs(ctx context.Context, path string) ([]string, error) {
	res, err := a.runner.Run(ctx, toolrunner.Command{Name: "lipo", Args: []string{"-archs", path}})
	if err != nil {
		return nil, fmt.Errorf("%w: lipo -archs: %v", ErrAssembly, err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("%w: lipo -archs exited %d", ErrAssembly, res.ExitCode)
	}
	return strings.Fields(string(res.Output)), nil
}

func (a *Assembler) writeManifest(spec MergeSpec, archs []string) error {
	m := manifest{
		Library:   filepath.Base(spec.Output),
		Archs:     archs,
		Slices:    spec.Slices,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAssembly, err)
	}
	path := manifestPath(spec.Output)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: writing manifest: %v", ErrAssembly, err)
	}
	return nil
}

// ManifestPath returns where MergeFat writes the architecture manifest for
// a merged library.
func ManifestPath(output string) string {
	return manifestPath(output)
}

func manifestPath(output string) string {
	ext := filepath.Ext(output)
	return strings.TrimSuffix(output, ext) + ".arches.json"
}

// expectedArchs is the deduplicated architecture set of the slices, in
// first-occurrence order.
func expectedArchs(slices []Slice) []string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range slices {
		if !seen[s.Arch] {
			seen[s.Arch] = true
			out = append(out, s.Arch)
		}
	}
	return out
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		if !set[s] {
			return false
		}
	}
	return true
}

// XCFrameworkSpec describes one XCFramework assembly. Each slice becomes
// one -library argument; xcodebuild rejects duplicate platform variants,
// so slices sharing a variant (the simulators) must be lipo-merged into a
// single library before assembly.
type XCFrameworkSpec struct {
	// Output is the final .xcframework bundle path. An existing bundle is
	// replaced only after the new one is fully built.
	Output string
	Slices []Slice
}

// CreateXCFramework bundles the libraries into an XCFramework with
// xcodebuild. The command surface only reaches this on macOS. Like
// MergeFat, the bundle is staged under a temporary path and swapped into
// place once xcodebuild has succeeded, so a previously published bundle
// survives a failed assembly.
func (a *Assembler) CreateXCFramework(ctx context.Context, spec XCFrameworkSpec) error {
	if len(spec.Slices) == 0 {
		return fmt.Errorf("%w: no libraries to bundle", ErrAssembly)
	}
	if err := verifySlices(spec.Slices); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(spec.Output), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrAssembly, err)
	}

	tmp := spec.Output + ".partial"
	if err := os.RemoveAll(tmp); err != nil {
		return fmt.Errorf("%w: %v", ErrAssembly, err)
	}
	defer os.RemoveAll(tmp)

	args := []string{"-create-xcframework"}
	for _, s := range spec.Slices {
		args = append(args, "-library", s.Path)
	}
	args = append(args, "-output", tmp)

	a.log.Info("assembling "+filepath.Base(spec.Output),
		logger.WithField("libraries", len(spec.Slices)))
	res, err := a.runner.Run(ctx, toolrunner.Command{Name: "xcodebuild", Args: args})
	if err != nil {
		return fmt.Errorf("%w: xcodebuild: %v", ErrAssembly, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%w: xcodebuild exited %d: %s", ErrAssembly, res.ExitCode, strings.TrimSpace(string(res.Output)))
	}
	if _, err := os.Stat(filepath.Join(tmp, "Info.plist")); err != nil {
		return fmt.Errorf("%w: xcodebuild left no bundle manifest: %v", ErrAssembly, err)
	}

	if err := os.RemoveAll(spec.Output); err != nil {
		return fmt.Errorf("%w: replacing %s: %v", ErrAssembly, spec.Output, err)
	}
	if err := os.Rename(tmp, spec.Output); err != nil {
		return fmt.Errorf("%w: publishing %s: %v", ErrAssembly, spec.Output, err)
	}
	a.log.Success("xcframework written to " + spec.Output)
	return nil
}

// LayoutBundle copies each succeeded platform's shared library into a
// canonical tree keyed by architecture tag (dist/android/jniLibs/<abi>/).
// It is a pure filesystem copy with overwrite-if-newer semantics; no merge.
func (a *Assembler) LayoutBundle(destRoot string, specs []types.PlatformSpec, session *types.BuildSession) error {
	copied := 0
	for i := range specs {
		spec := &specs[i]
		res := session.Result(spec.Name)
		if res == nil || !res.Succeeded() {
			a.log.Warn("skipping bundle slice: build did not succeed",
				logger.WithField("platform", spec.Name))
			continue
		}

		tag := spec.ABI
		if tag == "" {
			tag = spec.Arch
		}
		dest := filepath.Join(destRoot, tag, filepath.Base(spec.LibPath))
		changed, err := copyIfNewer(spec.LibPath, dest)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrAssembly, spec.Name, err)
		}
		if changed {
			a.log.Info("bundled " + dest)
		}
		copied++
	}
	if copied == 0 {
		return fmt.Errorf("%w: no successful platforms to bundle", ErrAssembly)
	}
	a.log.Success(fmt.Sprintf("bundle layout complete: %d libraries under %s", copied, destRoot))
	return nil
}

// copyIfNewer copies src over dst when dst is absent or older than src.
func copyIfNewer(src, dst string) (bool, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return false, err
	}
	if dstInfo, err := os.Stat(dst); err == nil {
		if !srcInfo.ModTime().After(dstInfo.ModTime()) {
			return false, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return false, err
	}
	in, err := os.Open(src)
	if err != nil {
		return false, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return false, err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return false, err
	}
	return true, out.Sync()
}
