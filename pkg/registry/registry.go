// Package registry loads the platform preset descriptor and resolves
// platform names and group aliases into typed specs.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/crossforge/crossforge/pkg/types"
)

// Sentinel errors for registry operations. Callers check them with errors.Is.
var (
	// ErrInvalidDescriptor indicates the preset descriptor is missing,
	// unreadable, or malformed. Startup-fatal: no session runs.
	ErrInvalidDescriptor = errors.New("invalid preset descriptor")

	// ErrUnknownPlatform indicates a requested platform or group name
	// that the descriptor does not define.
	ErrUnknownPlatform = errors.New("unknown platform")
)

// Group aliases expanded by Resolve. "all" additionally resolves every
// known platform.
const (
	GroupAll     = "all"
	GroupIOS     = "ios"
	GroupAndroid = "android"
	GroupMobile  = "mobile"
	GroupDesktop = "desktop"
)

// Options controls how descriptor entries are turned into platform specs.
type Options struct {
	// Root is the project directory build output lives under.
	Root string
	// Library is the base library name without the "lib" prefix or an
	// extension, e.g. "highs".
	Library string
	// BuildConfig is the configuration name used by multi-config
	// generators ("Release", "Debug").
	BuildConfig string
}

// Registry holds the loaded platform set in descriptor declaration order.
type Registry struct {
	specs  []types.PlatformSpec
	byName map[string]int
	opts   Options
}

// descriptor mirrors the subset of CMakePresets.json the registry consumes.
type descriptor struct {
	ConfigurePresets []presetEntry `json:"configurePresets" yaml:"configurePresets"`
}

type presetEntry struct {
	Name      string `json:"name" yaml:"name"`
	Hidden    bool   `json:"hidden" yaml:"hidden"`
	Generator string `json:"generator" yaml:"generator"`
	BinaryDir string `json:"binaryDir" yaml:"binaryDir"`
}

// Load reads the descriptor at path and builds a validated registry.
// JSON is tried first, then YAML, matching the descriptor conventions the
// build presets ship in.
func Load(path string, opts Options) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}

	var desc descriptor
	if jsonErr := json.Unmarshal(data, &desc); jsonErr != nil {
		if yamlErr := yaml.Unmarshal(data, &desc); yamlErr != nil {
			return nil, fmt.Errorf("%w: %s is neither valid JSON (%v) nor YAML (%v)",
				ErrInvalidDescriptor, filepath.Base(path), jsonErr, yamlErr)
		}
	}

	if opts.Root == "" {
		opts.Root = filepath.Dir(path)
	}
	if opts.BuildConfig == "" {
		opts.BuildConfig = "Release"
	}
	if opts.Library == "" {
		opts.Library = "native"
	}

	r := &Registry{byName: make(map[string]int), opts: opts}
	for _, entry := range desc.ConfigurePresets {
		if entry.Hidden {
			continue
		}
		if entry.Name == "" {
			return nil, fmt.Errorf("%w: preset with empty name", ErrInvalidDescriptor)
		}
		if _, dup := r.byName[entry.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate preset %q", ErrInvalidDescriptor, entry.Name)
		}
		spec, err := buildSpec(entry, opts)
		if err != nil {
			return nil, err
		}
		r.byName[entry.Name] = len(r.specs)
		r.specs = append(r.specs, spec)
	}

	if len(r.specs) == 0 {
		return nil, fmt.Errorf("%w: no configure presets defined", ErrInvalidDescriptor)
	}
	return r, nil
}

// buildSpec derives the typed spec for one descriptor entry. Family, arch
// and toolchain preconditions follow the preset naming convention
// (<family>-<arch> with an optional "simulator" segment).
func buildSpec(entry presetEntry, opts Options) (types.PlatformSpec, error) {
	outDir, err := outputDir(entry, opts.Root)
	if err != nil {
		return types.PlatformSpec{}, err
	}

	spec := types.PlatformSpec{
		Name:      entry.Name,
		Preset:    entry.Name,
		Generator: entry.Generator,
		OutputDir: outDir,
		Family:    family(entry.Name),
		Arch:      arch(entry.Name),
	}

	gen := strings.ToLower(entry.Generator)
	spec.MultiConfig = strings.Contains(gen, "xcode") || strings.Contains(gen, "visual studio")

	switch spec.Family {
	case types.FamilyAndroid:
		spec.ABI = androidABI(spec.Arch)
		spec.RequiredEnv = []string{"ANDROID_NDK_ROOT"}
	}

	spec.LibPath = libPath(spec, opts)
	return spec, nil
}

// outputDir resolves the entry's binaryDir, defaulting to the
// build-<name> convention next to the descriptor.
func outputDir(entry presetEntry, root string) (string, error) {
	if entry.BinaryDir == "" {
		return filepath.Join(root, "build-"+entry.Name), nil
	}
	dir := strings.ReplaceAll(entry.BinaryDir, "${sourceDir}", root)
	if strings.Contains(dir, "${") {
		return "", fmt.Errorf("%w: preset %q: unresolvable binaryDir %q",
			ErrInvalidDescriptor, entry.Name, entry.BinaryDir)
	}
	return dir, nil
}

func family(name string) types.PlatformFamily {
	switch {
	case strings.HasPrefix(name, "ios-"):
		return types.FamilyIOS
	case strings.HasPrefix(name, "android-"):
		return types.FamilyAndroid
	default:
		return types.FamilyDesktop
	}
}

// arch maps the preset name's trailing arch tag to the toolchain identifier.
func arch(name string) string {
	tag := name[strings.LastIndex(name, "-")+1:]
	switch tag {
	case "x64":
		return "x86_64"
	case "x86":
		return "i686"
	case "arm32":
		return "armv7"
	default:
		return tag
	}
}

func androidABI(arch string) string {
	switch arch {
	case "arm64":
		return "arm64-v8a"
	case "armv7":
		return "armeabi-v7a"
	case "i686":
		return "x86"
	default:
		return "x86_64"
	}
}

// libPath computes where a successful build leaves its library. Multi-config
// generators nest the configuration directory; library extension follows the
// family: static archives for iOS, shared objects elsewhere except Windows
// and macOS which keep their native conventions.
func libPath(spec types.PlatformSpec, opts Options) string {
	dir := spec.OutputDir
	if spec.MultiConfig {
		dir = filepath.Join(dir, opts.BuildConfig)
	}

	name := "lib" + opts.Library
	switch {
	case spec.Family == types.FamilyIOS:
		name += ".a"
	case spec.Family == types.FamilyAndroid:
		name += ".so"
	case strings.HasPrefix(spec.Name, "windows"):
		name = opts.Library + ".dll"
	case strings.HasPrefix(spec.Name, "macos"):
		name += ".dylib"
	default:
		name += ".so"
	}
	return filepath.Join(dir, "lib", name)
}

// Lookup returns the spec for an exact platform name.
func (r *Registry) Lookup(name string) (*types.PlatformSpec, error) {
	i, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, name)
	}
	return &r.specs[i], nil
}

// ResolveAll returns every known platform in declaration order.
func (r *Registry) ResolveAll() []types.PlatformSpec {
	out := make([]types.PlatformSpec, len(r.specs))
	copy(out, r.specs)
	return out
}

// Names returns every known platform name in declaration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.specs))
	for i := range r.specs {
		out[i] = r.specs[i].Name
	}
	return out
}

// Resolve expands platform names and group aliases into a deduplicated,
// order-preserving spec list. iOS groups are ordered device first, then
// simulator variants. An unknown name fails the whole resolution with no
// partial result.
func (r *Registry) Resolve(names ...string) ([]types.PlatformSpec, error) {
	var out []types.PlatformSpec
	seen := make(map[string]bool)

	add := func(specs ...types.PlatformSpec) {
		for _, s := range specs {
			if !seen[s.Name] {
				seen[s.Name] = true
				out = append(out, s)
			}
		}
	}

	for _, name := range names {
		switch name {
		case GroupAll:
			add(r.specs...)
		case GroupIOS:
			add(r.familySpecs(types.FamilyIOS)...)
		case GroupAndroid:
			add(r.familySpecs(types.FamilyAndroid)...)
		case GroupMobile:
			add(r.familySpecs(types.FamilyIOS)...)
			add(r.familySpecs(types.FamilyAndroid)...)
		case GroupDesktop:
			add(r.familySpecs(types.FamilyDesktop)...)
		default:
			spec, err := r.Lookup(name)
			if err != nil {
				return nil, err
			}
			add(*spec)
		}
	}
	return out, nil
}

// familySpecs returns a family's platforms in declaration order, except that
// iOS device slices precede simulator slices. Downstream assembly keys by
// architecture, so the order matters only for summary readability.
func (r *Registry) familySpecs(fam types.PlatformFamily) []types.PlatformSpec {
	var out []types.PlatformSpec
	for i := range r.specs {
		if r.specs[i].Family == fam && !r.specs[i].IsSimulator() {
			out = append(out, r.specs[i])
		}
	}
	if fam == types.FamilyIOS {
		for i := range r.specs {
			if r.specs[i].Family == fam && r.specs[i].IsSimulator() {
				out = append(out, r.specs[i])
			}
		}
	}
	return out
}

// Options returns the options the registry was loaded with.
func (r *Registry) Options() Options {
	return r.opts
}
