package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/crossforge/crossforge/pkg/assembler"
	"github.com/crossforge/crossforge/pkg/executor"
	"github.com/crossforge/crossforge/pkg/logger"
	"github.com/crossforge/crossforge/pkg/notifier"
	"github.com/crossforge/crossforge/pkg/process"
	"github.com/crossforge/crossforge/pkg/registry"
	"github.com/crossforge/crossforge/pkg/reporter"
	"github.com/crossforge/crossforge/pkg/session"
	"github.com/crossforge/crossforge/pkg/toolrunner"
	"github.com/crossforge/crossforge/pkg/types"
)

// app bundles the wired components one command invocation uses.
type app struct {
	log logger.Logger
	reg *registry.Registry
	ctl *session.Controller
	asm *assembler.Assembler
}

// newApp loads the preset registry and wires executor, session controller
// and assembler around it. Descriptor problems surface here, before any
// build work starts.
func newApp() (*app, error) {
	log := logger.New(verbosity)

	reg, err := registry.Load(descriptorPath(), registry.Options{
		Root:        projectRoot,
		Library:     effectiveLibrary(),
		BuildConfig: effectiveBuildConfig(),
	})
	if err != nil {
		return nil, err
	}

	runner := toolrunner.NewExecRunner(log)
	exec := executor.New(runner, log, executor.Options{
		Root:        projectRoot,
		BuildConfig: effectiveBuildConfig(),
		AndroidNDK:  effectiveNDK(),
	})

	ctl := session.NewController(reg, exec, log, session.Options{
		Jobs: jobs,
		// Android platforms pulled in by a group alias are best-effort
		// when no NDK is configured; asking for them by name still fails.
		MarkOptional: func(spec *types.PlatformSpec) bool {
			return spec.Family == types.FamilyAndroid && effectiveNDK() == ""
		},
	})

	return &app{
		log: log,
		reg: reg,
		ctl: ctl,
		asm: assembler.New(runner, log),
	}, nil
}

// sessionContext derives the cancellable context one command invocation
// shares between its build session and any assembly that follows, so an
// interrupt also stops a long-running merge.
func (a *app) sessionContext() (context.Context, context.CancelFunc) {
	return process.WithSignals(context.Background(), a.log)
}

// runSession executes the named platforms and prints the summary. The
// returned session is always complete: one result per expanded platform.
func (a *app) runSession(ctx context.Context, names ...string) (*types.BuildSession, error) {
	sess, err := a.ctl.Run(ctx, names...)
	if err != nil {
		return nil, err
	}

	notifier.New(notify, a.log).SessionDone(sess)
	reporter.Summarize(os.Stdout, sess)

	if reporter.ExitCode(sess) != 0 {
		return sess, fmt.Errorf("%d of %d platforms failed",
			sess.FailureCount(), len(sess.Results))
	}
	return sess, nil
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the platforms defined by the preset descriptor",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "PLATFORM\tFAMILY\tARCH\tOUTPUT")
			for _, spec := range a.reg.ResolveAll() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					spec.Name, spec.Family, spec.Arch, spec.OutputDir)
			}
			tw.Flush()

			fmt.Printf("\ngroups: %s, %s, %s, %s, %s\n",
				registry.GroupAll, registry.GroupIOS, registry.GroupAndroid,
				registry.GroupMobile, registry.GroupDesktop)
			return nil
		},
	}
}

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove all build output directories and stale root caches",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			return a.ctl.Clean(projectRoot)
		},
	}
}

func newBuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build <platform|group>...",
		Short: "Build the named platforms or groups",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			ctx, cancel := a.sessionContext()
			defer cancel()
			_, err = a.runSession(ctx, args...)
			return err
		},
	}
}

func newAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Build every platform the descriptor defines",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			ctx, cancel := a.sessionContext()
			defer cancel()
			_, err = a.runSession(ctx, registry.GroupAll)
			return err
		},
	}
}

// newIOSCmd builds the iOS family from clean state, merges the device and
// simulator slices into one universal static library, and optionally
// bundles them into an XCFramework.
func newIOSCmd() *cobra.Command {
	var skipClean bool
	var xcframework bool
	cmd := &cobra.Command{
		Use:   "ios",
		Short: "Build the iOS platforms and assemble the universal library",
		RunE: func(cmd *cobra.Command, args []string) error {
			if runtime.GOOS != "darwin" {
				return fmt.Errorf("ios builds require macOS (running on %s)", runtime.GOOS)
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			ctx, cancel := a.sessionContext()
			defer cancel()

			if !skipClean {
				if err := a.ctl.Clean(projectRoot); err != nil {
					return err
				}
			}

			sess, err := a.runSession(ctx, registry.GroupIOS)
			if err != nil {
				return err
			}

			specs, err := a.reg.Resolve(registry.GroupIOS)
			if err != nil {
				return err
			}
			slices, err := assembler.SlicesFor(sess, specs)
			if err != nil {
				return err
			}

			output := filepath.Join(projectRoot, "dist", "ios",
				fmt.Sprintf("lib%s-universal.a", effectiveLibrary()))
			if err := a.asm.MergeFat(ctx, assembler.MergeSpec{
				Output: output,
				Slices: slices,
			}); err != nil {
				return err
			}
			printSuccess("universal library ready: " + output)

			if xcframework {
				return a.assembleXCFramework(ctx, specs, sess)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipClean, "skip-clean", false, "reuse existing build directories")
	cmd.Flags().BoolVar(&xcframework, "xcframework", false, "also bundle an XCFramework under dist/ios")
	return cmd
}

// assembleXCFramework bundles the iOS device and simulator libraries into
// dist/ios/<library>.xcframework. xcodebuild takes one library per
// platform variant, so the simulator slices are lipo-merged first.
func (a *app) assembleXCFramework(ctx context.Context, specs []types.PlatformSpec, sess *types.BuildSession) error {
	var device, sim []types.PlatformSpec
	for _, spec := range specs {
		if spec.IsSimulator() {
			sim = append(sim, spec)
		} else {
			device = append(device, spec)
		}
	}

	libraries, err := assembler.SlicesFor(sess, device)
	if err != nil {
		return err
	}
	simSlices, err := assembler.SlicesFor(sess, sim)
	if err != nil {
		return err
	}

	switch len(simSlices) {
	case 0:
	case 1:
		libraries = append(libraries, simSlices[0])
	default:
		merged := filepath.Join(projectRoot, "dist", "ios",
			fmt.Sprintf("lib%s-simulator.a", effectiveLibrary()))
		if err := a.asm.MergeFat(ctx, assembler.MergeSpec{
			Output: merged,
			Slices: simSlices,
		}); err != nil {
			return err
		}
		libraries = append(libraries, assembler.Slice{
			Platform: "ios-simulator",
			Path:     merged,
		})
	}

	output := filepath.Join(projectRoot, "dist", "ios", effectiveLibrary()+".xcframework")
	if err := a.asm.CreateXCFramework(ctx, assembler.XCFrameworkSpec{
		Output: output,
		Slices: libraries,
	}); err != nil {
		return err
	}
	printSuccess("xcframework ready: " + output)
	return nil
}

// newAndroidCmd builds the Android family and lays the shared libraries
// out as a jniLibs tree keyed by ABI.
func newAndroidCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "android",
		Short: "Build the Android platforms and lay out the jniLibs bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if effectiveNDK() == "" {
				return fmt.Errorf("no Android NDK configured; set ANDROID_NDK_ROOT, use --ndk-path, or run 'crossforge config set-ndk <path>'")
			}
			ctx, cancel := a.sessionContext()
			defer cancel()

			sess, err := a.runSession(ctx, registry.GroupAndroid)
			if err != nil {
				return err
			}

			specs, err := a.reg.Resolve(registry.GroupAndroid)
			if err != nil {
				return err
			}
			dest := filepath.Join(projectRoot, "dist", "android", "jniLibs")
			if err := a.asm.LayoutBundle(dest, specs, sess); err != nil {
				return err
			}
			printSuccess("jniLibs bundle ready: " + dest)
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("root:          %s\n", projectRoot)
			fmt.Printf("presets:       %s\n", descriptorPath())
			fmt.Printf("library:       %s\n", effectiveLibrary())
			fmt.Printf("build config:  %s\n", effectiveBuildConfig())
			if ndk := effectiveNDK(); ndk != "" {
				fmt.Printf("android ndk:   %s\n", ndk)
			} else {
				fmt.Printf("android ndk:   %s\n", color.YellowString("not configured"))
			}
			if file := viper.ConfigFileUsed(); file != "" {
				fmt.Printf("config file:   %s\n", file)
			}

			settings := viper.AllSettings()
			if len(settings) > 0 {
				keys := make([]string, 0, len(settings))
				for k := range settings {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				fmt.Println("\nsettings:")
				for _, k := range keys {
					fmt.Printf("  %s: %v\n", k, settings[k])
				}
			}
			return nil
		},
	}
	cmd.AddCommand(newConfigSetNDKCmd())
	return cmd
}

// newConfigSetNDKCmd persists the NDK location to the project config file
// after checking it actually contains the CMake toolchain.
func newConfigSetNDKCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-ndk <path>",
		Short: "Persist the Android NDK location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ndk, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			toolchain := filepath.Join(ndk, "build", "cmake", "android.toolchain.cmake")
			if _, err := os.Stat(toolchain); err != nil {
				return fmt.Errorf("%s does not look like an NDK: missing %s", ndk, toolchain)
			}

			viper.Set("android.ndk", ndk)
			target := viper.ConfigFileUsed()
			if target == "" {
				target = filepath.Join(projectRoot, "crossforge.yaml")
			}
			if err := viper.WriteConfigAs(target); err != nil {
				return err
			}
			printSuccess("ndk path saved to " + target)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the crossforge version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("crossforge %s\n", version)
		},
	}
}
