// Package cli provides the crossforge command-line interface.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile     string
	projectRoot string
	presetsFile string
	verbosity   string
	libraryName string
	buildConfig string
	ndkFlag     string
	jobs        int
	notify      bool
	version     string
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "crossforge",
	Short: "Cross-platform native library build orchestrator",
	Long: `crossforge drives an existing CMake-preset build across desktop,
iOS and Android platform presets, then assembles the successful outputs
into distributable artifacts: universal (fat) static libraries for the
iOS family and an ABI-keyed bundle tree for Android.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the CLI.
func Execute(v string) error {
	version = v
	initializeRootCommand()
	return rootCmd.Execute()
}

// initializeRootCommand sets up the root command and its flags explicitly,
// keeping initialization out of init() so tests can re-run it.
func initializeRootCommand() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: crossforge.yaml in the project root)")
	rootCmd.PersistentFlags().StringVar(&projectRoot, "root", ".", "project root directory")
	rootCmd.PersistentFlags().StringVar(&presetsFile, "presets", "", "preset descriptor (default: CMakePresets.json in the project root)")
	rootCmd.PersistentFlags().StringVarP(&verbosity, "verbosity", "v", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&libraryName, "library", "", "library base name without the lib prefix")
	rootCmd.PersistentFlags().StringVar(&buildConfig, "build-config", "", "build configuration (Release, Debug)")
	rootCmd.PersistentFlags().StringVar(&ndkFlag, "ndk-path", "", "Android NDK location")
	rootCmd.PersistentFlags().IntVarP(&jobs, "jobs", "j", 1, "maximum concurrent platform builds")
	rootCmd.PersistentFlags().BoolVar(&notify, "notify", false, "desktop notification when the session finishes")

	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newCleanCmd())
	rootCmd.AddCommand(newBuildCmd())
	rootCmd.AddCommand(newAllCmd())
	rootCmd.AddCommand(newIOSCmd())
	rootCmd.AddCommand(newAndroidCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(projectRoot)
		viper.SetConfigName("crossforge")
		viper.SetConfigType("yaml")
	}

	viper.SetDefault("library", "highs")
	viper.SetDefault("buildConfig", "Release")

	viper.SetEnvPrefix("CROSSFORGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Missing config file is fine; flags and defaults cover everything.
	_ = viper.ReadInConfig()
}

// Effective settings: flag wins, then CROSSFORGE_* env / config file.

func effectiveLibrary() string {
	if libraryName != "" {
		return libraryName
	}
	return viper.GetString("library")
}

func effectiveBuildConfig() string {
	if buildConfig != "" {
		return buildConfig
	}
	return viper.GetString("buildConfig")
}

// effectiveNDK resolves the Android NDK location from the flag, the
// config file, or the conventional environment variables.
func effectiveNDK() string {
	if ndkFlag != "" {
		return ndkFlag
	}
	if ndk := viper.GetString("android.ndk"); ndk != "" {
		return ndk
	}
	if ndk := os.Getenv("ANDROID_NDK_ROOT"); ndk != "" {
		return ndk
	}
	return os.Getenv("ANDROID_NDK_HOME")
}

func descriptorPath() string {
	if presetsFile != "" {
		return presetsFile
	}
	return filepath.Join(projectRoot, "CMakePresets.json")
}

func printSuccess(message string) {
	fmt.Printf("%s %s\n", color.GreenString("[crossforge]"), message)
}
