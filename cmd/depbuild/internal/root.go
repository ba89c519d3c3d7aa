package internal

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/goplus/depbuild/internal/build"
	"github.com/goplus/depbuild/internal/dlog"
	"github.com/goplus/depbuild/internal/env"
	"github.com/goplus/depbuild/pkgs/fetch"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const envPrefix = "depbuild"

var (
	cfgFile   string
	configErr error
)

var rootCmd = &cobra.Command{
	Use:   "depbuild",
	Short: "depbuild fetches, builds and installs native dependencies",
	Long: `depbuild downloads source archives, unpacks them, and runs
configure, make and make install (or copies header-only trees) for the
native libraries a project depends on. Every step is printed as a timed,
foldable CI log group.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return configErr
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./depbuild.yaml or $HOME/.depbuild/depbuild.yaml)")
	flags.String("log-level", dlog.LevelInfo, "log level: debug, info or none")
	flags.Int("jobs", 0, "parallel make jobs, 0 means one per CPU")
	flags.String("prefix", "", "installation prefix passed to configure")
	flags.String("work-dir", "", "directory for archives, sources and the build tree (default is the current directory)")
	flags.String("archive-dir", "", "directory holding pre-staged archives (default is <user cache>/.depbuild/src)")
	flags.Bool("keep-archive", false, "keep downloaded archives after unpacking")

	for _, name := range []string{"log-level", "jobs", "prefix", "work-dir", "archive-dir", "keep-archive"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			log.Fatal(err)
		}
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".depbuild"))
		}
		viper.SetConfigName("depbuild")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	configErr = nil
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			configErr = err
		}
	}
}

func newLogger(cmd *cobra.Command) (*zap.SugaredLogger, error) {
	return dlog.New(cmd.OutOrStdout(), viper.GetString("log-level"))
}

// builderOptions assembles build options from flags, environment and the
// config file. The default archive directory is only created when needed.
func builderOptions(cmd *cobra.Command, logger *zap.SugaredLogger, needArchiveDir bool) (build.Options, error) {
	archiveDir := viper.GetString("archive-dir")
	if archiveDir == "" && needArchiveDir {
		dir, err := env.ArchiveDir()
		if err != nil {
			return build.Options{}, err
		}
		archiveDir = dir
	}
	return build.Options{
		Logger:      logger,
		Fetcher:     fetch.New(logger),
		WorkDir:     viper.GetString("work-dir"),
		Prefix:      viper.GetString("prefix"),
		Jobs:        viper.GetInt("jobs"),
		ArchiveDir:  archiveDir,
		KeepArchive: viper.GetBool("keep-archive"),
		Stdout:      cmd.OutOrStdout(),
		Stderr:      cmd.ErrOrStderr(),
	}, nil
}
