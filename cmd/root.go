package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/rvlookup/internal/config"
	"github.com/xkilldash9x/rvlookup/internal/observability"
	"github.com/xkilldash9x/rvlookup/internal/service"
)

// viperKeyAnnotation marks a flag that overrides a configuration key.
const viperKeyAnnotation = "rvlookup/viper-key"

// app carries the state shared by every subcommand of one invocation.
type app struct {
	factory service.ComponentFactory
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
}

// newRootCmd builds the command tree around factory.
func newRootCmd(factory service.ComponentFactory) (*cobra.Command, *app) {
	a := &app{factory: factory}

	rootCmd := &cobra.Command{
		Use:           "rvlookup",
		Short:         "rvlookup looks up Responsible Vendor licenses by driving the public search form.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initialize(cmd)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("backend", "", "browser backend: chromedp, rod or simulated")
	bindFlag(rootCmd.PersistentFlags(), "backend", "browser.backend")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newServeCmd(a), newSearchCmd(a), newVersionCmd())
	return rootCmd, a
}

// bindFlag makes flag override the configuration key when it is set.
func bindFlag(flags *pflag.FlagSet, name, key string) {
	if err := flags.SetAnnotation(name, viperKeyAnnotation, []string{key}); err != nil {
		panic(fmt.Sprintf("bind flag %q: %v", name, err))
	}
}

// initialize loads configuration with the precedence flags, then RVLOOKUP_*
// environment, then the config file, then defaults, and starts logging.
func (a *app) initialize(cmd *cobra.Command) error {
	v := viper.New()
	config.SetDefaults(v)
	config.ConfigureEnv(v)

	if a.cfgFile != "" {
		v.SetConfigFile(a.cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		keys := f.Annotations[viperKeyAnnotation]
		if len(keys) == 0 || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(keys[0], f)
	})
	if bindErr != nil {
		return fmt.Errorf("failed to bind flags: %w", bindErr)
	}

	cfg, err := config.NewConfigFromViper(v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	// Logs go to stderr so command output on stdout stays machine readable.
	observability.Initialize(cfg.Logger, zapcore.Lock(zapcore.AddSync(cmd.ErrOrStderr())))
	a.logger = observability.GetLogger()
	a.logger.Debug("Configuration loaded.",
		zap.String("config_file", v.ConfigFileUsed()),
		zap.String("backend", cfg.Browser.Backend),
	)
	return nil
}

// Execute runs the command line against the production factory.
func Execute(ctx context.Context) error {
	rootCmd, _ := newRootCmd(service.NewComponentFactory())
	defer observability.Sync()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
