// cps-audit retrieves every CPS enrollment of one or more contracts in
// batches, retries the failures once, and prints what could not be fetched.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev" // set by the linker
var cfgFile string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// Cobra has already printed the error.
		stop()
		os.Exit(1)
	}
}

var rootCmd *cobra.Command

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd = newRootCmd()
	setDefaults()
}

// setDefaults registers the values used when neither a flag, the config
// file nor the environment sets a key.
func setDefaults() {
	viper.SetDefault("audit.batch_size", 20)
	viper.SetDefault("audit.retry_batch_size", 10)
	viper.SetDefault("audit.concurrency", 5)
	viper.SetDefault("audit.retry_concurrency", 2)
	viper.SetDefault("audit.max_batches_in_flight", 0)
	viper.SetDefault("audit.max_contracts_in_flight", 1)

	viper.SetDefault("cps.user_agent", "cps-audit/"+version)
	viper.SetDefault("cps.timeout", "30s")
	viper.SetDefault("cps.requests_per_second", 5)
	viper.SetDefault("cps.max_auth_failures", 3)
	viper.SetDefault("cps.cache_ttl", "10m")

	viper.SetDefault("redis.db", 0)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("progress.buffer", 1024)
}

// newRootCmd creates the root command. Tests build fresh instances with it.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cps-audit",
		Short: "Audit CPS certificate enrollments across contracts",
		Long: `cps-audit lists the enrollments of the given contracts, fetches each one
in bounded batches, retries everything that failed once, and reports the
enrollments that still could not be retrieved.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(newAuditCmd())
	cmd.AddCommand(newContractsCmd())
	cmd.AddCommand(newEnrollmentsCmd())

	cmd.Version = version

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.cps-audit.yaml or ./.cps-audit.yaml)")
	cmd.PersistentFlags().String("base-url", "", "CPS API base URL")
	cmd.PersistentFlags().String("account-key", "", "account switch key sent with every request")
	cmd.PersistentFlags().Int("requests-per-second", 5, "shared CPS request budget (needs --redis-addr)")
	cmd.PersistentFlags().String("redis-addr", "", "Redis address for the shared cache and rate limit (optional)")
	cmd.PersistentFlags().String("log-level", "info", `log level ("debug", "info", "warn", "error")`)
	cmd.PersistentFlags().Bool("log-pretty", false, "human-readable log output")

	viper.BindPFlag("cps.base_url", cmd.PersistentFlags().Lookup("base-url"))
	viper.BindPFlag("cps.account_switch_key", cmd.PersistentFlags().Lookup("account-key"))
	viper.BindPFlag("cps.requests_per_second", cmd.PersistentFlags().Lookup("requests-per-second"))
	viper.BindPFlag("redis.addr", cmd.PersistentFlags().Lookup("redis-addr"))
	viper.BindPFlag("log.level", cmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.pretty", cmd.PersistentFlags().Lookup("log-pretty"))

	return cmd
}

// initConfig reads .cps-audit.yaml from the home or current directory (or
// --config) and CPS_AUDIT_* environment variables, e.g. CPS_AUDIT_CPS_BASE_URL.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".cps-audit")
	}

	viper.SetEnvPrefix("CPS_AUDIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFile != "" {
			cobra.CheckErr(err)
		}
	}
}
