package main

import (
	"fmt"
	"os"

	"github.com/Sternrassler/cps-audit/pkg/audit"
	"github.com/Sternrassler/cps-audit/pkg/client"
	"github.com/Sternrassler/cps-audit/pkg/logging"
	"github.com/spf13/viper"
)

// settings is the resolved configuration of one CLI invocation.
type settings struct {
	Audit  audit.Config
	Client client.Config
	Log    logging.Config

	RedisAddr      string
	RedisDB        int
	MetricsAddr    string
	ProgressBuffer int
}

// loadSettings maps viper keys onto the library configs. Validation of the
// audit knobs is left to audit.New and client.New.
func loadSettings() (settings, error) {
	level, err := logging.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		return settings{}, err
	}

	baseURL := viper.GetString("cps.base_url")
	if baseURL == "" {
		return settings{}, fmt.Errorf("cps base url is required (--base-url or cps.base_url)")
	}

	cc := client.DefaultConfig(baseURL, viper.GetString("cps.user_agent"))
	cc.AccountSwitchKey = viper.GetString("cps.account_switch_key")
	cc.Timeout = viper.GetDuration("cps.timeout")
	cc.CacheTTL = viper.GetDuration("cps.cache_ttl")
	cc.RequestsPerSecond = viper.GetInt("cps.requests_per_second")
	cc.MaxAuthFailures = viper.GetInt("cps.max_auth_failures")

	return settings{
		Audit: audit.Config{
			BatchSize:             viper.GetInt("audit.batch_size"),
			RetryBatchSize:        viper.GetInt("audit.retry_batch_size"),
			ConcurrencyLimit:      viper.GetInt("audit.concurrency"),
			RetryConcurrencyLimit: viper.GetInt("audit.retry_concurrency"),
			MaxBatchesInFlight:    viper.GetInt("audit.max_batches_in_flight"),
			MaxContractsInFlight:  viper.GetInt("audit.max_contracts_in_flight"),
		},
		Client: cc,
		Log: logging.Config{
			Level:   level,
			Pretty:  viper.GetBool("log.pretty"),
			Output:  os.Stderr,
			Service: "cps-audit",
		},
		RedisAddr:      viper.GetString("redis.addr"),
		RedisDB:        viper.GetInt("redis.db"),
		MetricsAddr:    viper.GetString("metrics.addr"),
		ProgressBuffer: viper.GetInt("progress.buffer"),
	}, nil
}
