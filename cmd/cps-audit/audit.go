package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/cps-audit/pkg/audit"
	"github.com/Sternrassler/cps-audit/pkg/client"
	"github.com/Sternrassler/cps-audit/pkg/enrollment"
	"github.com/Sternrassler/cps-audit/pkg/logging"
	"github.com/Sternrassler/cps-audit/pkg/metrics"
	"github.com/Sternrassler/cps-audit/pkg/progress"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// errUnresolved makes the process exit non-zero when enrollments are missing
// from the result.
var errUnresolved = errors.New("enrollments could not be retrieved")

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit [contract-id...]",
		Short: "Fetch every enrollment of the given contracts",
		Long: `Fetches every enrollment of the given contracts (all top-level contracts
when none are given), retries the failed ones once and prints a summary per
contract. Exits non-zero when an enrollment is still missing after the retry.`,
		RunE: runAudit,
	}

	cmd.Flags().Int("batch-size", 20, "enrollments per batch in the initial pass")
	cmd.Flags().Int("retry-batch-size", 10, "enrollments per batch in the retry pass (0 = batch size)")
	cmd.Flags().Int("concurrency", 5, "concurrent fetches in the initial pass")
	cmd.Flags().Int("retry-concurrency", 2, "concurrent fetches in the retry pass")
	cmd.Flags().Int("max-batches", 0, "batches in flight per contract (0 = unlimited)")
	cmd.Flags().Int("max-contracts", 1, "contracts processed at once (0 = unlimited)")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address while the audit runs")
	cmd.Flags().Bool("refresh", false, "drop the account's cached enrollments before fetching (needs --redis-addr)")

	viper.BindPFlag("audit.batch_size", cmd.Flags().Lookup("batch-size"))
	viper.BindPFlag("audit.retry_batch_size", cmd.Flags().Lookup("retry-batch-size"))
	viper.BindPFlag("audit.concurrency", cmd.Flags().Lookup("concurrency"))
	viper.BindPFlag("audit.retry_concurrency", cmd.Flags().Lookup("retry-concurrency"))
	viper.BindPFlag("audit.max_batches_in_flight", cmd.Flags().Lookup("max-batches"))
	viper.BindPFlag("audit.max_contracts_in_flight", cmd.Flags().Lookup("max-contracts"))
	viper.BindPFlag("metrics.addr", cmd.Flags().Lookup("metrics-addr"))

	return cmd
}

func runAudit(cmd *cobra.Command, args []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	logging.Setup(s.Log)
	logger := logging.NewLogger("cli")
	ctx := cmd.Context()

	cl, closeClient, err := openClient(ctx, s, logger)
	if err != nil {
		return err
	}
	defer closeClient()

	if refresh, _ := cmd.Flags().GetBool("refresh"); refresh {
		if _, err := cl.PurgeCache(ctx); err != nil {
			return err
		}
	}

	if s.MetricsAddr != "" {
		srv, err := metrics.NewServer(s.MetricsAddr, logging.NewLogger("metrics"))
		if err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	contracts, err := cl.Contracts(ctx, args...)
	if err != nil {
		return err
	}

	reporter := progress.NewAsync(progress.NewLogReporter(logging.NewLogger("progress")), s.ProgressBuffer)
	auditor, err := audit.New(cl, s.Audit, audit.WithReporter(reporter), audit.WithLogger(logging.NewLogger("audit")))
	if err != nil {
		reporter.Close()
		return err
	}

	report, err := auditor.Run(ctx, contracts)
	reporter.Close()
	if errors.Is(err, audit.ErrNoEnrollments) {
		fmt.Fprintln(cmd.OutOrStdout(), "No enrollments found.")
		return nil
	}
	if err != nil {
		return err
	}

	printReport(cmd.OutOrStdout(), report)
	if n := report.Unresolved(); n > 0 {
		return fmt.Errorf("%d %w", n, errUnresolved)
	}
	return nil
}

// openClient builds the CPS client, connecting to Redis when configured.
func openClient(ctx context.Context, s settings, logger zerolog.Logger) (*client.Client, func(), error) {
	var rdb *redis.Client
	if s.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: s.RedisAddr, DB: s.RedisDB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", s.RedisAddr, err)
		}
		logger.Info().Str("addr", s.RedisAddr).Msg("Connected to Redis")
		s.Client.Redis = rdb
	}

	cl, err := client.New(s.Client)
	if err != nil {
		if rdb != nil {
			rdb.Close()
		}
		return nil, nil, err
	}

	return cl, func() {
		cl.Close()
		if rdb != nil {
			rdb.Close()
		}
	}, nil
}

// printReport writes one line per contract and lists unresolved IDs.
func printReport(w io.Writer, r audit.Report) {
	fmt.Fprintf(w, "Run %s (%s)\n", r.RunID, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	for _, res := range r.Results {
		fmt.Fprintf(w, "%s\tretrieved=%d\tunresolved=%d", res.ContractID, len(res.Successes), res.StillFailedIDs.Len())
		if res.StillFailedIDs.Len() > 0 {
			fmt.Fprintf(w, "\tids=%s", joinIDs(res.StillFailedIDs.Sorted()))
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Total\tretrieved=%d\tunresolved=%d\n", r.Succeeded(), r.Unresolved())
}

func joinIDs(ids []enrollment.ID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(int64(id), 10)
	}
	return strings.Join(parts, ",")
}
