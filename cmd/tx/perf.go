package tx

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dTX/cmd/util"
	"github.com/ValentinKolb/dTX/lib/datatree"
	"github.com/ValentinKolb/dTX/rpc/client"
	"github.com/ValentinKolb/dTX/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for dTX backends",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfLog              = logger.GetLogger("perf")
	perfRoot             = "/__perf"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)
)

// perfTest is one benchmark. With prepare every path is written before the
// timer starts, op runs once per iteration.
type perfTest struct {
	name    string
	prepare bool
	op      func(ctx context.Context, path string) error
}

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. submit,read)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the submit-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different paths to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(1, viper.GetInt("keys"))
	perfNumThreads = viper.GetInt("threads")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for dTX backends")

	config, err := util.GetClientConfig()
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(config.String())
	fmt.Printf("Negotiated revision: %s (backend %s)\n", frontend.Revision(), frontend.Backend())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	largeValue := make([]byte, perfLargeValueSizeKB*1024)
	tests := []perfTest{
		{name: "submit", op: func(ctx context.Context, path string) error {
			return submit(ctx, datatree.Write(path, []byte("test")))
		}},
		{name: "submit-large", op: func(ctx context.Context, path string) error {
			return submit(ctx, datatree.Write(path, largeValue))
		}},
		{name: "merge", prepare: true, op: func(ctx context.Context, path string) error {
			return submit(ctx, datatree.Merge(path, []byte(`{"perf":true}`)))
		}},
		{name: "coordinated", op: func(ctx context.Context, path string) error {
			tx := frontend.Standalone().Begin()
			if err := tx.Ready(ctx, datatree.Write(path, []byte("test"))); err != nil {
				return err
			}
			if _, err := tx.CommitCoordinated(ctx); err != nil {
				return err
			}
			return tx.Purge(ctx)
		}},
		{name: "read", prepare: true, op: func(ctx context.Context, path string) error {
			tx := frontend.Standalone().Begin()
			_, err := tx.Read(ctx, path, true)
			finishRead(ctx, tx)
			return err
		}},
		{name: "exists", prepare: true, op: func(ctx context.Context, path string) error {
			tx := frontend.Standalone().Begin()
			_, err := tx.Exists(ctx, path, true)
			finishRead(ctx, tx)
			return err
		}},
	}

	results := make(map[string]testing.BenchmarkResult)
	for _, test := range tests {
		result := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(test.name) {
				return
			}
			ctx := context.Background()
			getPath, root := getPaths(test.name)

			if test.prepare {
				for i := 0; i < perfKeySpread; i++ {
					if err := submit(ctx, datatree.Write(getPath(i), []byte(`{"perf":false}`))); err != nil {
						perfLog.Errorf("(%s) - error preparing %s: %v", test.name, getPath(i), err)
					}
				}
			}

			b.Cleanup(func() {
				if err := submit(ctx, datatree.Delete(root)); err != nil {
					perfLog.Errorf("(%s) - error deleting %s: %v", test.name, root, err)
				}
			})

			b.SetParallelism(perfNumThreads)
			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					if err := test.op(ctx, getPath(counter)); err != nil {
						perfLog.Errorf("(%s) - %v", test.name, err)
					}
					counter++
				}
			})
		})

		results[test.name] = result
		printResult(test.name, result)
	}

	fmt.Println()
	fmt.Printf("stale responses discarded: %d\n", common.StaleResponses())

	if csvPath := viper.GetString("csv"); csvPath != "" {
		if err := writeResultsToCSV(csvPath, results, config); err != nil {
			return err
		}
		fmt.Printf("results written to %s\n", csvPath)
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func submit(ctx context.Context, mod datatree.Modification) error {
	tx := frontend.Standalone().Begin()
	if _, err := tx.Submit(ctx, mod); err != nil {
		return err
	}
	return tx.Purge(ctx)
}

func finishRead(ctx context.Context, tx *client.Transaction) {
	if err := tx.Abort(ctx); err != nil {
		perfLog.Warningf("abort %s: %v", tx.ID(), err)
		return
	}
	if err := tx.Purge(ctx); err != nil {
		perfLog.Warningf("purge %s: %v", tx.ID(), err)
	}
}

func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
}

// getPaths returns a function mapping an index to one of perfKeySpread paths
// (with wraparound) and the common root of those paths.
func getPaths(test string) (func(int) string, string) {
	root := fmt.Sprintf("%s/%s", perfRoot, test)
	paths := make([]string, perfKeySpread)
	for i := range paths {
		paths[i] = fmt.Sprintf("%s/%d", root, i)
	}

	return func(i int) string {
		return paths[i%perfKeySpread]
	}, root
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Endpoints", "AttemptTimeout", "MaxAttempts", "ConnectionsPerEndpoint",
		"ShardID", "Transport", "Revision",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, test := range names {
		result := results[test]
		var nsPerOp, opsPerSec float64
		skipped := "true"
		if result.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			strings.Join(config.Transport.Endpoints, ";"),
			config.Retry.AttemptTimeout.String(),
			strconv.Itoa(config.Retry.MaxAttempts),
			strconv.Itoa(config.Transport.ConnectionsPerEndpoint),
			strconv.FormatUint(util.GetShardID(), 10),
			viper.GetString("transport"),
			frontend.Revision().String(),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
