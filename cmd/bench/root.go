package bench

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/ValentinKolb/kstore/cmd/util"
	"github.com/ValentinKolb/kstore/lib/codec"
	"github.com/ValentinKolb/kstore/lib/collections"
	"github.com/ValentinKolb/kstore/lib/collections/cache"
	"github.com/ValentinKolb/kstore/lib/common"
	"github.com/ValentinKolb/kstore/lib/dispatch"
	"github.com/ValentinKolb/kstore/lib/lockmgr"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// BenchCmd fills a partition through the dispatcher and per-worker caches
	BenchCmd = &cobra.Command{
		Use:   "bench",
		Short: "Benchmark partitioned inserts through the dispatcher",
		Long: `Dispatches the items 0..items-1 to the workers. Every worker owns a partition
cache over one shared partition and inserts each item repeat times into the
member item % partitions. Afterwards the counts and the placement of every
item are verified.`,
		PreRunE: processConfig,
		RunE:    run,
	}

	config     common.Config
	nbItems    uint64
	nbRepeat   int
	partitions int
	keep       bool
)

func init() {
	cobra.OnInitialize(util.InitConfig)
	util.SetupStorageFlags(BenchCmd)

	key := "items"
	BenchCmd.Flags().Uint64(key, 10000, util.WrapString("Number of distinct items to dispatch"))
	key = "repeat"
	BenchCmd.Flags().Int(key, 500, util.WrapString("How often every item is inserted"))
	key = "partitions"
	BenchCmd.Flags().Int(key, 10, util.WrapString("Number of members of the partition"))
	key = "keep"
	BenchCmd.Flags().Bool(key, false, util.WrapString("Keep the product after the benchmark instead of removing it"))
	key = "metrics"
	BenchCmd.Flags().Bool(key, false, util.WrapString("Print the collection metrics in Prometheus text format"))
	key = "csv"
	BenchCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	if config, err = util.GetConfig(); err != nil {
		return err
	}

	nbItems = viper.GetUint64("items")
	nbRepeat = viper.GetInt("repeat")
	partitions = viper.GetInt("partitions")
	keep = viper.GetBool("keep")

	if nbItems == 0 || nbRepeat < 1 || partitions < 1 {
		return fmt.Errorf("items, repeat and partitions must be positive")
	}
	return nil
}

// result of one benchmark phase
type result struct {
	phase   string
	items   uint64
	elapsed time.Duration
}

func (r result) rate() float64 {
	if r.elapsed <= 0 {
		return 0
	}
	return float64(r.items) / r.elapsed.Seconds()
}

func run(_ *cobra.Command, _ []string) error {
	fmt.Println("Partitioned insert benchmark")
	fmt.Println(config.String())
	fmt.Printf("Items: %d, Repeat: %d, Partitions: %d\n\n", nbItems, nbRepeat, partitions)

	p, err := util.OpenProduct(config, "bench", true)
	if err != nil {
		return err
	}
	defer func() {
		if keep {
			_ = p.Close()
		} else {
			_ = p.Remove()
		}
	}()

	part, err := collections.GetPartition(p, "items", partitions, codec.Uint64())
	if err != nil {
		return err
	}

	d := util.NewDispatcher(config)
	locks := lockmgr.NewLockManager()

	var (
		mu     sync.Mutex
		caches []*cache.PartitionCache[uint64]
	)

	// insert phase
	start := time.Now()
	err = dispatch.IterateRange(d, 0, nbItems-1, func(int) dispatch.Functor[uint64] {
		c := cache.New(part, config.CacheCapacity, locks)
		mu.Lock()
		caches = append(caches, c)
		mu.Unlock()
		return &inserter{cache: c, repeat: nbRepeat}
	})
	if err != nil {
		return fmt.Errorf("insert failed: %w", err)
	}
	insert := result{phase: "insert", items: nbItems * uint64(nbRepeat), elapsed: time.Since(start)}
	printResult(insert)

	// verify phase
	start = time.Now()
	expected := nbItems * uint64(nbRepeat)
	if total := part.NbItems(); total != expected {
		return fmt.Errorf("partition holds %d items, expected %d", total, expected)
	}
	for i := 0; i < part.Size(); i++ {
		member := part.At(i)
		it := member.Iterator()
		err := dispatch.IterateFunc(d, it, func(item uint64) error {
			if item%uint64(partitions) != uint64(i) {
				return fmt.Errorf("item %d stored in member %d", item, i)
			}
			return nil
		})
		_ = it.Close()
		if err != nil {
			return fmt.Errorf("verify failed: %w", err)
		}
	}
	verify := result{phase: "verify", items: expected, elapsed: time.Since(start)}
	printResult(verify)

	// cache statistics over all workers
	var drains, drained int64
	for _, c := range caches {
		s := c.Stats()
		drains += s.Drains
		drained += s.Drained
	}
	fmt.Printf("\nCaches: %d, Drains: %d, Drained: %d\n", len(caches), drains, drained)

	partInfo := part.Info()
	fmt.Printf("Members: min %.0f, max %.0f, quality %.3f\n\n", partInfo.Distribution.Min, partInfo.Distribution.Max, partInfo.Distribution.DistributionQuality)

	fmt.Println("Dispatcher:")
	metrics.WriteOnce(d.Registry(), os.Stdout)

	if viper.GetBool("metrics") {
		fmt.Println()
		collections.WriteMetrics(os.Stdout)
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, []result{insert, verify}); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}
	return nil
}

// inserter inserts every item repeat times through its worker's cache
type inserter struct {
	cache  *cache.PartitionCache[uint64]
	repeat int
}

func (f *inserter) Process(item uint64) error {
	entry := f.cache.Index(int(item % uint64(f.cache.Size())))
	for r := 0; r < f.repeat; r++ {
		if err := entry.Insert(item); err != nil {
			return err
		}
	}
	return nil
}

func (f *inserter) Finish() error {
	return f.cache.Flush()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// printResult prints the result of a benchmark phase in a formatted way
func printResult(r result) {
	fmt.Printf("%-10s%d items in %s\t%.0f items/sec\n", r.phase, r.items, r.elapsed.Round(time.Millisecond), r.rate())
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results []result) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Phase", "Items", "ElapsedNs", "ItemsPerSec",
		"Backend", "Workers", "GroupSize", "CacheCapacity", "Partitions", "Repeat",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for _, r := range results {
		row := []string{
			r.phase,
			strconv.FormatUint(r.items, 10),
			strconv.FormatInt(r.elapsed.Nanoseconds(), 10),
			strconv.FormatFloat(r.rate(), 'f', 0, 64),
			string(config.Backend),
			strconv.Itoa(config.Workers),
			strconv.Itoa(config.GroupSize),
			strconv.Itoa(config.CacheCapacity),
			strconv.Itoa(partitions),
			strconv.Itoa(nbRepeat),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %v", err)
		}
	}
	return nil
}
