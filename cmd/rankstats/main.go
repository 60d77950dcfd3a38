// Command rankstats samples the score distribution of the ranking engine
// for one graph and seed set. The evidence pipeline's thresholds (score gap
// ratio, community penalty) are calibrated against this distribution; rerun
// the sampling after changing ranking weights to recalibrate them.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/lexgraph/lexgraph/internal/config"
	"github.com/lexgraph/lexgraph/internal/util"
	"github.com/lexgraph/lexgraph/pkg/logger"
	"github.com/lexgraph/lexgraph/pkg/logger/console"
	"github.com/lexgraph/lexgraph/pkg/rank"
	pgxstore "github.com/lexgraph/lexgraph/pkg/store/pgx"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

func main() {
	graphID := flag.Int64("graph", 0, "graph id to sample")
	seedsArg := flag.String("seeds", "", "comma-separated seed entity ids")
	topK := flag.Int("top", 0, "ranked entity cap (0 uses the configured default)")
	flag.Parse()

	util.LoadEnv()
	cfg := config.Load()

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: cfg.Debug,
	})
	logger.Init(consoleLogger)

	if *graphID == 0 || *seedsArg == "" {
		fmt.Fprintln(os.Stderr, "usage: rankstats -graph <id> -seeds <id,id,...> [-top n]")
		os.Exit(2)
	}

	seeds, err := parseSeeds(*seedsArg)
	if err != nil {
		logger.Fatal("Invalid seeds", "err", err)
	}

	rankCfg := cfg.Rank
	if *topK > 0 {
		rankCfg.TopK = *topK
	}

	ctx := context.Background()
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to parse database URL", "err", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	conn, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer conn.Close()

	st := pgxstore.NewGraphDBStore(conn)
	g, err := st.LoadRankGraph(ctx, *graphID)
	if err != nil {
		logger.Fatal("Failed to load rank graph", "err", err)
	}

	ranked := rank.Rank(g, seeds, rankCfg)
	if len(ranked) == 0 {
		fmt.Println("no ranked entities")
		return
	}

	scores := make([]float64, 0, len(ranked))
	for _, e := range ranked {
		scores = append(scores, e.Score)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(scores)))

	fmt.Printf("graph %d, %d seeds, %d ranked entities\n", *graphID, len(seeds), len(scores))
	fmt.Printf("max    %.6f\n", scores[0])
	for _, p := range []int{95, 90, 75, 50} {
		fmt.Printf("p%d    %.6f\n", p, percentile(scores, p))
	}
	fmt.Printf("min    %.6f\n", scores[len(scores)-1])

	// Relative drop between adjacent ranks, the signal the score-gap stage
	// thresholds against.
	fmt.Println("rank  score      drop")
	for i := 0; i < len(scores) && i < 20; i++ {
		drop := 0.0
		if i > 0 && scores[i-1] > 0 {
			drop = 1 - scores[i]/scores[i-1]
		}
		fmt.Printf("%-5d %.6f  %.3f\n", i+1, scores[i], drop)
	}
}

func parseSeeds(arg string) ([]int64, error) {
	parts := strings.Split(arg, ",")
	seeds := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, id)
	}
	return seeds, nil
}

// percentile of descending-sorted scores, nearest-rank.
func percentile(desc []float64, p int) float64 {
	idx := (p*len(desc) + 99) / 100
	if idx < 1 {
		idx = 1
	}
	if idx > len(desc) {
		idx = len(desc)
	}
	return desc[len(desc)-idx]
}
