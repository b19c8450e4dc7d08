package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/anujsainicse/funding-profit-inr/internal/application/port"
	"github.com/anujsainicse/funding-profit-inr/internal/domain/model"
	"github.com/anujsainicse/funding-profit-inr/internal/infrastructure/config"
	redisstore "github.com/anujsainicse/funding-profit-inr/internal/infrastructure/storage/redis"
)

// freshnessCheck is one per-source probe: the timestamp field that source
// writes and how old it may be before the check fails.
type freshnessCheck struct {
	source  string
	prefix  string
	tsField string
	maxAge  time.Duration
}

// Quick diagnostic: verifies Redis connectivity, per-prefix key counts and
// freshness of a probe instrument, all driven by the same config file the
// monitor runs on. Exit code 1 when any check fails.
func main() {
	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	probe := flag.String("probe", "BTC", "instrument used for freshness checks")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	ok := true

	if err := rdb.Ping(ctx).Err(); err != nil {
		printResult("redis connection", false, err.Error())
		os.Exit(1)
	}
	printResult("redis connection", true, cfg.Redis.Addr)

	store := redisstore.New(rdb)
	checks := buildChecks(cfg)

	for _, prefix := range distinctPrefixes(checks) {
		keys, err := store.ListKeys(ctx, prefix+":")
		if err != nil {
			printResult(prefix+" keys", false, err.Error())
			ok = false
			continue
		}
		coins := make([]string, 0, len(keys))
		for _, k := range keys {
			if i := strings.IndexByte(k, ':'); i >= 0 {
				coins = append(coins, k[i+1:])
			}
		}
		printResult(prefix+" keys", len(keys) > 0, fmt.Sprintf("%d symbols %v", len(keys), coins))
		if len(keys) == 0 {
			ok = false
		}
	}

	coin := strings.ToUpper(strings.TrimSpace(*probe))
	for _, c := range checks {
		if !checkFreshness(ctx, store, c, coin, time.Now()) {
			ok = false
		}
	}

	if !ok {
		os.Exit(1)
	}
}

// buildChecks derives one freshness probe per enabled worker, bounded by
// that worker's own staleness threshold.
func buildChecks(cfg *config.Config) []freshnessCheck {
	var checks []freshnessCheck
	if cfg.BybitSpot.Enabled {
		checks = append(checks, freshnessCheck{
			source:  "bybit_spot",
			prefix:  cfg.BybitSpot.KeyPrefix,
			tsField: model.FieldPriceTimestamp,
			maxAge:  time.Duration(cfg.BybitSpot.StalenessThresholdSec) * time.Second,
		})
	}
	if cfg.CoindcxLtp.Enabled {
		checks = append(checks, freshnessCheck{
			source:  "coindcx_ltp",
			prefix:  cfg.CoindcxLtp.KeyPrefix,
			tsField: model.FieldPriceTimestamp,
			maxAge:  time.Duration(cfg.CoindcxLtp.StalenessThresholdSec) * time.Second,
		})
	}
	if cfg.CoindcxFunding.Enabled {
		checks = append(checks, freshnessCheck{
			source:  "coindcx_funding",
			prefix:  cfg.CoindcxFunding.KeyPrefix,
			tsField: model.FieldFundingTimestamp,
			maxAge:  time.Duration(cfg.CoindcxFunding.StalenessThresholdSec) * time.Second,
		})
	}
	return checks
}

// distinctPrefixes dedupes key prefixes: the LTP and funding workers share
// one hash per instrument.
func distinctPrefixes(checks []freshnessCheck) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, c := range checks {
		if _, ok := seen[c.prefix]; ok {
			continue
		}
		seen[c.prefix] = struct{}{}
		out = append(out, c.prefix)
	}
	return out
}

func checkFreshness(ctx context.Context, store port.FieldStore, c freshnessCheck, coin string, now time.Time) bool {
	name := fmt.Sprintf("%s %s freshness", c.source, coin)

	fields, found, err := store.Read(ctx, model.Key(c.prefix, coin))
	if err != nil {
		printResult(name, false, err.Error())
		return false
	}
	if !found {
		printResult(name, false, "no data found")
		return false
	}

	raw, ok := fields[c.tsField]
	if !ok {
		printResult(name, false, "missing "+c.tsField)
		return false
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		printResult(name, false, "invalid timestamp: "+raw)
		return false
	}

	age := now.Sub(ts)
	fresh := age < c.maxAge
	printResult(name, fresh, fmt.Sprintf("age %s (max %s)", age.Round(time.Second), c.maxAge))
	return fresh
}

func printResult(check string, ok bool, details string) {
	status := "FAIL"
	if ok {
		status = "OK"
	}
	fmt.Printf("%-4s %-35s %s\n", status, check, details)
}
