package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/anujsainicse/funding-profit-inr/internal/domain/model"
	redisstore "github.com/anujsainicse/funding-profit-inr/internal/infrastructure/storage/redis"
)

// Prints every stored field for one instrument across all sources.
func main() {
	addr := flag.String("addr", "localhost:6379", "redis address")
	password := flag.String("password", "", "redis password")
	db := flag.Int("db", 0, "redis database")
	symbol := flag.String("symbol", "", "instrument to look up, e.g. BTC")
	sources := flag.String("sources", "bybit_spot,coindcx_futures", "comma-separated source prefixes")
	flag.Parse()

	if strings.TrimSpace(*symbol) == "" {
		fmt.Fprintln(os.Stderr, "usage: lookup -symbol BTC [-sources bybit_spot,coindcx_futures]")
		os.Exit(2)
	}
	coin := strings.ToUpper(strings.TrimSpace(*symbol))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rdb := goredis.NewClient(&goredis.Options{Addr: *addr, Password: *password, DB: *db})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		fmt.Fprintf(os.Stderr, "redis connection failed: %v\n", err)
		os.Exit(1)
	}

	store := redisstore.New(rdb)
	found := false

	for _, source := range strings.Split(*sources, ",") {
		source = strings.TrimSpace(source)
		if source == "" {
			continue
		}
		key := model.Key(source, coin)
		fields, ok, err := store.Read(ctx, key)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", key, err)
			continue
		}
		if !ok {
			fmt.Printf("%s: no data\n", key)
			continue
		}
		found = true

		fmt.Printf("%s:\n", key)
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %-24s %s\n", name, fields[name])
		}
	}

	if !found {
		os.Exit(1)
	}
}
