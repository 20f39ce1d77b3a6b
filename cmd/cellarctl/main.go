// Command cellarctl smoke-tests the stack around the rack service and emits
// bottle events by hand.
//
//	cellarctl check
//	cellarctl login -user alice -pass secret
//	cellarctl publish -op consume -store 5 -x 3 -y 7 -bottle 42
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammed-shakir/cellar-rack/internal/core/config"
	"github.com/mohammed-shakir/cellar-rack/internal/core/httpclient"
	"github.com/mohammed-shakir/cellar-rack/internal/core/model"
	"github.com/mohammed-shakir/cellar-rack/internal/invalidation"
	"github.com/mohammed-shakir/cellar-rack/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/cellar-rack/internal/invalidation/kafkapublisher"
	"github.com/mohammed-shakir/cellar-rack/internal/logger"
	"github.com/mohammed-shakir/cellar-rack/internal/wineapi"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "check":
		err = check(ctx, cfg)
	case "login":
		err = login(ctx, cfg, os.Args[2:])
	case "publish":
		err = publish(ctx, cfg, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: cellarctl check|login|publish [flags]")
}

func newAPI(cfg config.Config) (*wineapi.Client, error) {
	zl := logger.Build(logger.Config{Level: cfg.LogLevel, Console: true, Component: "cellarctl"}, os.Stderr)
	return wineapi.New(logger.NewSlog(&zl), httpclient.NewOutbound(cfg.WineAPITimeout), cfg.WineAPIURL,
		wineapi.WithDefaultToken(cfg.WineAPIToken))
}

// check pings redis, reads the default store from the wine API and lists the
// invalidation topic.
func check(ctx context.Context, cfg config.Config) error {
	var errs []error

	fmt.Println("Redis test")
	if cfg.Cache.RedisAddr == "" {
		fmt.Println("redis skipped: REDIS_ADDR not set")
	} else {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr, DialTimeout: 2 * time.Second})
		if err := rdb.Ping(ctx).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis ping: %w", err))
		} else {
			fmt.Println("redis ok:", cfg.Cache.RedisAddr)
		}
		_ = rdb.Close()
	}

	fmt.Println("Wine API test")
	api, err := newAPI(cfg)
	if err != nil {
		return err
	}
	locs, err := api.StoreInventory(ctx, model.StoreID(cfg.DefaultStore))
	if err != nil {
		errs = append(errs, fmt.Errorf("store inventory: %w", err))
	} else {
		fmt.Printf("store %d: %d occupied locations\n", cfg.DefaultStore, len(locs))
	}

	fmt.Println("Kafka test")
	kc := kafkaconsumer.FromConfig(cfg.Invalidation)
	pub, err := kafkapublisher.Dial(kc.Brokers, kc.Topic)
	if err != nil {
		errs = append(errs, fmt.Errorf("kafka: %w", err))
	} else {
		fmt.Println("kafka ok:", kc.Brokers)
		_ = pub.Close()
	}

	return errors.Join(errs...)
}

func login(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	user := fs.String("user", "", "user name")
	pass := fs.String("pass", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	api, err := newAPI(cfg)
	if err != nil {
		return err
	}
	s, err := api.Login(ctx, model.Credentials{Username: *user, Password: *pass})
	if err != nil {
		return err
	}
	fmt.Printf("WINE_API_TOKEN=%s\n# expires %s\n", s.Token, s.Expires.Format(time.RFC3339))
	return nil
}

func publish(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	op := fs.String("op", invalidation.OpUpdate, "add|consume|move|update")
	store := fs.Int("store", cfg.DefaultStore, "store id")
	x := fs.Int("x", 0, "bin column")
	y := fs.Int("y", 0, "bin row")
	fromX := fs.Int("from-x", -1, "previous column (move)")
	fromY := fs.Int("from-y", -1, "previous row (move)")
	bottle := fs.Int("bottle", 0, "bottle id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ev := invalidation.Event{
		Version:  1,
		Op:       *op,
		Position: invalidation.Position{StoreID: *store, BinX: *x, BinY: *y},
		BottleID: *bottle,
		TS:       time.Now().UTC(),
		Source:   "cellarctl",
	}
	if *fromX >= 0 && *fromY >= 0 {
		ev.From = &invalidation.Position{StoreID: *store, BinX: *fromX, BinY: *fromY}
	}

	kc := kafkaconsumer.FromConfig(cfg.Invalidation)
	pub, err := kafkapublisher.Dial(kc.Brokers, kc.Topic)
	if err != nil {
		return err
	}
	defer func() { _ = pub.Close() }()
	if err := pub.Publish(ctx, ev); err != nil {
		return err
	}
	fmt.Println("published", ev.Op, "to", kc.Topic)
	return nil
}
