package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mirkobrombin/go-settle/v1/clock"
	"github.com/mirkobrombin/go-settle/v1/lock"
	"github.com/mirkobrombin/go-settle/v1/wait"
)

var (
	concurrency = flag.Int("c", 50, "Number of concurrent goroutines")
	requests    = flag.Int("n", 100000, "Total number of critical sections")
	hold        = flag.Duration("hold", 0, "Time spent inside each critical section")
	polls       = flag.Int("polls", 1000, "Number of virtual clock waits to run")
)

func checkFlags(concurrency, requests int) error {
	if concurrency <= 0 {
		return fmt.Errorf("-c must be positive, got %d", concurrency)
	}
	if requests < concurrency {
		return fmt.Errorf("-n (%d) must be at least -c (%d)", requests, concurrency)
	}
	return nil
}

func main() {
	flag.Parse()
	if err := checkFlags(*concurrency, *requests); err != nil {
		log.Fatal(err)
	}

	log.Printf("Starting lock benchmark: %d sections, %d concurrency, hold %v", *requests, *concurrency, *hold)

	l := lock.New(lock.WithName("bench"))
	ctx := context.Background()

	var wg sync.WaitGroup
	var ops int64
	var inside int32
	var violations int64

	perWorker := *requests / *concurrency
	start := time.Now()
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				err := l.WithLock(ctx, func(context.Context) error {
					if atomic.AddInt32(&inside, 1) != 1 {
						atomic.AddInt64(&violations, 1)
					}
					if *hold > 0 {
						time.Sleep(*hold)
					}
					atomic.AddInt32(&inside, -1)
					return nil
				})
				if err != nil {
					log.Fatalf("critical section failed: %v", err)
				}
				atomic.AddInt64(&ops, 1)
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	log.Printf("Finished in %v", elapsed)
	log.Printf("Throughput: %.2f sections/s", float64(ops)/elapsed.Seconds())
	log.Printf("Avg Latency: %.2f ns", elapsed.Seconds()/float64(ops)*1e9)
	if violations > 0 {
		log.Fatalf("Mutual exclusion violated %d times", violations)
	}

	log.Printf("Starting wait benchmark: %d timed-out waits on a virtual clock", *polls)
	clk := clock.Virtual(time.Now())
	never := func(context.Context) (bool, error) { return false, nil }
	start = time.Now()
	for i := 0; i < *polls; i++ {
		if err := wait.Until(ctx, clk, never); err == nil {
			log.Fatal("wait unexpectedly succeeded")
		}
	}
	elapsed = time.Since(start)
	log.Printf("Finished in %v (%d virtual sleeps)", elapsed, clk.Sleeps())
}
