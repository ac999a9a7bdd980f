package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	WriteRatio  float64
	Vocabulary  []string
}

// Stats collects outcomes of one operation kind.
type Stats struct {
	name          string
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats(name string) *Stats {
	return &Stats{
		name:        name,
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	writeRatio := flag.Float64("write-ratio", 0.2, "fraction of requests that ingest a document")
	flag.Parse()

	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Concurrency: *concurrency,
		Duration:    *duration,
		WriteRatio:  *writeRatio,
		Vocabulary: strings.Fields(`Hello Hola Bonjour my name is the in Alice Bob Spanish French
			segment catalog memtable compaction keyword posting flush merge query disk`),
	}

	fmt.Println("=== Inverted Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Write ratio: %.2f\n", cfg.WriteRatio)
	fmt.Println()

	ingest, search := runLoadTest(cfg)
	total := printReport(ingest, cfg.Duration) + printReport(search, cfg.Duration)
	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func runLoadTest(cfg Config) (ingest, search *Stats) {
	ingest, search = NewStats("ingest"), NewStats("search")
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	fmt.Print("Running")
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Concurrency; w++ {
		rng := rand.New(rand.NewSource(int64(w) + 1))
		g.Go(func() error {
			for ctx.Err() == nil {
				if rng.Float64() < cfg.WriteRatio {
					doc := randomText(rng, cfg.Vocabulary, 4+rng.Intn(8))
					body, _ := json.Marshal(map[string]string{"text": doc})
					do(ctx, client, ingest, http.MethodPost, cfg.BaseURL+"/api/v1/documents", body)
					continue
				}
				query := randomText(rng, cfg.Vocabulary, 1+rng.Intn(2))
				searchURL := fmt.Sprintf("%s/api/v1/search?q=%s&limit=10", cfg.BaseURL, url.QueryEscape(query))
				do(ctx, client, search, http.MethodGet, searchURL, nil)
			}
			return nil
		})
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	_ = g.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return ingest, search
}

func randomText(rng *rand.Rand, vocab []string, n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = vocab[rng.Intn(len(vocab))]
	}
	return strings.Join(words, " ")
}

func do(ctx context.Context, client *http.Client, stats *Stats, method, rawURL string, body []byte) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(body))
	if err != nil {
		panic(fmt.Sprintf("creating request: %v", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)
	if err != nil {
		// requests cut off by the end of the run are not failures
		if ctx.Err() == nil {
			stats.RecordRequest(duration, 0, err)
		}
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	stats.RecordRequest(duration, resp.StatusCode, nil)
}

func printReport(stats *Stats, duration time.Duration) int64 {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Printf("=== %s ===\n", strings.ToUpper(stats.name))
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errors)

	if total > 0 {
		errorRate := float64(errors) / float64(total) * 100
		fmt.Printf("Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("Requests/sec:    %.2f\n", rps)
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println("Latency:")
		fmt.Printf("  Min:    %s\n", latencies[0])
		fmt.Printf("  Avg:    %s\n", avg)
		fmt.Printf("  P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("  P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("  P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("  Max:    %s\n", latencies[len(latencies)-1])

		var sumSquared float64
		avgFloat := float64(avg)
		for _, l := range latencies {
			diff := float64(l) - avgFloat
			sumSquared += diff * diff
		}
		stddev := time.Duration(math.Sqrt(sumSquared / float64(len(latencies))))
		fmt.Printf("  StdDev: %s\n", stddev)
	}

	fmt.Println("Status Codes:")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, stats.statusCodes[code].Load())
	}
	stats.statusCodesMu.Unlock()
	fmt.Println()
	return total
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
