// Benchmark tool for the portfolio analytics engine.
//
// Usage:
//   go run cmd/benchmark/main.go -exposures 50000 -iterations 100
//
// This tool:
//  1. Generates a synthetic exposure book (dirty values included, matching
//     what the ingestion pipeline actually delivers)
//  2. Runs the full analytics computation repeatedly
//  3. Reports latency percentiles and the resulting snapshot
//
// With -url it instead times GET /analytics against a running server.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/riskfoundry/kestrel/internal/analytics"
	"github.com/riskfoundry/kestrel/internal/domain"
)

// region anchors for synthetic coordinates, roughly matching the
// classifier's bounding boxes so books spread across regions
var regionAnchors = []struct {
	name     string
	lat, lon float64
}{
	{"Florida", 27.5, -82.5},
	{"Gulf Coast", 30.5, -92.0},
	{"California", 36.0, -119.5},
	{"Pacific Northwest", 46.0, -121.0},
	{"Northeast", 42.0, -73.0},
	{"Mid-Atlantic", 38.0, -78.0},
	{"Southeast", 33.0, -83.0},
	{"Midwest", 41.0, -93.0},
}

var perils = []string{"Wind", "Flood", "Earthquake", "Fire", "Hail", "Cyber"}

func main() {
	exposureCount := flag.Int("exposures", 10000, "Synthetic exposure book size")
	iterations := flag.Int("iterations", 100, "Number of analytics computations to time")
	seed := flag.Int64("seed", 42, "RNG seed for reproducible books")
	baseURL := flag.String("url", "", "Benchmark GET /analytics on a running server instead")
	orgID := flag.String("org", "benchmark-org", "Organization ID for HTTP mode")
	flag.Parse()

	fmt.Println("KESTREL BENCHMARK - Portfolio Analytics")
	fmt.Println()

	if *baseURL != "" {
		runHTTPBenchmark(*baseURL, *orgID, *iterations)
		return
	}

	fmt.Printf("Exposures:  %d\n", *exposureCount)
	fmt.Printf("Iterations: %d\n", *iterations)
	fmt.Printf("Seed:       %d\n", *seed)
	fmt.Println()

	rng := rand.New(rand.NewSource(*seed))
	exposures := generateExposures(rng, *exposureCount)
	fmt.Printf("Generated %d exposures\n\n", len(exposures))

	// Warm up once so the first timed run is not an outlier
	snapshot := analytics.Compute(exposures)

	latencies := make([]float64, 0, *iterations)
	start := time.Now()
	for i := 0; i < *iterations; i++ {
		iterStart := time.Now()
		snapshot = analytics.Compute(exposures)
		latencies = append(latencies, float64(time.Since(iterStart).Microseconds())/1000.0)
	}
	total := time.Since(start)

	printLatencies(latencies, total, *iterations)
	printSnapshot(snapshot)
}

func runHTTPBenchmark(baseURL, orgID string, iterations int) {
	fmt.Printf("Server:     %s\n", baseURL)
	fmt.Printf("Org:        %s\n", orgID)
	fmt.Printf("Iterations: %d\n\n", iterations)

	client := &http.Client{Timeout: 30 * time.Second}

	// Health probe first
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		fmt.Printf("ERROR: server not reachable at %s: %v\n", baseURL, err)
		os.Exit(1)
	}
	resp.Body.Close()

	latencies := make([]float64, 0, iterations)
	errors := 0
	start := time.Now()
	for i := 0; i < iterations; i++ {
		req, _ := http.NewRequest(http.MethodGet, baseURL+"/analytics", nil)
		req.Header.Set("X-Organization-ID", orgID)

		iterStart := time.Now()
		resp, err := client.Do(req)
		elapsed := float64(time.Since(iterStart).Microseconds()) / 1000.0

		if err != nil || resp.StatusCode != http.StatusOK {
			errors++
			if resp != nil {
				resp.Body.Close()
			}
			continue
		}
		resp.Body.Close()
		latencies = append(latencies, elapsed)
	}
	total := time.Since(start)

	if errors > 0 {
		fmt.Printf("Errors: %d / %d\n", errors, iterations)
	}
	printLatencies(latencies, total, iterations)
}

// generateExposures builds a book that exercises every analytics path:
// geocoded and ungeocoded rows, scored and unscored, clean and dirty
// insured-value strings, duplicate policy numbers.
func generateExposures(rng *rand.Rand, count int) []*domain.RiskExposure {
	exposures := make([]*domain.RiskExposure, 0, count)

	for i := 0; i < count; i++ {
		anchor := regionAnchors[rng.Intn(len(regionAnchors))]
		value := 100_000 + rng.Float64()*49_900_000

		exp := &domain.RiskExposure{
			ID:           fmt.Sprintf("exp-%06d", i),
			PolicyNumber: fmt.Sprintf("POL-%05d", i%(count/2+1)), // some duplicates
			PerilType:    perils[rng.Intn(len(perils))],
			Latitude:     anchor.lat + rng.Float64()*2 - 1,
			Longitude:    anchor.lon + rng.Float64()*2 - 1,
		}

		// Mix of formatting the ingestion pipeline actually produces
		switch i % 4 {
		case 0:
			exp.TotalInsuredValue = "$" + withCommas(value)
		case 1:
			exp.TotalInsuredValue = fmt.Sprintf("%.0f", value)
		case 2:
			exp.TotalInsuredValue = fmt.Sprintf("$%.0f", value)
		default:
			exp.TotalInsuredValue = fmt.Sprintf("%.2f", value)
		}

		// 10% ungeocoded
		if i%10 == 9 {
			exp.Latitude = 0
			exp.Longitude = 0
		}

		// 20% unscored
		if i%5 != 4 {
			score := rng.Float64() * 100
			exp.RiskScore = &score
		}

		exposures = append(exposures, exp)
	}

	return exposures
}

func printLatencies(latencies []float64, total time.Duration, iterations int) {
	if len(latencies) == 0 {
		fmt.Println("No successful iterations")
		return
	}

	sorted := append([]float64(nil), latencies...)
	sort.Float64s(sorted)

	mean := stat.Mean(sorted, nil)
	p50 := stat.Quantile(0.50, stat.Empirical, sorted, nil)
	p95 := stat.Quantile(0.95, stat.Empirical, sorted, nil)
	p99 := stat.Quantile(0.99, stat.Empirical, sorted, nil)

	fmt.Println("LATENCY (ms)")
	fmt.Printf("   Mean:  %8.3f\n", mean)
	fmt.Printf("   P50:   %8.3f\n", p50)
	fmt.Printf("   P95:   %8.3f\n", p95)
	fmt.Printf("   P99:   %8.3f\n", p99)
	fmt.Printf("   Min:   %8.3f\n", sorted[0])
	fmt.Printf("   Max:   %8.3f\n", sorted[len(sorted)-1])
	fmt.Println()
	fmt.Printf("   Total:      %v\n", total.Round(time.Millisecond))
	fmt.Printf("   Throughput: %.2f computations/sec\n", float64(iterations)/total.Seconds())
	fmt.Println()
}

func printSnapshot(s *domain.PortfolioAnalytics) {
	fmt.Println("SNAPSHOT")
	fmt.Printf("   Total Insured Value: $%.0f\n", s.TotalInsuredValue)
	fmt.Printf("   Policy Count:        %d\n", s.PolicyCount)
	fmt.Printf("   Regions:             %d\n", len(s.GeographicConcentration))
	fmt.Printf("   Perils:              %d\n", len(s.PerilDistribution))
	fmt.Printf("   HHI:                 %.1f (%s)\n", s.RiskConcentration.HerfindahlIndex, s.RiskConcentration.ConcentrationRisk)
	fmt.Printf("   100-year PML:        $%.0f\n", s.ProbableMaximumLoss.PML100Year)
	fmt.Printf("   1000-year PML:       $%.0f\n", s.ProbableMaximumLoss.PML1000Year)
	fmt.Printf("   Annual Avg Loss:     $%.0f\n", s.AverageAnnualLoss.Total)
	fmt.Println()
}

// withCommas renders a value as digit groups with thousands separators,
// e.g. 1234567.0 -> "1,234,567".
func withCommas(v float64) string {
	digits := fmt.Sprintf("%.0f", v)
	n := len(digits)
	if n <= 3 {
		return digits
	}

	var out []byte
	for i, c := range []byte(digits) {
		if i > 0 && (n-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	return string(out)
}
