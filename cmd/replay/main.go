package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/go-resty/resty/v2"
	"github.com/schollz/progressbar/v3"
)

// Replays a JSONL file of observations against a running prediction server,
// one /predict call per line. Useful for backfilling a fresh database from an
// exported observation log.

type predictResult struct {
	ObservationId string `json:"observation_id"`
	Error         string `json:"error"`
}

type completedCall struct {
	Result predictResult
	Error  error
}

func submit(client *resty.Client, observation string) completedCall {
	res, err := client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(observation).
		Post("/predict")
	if err != nil {
		return completedCall{Error: err}
	}
	if !res.IsSuccess() {
		return completedCall{Error: fmt.Errorf("server returned status %d: %s", res.StatusCode(), res.String())}
	}

	var result predictResult
	if err := json.Unmarshal(res.Body(), &result); err != nil {
		return completedCall{Error: err}
	}
	return completedCall{Result: result}
}

func main() {
	var (
		input      string
		url        string
		maxWorkers int
	)
	flag.StringVar(&input, "input", "", "path to a JSONL file of observations")
	flag.StringVar(&url, "url", "http://localhost:5000", "base url of the prediction server")
	flag.IntVar(&maxWorkers, "workers", 4, "number of concurrent requests")
	flag.Parse()

	if input == "" {
		log.Fatalf("-input is required")
	}

	data, err := os.ReadFile(input)
	if err != nil {
		log.Fatalf("error reading input file: %v", err)
	}

	var observations []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			observations = append(observations, line)
		}
	}

	client := resty.New().SetBaseURL(url)

	queue := make(chan string, len(observations))
	for _, observation := range observations {
		queue <- observation
	}
	close(queue)
	completed := make(chan completedCall, len(observations))

	workers := min(len(observations), maxWorkers)
	wg := sync.WaitGroup{}
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for observation := range queue {
				completed <- submit(client, observation)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(completed)
	}()

	bar := progressbar.NewOptions(len(observations),
		progressbar.OptionSetDescription("⏳ replaying"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)

	var ok, duplicates, rejected, failed int
	for call := range completed {
		switch {
		case call.Error != nil:
			failed++
		case call.Result.Error == "":
			ok++
		case strings.Contains(call.Result.Error, "already exists"):
			duplicates++
		default:
			rejected++
		}
		_ = bar.Add(1)
	}

	fmt.Printf("replayed %d observations: %d ok, %d duplicates, %d rejected, %d failed\n",
		len(observations), ok, duplicates, rejected, failed)
}
