package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	e2e "github.com/taoyao-code/scent-server/test/e2e"
)

// 手工联调：探测连接后依次发送单次释放与序列释放
func main() {
	cfg := e2e.GetConfig()

	scentID := flag.Int("scent", 1, "scent channel for the single play (1-12)")
	duration := flag.Int("duration", 2, "single play duration in seconds")
	seq := flag.String("sequence", "1:1,2:1", "sequence as comma separated channel:seconds pairs, empty to skip")
	flag.Parse()

	logger := log.New(os.Stdout, "[scentflow] ", log.LstdFlags|log.Lmicroseconds)
	logger.Printf("Starting scent flow\n  server=%s\n  scent=%d\n  duration=%d\n  sequence=%s",
		cfg.ServerURL, *scentID, *duration, *seq)

	steps, err := parseSequence(*seq)
	if err != nil {
		logger.Fatalf("invalid -sequence: %v", err)
	}

	ctx := context.Background()
	client := e2e.NewAPIClient(cfg)

	if err := client.Health(ctx); err != nil {
		logger.Fatalf("server not healthy: %v", err)
	}

	logger.Println("Testing device connection...")
	out, err := client.TestConnection(ctx)
	if err != nil {
		logger.Fatalf("test connection request failed: %v", err)
	}
	if !out.OK() {
		logger.Fatalf("device not reachable: %s %s", out.Message, out.Details)
	}
	logger.Printf("Connected: %s", out.Message)

	logger.Println("Sending single play...")
	out, err = client.PlayScent(ctx, *scentID, *duration)
	if err != nil {
		logger.Fatalf("play scent failed: %v", err)
	}
	logger.Printf("Play result: status=%s message=%s", out.Status, out.Message)

	if len(steps) > 0 {
		logger.Printf("Sending sequence of %d steps...", len(steps))
		out, err = client.PlaySequence(ctx, map[string]any{"sequence": steps})
		if err != nil {
			logger.Fatalf("play sequence failed: %v", err)
		}
		logger.Printf("Sequence result: status=%s message=%s", out.Status, out.Message)
	}

	fmt.Println("Scent flow finished")
}

func parseSequence(s string) ([]e2e.Step, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var steps []e2e.Step
	for _, pair := range strings.Split(s, ",") {
		ch, sec, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			return nil, fmt.Errorf("%q: want channel:seconds", pair)
		}
		c, err := strconv.Atoi(ch)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", pair, err)
		}
		d, err := strconv.Atoi(sec)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", pair, err)
		}
		steps = append(steps, e2e.Step{ScentID: c, Duration: d})
	}
	return steps, nil
}
