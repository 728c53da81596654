// Command snapshot-collector polls the API for index state, computes deltas
// against the previous poll, and writes JSON files for a static dashboard.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Snapshot is one observation of the index and chat activity.
type Snapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	Collection    string    `json:"collection"`
	Status        string    `json:"status"`
	Vectors       uint64    `json:"vectors"`
	Uploads       int64     `json:"uploads"`
	Requests      int64     `json:"requests"`
	WSConnections int64     `json:"ws_connections"`
}

// Delta represents changes between two consecutive snapshots.
type Delta struct {
	Timestamp   time.Time `json:"timestamp"`
	Period      string    `json:"period"`
	NewVectors  int64     `json:"new_vectors"`
	NewUploads  int64     `json:"new_uploads"`
	NewRequests int64     `json:"new_requests"`
}

const maxHistory = 288

func main() {
	apiURL := flag.String("api", "http://localhost:8080", "API base URL")
	docsDir := flag.String("docs-dir", "docs", "docs directory for output")
	period := flag.String("period", "5m", "label for the polling period")
	push := flag.Bool("push", false, "git commit and push after update")
	flag.Parse()

	dataDir := filepath.Join(*docsDir, "data")
	os.MkdirAll(dataDir, 0o755)

	latestPath := filepath.Join(dataDir, "index-latest.json")
	historyPath := filepath.Join(dataDir, "index-history.json")
	prevPath := filepath.Join(dataDir, ".index-prev.json")

	current, err := collect(*apiURL)
	if err != nil {
		log.Fatalf("collect: %v", err)
	}

	var prev Snapshot
	if data, err := os.ReadFile(prevPath); err == nil {
		json.Unmarshal(data, &prev)
	}

	delta := Delta{
		Timestamp:   current.Timestamp,
		Period:      *period,
		NewVectors:  int64(current.Vectors) - int64(prev.Vectors),
		NewUploads:  current.Uploads - prev.Uploads,
		NewRequests: current.Requests - prev.Requests,
	}

	curData, _ := json.MarshalIndent(current, "", "  ")
	if err := os.WriteFile(latestPath, curData, 0o644); err != nil {
		log.Fatalf("write latest: %v", err)
	}

	var history []Delta
	if data, err := os.ReadFile(historyPath); err == nil {
		json.Unmarshal(data, &history)
	}
	history = append(history, delta)
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	histData, _ := json.MarshalIndent(history, "", "  ")
	os.WriteFile(historyPath, histData, 0o644)

	os.WriteFile(prevPath, curData, 0o644)

	fmt.Printf("Snapshot at %s: %d vectors, %d uploads (%s)\n",
		current.Timestamp.Format(time.RFC3339), current.Vectors, current.Uploads, current.Status)
	fmt.Printf("Delta: %+d vectors, %+d uploads, %+d requests\n",
		delta.NewVectors, delta.NewUploads, delta.NewRequests)

	if *push {
		gitCommitPush(*docsDir)
	}
}

// collect assembles a snapshot from the collections endpoint and the
// Prometheus text scrape.
func collect(apiURL string) (Snapshot, error) {
	snap := Snapshot{Timestamp: time.Now().UTC()}

	var coll struct {
		Collection string `json:"collection_name"`
		Count      uint64 `json:"count"`
		Status     string `json:"status"`
	}
	if err := getJSON(apiURL+"/api/data/collections", &coll); err != nil {
		return snap, err
	}
	snap.Collection = coll.Collection
	snap.Vectors = coll.Count
	snap.Status = coll.Status

	resp, err := http.Get(apiURL + "/metrics")
	if err != nil {
		return snap, fmt.Errorf("fetch metrics: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return snap, fmt.Errorf("metrics returned %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "uploads_total"):
			snap.Uploads += parseValue(line)
		case strings.HasPrefix(line, "http_requests_total"):
			snap.Requests += parseValue(line)
		case strings.HasPrefix(line, "ws_connections "):
			snap.WSConnections = parseValue(line)
		}
	}
	return snap, scanner.Err()
}

// parseValue reads the sample value from a Prometheus text line, summing
// across label sets is the caller's concern.
func parseValue(line string) int64 {
	idx := strings.LastIndexByte(line, ' ')
	if idx < 0 {
		return 0
	}
	v, err := strconv.ParseInt(strings.TrimSpace(line[idx+1:]), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func getJSON(url string, v any) (err error) {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func gitCommitPush(docsDir string) {
	cmds := [][]string{
		{"git", "add", filepath.Join(docsDir, "data/")},
		{"git", "commit", "-m", fmt.Sprintf("metrics: snapshot %s", time.Now().UTC().Format("2006-01-02T15:04"))},
		{"git", "push"},
	}
	for _, args := range cmds {
		cmd := exec.Command(args[0], args[1:]...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			log.Printf("git %v: %v", args, err)
		}
	}
}
