package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// Triggers a collection run against a local server. Pass group names as
// arguments to restrict the run.
func main() {
	base := os.Getenv("WATCHER_URL")
	if base == "" {
		base = "http://localhost:8081"
	}

	body := "{}"
	if len(os.Args) > 1 {
		quoted := make([]string, 0, len(os.Args)-1)
		for _, g := range os.Args[1:] {
			quoted = append(quoted, fmt.Sprintf("%q", g))
		}
		body = fmt.Sprintf(`{"groups": [%s]}`, strings.Join(quoted, ", "))
	}

	resp, err := http.Post(base+"/api/collect", "application/json", strings.NewReader(body))
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	fmt.Printf("Response Status: %s\n", resp.Status)
	payload, _ := io.ReadAll(resp.Body)
	fmt.Println(string(payload))
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
