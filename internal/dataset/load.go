package dataset

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// Remote lab data sets.
const (
	SISOSource = "http://apmonitor.com/do/uploads/Main/tclab_siso_data.txt"
	MIMOSource = "http://apmonitor.com/do/uploads/Main/tclab_dyn_data2.txt"
)

// Loader reads frames from files or http(s) URLs.
type Loader struct {
	Client *http.Client
}

func NewLoader() *Loader {
	return &Loader{Client: &http.Client{Timeout: 30 * time.Second}}
}

// Load reads source, which is either a local path or an http(s) URL.
func (l *Loader) Load(ctx context.Context, source string) (*Frame, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return l.fetch(ctx, source)
	}
	f, err := os.Open(source)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

func (l *Loader) fetch(ctx context.Context, url string) (*Frame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dataset: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("dataset: fetch %s: unexpected status %s", url, resp.Status)
	}
	return ReadCSV(resp.Body)
}
