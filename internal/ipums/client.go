package ipums

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hudlink/hudlink/internal/geo"
)

const apiVersion = "2"

// defaultVariables is the ACS variable set the pipeline consumes.
var defaultVariables = []string{
	"CBSERIAL", "HHWT", "PUMA", "COUNTYICP", "GQTYPE", "MULTYEAR",
	"NFAMS", "FAMUNIT", "FAMSIZE", "RELATE", "AGE", "SEX",
	"RACE", "HISPAN", "CITIZEN", "MARST", "NCHILD", "VETSTAT",
	"OWNERSHP", "MORTGAGE", "EMPSTAT", "EDUCD",
	"DIFFSENS", "DIFFPHYS", "DIFFREM", "DIFFMOB",
	"HHINCOME", "FTOTINC", "INCWAGE", "INCSS",
	"INCWELFR", "INCINVST", "INCRETIR", "INCSUPP", "INCEARN", "INCOTHER",
}

// Client talks to the IPUMS microdata extract API.
type Client struct {
	apiKey     string
	baseURL    string
	collection string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates an extract API client. The API throttles aggressively,
// so requests are rate limited to one per second.
func NewClient(apiKey, baseURL, collection string) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// SampleCode returns the ACS sample identifier for a survey year.
// 2020 has no standard one-year sample; the experimental release is used.
func SampleCode(year int) (string, error) {
	if year < 2006 || year > 2023 {
		return "", fmt.Errorf("no ACS sample for year %d", year)
	}
	if year == 2020 {
		return "us2020a", nil
	}
	return fmt.Sprintf("us%da", year), nil
}

// BuildRequest assembles an extract request for one state and year.
func BuildRequest(state string, year int) (*ExtractRequest, error) {
	sample, err := SampleCode(year)
	if err != nil {
		return nil, err
	}
	fips, ok := geo.StateFIPS(strings.ToUpper(state))
	if !ok {
		return nil, fmt.Errorf("unknown state %q", state)
	}

	vars := make(map[string]VariableReq, len(defaultVariables)+1)
	for _, v := range defaultVariables {
		vars[v] = VariableReq{}
	}
	vars["STATEFIP"] = VariableReq{
		CaseSelections: map[string][]string{"general": {fips}},
	}

	return &ExtractRequest{
		Description:   fmt.Sprintf("hudlink %s %d", strings.ToUpper(state), year),
		DataStructure: DataStructure{Rectangular: Rectangular{On: "P"}},
		DataFormat:    "csv",
		Samples:       map[string]struct{}{sample: {}},
		Variables:     vars,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s%s?collection=%s&version=%s", c.baseURL, path, c.collection, apiVersion)
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	logRequest(method, path)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logError("request", err)
		return nil, fmt.Errorf("ipums request: %w", err)
	}
	logResponse(resp.StatusCode, time.Since(start))
	return resp, nil
}

func decodeError(resp *http.Response) error {
	var apiErr apiError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Detail != "" {
		return fmt.Errorf("ipums status %d: %s", resp.StatusCode, apiErr.Detail)
	}
	return fmt.Errorf("ipums status %d", resp.StatusCode)
}

// SubmitExtract submits an extract request and returns its number.
func (c *Client) SubmitExtract(ctx context.Context, req *ExtractRequest) (int, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/extracts", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return 0, decodeError(resp)
	}

	var extract Extract
	if err := json.NewDecoder(resp.Body).Decode(&extract); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}

	log.Printf("[ipums] submitted extract %d (%s)", extract.Number, req.Description)
	return extract.Number, nil
}

// ExtractStatus fetches the current state of an extract.
func (c *Client) ExtractStatus(ctx context.Context, number int) (*Extract, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/extracts/%d", number), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var extract Extract
	if err := json.NewDecoder(resp.Body).Decode(&extract); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &extract, nil
}

// pollInterval is how often extract status is checked while waiting.
const pollInterval = 15 * time.Second

// WaitForExtract polls until the extract completes or the context expires.
func (c *Client) WaitForExtract(ctx context.Context, number int) (*Extract, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		extract, err := c.ExtractStatus(ctx, number)
		if err != nil {
			return nil, err
		}
		switch extract.Status {
		case "completed":
			return extract, nil
		case "failed":
			return nil, fmt.Errorf("extract %d failed", number)
		}
		log.Printf("[ipums] extract %d: %s", number, extract.Status)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Download fetches the extract's gzipped CSV and writes it decompressed
// to dest, creating parent directories as needed.
func (c *Client) Download(ctx context.Context, extract *Extract, dest string) error {
	url := extract.DownloadLinks.Data.URL
	if url == "" {
		return fmt.Errorf("extract %d has no download link", extract.Number)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)

	// Extracts run to hundreds of MB, so the 30s API timeout does not
	// apply here. Cancellation comes from the context.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return fmt.Errorf("download extract %d: %w", extract.Number, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return fmt.Errorf("open gzip stream: %w", err)
	}
	defer gz.Close()

	n, err := io.Copy(f, gz)
	if err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	log.Printf("[ipums] extract %d: wrote %d bytes to %s", extract.Number, n, dest)
	return nil
}

// Fetch submits, waits for, and downloads one state-year extract.
func (c *Client) Fetch(ctx context.Context, state string, year int, dest string) error {
	req, err := BuildRequest(state, year)
	if err != nil {
		return err
	}
	number, err := c.SubmitExtract(ctx, req)
	if err != nil {
		return err
	}
	extract, err := c.WaitForExtract(ctx, number)
	if err != nil {
		return err
	}
	return c.Download(ctx, extract, dest)
}
