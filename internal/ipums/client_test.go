package ipums

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSampleCode(t *testing.T) {
	tests := []struct {
		year    int
		want    string
		wantErr bool
	}{
		{2019, "us2019a", false},
		{2020, "us2020a", false},
		{2023, "us2023a", false},
		{2005, "", true},
		{2024, "", true},
	}
	for _, tt := range tests {
		got, err := SampleCode(tt.year)
		if (err != nil) != tt.wantErr {
			t.Errorf("SampleCode(%d) error = %v, wantErr %v", tt.year, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("SampleCode(%d) = %q, want %q", tt.year, got, tt.want)
		}
	}
}

func TestBuildRequest(t *testing.T) {
	req, err := BuildRequest("fl", 2019)
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	if _, ok := req.Samples["us2019a"]; !ok {
		t.Errorf("sample missing: %v", req.Samples)
	}
	sf, ok := req.Variables["STATEFIP"]
	if !ok {
		t.Fatal("STATEFIP variable missing")
	}
	if got := sf.CaseSelections["general"]; len(got) != 1 || got[0] != "12" {
		t.Errorf("state filter = %v, want [12]", got)
	}
	if _, ok := req.Variables["HHWT"]; !ok {
		t.Error("HHWT variable missing")
	}
	if req.DataFormat != "csv" || req.DataStructure.Rectangular.On != "P" {
		t.Errorf("extract shape wrong: %+v", req)
	}
}

func TestBuildRequestUnknownState(t *testing.T) {
	if _, err := BuildRequest("ZZ", 2019); err == nil {
		t.Error("expected error for unknown state")
	}
}

func TestSubmitExtract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if got := r.URL.Query().Get("collection"); got != "usa" {
			t.Errorf("collection = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "test-key" {
			t.Errorf("auth header = %q", got)
		}
		var req ExtractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(Extract{Number: 7, Status: "queued"})
	}))
	defer srv.Close()

	c := NewClient("test-key", srv.URL, "usa")
	req, err := BuildRequest("FL", 2019)
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	number, err := c.SubmitExtract(context.Background(), req)
	if err != nil {
		t.Fatalf("SubmitExtract: %v", err)
	}
	if number != 7 {
		t.Errorf("number = %d, want 7", number)
	}
}

func TestSubmitExtractAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"detail": "invalid sample"})
	}))
	defer srv.Close()

	c := NewClient("test-key", srv.URL, "usa")
	req, _ := BuildRequest("FL", 2019)
	_, err := c.SubmitExtract(context.Background(), req)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "invalid sample") {
		t.Errorf("error %q should carry the API detail", err)
	}
}

func TestExtractStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/extracts/7" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Extract{
			Number: 7, Status: "completed",
			DownloadLinks: DownloadLinks{Data: DownloadLink{URL: "https://example.com/data.csv.gz"}},
		})
	}))
	defer srv.Close()

	c := NewClient("test-key", srv.URL, "usa")
	extract, err := c.ExtractStatus(context.Background(), 7)
	if err != nil {
		t.Fatalf("ExtractStatus: %v", err)
	}
	if extract.Status != "completed" || extract.DownloadLinks.Data.URL == "" {
		t.Errorf("extract = %+v", extract)
	}
}
