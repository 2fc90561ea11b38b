package perplexity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
)

func TestApproxTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 1},
		{"ab", 1},
		{"abcd", 1},
		{"abcdefgh", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tt := range tests {
		if got := ApproxTokens(tt.text); got != tt.want {
			t.Errorf("ApproxTokens(%d chars) = %d, want %d", len(tt.text), got, tt.want)
		}
	}
}

func TestEstimateCostUSD(t *testing.T) {
	p := Pricing{InPerMillion: 3.0, OutPerMillion: 15.0}
	got := EstimateCostUSD(1_000_000, 2_000_000, p)
	if got != 33.0 {
		t.Errorf("cost = %v, want 33.0", got)
	}
	if EstimateCostUSD(0, 0, p) != 0 {
		t.Error("zero tokens should cost zero")
	}
}

func TestExtractLinks(t *testing.T) {
	text := "Veja https://finep.gov.br/chamadas. Também em (https://www.gov.br/mcti) e https://finep.gov.br/chamadas novamente."
	got := ExtractLinks(text)
	want := []string{"https://finep.gov.br/chamadas", "https://www.gov.br/mcti"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractLinks = %v, want %v", got, want)
	}
	if links := ExtractLinks("sem nenhum link aqui"); links != nil {
		t.Errorf("expected nil for text without URLs, got %v", links)
	}
}

func TestSearchUsesAPIUsage(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding chat request: %v", err)
		}
		fmt.Fprint(w, `{
			"choices": [{"message": {"role": "assistant", "content": "Edital aberto: https://finep.gov.br/chamada-x com prazo em outubro."}}],
			"usage": {"prompt_tokens": 250, "completion_tokens": 400}
		}`)
	}))
	defer srv.Close()

	c := NewClient("test-key")
	c.BaseURL = srv.URL

	result := c.Search(context.Background(), SearchRequest{
		Query:       "editais de bioeconomia",
		MaxTokens:   1024,
		Temperature: 0.2,
		Links:       []string{"https://finep.gov.br"},
		PricingIn:   2.0,
		PricingOut:  8.0,
		USDBRL:      5.0,
	})

	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Errorf("messages = %+v", gotReq.Messages)
	}
	if !strings.Contains(gotReq.Messages[1].Content, "https://finep.gov.br") {
		t.Error("context links not appended to the prompt")
	}
	if gotReq.Temperature != 0.2 {
		t.Errorf("temperature = %v, want 0.2 passed through", gotReq.Temperature)
	}
	if result.Estimated {
		t.Error("usage from the API should clear the estimate flag")
	}
	if result.TokensIn != 250 || result.TokensOut != 400 {
		t.Errorf("tokens = %d/%d, want API usage 250/400", result.TokensIn, result.TokensOut)
	}
	wantUSD := 250.0/1e6*2.0 + 400.0/1e6*8.0
	if result.CostUSD != wantUSD {
		t.Errorf("cost usd = %v, want %v", result.CostUSD, wantUSD)
	}
	if result.CostBRL != wantUSD*5.0 {
		t.Errorf("cost brl = %v, want %v", result.CostBRL, wantUSD*5.0)
	}
	if !reflect.DeepEqual(result.Links, []string{"https://finep.gov.br/chamada-x"}) {
		t.Errorf("links = %v", result.Links)
	}
}

func TestSearchTransportErrorKeepsEstimate(t *testing.T) {
	c := NewClient("test-key")
	c.BaseURL = "http://127.0.0.1:1" // nothing listens here

	result := c.Search(context.Background(), SearchRequest{Query: "editais", MaxTokens: 500})
	if result.Error == "" {
		t.Fatal("expected a transport error")
	}
	if !result.Estimated {
		t.Error("failed calls keep the local estimate")
	}
	if result.TokensIn != ApproxTokens("editais") || result.TokensOut != 500 {
		t.Errorf("tokens = %d/%d", result.TokensIn, result.TokensOut)
	}
	if result.CostUSD <= 0 {
		t.Error("estimate should still be priced")
	}
}

func TestSearchAPIErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "invalid model"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient("test-key")
	c.BaseURL = srv.URL

	result := c.Search(context.Background(), SearchRequest{Query: "editais"})
	if !strings.Contains(result.Error, "400") {
		t.Errorf("error = %q, want the status code surfaced", result.Error)
	}
}

func TestCountTokensFromURLHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><style>body{color:red}</style></head><body><script>ignore()</script><p>Edital   de fomento</p></body></html>`)
	}))
	defer srv.Close()

	tokens, characters, err := CountTokensFromURL(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if characters != len("Edital de fomento") {
		t.Errorf("characters = %d, want visible text only", characters)
	}
	if tokens != ApproxTokens("Edital de fomento") {
		t.Errorf("tokens = %d", tokens)
	}
}

func TestCountTokensFromURLBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	if _, _, err := CountTokensFromURL(context.Background(), srv.URL); err == nil {
		t.Fatal("expected an error for a 404")
	}
}

func TestExtractPDFTextRecoversFromGarbage(t *testing.T) {
	if _, err := extractPDFText([]byte("%PDF-1.4 not actually a pdf")); err == nil {
		t.Fatal("expected an error for a truncated pdf")
	}
}
