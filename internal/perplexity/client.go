package perplexity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"
)

const systemMessage = "Você é um pesquisador especializado em editais de fomento. " +
	"Responda em português, cite as fontes com links e destaque prazos de submissão."

// Client calls the Perplexity chat completions API.
type Client struct {
	APIKey  string
	BaseURL string
	Model   string
	HTTP    *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		APIKey:  apiKey,
		BaseURL: "https://api.perplexity.ai",
		Model:   "sonar",
		HTTP:    &http.Client{Timeout: 120 * time.Second},
	}
}

// SearchRequest is one research query with its cost parameters.
type SearchRequest struct {
	Query       string   `json:"query"`
	Model       string   `json:"model"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature float64  `json:"temperature"`
	Links       []string `json:"links"` // extra context URLs appended to the prompt
	PricingIn   float64  `json:"pricing_in"`
	PricingOut  float64  `json:"pricing_out"`
	USDBRL      float64  `json:"usd_brl"`
}

// SearchResult reports the answer plus token and cost accounting. When the
// API returns usage numbers they replace the local estimates.
type SearchResult struct {
	Summary   string   `json:"summary"`
	Links     []string `json:"links"`
	Model     string   `json:"model"`
	TokensIn  int      `json:"tokens_in"`
	TokensOut int      `json:"tokens_out"`
	Estimated bool     `json:"estimated"` // false when usage came from the API
	CostUSD   float64  `json:"cost_usd"`
	CostBRL   float64  `json:"cost_brl"`
	Error     string   `json:"error,omitempty"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Search runs one research query. Transport and API failures come back in
// the result's Error field with the pre-call cost estimate intact; there is
// no retry.
func (c *Client) Search(ctx context.Context, req SearchRequest) SearchResult {
	model := req.Model
	if model == "" {
		model = c.Model
	}
	maxOut := req.MaxTokens
	if maxOut <= 0 {
		maxOut = 1024
	}
	pricing := Pricing{InPerMillion: req.PricingIn, OutPerMillion: req.PricingOut}
	if pricing.InPerMillion <= 0 {
		pricing.InPerMillion = DefaultPricing.InPerMillion
	}
	if pricing.OutPerMillion <= 0 {
		pricing.OutPerMillion = DefaultPricing.OutPerMillion
	}

	prompt := req.Query
	if len(req.Links) > 0 {
		prompt += "\n\nFontes adicionais:\n" + strings.Join(req.Links, "\n")
	}

	result := SearchResult{
		Model:     model,
		TokensIn:  ApproxTokens(prompt),
		TokensOut: maxOut,
		Estimated: true,
	}

	body, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemMessage},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   maxOut,
		Temperature: req.Temperature,
	})
	if err != nil {
		result.Error = fmt.Sprintf("marshaling request: %v", err)
		c.finishCost(&result, pricing, req.USDBRL)
		return result
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		result.Error = fmt.Sprintf("creating request: %v", err)
		c.finishCost(&result, pricing, req.USDBRL)
		return result
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		result.Error = fmt.Sprintf("API request failed: %v", err)
		c.finishCost(&result, pricing, req.USDBRL)
		return result
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		result.Error = fmt.Sprintf("API returned %d: %s", resp.StatusCode, string(raw))
		c.finishCost(&result, pricing, req.USDBRL)
		return result
	}

	var apiResp chatResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		result.Error = fmt.Sprintf("decoding response: %v", err)
		c.finishCost(&result, pricing, req.USDBRL)
		return result
	}

	if len(apiResp.Choices) > 0 {
		result.Summary = apiResp.Choices[0].Message.Content
		result.Links = ExtractLinks(result.Summary)
	}
	if apiResp.Usage.PromptTokens > 0 {
		result.TokensIn = apiResp.Usage.PromptTokens
		result.TokensOut = apiResp.Usage.CompletionTokens
		result.Estimated = false
	}

	c.finishCost(&result, pricing, req.USDBRL)
	return result
}

func (c *Client) finishCost(result *SearchResult, pricing Pricing, usdBRL float64) {
	result.CostUSD = EstimateCostUSD(result.TokensIn, result.TokensOut, pricing)
	if usdBRL > 0 {
		result.CostBRL = result.CostUSD * usdBRL
	}
}

var linkRe = regexp.MustCompile(`https?://[^\s)>\]]+`)

// ExtractLinks pulls every URL out of free text, deduplicated and sorted.
func ExtractLinks(text string) []string {
	found := linkRe.FindAllString(text, -1)
	seen := make(map[string]bool, len(found))
	var out []string
	for _, link := range found {
		link = strings.TrimRight(link, ".,;")
		if link == "" || seen[link] {
			continue
		}
		seen[link] = true
		out = append(out, link)
	}
	sort.Strings(out)
	return out
}
