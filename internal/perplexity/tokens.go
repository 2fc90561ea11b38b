package perplexity

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	rpdf "rsc.io/pdf"
)

// ApproxTokens estimates token count with the 4-chars-per-token heuristic.
// Never returns less than 1 so cost math stays non-zero for tiny prompts.
func ApproxTokens(text string) int {
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// Pricing is the per-million-token price of a model, in USD.
type Pricing struct {
	InPerMillion  float64
	OutPerMillion float64
}

// DefaultPricing matches the published sonar rates.
var DefaultPricing = Pricing{InPerMillion: 1.0, OutPerMillion: 1.0}

// EstimateCostUSD prices a call from input tokens and the output cap.
func EstimateCostUSD(tokensIn, maxOut int, p Pricing) float64 {
	return float64(tokensIn)/1e6*p.InPerMillion + float64(maxOut)/1e6*p.OutPerMillion
}

var tokenHTTPClient = &http.Client{Timeout: 60 * time.Second}

// CountTokensFromURL downloads a document and estimates how many tokens its
// text would consume as prompt context. PDFs are extracted with the pdf
// reader; anything else is treated as HTML.
func CountTokensFromURL(ctx context.Context, url string) (tokens, characters int, err error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("creating request: %w", err)
	}

	resp, err := tokenHTTPClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("fetching document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 20*1024*1024))
	if err != nil {
		return 0, 0, fmt.Errorf("reading document: %w", err)
	}

	var text string
	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "pdf") || bytes.HasPrefix(body, []byte("%PDF")) {
		text, err = extractPDFText(body)
		if err != nil {
			// Unparseable PDF: fall back to raw size so the estimate is
			// at least an upper bound.
			text = string(body)
		}
	} else {
		text = htmlToText(string(body))
	}

	text = strings.Join(strings.Fields(text), " ")
	return ApproxTokens(text), len(text), nil
}

func extractPDFText(content []byte) (text string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("pdf parser panic: %v", recovered)
			text = ""
		}
	}()

	reader, err := rpdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	for pageIndex := 1; pageIndex <= reader.NumPage(); pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		for _, fragment := range page.Content().Text {
			builder.WriteString(fragment.S)
			builder.WriteString(" ")
		}
		builder.WriteString("\n")
	}
	return builder.String(), nil
}

func htmlToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	doc.Find("script, style").Remove()
	return doc.Text()
}
