package collect

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/quintessa-dev/Automacao-de-editais/internal/providers"
)

// DiagRow is the outcome of probing one provider.
type DiagRow struct {
	Group   string  `json:"grupo"`
	Source  string  `json:"fonte"`
	Items   int     `json:"itens"`
	Elapsed float64 `json:"tempo_s"`
	Error   string  `json:"erro"`
	Hint    string  `json:"hint"`
}

// Diagnose fetches from every provider without touching the store, timing
// each one and classifying failures. Overrides replace the stored regex for
// a run (keys RE_GOV, RE_PHIL, RE_LATAM, ...). Rows completed before a
// cancellation are returned.
func Diagnose(ctx context.Context, reg *providers.Registry, cfg, overrides map[string]string) []DiagRow {
	provs, err := reg.Providers()
	if err != nil {
		return []DiagRow{{Source: "registry", Error: err.Error()}}
	}

	rows := make([]DiagRow, 0, len(provs))
	for _, p := range provs {
		src := p.Source()
		if err := ctx.Err(); err != nil {
			break
		}

		key := RegexKey(src.Group)
		pattern := cfg[key]
		if ov, ok := overrides[key]; ok {
			pattern = ov
		}
		crit := providers.Criteria{
			Regex:        CompileGroupRegex(key, pattern),
			GrantsStatus: cfg["GRANTS_STATUS"],
		}

		row := DiagRow{Group: src.Group, Source: src.Name}
		start := time.Now()
		items, err := probe(ctx, p, crit)
		row.Elapsed = time.Since(start).Seconds()
		row.Items = len(items)
		if err != nil {
			row.Error = err.Error()
			row.Hint = classifyError(err, src)
		}
		rows = append(rows, row)
	}
	return rows
}

// probe runs one fetch with a panic guard so a broken parser cannot take
// the whole diagnostics pass down.
func probe(ctx context.Context, p providers.Provider, crit providers.Criteria) (items []providers.RawItem, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("provider panic: %v", recovered)
		}
	}()
	return p.Fetch(ctx, crit)
}

// classifyError maps a fetch failure to a remediation hint, falling back to
// the source's configured url_hint.
func classifyError(err error, src providers.SourceConfig) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context deadline exceeded"), strings.Contains(msg, "timeout"):
		return "site lento ou fora do ar, tente aumentar o timeout"
	case strings.Contains(msg, "no such host"), strings.Contains(msg, "dns"):
		return "host não resolve, confira a URL no registro de fontes"
	case strings.Contains(msg, "403"), strings.Contains(msg, "429"):
		return "acesso bloqueado pelo site, reduza a frequência de coleta"
	case strings.Contains(msg, "parse"), strings.Contains(msg, "decoding"):
		return "layout da página mudou, revise os seletores"
	}
	if src.URLHint != "" {
		return "verifique manualmente: " + src.URLHint
	}
	return ""
}
