package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/quintessa-dev/Automacao-de-editais/internal/collect"
	"github.com/quintessa-dev/Automacao-de-editais/internal/providers"
	"github.com/quintessa-dev/Automacao-de-editais/internal/store"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	reg, err := providers.LoadRegistry("internal/providers/config/sources.yaml")
	if err != nil {
		log.Fatal(err)
	}

	// Config is optional for a probe: without a database the defaults apply.
	cfg := map[string]string{}
	if pool, err := store.Connect(ctx); err == nil {
		defer pool.Close()
		if read, err := store.NewStore(pool).ReadConfig(ctx); err == nil {
			cfg = read
		}
	} else {
		log.Printf("no database, probing with default regexes: %v", err)
	}

	rows := collect.Diagnose(ctx, reg, cfg, nil)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Grupo", "Fonte", "Itens", "Tempo (s)", "Erro", "Hint"})
	for _, row := range rows {
		t.AppendRow(table.Row{row.Group, row.Source, row.Items, fmt.Sprintf("%.1f", row.Elapsed), row.Error, row.Hint})
	}
	t.Render()
}
