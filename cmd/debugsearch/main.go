package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/serpgate/internal/app"
	"github.com/hyperifyio/serpgate/internal/model"
)

// debugsearch runs one request through the pipeline without the task queue
// and prints the formatted output.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	mode := flag.String("mode", "search", "search or scrape")
	format := flag.String("format", "markdown", "markdown, json or vector")
	limit := flag.Int("limit", 5, "Maximum results")
	flag.Parse()

	q := "What is love?"
	if flag.NArg() > 0 {
		q = flag.Arg(0)
	}
	_ = app.LoadEnvFiles(".env")
	cfg, err := app.Resolve(os.Getenv("SERPGATE_CONFIG"), nil)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	p, closeFn, err := app.NewPipeline(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("pipeline")
	}
	defer closeFn()

	req := model.SearchRequest{Query: q, Mode: model.Mode(*mode), OutputFormat: model.OutputFormat(*format), Limit: *limit}.Normalize()
	if err := req.Validate(); err != nil {
		log.Fatal().Err(err).Msg("request")
	}
	res, err := p.Run(ctx, req)
	if err != nil {
		fmt.Println("err:", err)
		return
	}
	fmt.Printf("provider: %s, results: %d, tokens: %d\n\n", res.Provider, len(res.OrganicResults), res.TokenEstimate)
	fmt.Print(res.FormattedOutput)
}
