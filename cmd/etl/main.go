package main

import (
	"flag"
	"fmt"
	"os"

	"weather-etl/internal/config"
	"weather-etl/internal/model"
	"weather-etl/internal/pipeline"
)

// Exit codes: 0 success, 2 expected-empty input, 1 anything else.
const exitEmpty = 2

func main() {
	stage := flag.String("stage", pipeline.StageAll,
		"stage to run: raw | transform | staging | warehouse | mart | dims | all")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	defer p.Close()

	if err := p.Run(*stage); err != nil {
		if model.ExpectedEmpty(err) {
			fmt.Printf("ℹ️ nothing to do: %v\n", err)
			os.Exit(exitEmpty)
		}
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}
