package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mikeboe/deep-search/pkg/bootstrap"
	"github.com/mikeboe/deep-search/pkg/config"
	"github.com/mikeboe/deep-search/pkg/evals"
	"github.com/mikeboe/deep-search/pkg/research"
	"github.com/spf13/cobra"
)

var (
	city    string
	country string
	dataset string
	grade   bool
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "deep-search",
		Short: "A terminal-based deep research agent",
		Long:  `deep-search answers questions by planning web searches, reading the results and deciding when it has enough evidence for a cited answer.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelInfo
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline progress to stderr")

	askCmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Research a question and stream the answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				// Interactive Mode
				fmt.Print("Enter question: ")
				input, _ := bufio.NewReader(os.Stdin).ReadString('\n')
				question = strings.TrimSpace(input)
			}
			if question == "" {
				return fmt.Errorf("question cannot be empty")
			}
			return ask(cmd.Context(), question)
		},
	}
	askCmd.Flags().StringVar(&city, "city", "", "User city for location-sensitive questions")
	askCmd.Flags().StringVar(&country, "country", "", "User country for location-sensitive questions")

	evalCmd := &cobra.Command{
		Use:   "eval",
		Short: "Run a bundled eval dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd.Context(), dataset)
		},
	}
	evalCmd.Flags().StringVarP(&dataset, "dataset", "d", "dev", fmt.Sprintf("Dataset to run %v", evals.DatasetNames()))
	evalCmd.Flags().BoolVar(&grade, "grade", true, "Grade answers with the factuality judge")

	rootCmd.AddCommand(askCmd, evalCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

func setup(ctx context.Context) (*bootstrap.App, *research.Engine, error) {
	cfg := config.Load()
	app, err := bootstrap.New(ctx, cfg, slog.Default())
	if err != nil {
		return nil, nil, err
	}
	engine, err := app.NewEngine(slog.Default())
	if err != nil {
		app.Close()
		return nil, nil, err
	}
	return app, engine, nil
}

func ask(ctx context.Context, question string) error {
	app, engine, err := setup(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithTimeout(ctx, app.Config.RequestTimeout)
	defer cancel()

	req := research.Request{
		Query:   question,
		History: []research.Message{{Role: "user", Content: question}},
	}
	if city != "" || country != "" {
		req.Location = &research.Location{City: city, Country: country}
	}

	answer, err := engine.Run(ctx, req, research.ProgressFunc(printProgress))
	if err != nil {
		return err
	}
	for chunk, err := range answer.Stream {
		if err != nil {
			return err
		}
		fmt.Print(chunk)
	}
	fmt.Println()
	return nil
}

func printProgress(ev research.ProgressEvent) {
	switch {
	case ev.Action != nil:
		fmt.Fprintf(os.Stderr, "> %s\n", ev.Action.Title)
		if ev.Action.Feedback != "" {
			fmt.Fprintf(os.Stderr, "  %s\n", ev.Action.Feedback)
		}
	case ev.Sources != nil:
		fmt.Fprintf(os.Stderr, "  %d sources for %s\n", len(ev.Sources.Sources), ev.Sources.Query)
	}
}

func runEval(ctx context.Context, name string) error {
	cases, err := evals.Dataset(name)
	if err != nil {
		return err
	}
	app, engine, err := setup(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	runner := &evals.Runner{Engine: engine, Timeout: app.Config.RequestTimeout}
	if grade {
		runner.Judge = &evals.FactualityJudge{LLM: app.LLM}
	}
	report := runner.Run(ctx, name, cases)
	return report.Write(os.Stdout)
}
