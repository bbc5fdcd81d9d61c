package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/papergraph"
	"github.com/brunobiangulo/papergraph/parser"
)

type extractOptions struct {
	model   string
	apiKey  string
	outDir  string
	noXLSX  bool
	asJSON  bool
	history bool
}

func newExtractCmd(root *rootOptions) *cobra.Command {
	opts := &extractOptions{}

	cmd := &cobra.Command{
		Use:   "extract <paper.pdf>",
		Short: "Extract the method graph of a paper",
		Long: `Extract sends the text of a paper to the chat model once and writes
method_<timestamp>.json, .html and .xlsx to the output directory.

The API key is taken from --api-key, then chat.api_key in the config, then
OPENROUTER_API_KEY.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, root.cfg, opts, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.model, "model", "m", "", "Model identifier (default: first configured model)")
	f.StringVar(&opts.apiKey, "api-key", "", "Chat API key")
	f.StringVarP(&opts.outDir, "out", "o", "", "Output directory (default: output_dir from config)")
	f.BoolVar(&opts.noXLSX, "no-xlsx", false, "Skip the workbook export")
	f.BoolVar(&opts.asJSON, "json", false, "Print the result as JSON")
	f.BoolVar(&opts.history, "history", false, "Record the run in the history database")
	return cmd
}

func runExtract(cmd *cobra.Command, cfg papergraph.Config, opts *extractOptions, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if opts.outDir != "" {
		cfg.OutputDir = opts.outDir
	}
	if opts.noXLSX {
		cfg.XLSX = false
	}
	if opts.history {
		cfg.History = true
	}
	apiKey := opts.apiKey
	if apiKey == "" {
		apiKey = cfg.Chat.APIKey
	}
	model := opts.model
	if model == "" {
		model = cfg.DefaultModel()
	}

	engine, err := papergraph.New(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	res, err := engine.Run(cmd.Context(), papergraph.Request{
		PDF:      data,
		Filename: filepath.Base(path),
		Format:   parser.FormatOf(path),
		APIKey:   apiKey,
		Model:    model,
	})
	if err != nil {
		printRawOutput(cmd, err)
		return err
	}

	if opts.asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printResult(cmd.OutOrStdout(), filepath.Base(path), res)
	return nil
}

// printRawOutput shows the model answer when it could not be used.
func printRawOutput(cmd *cobra.Command, err error) {
	var (
		raw string
		pe  *papergraph.ParseError
		ve  *papergraph.ValidationError
	)
	switch {
	case errors.As(err, &pe):
		raw = pe.Raw
	case errors.As(err, &ve):
		raw = ve.Raw
	default:
		return
	}
	w := cmd.ErrOrStderr()
	fmt.Fprintln(w, headingStyle.Render("Raw model output"))
	fmt.Fprintln(w, raw)
}
