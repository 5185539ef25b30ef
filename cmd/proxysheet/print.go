package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"proxysheet/internal/domain"
	"proxysheet/internal/printer"
)

func newPrintCommand(ctx *commandContext) *cobra.Command {
	var (
		output string
		rows   int
		cols   int
		quiet  bool
	)

	cmd := &cobra.Command{
		Use:   "print ID[:FACE[:QTY]]|@FILE[:QTY]...",
		Short: "Render a proxy sheet PDF to a file",
		Long: `Render a proxy sheet PDF to a file.

Each card is a Scryfall card UUID, optionally followed by the face
(front or back) and a quantity, for example:

  proxysheet print e01a59e7-bde1-4150-bb4f-a19d769764f2::4 \
    0000579f-7b35-4ed3-b44c-db2a538066fe:back -o deck.pdf

An argument starting with @ names a local PNG or JPEG used as-is
instead of downloaded artwork:

  proxysheet print @token.png:2 -o tokens.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			reqs := make([]domain.CardRequest, 0, len(args))
			for _, arg := range args {
				parse := parseCardArg
				if strings.HasPrefix(arg, "@") {
					parse = readLocalArg
				}
				req, err := parse(arg)
				if err != nil {
					return err
				}
				reqs = append(reqs, req)
			}

			layout := cfg.Layout.Domain()
			if cmd.Flags().Changed("rows") {
				layout.Rows = rows
			}
			if cmd.Flags().Changed("cols") {
				layout.Cols = cols
			}

			svc := buildServices(cfg)
			defer svc.pool.Close()

			runCtx, cancel := context.WithTimeout(cmd.Context(), cfg.Render.JobTimeout)
			defer cancel()

			job := printer.Job{Requests: reqs, Layout: layout}
			if !quiet {
				stderr := cmd.ErrOrStderr()
				job.Progress = domain.ProgressFunc(func(msg string) { fmt.Fprintln(stderr, msg) })
			}
			res, err := svc.printer.Run(runCtx, job)
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, res.PDF, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Output", "Pages", "Cards", "Distinct", "Downloaded", "Bytes"},
				[][]string{{
					output,
					strconv.Itoa(res.Pages),
					strconv.Itoa(res.Cards),
					strconv.Itoa(res.DistinctKeys),
					strconv.Itoa(res.Retrievals),
					strconv.Itoa(len(res.PDF)),
				}},
				1, 2, 3, 4, 5,
			))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "proxies.pdf", "PDF file to write")
	cmd.Flags().IntVar(&rows, "rows", 0, "Grid rows per page (default from config)")
	cmd.Flags().IntVar(&cols, "cols", 0, "Grid columns per page (default from config)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")
	return cmd
}

// parseCardArg parses ID[:FACE[:QTY]]. Face defaults to front, quantity
// to 1.
func parseCardArg(arg string) (domain.CardRequest, error) {
	parts := strings.Split(arg, ":")
	if len(parts) > 3 {
		return domain.CardRequest{}, fmt.Errorf("%w: %q: want ID[:FACE[:QTY]]", domain.ErrInvalidRequest, arg)
	}

	id, err := uuid.Parse(parts[0])
	if err != nil {
		return domain.CardRequest{}, fmt.Errorf("%w: %q: card id must be a UUID", domain.ErrInvalidRequest, arg)
	}
	req := domain.CardRequest{ID: id.String(), Face: domain.FaceFront, Quantity: 1}

	if len(parts) > 1 {
		face, err := domain.ParseFace(strings.ToLower(parts[1]))
		if err != nil {
			return domain.CardRequest{}, fmt.Errorf("%q: %w", arg, err)
		}
		req.Face = face
	}
	if len(parts) > 2 && parts[2] != "" {
		qty, err := strconv.Atoi(parts[2])
		if err != nil || qty < 1 {
			return domain.CardRequest{}, fmt.Errorf("%w: %q: quantity must be a positive integer", domain.ErrInvalidRequest, arg)
		}
		req.Quantity = qty
	}
	return req, nil
}

// readLocalArg parses @FILE[:QTY] and loads the file as the card's artwork.
func readLocalArg(arg string) (domain.CardRequest, error) {
	path, qty := strings.TrimPrefix(arg, "@"), 1
	if i := strings.LastIndex(path, ":"); i > 0 {
		n, err := strconv.Atoi(path[i+1:])
		if err != nil || n < 1 {
			return domain.CardRequest{}, fmt.Errorf("%w: %q: quantity must be a positive integer", domain.ErrInvalidRequest, arg)
		}
		path, qty = path[:i], n
	}
	if path == "" {
		return domain.CardRequest{}, fmt.Errorf("%w: %q: want @FILE[:QTY]", domain.ErrInvalidRequest, arg)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.CardRequest{}, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	if len(data) == 0 {
		return domain.CardRequest{}, fmt.Errorf("%w: %s is empty", domain.ErrInvalidRequest, path)
	}
	return domain.CardRequest{
		ID:       "local:" + filepath.Clean(path),
		Face:     domain.FaceFront,
		Quantity: qty,
		Image:    data,
	}, nil
}
