package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/thywilljoshua/expose-generator/internal/ai"
	"github.com/thywilljoshua/expose-generator/internal/docs"
	"github.com/thywilljoshua/expose-generator/internal/expose"
	"github.com/thywilljoshua/expose-generator/internal/history"
	exposemcp "github.com/thywilljoshua/expose-generator/internal/mcp"
	"github.com/thywilljoshua/expose-generator/internal/photos"
	"github.com/thywilljoshua/expose-generator/internal/session"
)

func importCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "import <pdf>",
		Short: "Re-open an exposé PDF as an editable session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			pkg := a.codec.Extract(data)
			if pkg == nil {
				return fmt.Errorf("%s is not an exposé project", filepath.Base(args[0]))
			}
			out := cmd.OutOrStdout()
			for _, name := range pkg.Skipped {
				fmt.Fprintf(out, "⚠️  skipped unreadable photo %s\n", name)
			}
			sess, err := importPackage(dir, filepath.Base(args[0]), pkg)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "📦 imported %d photo(s) from %s (created %s)\n",
				len(pkg.Photos), filepath.Base(args[0]), pkg.CreatedAt.Format(time.DateTime))
			return reportSession(out, sess)
		},
	}
	cmd.Flags().StringVarP(&dir, "session", "s", defaultSession, "session directory")
	return cmd
}

func duplicatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "duplicates <photos...>",
		Short: "List near-duplicate photos; the first occurrence is kept",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			files, err := docs.ReadFiles(args)
			if err != nil {
				return err
			}
			list, skipped := a.loader.LoadPhotos(files)
			hashes := make([]photos.Hash, len(list))
			for i, p := range list {
				hashes[i] = photos.DifferenceHash(p.Image, a.cfg.HashSize)
			}
			dups := photos.DuplicatesFromHashes(hashes, a.cfg.DupThreshold)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PHOTO\tHASH\tSTATUS")
			for i, p := range list {
				status := "keep"
				if dups.Has(i) {
					status = "duplicate"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, hashes[i].Hex(), status)
			}
			for _, name := range skipped {
				fmt.Fprintf(w, "%s\t-\tunreadable\n", name)
			}
			return w.Flush()
		},
	}
	return cmd
}

func previewCmd() *cobra.Command {
	var dir string
	var out string

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Render the session Markdown as an HTML page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := session.Open(dir)
			if err != nil {
				return err
			}
			md, err := sess.Markdown()
			if err != nil {
				return err
			}
			page, err := expose.HTML(md)
			if err != nil {
				return err
			}
			if out == "-" {
				_, err = cmd.OutOrStdout().Write(page)
				return err
			}
			if out == "" {
				out = filepath.Join(sess.Dir(), "expose.html")
			}
			if err := os.WriteFile(out, page, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "🔎 preview written to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "session", "s", defaultSession, "session directory")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file, - for stdout (default: <session>/expose.html)")
	return cmd
}

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recent extraction runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			store, err := history.Open(a.cfg.DataDir)
			if err != nil {
				return err
			}
			defer store.Close()

			var runs []history.Run
			if len(args) == 1 {
				run, err := store.Get(cmd.Context(), args[0])
				if errors.Is(err, history.ErrNotFound) {
					return fmt.Errorf("no run %s", args[0])
				}
				if err != nil {
					return err
				}
				runs = append(runs, *run)
			} else if runs, err = store.Recent(cmd.Context(), limit); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTARTED\tSTATUS\tSTAGE\tCALLS\tIMAGES\tDURATION\tERROR")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
					r.ID, r.StartedAt.Local().Format(time.DateTime), r.Status, r.Stage,
					r.Calls, r.Images, r.Duration().Round(time.Millisecond), r.Error)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the exposé tools over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			store, err := history.Open(a.cfg.DataDir)
			if err != nil {
				return err
			}
			defer store.Close()

			gen, model := a.generator(cmd.Context())
			h := &exposemcp.Handlers{
				Codec:     a.codec,
				Loader:    a.loader,
				Extractor: ai.NewExtractor(ai.NewCaller(gen, a.cfg.Policy())),
				History:   store,
				Model:     model,
				Threshold: a.cfg.DupThreshold,
				HashSize:  a.cfg.HashSize,
				Log:       a.log.With("mcp"),
			}
			return exposemcp.Run(h, version)
		},
	}
}
