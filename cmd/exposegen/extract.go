package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/thywilljoshua/expose-generator/internal/ai"
	"github.com/thywilljoshua/expose-generator/internal/docs"
	"github.com/thywilljoshua/expose-generator/internal/history"
	"github.com/thywilljoshua/expose-generator/internal/photos"
	"github.com/thywilljoshua/expose-generator/internal/project"
	"github.com/thywilljoshua/expose-generator/internal/session"
)

func extractCmd() *cobra.Command {
	var dir string
	var text string
	var textFile string
	var photoPaths []string

	cmd := &cobra.Command{
		Use:   "extract <documents...>",
		Short: "Extract an exposé from application documents and photos into a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			if textFile != "" {
				raw, err := os.ReadFile(textFile)
				if err != nil {
					return err
				}
				text = strings.TrimSpace(text + "\n\n" + string(raw))
			}
			if len(args) == 0 && strings.TrimSpace(text) == "" {
				return errors.New("nothing to extract: pass documents or --text")
			}
			return a.extract(cmd.Context(), cmd.OutOrStdout(), dir, args, text, photoPaths)
		},
	}
	cmd.Flags().StringVarP(&dir, "session", "s", defaultSession, "session directory")
	cmd.Flags().StringVar(&text, "text", "", "additional free text, e.g. an e-mail")
	cmd.Flags().StringVar(&textFile, "text-file", "", "read additional free text from a file")
	cmd.Flags().StringSliceVarP(&photoPaths, "photo", "p", nil, "photos for page 2 (repeatable)")
	return cmd
}

func (a *app) extract(ctx context.Context, out io.Writer, dir string, paths []string, text string, photoPaths []string) error {
	files, err := docs.ReadFiles(paths)
	if err != nil {
		return err
	}
	bundle, err := a.loader.Load(files, text)
	if err != nil {
		return err
	}

	// A single exposé PDF is re-opened instead of extracted again.
	if len(files) == 1 && len(bundle.Projects) == 1 && strings.TrimSpace(text) == "" {
		fmt.Fprintf(out, "📦 %s is an exposé project, importing it\n", files[0].Name)
		sess, err := importPackage(dir, files[0].Name, bundle.Projects[0].Package)
		if err != nil {
			return err
		}
		return reportSession(out, sess)
	}
	for _, p := range bundle.Projects {
		a.log.Infof("%s already carries an exposé, its pages are ignored", p.Name)
	}

	gen, model := a.generator(ctx)
	caller := ai.NewCaller(gen, a.cfg.Policy(), ai.WithProgress(progressPrinter(out)))
	extractor := ai.NewExtractor(caller, ai.WithExtractorProgress(progressPrinter(out)))

	store, err := history.Open(a.cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	sess, err := session.Create(dir)
	if err != nil {
		return err
	}
	sess.Source = strings.Join(paths, ", ")

	fmt.Fprintf(out, "📄 %d document(s), %d page(s) of scans and images\n", len(files), len(bundle.Images))
	runID, err := store.Start(ctx, sess.ID, model, len(bundle.Images))
	if err != nil {
		return err
	}
	sess.LastRun = runID

	res, runErr := extractor.Extract(ctx, ai.Input{Images: bundle.Images, Text: bundle.Text})
	stage, calls := "", 0
	if res != nil {
		stage, calls = res.Stage.String(), res.Calls
	}
	var xerr *ai.ExtractionError
	if errors.As(runErr, &xerr) {
		stage = xerr.Stage.String()
	}
	if err := store.Finish(context.WithoutCancel(ctx), runID, stage, calls, runErr); err != nil {
		a.log.Warnf("history: %v", err)
	}
	if runErr != nil {
		if xerr != nil {
			return fmt.Errorf("extraction failed in stage %s with %d image(s): %w", xerr.Stage, xerr.Images, xerr.Err)
		}
		return runErr
	}
	fmt.Fprintf(out, "✅ extracted with %s strategy in %d call(s)\n", res.Stage, res.Calls)

	sess.Stage = res.Stage.String()
	if err := sess.SetMarkdown(res.Markdown); err != nil {
		return err
	}

	if len(photoPaths) > 0 {
		if err := a.addPhotos(ctx, out, sess, caller, photoPaths); err != nil {
			return err
		}
	}
	if err := sess.Save(); err != nil {
		return err
	}
	return reportSession(out, sess)
}

// addPhotos stores the photos in the session and applies the categorization: duplicates
// are flagged, the family photo elected, and the remaining photos selected.
func (a *app) addPhotos(ctx context.Context, out io.Writer, sess *session.Session, caller *ai.Caller, paths []string) error {
	files, err := docs.ReadFiles(paths)
	if err != nil {
		return err
	}
	list, skipped := a.loader.LoadPhotos(files)
	for _, name := range skipped {
		fmt.Fprintf(out, "⚠️  skipped unreadable photo %s\n", name)
	}
	if len(list) == 0 {
		return nil
	}

	imgs := make([]image.Image, len(list))
	for i, p := range list {
		imgs[i] = p.Image
	}
	categorizer := photos.NewCategorizer(caller,
		photos.WithHashSize(a.cfg.HashSize),
		photos.WithThreshold(a.cfg.DupThreshold),
		photos.WithLogger(a.log.With("photos")),
	)
	fmt.Fprintf(out, "🖼️  categorizing %d photo(s)\n", len(list))
	cat := categorizer.Categorize(ctx, imgs)
	if cat.Degraded {
		fmt.Fprintln(out, "⚠️  categorization unavailable, all unique photos selected")
	}

	dups := photos.IndexSet{}
	for _, i := range cat.Duplicates {
		dups.Add(i)
	}
	garden := photos.IndexSet{}
	for _, i := range cat.Garden {
		garden.Add(i)
	}
	for i, p := range list {
		sp, err := sess.AddPhoto(p.Name, p.Data)
		if err != nil {
			return err
		}
		sp.Duplicate = dups.Has(i)
		sp.Family = cat.Family == i
		sp.Selected = garden.Has(i)
		if label, ok := cat.Labels[i]; ok {
			sp.Category = label.String()
		}
	}
	if len(cat.Duplicates) > 0 {
		fmt.Fprintf(out, "🔁 %d duplicate(s) left unselected\n", len(cat.Duplicates))
	}
	return nil
}

func importPackage(dir, source string, pkg *project.Package) (*session.Session, error) {
	sess, err := session.Create(dir)
	if err != nil {
		return nil, err
	}
	sess.Source = source
	sess.Stage = "IMPORT"
	if err := sess.SetMarkdown(pkg.Markdown); err != nil {
		return nil, err
	}
	for _, p := range pkg.Photos {
		sp, err := sess.AddPhoto(p.Name, p.Data)
		if err != nil {
			return nil, err
		}
		sp.Family = p.IsFamily
		sp.Selected = p.Selected
	}
	return sess, sess.Save()
}

func reportSession(out io.Writer, sess *session.Session) error {
	fmt.Fprintf(out, "📝 edit %s, then run: exposegen build -s %s\n", sess.MarkdownPath(), sess.Dir())
	return nil
}

func progressPrinter(out io.Writer) ai.ProgressFunc {
	return func(ev ai.Event) {
		switch ev.Kind {
		case ai.EventStageEntered:
			fmt.Fprintf(out, "🚀 %s: %d image(s)\n", ev.Stage, ev.Images)
		case ai.EventItem:
			fmt.Fprintf(out, "   %s %d/%d\n", ev.Stage, ev.Item, ev.Total)
		case ai.EventWaiting:
			// Attempt is zero for the fixed pause between stages and groups.
			if ev.Attempt == 0 {
				fmt.Fprintf(out, "⏸️  pacing, waiting %s\n", ev.Wait.Round(time.Second))
				return
			}
			fmt.Fprintf(out, "⏳ rate limited, waiting %s (attempt %d)\n", ev.Wait.Round(time.Second), ev.Attempt)
		case ai.EventStageFailed:
			fmt.Fprintf(out, "⚠️  %s failed: %v\n", ev.Stage, ev.Err)
		case ai.EventCombine:
			fmt.Fprintln(out, "🧩 combining notes")
		}
	}
}
