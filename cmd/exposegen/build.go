package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/thywilljoshua/expose-generator/internal/expose"
	"github.com/thywilljoshua/expose-generator/internal/photos"
	"github.com/thywilljoshua/expose-generator/internal/project"
	"github.com/thywilljoshua/expose-generator/internal/render"
	"github.com/thywilljoshua/expose-generator/internal/session"
)

func buildCmd() *cobra.Command {
	var dir string
	var out string
	var family string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Render the session into an exposé PDF that can be imported again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			sess, err := session.Open(dir)
			if err != nil {
				return err
			}
			if family != "" {
				if err := sess.SetFamily(family); err != nil {
					return err
				}
				if err := sess.Save(); err != nil {
					return err
				}
			}
			md, err := sess.Markdown()
			if err != nil {
				return err
			}
			doc := expose.Parse(md)
			if doc.Empty() {
				a.log.Warnf("%s has no title or sections", sess.MarkdownPath())
			}

			sel, list, err := loadSelection(a, sess)
			if err != nil {
				return err
			}
			pdf, err := render.NewPDF(a.log.With("render")).Render(doc, sel)
			if err != nil {
				return fmt.Errorf("render: %w", err)
			}
			pdf, err = a.codec.Embed(pdf, md, list)
			if err != nil {
				return fmt.Errorf("embed project: %w", err)
			}

			if out == "" {
				out = filepath.Join(sess.Dir(), "expose.pdf")
			}
			if err := os.WriteFile(out, pdf, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ wrote %s (%s, %d photo(s) embedded)\n", out, doc.Title(), len(list))
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "session", "s", defaultSession, "session directory")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output PDF (default: <session>/expose.pdf)")
	cmd.Flags().StringVar(&family, "family", "", "name of the photo to use as family photo")
	return cmd
}

// loadSelection decodes the photos of the session. Every photo is embedded so the
// selection survives an import; only the family photo and selected photos are drawn.
func loadSelection(a *app, sess *session.Session) (render.Selection, []project.Photo, error) {
	var (
		sel  render.Selection
		list []project.Photo
	)
	for _, p := range sess.Photos {
		data, err := sess.PhotoData(p)
		if err != nil {
			return sel, nil, fmt.Errorf("photo %s: %w", p.Name, err)
		}
		list = append(list, project.Photo{Name: p.Name, Data: data, IsFamily: p.Family, Selected: p.Selected})
		if !p.Family && !(p.Selected && len(sel.Photos) < render.MaxSheetPhotos) {
			continue
		}
		img, err := photos.Decode(data)
		if err != nil {
			a.log.Warnf("photo %s not drawn: %v", p.Name, err)
			continue
		}
		if p.Family {
			sel.Family = img
		} else {
			sel.Photos = append(sel.Photos, img)
		}
	}
	return sel, list, nil
}
