package render_test

import (
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thywilljoshua/expose-generator/internal/expose"
	"github.com/thywilljoshua/expose-generator/internal/project"
	"github.com/thywilljoshua/expose-generator/internal/render"
)

func solid(c color.Color) image.Image {
	return imaging.New(120, 90, c)
}

func TestRenderPageCount(t *testing.T) {
	doc := expose.Parse("# Familie Meier | Köln\n## Budget\n- **8000 €**\nFlexibel.\n")
	r := render.NewPDF(nil)

	textOnly, err := r.Render(doc, render.Selection{})
	require.NoError(t, err)
	n, err := project.PageCount(textOnly)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	withPhotos, err := r.Render(doc, render.Selection{
		Family: solid(color.RGBA{200, 50, 50, 255}),
		Photos: []image.Image{solid(color.White), solid(color.Black), solid(color.Gray{128})},
	})
	require.NoError(t, err)
	n, err = project.PageCount(withPhotos)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRenderEmptyDocument(t *testing.T) {
	out, err := render.NewPDF(nil).Render(expose.Document{}, render.Selection{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "%PDF-"))
}

func TestPhotoSheet(t *testing.T) {
	sheet := render.PhotoSheet(render.Selection{
		Photos: []image.Image{solid(color.Black)},
	})
	b := sheet.Bounds()
	assert.Equal(t, 1240, b.Dx())
	assert.Equal(t, 1754, b.Dy())

	// the single grid photo starts at the top-left margin
	r, g, bl, _ := sheet.At(100, 100).RGBA()
	assert.Equal(t, []uint32{0, 0, 0}, []uint32{r, g, bl})
	// outside any cell the page stays white
	r, _, _, _ = sheet.At(10, 10).RGBA()
	assert.Equal(t, uint32(0xffff), r)
}
