package project

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// plainPDF is a one-page PDF with no project package, like any third-party file.
func plainPDF(t *testing.T) []byte {
	t.Helper()
	var out bytes.Buffer
	err := api.ImportImages(nil, &out, []io.Reader{bytes.NewReader(pngBytes(t, color.White))}, pdfcpu.DefaultImportConfig(), newConfig())
	require.NoError(t, err)
	return out.Bytes()
}

func testPhotos(t *testing.T, n int) []Photo {
	list := make([]Photo, n)
	for i := range list {
		list[i] = Photo{
			Name:     fmt.Sprintf("photo_%d.png", i+1),
			Data:     pngBytes(t, color.RGBA{uint8(40 * i), 100, 200, 255}),
			IsFamily: i == 1,
			Selected: i%2 == 0,
		}
	}
	return list
}

const markdown = "# Familie Größe | München\n\n## Wünsche\n- **Teich** mit Brücke 🌿\n- Hochbeet (\"Gemüse\")\nKurzer Text \\ mit Backslash.\n"

func TestEmbedExtractRoundTrip(t *testing.T) {
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	codec := NewCodec(WithClock(func() time.Time { return fixed }))
	base := plainPDF(t)
	pages, err := PageCount(base)
	require.NoError(t, err)

	uploadNames := []string{"Garten Müller.png", "IMG 0001.png", "Familie Größe 🌿.png", "été.jpeg", "photo_5.png"}
	for _, n := range []int{0, 1, 5} {
		t.Run(fmt.Sprintf("%d photos", n), func(t *testing.T) {
			in := testPhotos(t, n)
			for i := range in {
				in[i].Name = uploadNames[i]
			}
			out, err := codec.Embed(base, markdown, in)
			require.NoError(t, err)

			got, err := PageCount(out)
			require.NoError(t, err)
			assert.Equal(t, pages, got, "pages are not touched")

			pkg := codec.Extract(out)
			require.NotNil(t, pkg)
			assert.Equal(t, Marker, pkg.Marker)
			assert.Equal(t, Version, pkg.Version)
			assert.Equal(t, markdown, pkg.Markdown)
			assert.Equal(t, n, pkg.PhotoCount)
			assert.True(t, fixed.Equal(pkg.CreatedAt))
			assert.Empty(t, pkg.Skipped)

			require.Len(t, pkg.Photos, n)
			for i, p := range pkg.Photos {
				assert.Equal(t, in[i].Name, p.Name)
				assert.Equal(t, in[i].IsFamily, p.IsFamily)
				assert.Equal(t, in[i].Selected, p.Selected)
				assert.Equal(t, in[i].Data, p.Data)
				require.NotNil(t, p.Image)
				assert.Equal(t, 40, p.Image.Bounds().Dx())
			}
		})
	}
}

func TestExtractForeignPDF(t *testing.T) {
	codec := NewCodec()
	tests := []struct {
		name string
		pdf  []byte
	}{
		{"plain pdf", plainPDF(t)},
		{"not a pdf", []byte("hello world")},
		{"truncated", plainPDF(t)[:100]},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pkg *Package
			assert.NotPanics(t, func() { pkg = codec.Extract(tt.pdf) })
			assert.Nil(t, pkg)
		})
	}
}

func withSubject(t *testing.T, pdf []byte, s string) []byte {
	t.Helper()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(pdf), newConfig())
	require.NoError(t, err)
	require.NoError(t, setSubject(ctx, s))
	var out bytes.Buffer
	require.NoError(t, api.WriteContext(ctx, &out))
	return out.Bytes()
}

func TestExtractWrongSubject(t *testing.T) {
	codec := NewCodec()
	base := plainPDF(t)
	for _, s := range []string{
		"Gartenprojekt 2024",
		`{"marker":"SOMETHING_ELSE","version":"1.0","markdown":"# x"}`,
		`{"marker":"casting_expose_project","markdown":"# x"}`,
	} {
		assert.Nil(t, codec.Extract(withSubject(t, base, s)), s)
	}

	pkg := codec.Extract(withSubject(t, base, `{"marker":"CASTING_EXPOSE_PROJECT","markdown":"# Nur Text"}`))
	require.NotNil(t, pkg, "a valid marker without attachments still imports the text")
	assert.Equal(t, "# Nur Text", pkg.Markdown)
	assert.Empty(t, pkg.Photos)
}

func TestExtractSkipsUndecodablePhotos(t *testing.T) {
	codec := NewCodec()
	in := testPhotos(t, 3)
	in[1].Data = []byte("definitely not an image")

	out, err := codec.Embed(plainPDF(t), markdown, in)
	require.NoError(t, err)

	pkg := codec.Extract(out)
	require.NotNil(t, pkg)
	assert.Equal(t, []string{"photo_2.png"}, pkg.Skipped)
	require.Len(t, pkg.Photos, 2)
	assert.Equal(t, "photo_1.png", pkg.Photos[0].Name)
	assert.Equal(t, "photo_3.png", pkg.Photos[1].Name)
	_, ok := pkg.Family()
	assert.False(t, ok, "the family photo was the broken one")
}

func TestEmbedKeepsPhotoNames(t *testing.T) {
	codec := NewCodec()
	data := pngBytes(t, color.Black)
	in := []Photo{
		{Name: "garten.png", Data: data, IsFamily: true},
		{Name: "garten.png", Data: data, IsFamily: true},
		{Name: "", Data: data},
		{Name: "../../etc/Haus Vorne.png", Data: data},
		{Name: "photo_index.json", Data: data},
	}
	out, err := codec.Embed(plainPDF(t), "# A | B", in)
	require.NoError(t, err)

	pkg := codec.Extract(out)
	require.NotNil(t, pkg)
	var names []string
	var family []bool
	for _, p := range pkg.Photos {
		names = append(names, p.Name)
		family = append(family, p.IsFamily)
	}
	assert.Equal(t, []string{"garten.png", "garten_2.png", "photo_3.jpg", "Haus Vorne.png", "photo_index.json"}, names)
	assert.Equal(t, []bool{true, false, false, false, false}, family)

	fam, ok := pkg.Family()
	require.True(t, ok)
	assert.Equal(t, "garten.png", fam.Name)
}

func TestPhotoName(t *testing.T) {
	used := map[string]bool{}
	assert.Equal(t, "Garten Müller.jpg", photoName(" Garten Müller.jpg ", 0, used))
	assert.Equal(t, "garten müller_2.jpg", photoName("garten müller.jpg", 1, used))
	assert.Equal(t, "Haus.png", photoName(`C:\Fotos\Haus.png`, 2, used))
	assert.Equal(t, "photo_4.jpg", photoName("..", 3, used))

	assert.Equal(t, "photo_001.jpg", attachmentFile(0, "Garten Müller.JPG"))
	assert.Equal(t, "photo_012.bin", attachmentFile(11, "ohne Endung"))
}

func TestEmbedEmptyPDF(t *testing.T) {
	_, err := NewCodec().Embed(nil, "x", nil)
	assert.ErrorIs(t, err, ErrEmptyPDF)
}

func TestSubjectIsASCII(t *testing.T) {
	raw, err := encodeSubject(subject{Marker: Marker, Markdown: markdown})
	require.NoError(t, err)
	for _, b := range raw {
		require.Less(t, b, byte(0x80))
	}
	var back subject
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, markdown, back.Markdown)
	assert.NotNil(t, decodeSubject(string(raw)))
}

func TestDecodeSubject(t *testing.T) {
	assert.Nil(t, decodeSubject(""))
	assert.Nil(t, decodeSubject("{not json"))
	assert.Nil(t, decodeSubject(`{"marker":"CASTING_EXPOSE_PROJECT_V2"}`))
	assert.Nil(t, decodeSubject(`["CASTING_EXPOSE_PROJECT"]`))
	sub := decodeSubject(` {"marker":"CASTING_EXPOSE_PROJECT","photo_count":2} `)
	require.NotNil(t, sub)
	assert.Equal(t, 2, sub.PhotoCount)
}
