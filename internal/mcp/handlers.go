package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/thywilljoshua/expose-generator/internal/ai"
	"github.com/thywilljoshua/expose-generator/internal/docs"
	"github.com/thywilljoshua/expose-generator/internal/expose"
	"github.com/thywilljoshua/expose-generator/internal/history"
	"github.com/thywilljoshua/expose-generator/internal/logging"
	"github.com/thywilljoshua/expose-generator/internal/photos"
	"github.com/thywilljoshua/expose-generator/internal/project"
)

// Handlers holds dependencies for the tool handlers. Extractor and History may be nil;
// expose_extract then reports that no provider is configured.
type Handlers struct {
	Codec     *project.Codec
	Loader    *docs.Loader
	Extractor *ai.Extractor
	History   *history.Store
	Model     string
	Threshold int
	HashSize  int
	Log       *logging.Logger
}

type ParseRequest struct {
	Markdown string `json:"markdown"`
}

type ImportRequest struct {
	Path string `json:"path"`
}

type DuplicatesRequest struct {
	Paths     []string `json:"paths"`
	Threshold int      `json:"threshold,omitempty"`
}

type ExtractRequest struct {
	Paths []string `json:"paths"`
	Text  string   `json:"text,omitempty"`
}

type ImportedPhoto struct {
	Name     string `json:"name"`
	IsFamily bool   `json:"is_family"`
	Selected bool   `json:"selected"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

type ImportResult struct {
	Markdown  string          `json:"markdown"`
	Version   string          `json:"version"`
	CreatedAt string          `json:"created_at,omitempty"`
	Photos    []ImportedPhoto `json:"photos"`
	Skipped   []string        `json:"skipped,omitempty"`
}

type PhotoHash struct {
	Path      string `json:"path"`
	Hash      string `json:"hash,omitempty"`
	Duplicate bool   `json:"duplicate"`
	Error     string `json:"error,omitempty"`
}

type DuplicatesResult struct {
	Photos     []PhotoHash `json:"photos"`
	Duplicates []int       `json:"duplicates"`
}

type ExtractResult struct {
	Markdown string          `json:"markdown"`
	Document expose.Document `json:"document"`
	Stage    string          `json:"stage"`
	Calls    int             `json:"calls"`
	RunID    string          `json:"run_id,omitempty"`
}

func (h *Handlers) log() *logging.Logger {
	if h.Log == nil {
		return logging.Discard()
	}
	return h.Log
}

// HandleParse handles expose_parse.
func (h *Handlers) HandleParse(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in, err := decode[ParseRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(expose.Parse(in.Markdown))
}

// HandleImport handles project_import.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if in.Path == "" {
		return errorResult(errors.New("path is required")), nil
	}
	data, err := os.ReadFile(in.Path)
	if err != nil {
		return errorResult(err), nil
	}
	pkg := h.Codec.Extract(data)
	if pkg == nil {
		return errorResult(fmt.Errorf("%s is not an exposé project", filepath.Base(in.Path))), nil
	}

	out := ImportResult{
		Markdown: pkg.Markdown,
		Version:  pkg.Version,
		Photos:   []ImportedPhoto{},
		Skipped:  pkg.Skipped,
	}
	if !pkg.CreatedAt.IsZero() {
		out.CreatedAt = pkg.CreatedAt.Format(time.RFC3339)
	}
	for _, p := range pkg.Photos {
		b := p.Image.Bounds()
		out.Photos = append(out.Photos, ImportedPhoto{
			Name: p.Name, IsFamily: p.IsFamily, Selected: p.Selected,
			Width: b.Dx(), Height: b.Dy(),
		})
	}
	return successResult(out)
}

// HandleDuplicates handles photos_duplicates. Unreadable files are reported per path and
// take no part in the comparison.
func (h *Handlers) HandleDuplicates(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in, err := decode[DuplicatesRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if len(in.Paths) == 0 {
		return errorResult(errors.New("paths is required")), nil
	}
	threshold := in.Threshold
	if threshold <= 0 {
		threshold = h.Threshold
	}

	out := DuplicatesResult{Photos: make([]PhotoHash, len(in.Paths)), Duplicates: []int{}}
	var (
		hashes []photos.Hash
		where  []int
	)
	for i, path := range in.Paths {
		out.Photos[i].Path = path
		img, err := readImage(path)
		if err != nil {
			out.Photos[i].Error = err.Error()
			continue
		}
		hash := photos.DifferenceHash(img, h.HashSize)
		out.Photos[i].Hash = hash.Hex()
		hashes = append(hashes, hash)
		where = append(where, i)
	}
	for _, k := range photos.DuplicatesFromHashes(hashes, threshold).Sorted() {
		out.Photos[where[k]].Duplicate = true
		out.Duplicates = append(out.Duplicates, where[k])
	}
	return successResult(out)
}

func readImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return photos.Decode(data)
}

// HandleExtract handles expose_extract.
func (h *Handlers) HandleExtract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in, err := decode[ExtractRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if h.Extractor == nil {
		return errorResult(errors.New("no generation provider configured")), nil
	}
	files, err := docs.ReadFiles(in.Paths)
	if err != nil {
		return errorResult(err), nil
	}
	bundle, err := h.Loader.Load(files, in.Text)
	if err != nil {
		return errorResult(err), nil
	}
	if len(bundle.Projects) > 0 && len(bundle.Images) == 0 && len(files) == 1 {
		md := bundle.Projects[0].Package.Markdown
		return successResult(ExtractResult{Markdown: md, Document: expose.Parse(md), Stage: "IMPORT"})
	}

	var runID string
	if h.History != nil {
		if runID, err = h.History.Start(ctx, "", h.Model, len(bundle.Images)); err != nil {
			h.log().Warnf("history: %v", err)
		}
	}
	res, err := h.Extractor.Extract(ctx, ai.Input{Images: bundle.Images, Text: bundle.Text})
	if runID != "" {
		stage, calls := failedStage(err), 0
		if res != nil {
			stage, calls = res.Stage.String(), res.Calls
		}
		if ferr := h.History.Finish(context.WithoutCancel(ctx), runID, stage, calls, err); ferr != nil {
			h.log().Warnf("history: %v", ferr)
		}
	}
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(ExtractResult{
		Markdown: res.Markdown,
		Document: expose.Parse(res.Markdown),
		Stage:    res.Stage.String(),
		Calls:    res.Calls,
		RunID:    runID,
	})
}

func failedStage(err error) string {
	var xerr *ai.ExtractionError
	if errors.As(err, &xerr) {
		return xerr.Stage.String()
	}
	return ""
}

// errorResult wraps err as a tool error so clients see IsError.
func errorResult(err error) *mcp.CallToolResult {
	content, _ := json.Marshal(map[string]any{"error": err.Error()})
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
