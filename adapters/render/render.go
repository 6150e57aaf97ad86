// Package render turns a model reply into display blocks. Replies may embed
// an SVG drawing, sometimes without its enclosing <svg> element; such
// drawings are repaired so they still render inside a fixed canvas.
package render

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/roberta039/Gym-Trainer/domain"
)

const (
	GraphicsOpenMarker  = domain.GraphicsOpenMarker
	GraphicsCloseMarker = domain.GraphicsCloseMarker
)

const (
	svgOpen  = "<svg"
	svgClose = "</svg>"

	defaultFrame = `<svg viewBox="0 0 800 600" xmlns="http://www.w3.org/2000/svg" style="background-color: white;">`
)

var (
	primitives = []string{"<path", "<rect", "<circle", "<ellipse", "<line", "<polyline", "<polygon"}
	styling    = []string{"stroke=", "fill="}
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

type BlockKind string

const (
	BlockText     BlockKind = "text"
	BlockGraphics BlockKind = "graphics"
)

type Block struct {
	Kind    BlockKind `json:"kind"`
	Content string    `json:"content"`
}

type Document struct {
	Blocks []Block `json:"blocks"`
}

// Render splits text into text and graphics blocks.
func Render(text string) Document {
	switch {
	case strings.Contains(text, svgOpen) && strings.Contains(text, svgClose):
		return Document{Blocks: splitSVG(text)}
	case HasLooseDrawing(text):
		return Document{Blocks: wrapLooseDrawing(text)}
	default:
		return Document{Blocks: []Block{{Kind: BlockText, Content: text}}}
	}
}

// HasLooseDrawing reports drawing primitives with styling attributes but no
// enclosing <svg> element.
func HasLooseDrawing(text string) bool {
	return !strings.Contains(text, svgOpen) && containsAny(text, primitives) && containsAny(text, styling)
}

func splitSVG(text string) []Block {
	var blocks []Block
	rest := text
	for {
		start := strings.Index(rest, svgOpen)
		if start < 0 {
			break
		}
		end := strings.Index(rest[start:], svgClose)
		if end < 0 {
			break
		}
		end += start + len(svgClose)

		blocks = appendText(blocks, rest[:start])
		blocks = append(blocks, Block{Kind: BlockGraphics, Content: rest[start:end]})
		rest = rest[end:]
	}
	return appendText(blocks, rest)
}

func wrapLooseDrawing(text string) []Block {
	var before, drawing, after string

	openAt := strings.Index(text, GraphicsOpenMarker)
	closeAt := strings.LastIndex(text, GraphicsCloseMarker)
	if openAt >= 0 && closeAt > openAt {
		before = text[:openAt]
		drawing = text[openAt+len(GraphicsOpenMarker) : closeAt]
		after = text[closeAt+len(GraphicsCloseMarker):]
	} else {
		clean := StripMarkers(text)
		start := firstIndex(clean, primitives)
		end := strings.LastIndex(clean, ">") + 1
		if end <= start {
			end = len(clean)
		}
		before, drawing, after = clean[:start], clean[start:end], clean[end:]
	}

	var blocks []Block
	blocks = appendText(blocks, before)
	blocks = append(blocks, Block{Kind: BlockGraphics, Content: defaultFrame + strings.TrimSpace(drawing) + svgClose})
	return appendText(blocks, after)
}

func appendText(blocks []Block, text string) []Block {
	text = StripMarkers(text)
	if strings.TrimSpace(text) == "" {
		return blocks
	}
	return append(blocks, Block{Kind: BlockText, Content: text})
}

// StripMarkers removes the drawing sentinel markers.
func StripMarkers(text string) string {
	text = strings.ReplaceAll(text, GraphicsOpenMarker, "")
	return strings.ReplaceAll(text, GraphicsCloseMarker, "")
}

// HTML renders text blocks as Markdown, with raw HTML suppressed, and places
// graphics blocks in a bounded canvas container.
//
// Graphics blocks are model output inserted as is, event handler attributes
// included. Clients must isolate the svg-container, for example in a
// sandboxed iframe or under a CSP that blocks inline script.
func (d Document) HTML() string {
	var buf bytes.Buffer
	for _, b := range d.Blocks {
		switch b.Kind {
		case BlockGraphics:
			buf.WriteString(`<div class="svg-container">`)
			buf.WriteString(b.Content)
			buf.WriteString("</div>\n")
		default:
			if err := markdown.Convert([]byte(b.Content), &buf); err != nil {
				buf.WriteString(b.Content)
			}
		}
	}
	return buf.String()
}

// HasGraphics reports whether any block is a drawing.
func (d Document) HasGraphics() bool {
	for _, b := range d.Blocks {
		if b.Kind == BlockGraphics {
			return true
		}
	}
	return false
}

// Preview returns the part of a partially streamed reply that is safe to
// show, cutting at the first sign of a drawing. drawing reports the cut.
func Preview(buffer string) (visible string, drawing bool) {
	cut := -1
	for _, marker := range []string{GraphicsOpenMarker, svgOpen} {
		if i := strings.Index(buffer, marker); i >= 0 && (cut < 0 || i < cut) {
			cut = i
		}
	}
	if containsAny(buffer, styling) {
		if i := firstIndex(buffer, primitives); i < len(buffer) && (cut < 0 || i < cut) {
			cut = i
		}
	}
	if cut < 0 {
		return buffer, false
	}
	return StripMarkers(buffer[:cut]), true
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

// firstIndex returns the smallest index of any needle, len(text) if none.
func firstIndex(text string, needles []string) int {
	first := len(text)
	for _, n := range needles {
		if i := strings.Index(text, n); i >= 0 && i < first {
			first = i
		}
	}
	return first
}
