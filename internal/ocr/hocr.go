package ocr

import (
	"bytes"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Tesseract tags every line-like block with one of these classes.
var lineClasses = []string{"ocr_line", "ocr_header", "ocr_caption", "ocr_textfloat"}

type bbox struct {
	x0, y0, x1, y1 int
	ok             bool
}

type word struct {
	text string
	box  bbox
}

// ParseHOCR flattens tesseract hOCR into plain text, one output line per
// ocr_line. Words separated by a horizontal gap wider than twice the line
// height are joined with two spaces so column breaks stay visible.
func ParseHOCR(data []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", err
	}

	var lines []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && hasAnyClass(n, lineClasses...) {
			if line := renderLine(n); line != "" {
				lines = append(lines, line)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if len(lines) == 0 {
		// Not hOCR after all; keep whatever text is there.
		return strings.TrimSpace(textContent(findBody(doc))), nil
	}
	return strings.Join(lines, "\n"), nil
}

func renderLine(line *html.Node) string {
	var words []word
	var collect func(n *html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.ElementNode && hasAnyClass(n, "ocrx_word") {
			t := strings.TrimSpace(textContent(n))
			if t != "" {
				words = append(words, word{text: t, box: parseBBox(attr(n, "title"))})
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(line)

	if len(words) == 0 {
		return strings.Join(strings.Fields(textContent(line)), " ")
	}

	lb := parseBBox(attr(line, "title"))
	height := 0
	if lb.ok {
		height = lb.y1 - lb.y0
	}

	var sb strings.Builder
	for i, w := range words {
		if i > 0 {
			prev := words[i-1].box
			if height > 0 && prev.ok && w.box.ok && w.box.x0-prev.x1 > 2*height {
				sb.WriteString("  ")
			} else {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(w.text)
	}
	return sb.String()
}

// parseBBox reads "bbox x0 y0 x1 y1" out of an hOCR title attribute.
func parseBBox(title string) bbox {
	for _, prop := range strings.Split(title, ";") {
		fields := strings.Fields(prop)
		if len(fields) != 5 || fields[0] != "bbox" {
			continue
		}
		var v [4]int
		for i := range v {
			n, err := strconv.Atoi(fields[i+1])
			if err != nil {
				return bbox{}
			}
			v[i] = n
		}
		return bbox{x0: v[0], y0: v[1], x1: v[2], y1: v[3], ok: true}
	}
	return bbox{}
}

func hasAnyClass(n *html.Node, classes ...string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		for _, want := range classes {
			if c == want {
				return true
			}
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}
