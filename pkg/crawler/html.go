package crawler

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	spaceRun = regexp.MustCompile(`[ \t]+`)
	blankRun = regexp.MustCompile(`\n{3,}`)
)

// Skip these tags
var skipTags = map[string]bool{
	"script": true, "style": true, "nav": true, "footer": true,
	"header": true, "aside": true, "noscript": true, "iframe": true,
	"svg": true, "form": true, "button": true, "template": true,
}

// ExtractText converts an HTML document to markdown-like readable text.
func ExtractText(htmlContent string) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}

	root := doc
	if main := findFirst(doc, "main"); main != nil {
		root = main
	} else if article := findFirst(doc, "article"); article != nil {
		root = article
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			tag := strings.ToLower(n.Data)
			if skipTags[tag] {
				return
			}
			switch tag {
			case "h1", "h2", "h3", "h4", "h5", "h6":
				b.WriteString("\n\n" + strings.Repeat("#", int(tag[1]-'0')) + " ")
			case "li":
				b.WriteString("\n- ")
			case "br", "tr":
				b.WriteString("\n")
			case "p", "div", "section", "article", "blockquote", "pre", "table":
				b.WriteString("\n\n")
			case "td", "th":
				b.WriteString(" | ")
			}
		}

		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				b.WriteString(spaceRun.ReplaceAllString(strings.ReplaceAll(text, "\n", " "), " "))
				b.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	lines := strings.Split(b.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	out := blankRun.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(out), nil
}

func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, tag); found != nil {
			return found
		}
	}
	return nil
}
