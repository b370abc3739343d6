package mapping

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/xmlquery"

	"github.com/Adda-Baaj/newsroom-bridge/pkg/content"
)

func (m *Mapper) mapDocumentBody(ctx context.Context, b *content.Builder, id string, spec DocumentBodySpec, doc map[string]any) error {
	href, ok := lookupString(doc, "data", "item", "renditions", "nitf", "href")
	if !ok || href == "" {
		return nil
	}

	raw, err := m.remote.NITFByURL(ctx, href)
	if err != nil {
		return fmt.Errorf("fetch nitf: %w", err)
	}

	body, ok := extractBody(raw, spec.Format)
	if !ok {
		m.log.WarnObj("nitf body not extracted", "mapping", map[string]any{
			"kind":  b.Kind(),
			"field": id,
			"bytes": len(raw),
		})
		return nil
	}
	if b.HasField(id) {
		b.Append(id, content.Text(body))
	}
	return nil
}

// extractBody returns the <body.content> element of a NITF document.
func extractBody(raw []byte, format BodyFormat) (string, bool) {
	root, err := xmlquery.Parse(bytes.NewReader(raw))
	if err != nil {
		return "", false
	}
	nitf := firstElement(root, "")
	body := firstElement(nitf, "body")
	bc := firstElement(body, "body.content")
	if bc == nil {
		return "", false
	}

	markup := bc.OutputXML(true)
	if format == BodyMarkup {
		return markup, markup != ""
	}
	return plainText(markup)
}

// firstElement returns the first element child of n named name, or any element when name is empty.
func firstElement(n *xmlquery.Node, name string) *xmlquery.Node {
	if n == nil {
		return nil
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode {
			continue
		}
		if name == "" || c.Data == name {
			return c
		}
	}
	return nil
}

func plainText(markup string) (string, bool) {
	dom, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", false
	}
	var paras []string
	dom.Find("p").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			paras = append(paras, t)
		}
	})
	if len(paras) == 0 {
		return "", false
	}
	return strings.Join(paras, "\n\n"), true
}
