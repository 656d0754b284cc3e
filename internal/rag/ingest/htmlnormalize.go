package ingest

import (
	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// htmlNormalizer converts .html/.htm attachments to markdown before they
// reach the chunker, extending the supported-extension set beyond the base
// .docx/.txt/.md the chunker was built for.
type htmlNormalizer struct{}

func newHTMLNormalizer() *htmlNormalizer {
	return &htmlNormalizer{}
}

func (n *htmlNormalizer) ToMarkdown(html string) (string, error) {
	return htmltomarkdown.ConvertString(html)
}
