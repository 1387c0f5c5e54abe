// Package content normalizes editor input before it is stored.
package content

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/bilgisen/altavoz/internal/models"
)

// Parser cleans titles, captions and tags of submitted posts.
type Parser struct {
	htmlTagRegex *regexp.Regexp
}

func NewParser() *Parser {
	return &Parser{
		htmlTagRegex: regexp.MustCompile(`<[^>]*>`),
	}
}

// CleanHTML removes HTML tags and normalizes whitespace
func (p *Parser) CleanHTML(input string) string {
	cleaned := p.htmlTagRegex.ReplaceAllString(input, " ")
	cleaned = html.UnescapeString(cleaned)
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	return strings.TrimSpace(cleaned)
}

// ParseTags turns a comma separated list into tags. All spaces are removed
// and empty entries are dropped, so " a, b ,,c d" yields [a b cd].
func ParseTags(raw string) []string {
	compact := strings.ReplaceAll(raw, " ", "")
	if compact == "" {
		return []string{}
	}

	tags := make([]string, 0, strings.Count(compact, ",")+1)
	for _, tag := range strings.Split(compact, ",") {
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// NormalizeInput cleans a post submission. The caption keeps its line
// breaks; only the title is stripped of markup.
func (p *Parser) NormalizeInput(in models.PostInput) models.PostInput {
	tags := make([]string, 0, len(in.Tags))
	for _, tag := range in.Tags {
		tags = append(tags, ParseTags(tag)...)
	}

	return models.PostInput{
		Title:          p.CleanHTML(in.Title),
		Caption:        strings.TrimSpace(in.Caption),
		Location:       strings.TrimSpace(in.Location),
		Tags:           tags,
		IsFeaturedSide: in.IsFeaturedSide,
	}
}

// Excerpt returns the first max runes of the plain-text caption.
func (p *Parser) Excerpt(caption string, max int) string {
	text := p.CleanHTML(caption)
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:max])) + "…"
}
