package content

import (
	"testing"

	"github.com/bilgisen/altavoz/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestParseTags(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"empty", "", []string{}},
		{"only spaces", "   ", []string{}},
		{"single", "news", []string{"news"}},
		{"spaces removed", " la paz , baja ", []string{"lapaz", "baja"}},
		{"empty entries dropped", "a,,b, ,c", []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseTags(tt.raw))
		})
	}
}

func TestCleanHTML(t *testing.T) {
	p := NewParser()
	assert.Equal(t, "Hello & welcome", p.CleanHTML("<p>Hello &amp;\n\n <b>welcome</b></p>"))
	assert.Equal(t, "", p.CleanHTML("<br/>"))
}

func TestNormalizeInput(t *testing.T) {
	p := NewParser()

	got := p.NormalizeInput(models.PostInput{
		Title:          "  <i>Storm</i> warning ",
		Caption:        "\nLine one\nLine two\n",
		Location:       " La Paz ",
		Tags:           []string{"weather, storm", "baja"},
		IsFeaturedSide: true,
	})

	assert.Equal(t, "Storm warning", got.Title)
	assert.Equal(t, "Line one\nLine two", got.Caption)
	assert.Equal(t, "La Paz", got.Location)
	assert.Equal(t, []string{"weather", "storm", "baja"}, got.Tags)
	assert.True(t, got.IsFeaturedSide)
}

func TestExcerpt(t *testing.T) {
	p := NewParser()
	assert.Equal(t, "short", p.Excerpt("short", 10))
	assert.Equal(t, "año…", p.Excerpt("año nuevo", 3))
	assert.Equal(t, "whole text", p.Excerpt("<p>whole text</p>", 0))
}
