package source

import (
	"path/filepath"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

var markdownParser = goldmark.New()

// markdownTitle extracts a document title from markdown content:
// the first level-1 heading, else the first level-2 heading, else the
// filename without extension with words capitalized.
func markdownTitle(content []byte, filename string) string {
	if len(content) == 0 {
		return titleFromFilename(filename)
	}

	reader := gmtext.NewReader(content)
	doc := markdownParser.Parser().Parse(reader)

	var firstH1, firstH2 string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		text := headingText(heading, content)
		switch {
		case heading.Level == 1 && firstH1 == "":
			firstH1 = text
			return ast.WalkStop, nil
		case heading.Level == 2 && firstH2 == "":
			firstH2 = text
		}
		return ast.WalkContinue, nil
	})

	if firstH1 != "" {
		return firstH1
	}
	if firstH2 != "" {
		return firstH2
	}
	return titleFromFilename(filename)
}

// headingText collects the plain text of a heading node and its children.
func headingText(n ast.Node, content []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(content))
		case *ast.String:
			b.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// titleFromFilename derives a title from the base filename by dropping the
// extension and capitalizing the first letter of each word.
func titleFromFilename(filename string) string {
	name := filepath.Base(filename)
	if ext := filepath.Ext(name); ext != "" {
		name = name[:len(name)-len(ext)]
	}

	words := strings.Fields(strings.ReplaceAll(name, "-", " "))
	for i, word := range words {
		runes := []rune(word)
		if len(runes) > 0 {
			runes[0] = unicode.ToUpper(runes[0])
			words[i] = string(runes)
		}
	}
	return strings.Join(words, " ")
}

// dbtSchema is the subset of a dbt schema.yml file we care about.
type dbtSchema struct {
	Models []struct {
		Name string `yaml:"name"`
	} `yaml:"models"`
	Sources []struct {
		Name string `yaml:"name"`
	} `yaml:"sources"`
}

// dbtModels extracts model and source names from dbt schema YAML content.
// Returns nil for YAML that does not parse or declares no models; a source
// file being unparseable as dbt schema is not an error, it just carries no
// model metadata.
func dbtModels(content []byte) []string {
	var schema dbtSchema
	if err := yaml.Unmarshal(content, &schema); err != nil {
		return nil
	}

	var names []string
	for _, m := range schema.Models {
		if m.Name != "" {
			names = append(names, m.Name)
		}
	}
	for _, s := range schema.Sources {
		if s.Name != "" {
			names = append(names, s.Name)
		}
	}
	return names
}
