// Package prompts loads prompt batches from YAML files.
package prompts

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// MaxPromptLength is the longest prompt, in runes, sent to a generator
const MaxPromptLength = 999

// Batch is a set of prompts to enqueue, optionally with book settings
type Batch struct {
	Prompts []string `yaml:"prompts"`
	Pages   int      `yaml:"pages"`
	Theme   string   `yaml:"theme"`
}

// LoadBatch reads a batch file. Blank prompts are dropped and long ones
// truncated to MaxPromptLength runes.
func LoadBatch(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var b Batch
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if b.Pages < 0 {
		return nil, fmt.Errorf("parse %s: pages must not be negative", path)
	}

	cleaned := b.Prompts[:0]
	for _, p := range b.Prompts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		cleaned = append(cleaned, Truncate(p, MaxPromptLength))
	}
	b.Prompts = cleaned
	return &b, nil
}

// Truncate safely truncates a string to the specified length while preserving UTF-8 characters
func Truncate(s string, length int) string {
	if utf8.RuneCountInString(s) <= length {
		return s
	}

	var size, n int
	for i := 0; i < length && n < len(s); i++ {
		_, size = utf8.DecodeRuneInString(s[n:])
		n += size
	}

	return s[:n]
}
