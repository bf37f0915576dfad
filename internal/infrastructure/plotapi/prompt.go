package plotapi

import (
	"fmt"
	"strings"
)

// BuildPrompt returns the book-writing task sent to the plot endpoint
func BuildPrompt(pageCount int, theme string) string {
	theme = strings.TrimSpace(theme)
	themeSection := ""
	if theme != "" {
		themeSection = fmt.Sprintf("# Theme\n%s\n\n", theme)
	}

	return fmt.Sprintf(`# Task
Write a book for children under 5 years old.
theme is %s
# Requirements
- The total number of pages is %d.
# Characters in the Picture Book
1. Shiki-chan (older brother)
2. Shiro-chan (younger sister)
3. Mama (Shiki-chan and Shiro-chan's mother)
- For your response, as in the sample, please return IllustrationIdea in English and PageText in Japanese.

# Sample Answer
[
    {
        "IllustrationIdea":  "A picture of the older brother and younger sister looking at a pill bug in the park",
        "PageText": "ある日、お兄ちゃんと妹は公園に遊びに行ったところ、ダンゴムシを見つけました",
        "page": 1
    },
    {
        "IllustrationIdea":  "A picture of the pill bug curling up in surprise",
        "PageText": "ダンゴムシは突然丸くなったので、お兄ちゃんと妹はとてもびっくりしました",
        "page": 2
    }
]
`, themeSection, pageCount)
}
