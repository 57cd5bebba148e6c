package htmlutil

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func CleanText(s string) string {
	s = strings.Trim(s, " \t\n")
	return innerWhitespace.ReplaceAllString(s, " ")
}

var numberSplit = regexp.MustCompile(`[\s,]+`)

// Numbers pulls every integer out of a whitespace/comma separated text
// block, dropping anything below min. the ranking pages pad their count
// cells with stray glyphs, so non-numeric tokens are skipped silently.
func Numbers(text string, min int) []int {
	var out []int
	for _, tok := range numberSplit.Split(text, -1) {
		if tok == "" {
			continue
		}
		n, err := strconv.Atoi(tok)
		if err != nil {
			continue
		}
		if n < min {
			continue
		}
		out = append(out, n)
	}
	return out
}

var trailingNumber = regexp.MustCompile(`([\d,]+)\s*$`)

// TrailingNumber reads the comma-grouped integer that ends a text block,
// e.g. "MAX 1,010,000" -> 1010000. returns 0 when there is none.
func TrailingNumber(text string) int {
	groups := trailingNumber.FindStringSubmatch(text)
	if len(groups) < 2 {
		return 0
	}
	n, err := strconv.Atoi(strings.ReplaceAll(groups[1], ",", ""))
	if err != nil {
		return 0
	}
	return n
}

var nonDigit = regexp.MustCompile(`[^\d]`)

// Digits strips everything that isn't a digit and parses the rest.
// returns -1 when no digits remain so 0 stays distinguishable.
func Digits(text string) int {
	stripped := nonDigit.ReplaceAllString(text, "")
	if stripped == "" {
		return -1
	}
	n, err := strconv.Atoi(stripped)
	if err != nil {
		return -1
	}
	return n
}
