// Package parser infers catalog metadata (title, author, tags, type, field
// label) from document filenames and directory names.
package parser

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/starford/folio/internal/models"
)

// AuthorSeparator splits "Title - Author" stems.
const AuthorSeparator = " - "

var (
	tagGroupRe   = regexp.MustCompile(`\[([^\]]+)\]`)
	nonAlnumRe   = regexp.MustCompile(`[^a-zA-Z0-9]`)
	fieldReplace = strings.NewReplacer("_", " ", "-", " ")
)

// Result holds everything inferable from a single filename.
type Result struct {
	Title  string
	Author string
	Tags   []string
	Type   models.BookType
}

// Parse extracts title, author, tags, and type from filename. fieldDir is the
// raw name of the field directory the file lives in; its formatted label is
// always appended to the tags.
func Parse(filename, fieldDir string) Result {
	title, author := SplitTitleAuthor(filename)
	return Result{
		Title:  title,
		Author: author,
		Tags:   ExtractTags(filename, FormatField(fieldDir)),
		Type:   ClassifyType(filename),
	}
}

// Ext returns the extension of filename including the dot. A name whose
// only dot is the leading one (".pdf", ".gitignore") has no extension.
func Ext(filename string) string {
	base := filepath.Base(filename)
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		return base[i:]
	}
	return ""
}

// Stem returns filename without its final extension.
func Stem(filename string) string {
	return strings.TrimSuffix(filename, Ext(filename))
}

// SplitTitleAuthor parses "Title - Author.ext". Without the separator the
// whole stem is the title and the author is models.Unknown. When the part
// before the separator is blank the remainder is taken as the title and the
// author is models.Unknown.
func SplitTitleAuthor(filename string) (title, author string) {
	stem := Stem(filename)
	before, after, found := strings.Cut(stem, AuthorSeparator)
	if !found {
		return stem, models.Unknown
	}
	title = strings.TrimSpace(before)
	author = strings.TrimSpace(after)
	if title == "" {
		if author == "" {
			return strings.TrimSpace(stem), models.Unknown
		}
		return author, models.Unknown
	}
	if author == "" {
		author = models.Unknown
	}
	return title, author
}

// ExtractTags returns the comma-separated tags of the first "[...]" group in
// filename followed by field, deduplicated in first-seen order.
func ExtractTags(filename, field string) []string {
	var raw []string
	if m := tagGroupRe.FindStringSubmatch(filename); m != nil {
		raw = strings.Split(m[1], ",")
	}
	raw = append(raw, field)
	return Dedupe(raw)
}

// Dedupe trims each tag, drops empty ones, and removes duplicates while
// preserving first-seen order.
func Dedupe(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// FormatField turns a directory name into a display label:
// "Real_Analysis" → "Real Analysis", "real-analysis" → "Real Analysis".
// Underscores and hyphens become spaces and only the first rune of each
// space-separated word is upper-cased; the rest of the word is kept as is.
func FormatField(dir string) string {
	words := strings.Split(fieldReplace.Replace(dir), " ")
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		if size == 0 || r == utf8.RuneError {
			continue
		}
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// ClassifyType maps the file extension to a book type. Unrecognised
// extensions default to models.TypeBook.
func ClassifyType(filename string) models.BookType {
	switch strings.ToLower(Ext(filename)) {
	case ".pdf", ".epub", ".mobi":
		return models.TypeBook
	case ".txt", ".md":
		return models.TypeNote
	case ".doc", ".docx":
		return models.TypeArticle
	}
	return models.TypeBook
}

// SanitizeID lower-cases s after replacing every character outside
// [a-zA-Z0-9] with an underscore.
func SanitizeID(s string) string {
	return strings.ToLower(nonAlnumRe.ReplaceAllString(s, "_"))
}
