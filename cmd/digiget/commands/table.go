package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"digiget/lib/platforms/digi4school"
	"digiget/lib/textutil"

	"github.com/jedib0t/go-pretty/v6/table"
)

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

// titles below this similarity are not considered a match
const minSimilarity = 0.7

// findBook looks up a book by its id or the title closest to query.
func findBook(books []digi4school.Book, query string) (digi4school.Book, error) {
	for _, book := range books {
		if book.LongID == query || strconv.Itoa(book.ShortID) == query {
			return book, nil
		}
	}

	titles := make([]string, len(books))
	for i, book := range books {
		titles[i] = book.Title
	}
	index, similarity := textutil.MostSimilar(query, titles)
	if index < 0 || similarity < minSimilarity {
		return digi4school.Book{}, fmt.Errorf("no book matches %q", query)
	}
	return books[index], nil
}

// fileName turns a title into something usable as a file name.
func fileName(title string) string {
	name := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`/\:*?"<>|`, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(title))
	if name == "" {
		name = "book"
	}
	return name + ".pdf"
}
