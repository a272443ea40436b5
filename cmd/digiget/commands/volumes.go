package commands

import (
	"context"

	"digiget/lib/platforms/digi4school"
	"digiget/lib/util/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(volumesCmd)
}

// openBook logs in and opens the book matching query.
func openBook(ctx context.Context, query string) (digi4school.Book, []*digi4school.Volume) {
	session, err := openSession(ctx)
	if err != nil {
		serviceutil.Fatal("failed to login", err)
	}
	books, err := session.Books(ctx)
	if err != nil {
		serviceutil.Fatal("failed to list books", err)
	}
	book, err := findBook(books, query)
	if err != nil {
		serviceutil.Fatal("failed to find book", err)
	}
	volumes, err := session.Volumes(ctx, book)
	if err != nil {
		serviceutil.Fatal("failed to open book", err)
	}
	return book, volumes
}

var volumesCmd = &cobra.Command{
	Use:   "volumes <book>",
	Short: "Lists the volumes of a book and their page counts.",
	Long:  "Lists the volumes of a book and their page counts. <book> is either the id of a book or (part of) its title.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		book, volumes := openBook(cmd.Context(), args[0])

		t := newTable()
		t.SetTitle(book.Title)
		t.AppendHeader(table.Row{"#", "Volume", "Pages", "URL"})
		for i, volume := range volumes {
			s, err := volume.Scraper(cmd.Context())
			if err != nil {
				serviceutil.Fatal("failed to open volume", err)
			}
			t.AppendRow(table.Row{i + 1, volume.Name, s.PageCount(), volume.URL.String()})
		}
		t.Render()
	},
}
