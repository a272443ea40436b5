package commands

import (
	"strconv"

	"digiget/lib/util/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(booksCmd)
}

var booksCmd = &cobra.Command{
	Use:   "books",
	Short: "Lists the books of the account.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		session, err := openSession(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to login", err)
		}
		books, err := session.Books(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to list books", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"ID", "Title", "Expires", "Redeemed"})
		for _, book := range books {
			t.AppendRow(table.Row{
				book.LongID,
				book.Title,
				strconv.Itoa(book.ExpiryYear),
				strconv.Itoa(book.RedemptionYear()),
			})
		}
		t.Render()
	},
}
