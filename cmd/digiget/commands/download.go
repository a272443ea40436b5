package commands

import (
	"fmt"
	"log/slog"
	"os"

	"digiget/lib/scraper"
	"digiget/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

var (
	downloadVolume int
	downloadPage   int
	downloadOutput string
)

func init() {
	downloadCmd.Flags().IntVar(&downloadVolume, "volume", 1, "The volume of the book to download, see the volumes command.")
	downloadCmd.Flags().IntVar(&downloadPage, "page", 0, "Only download this page.")
	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "The file to write to, defaults to the title of the book.")
	rootCmd.AddCommand(downloadCmd)
}

var downloadCmd = &cobra.Command{
	Use:   "download <book> [--volume <n>] [--page <n>] [-o <file.pdf>]",
	Short: "Downloads a book as a pdf.",
	Long:  "Downloads a book as a pdf. <book> is either the id of a book or (part of) its title.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		book, volumes := openBook(ctx, args[0])
		if downloadVolume < 1 || downloadVolume > len(volumes) {
			serviceutil.Fatal("invalid volume", fmt.Errorf("book has %d volumes, got %d", len(volumes), downloadVolume))
		}
		volume := volumes[downloadVolume-1]

		output := downloadOutput
		if output == "" {
			title := book.Title
			if len(volumes) > 1 {
				title = fmt.Sprintf("%s - %s", book.Title, volume.Name)
			}
			output = fileName(title)
		}

		s, err := volume.Scraper(ctx)
		if err != nil {
			serviceutil.Fatal("failed to open volume", err)
		}

		var pdf []byte
		if downloadPage > 0 {
			pdf, err = s.RenderPage(ctx, downloadPage)
		} else {
			slog.Info("downloading", "book", book.Title, "volume", volume.Name, "pages", s.PageCount())
			pdf, err = scraper.DownloadAll(ctx, s, scraper.WithProgress(func(page, total int) {
				fmt.Fprintf(os.Stderr, "\rpage %d/%d", page, total)
				if page == total {
					fmt.Fprintln(os.Stderr)
				}
			}))
		}
		if err != nil {
			serviceutil.Fatal("failed to download", err)
		}

		err = os.WriteFile(output, pdf, 0644)
		if err != nil {
			serviceutil.Fatal("failed to write pdf", err)
		}
		slog.Info("saved", "file", output, "bytes", len(pdf))
	},
}
