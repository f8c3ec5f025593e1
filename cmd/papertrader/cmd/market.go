package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/papertrade/news"
	"github.com/rustyeddy/papertrade/report"
)

var marketCmd = &cobra.Command{
	Use:   "market",
	Short: "Show current prices and recent news",
	Long: `Show every instrument with its price, change since the previous tick,
sentiment and moving averages of the price history.`,
	Args: cobra.NoArgs,
	RunE: runMarket,
}

var (
	marketNews int
	marketRaw  bool
)

func init() {
	rootCmd.AddCommand(marketCmd)
	marketCmd.Flags().IntVar(&marketNews, "news", 5, "number of recent news items to show")
	marketCmd.Flags().BoolVar(&marketRaw, "raw", false, "print markdown without terminal styling")
}

// newsReader is implemented by stores that keep the news log.
type newsReader interface {
	RecentNews(ctx context.Context, limit int) ([]news.Item, error)
}

func runMarket(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	doc := report.Market(a.universe.Snapshot(), a.universe.Halted)
	if marketNews > 0 {
		items, err := recentNews(ctx, a.store, marketNews)
		if err != nil {
			return err
		}
		doc += "\n" + report.News(items)
	}
	fmt.Fprint(cmd.OutOrStdout(), render(doc, marketRaw))
	return nil
}

func recentNews(ctx context.Context, store storage, limit int) ([]news.Item, error) {
	if r, ok := store.(newsReader); ok {
		return r.RecentNews(ctx, limit)
	}
	if m, ok := store.(interface{ News() []news.Item }); ok {
		items := m.News()
		if len(items) > limit {
			items = items[len(items)-limit:]
		}
		// newest first, like the database
		out := make([]news.Item, len(items))
		for i, it := range items {
			out[len(items)-1-i] = it
		}
		return out, nil
	}
	return nil, nil
}
