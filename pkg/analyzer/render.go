package analyzer

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/uhyunpark/obmonitor/pkg/app/core/record"
)

// Render writes a human readable report. recent is printed as-is, so pass it
// newest first.
func Render(w io.Writer, rep Report, recent []record.Record) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Total events:\t%d\n", rep.Total)
	if rep.Total == 0 {
		fmt.Fprintln(tw, "No events recorded yet.")
		return tw.Flush()
	}

	fmt.Fprintln(tw, "\nMarkets:")
	for _, mc := range rep.TopMarkets(0) {
		fmt.Fprintf(tw, "  %s\t%d\n", mc.Market, mc.Count)
	}

	fmt.Fprintln(tw, "\nEvent types:")
	for _, et := range record.EventTypes {
		if n, ok := rep.EventTypes[et]; ok {
			fmt.Fprintf(tw, "  %s\t%d\n", et, n)
		}
	}

	fmt.Fprintln(tw, "\nDirections:")
	fmt.Fprintf(tw, "  bid\t%d\t%s%%\n", rep.Directions[record.Bid], rep.BidPercent.StringFixed(2))
	fmt.Fprintf(tw, "  ask\t%d\t%s%%\n", rep.Directions[record.Ask], rep.AskPercent.StringFixed(2))

	if p := rep.Price; p != nil {
		fmt.Fprintln(tw, "\nPrice:")
		fmt.Fprintf(tw, "  min\t%d\n  max\t%d\n  mean\t%d\t(%s)\n", p.Min, p.Max, p.Mean, p.MeanExact.String())
	}

	if len(rep.MarketPrices) > 1 {
		markets := make([]string, 0, len(rep.MarketPrices))
		for m := range rep.MarketPrices {
			markets = append(markets, m)
		}
		sort.Strings(markets)
		fmt.Fprintln(tw, "\nPrice by market:\tmin\tmax\tmean")
		for _, m := range markets {
			p := rep.MarketPrices[m]
			fmt.Fprintf(tw, "  %s\t%d\t%d\t%d\n", m, p.Min, p.Max, p.Mean)
		}
	}

	if len(recent) > 0 {
		fmt.Fprintln(tw, "\nRecent events:")
		for _, r := range recent {
			fmt.Fprintf(tw, "  %s\t%s\t%s\tprice=%d\tsize=%d\t%s\n",
				time.Unix(r.Timestamp, 0).UTC().Format(time.RFC3339), r.Market, r.EventType, r.Price, r.Size, r.Direction)
		}
	}
	return tw.Flush()
}
