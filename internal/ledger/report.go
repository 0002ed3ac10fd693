package ledger

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// WriteReport renders the ledger as a console table grouped by regime.
func (l *Ledger) WriteReport(w io.Writer) {
	buckets := l.Snapshot()

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Regime Performance")
	t.AppendHeader(table.Row{"Regime", "Instrument", "Trades", "Wins", "Losses", "Win Rate", "Total PnL"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})

	var totalTrades, totalWins int
	var totalPnL float64
	for _, b := range buckets {
		t.AppendRow(table.Row{
			b.Regime.String(),
			b.Instrument,
			b.Trades,
			b.Wins,
			b.Losses,
			fmt.Sprintf("%.1f%%", b.WinRate()*100),
			fmt.Sprintf("%.2f", b.TotalPnL),
		})
		totalTrades += b.Trades
		totalWins += b.Wins
		totalPnL += b.TotalPnL
	}

	overallRate := 0.0
	if totalTrades > 0 {
		overallRate = float64(totalWins) / float64(totalTrades) * 100
	}
	t.AppendFooter(table.Row{"", "TOTAL", totalTrades, totalWins, totalTrades - totalWins,
		fmt.Sprintf("%.1f%%", overallRate), fmt.Sprintf("%.2f", totalPnL)})

	t.Render()
}
