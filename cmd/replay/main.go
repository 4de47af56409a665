// Command replay feeds a captured feed session (one raw frame per line) through
// the adapter and aggregate store, then prints the resulting ranking and classes.
//
// The store clock follows the capture: it is advanced to the newest trade
// timestamp seen, so TPS windows match what a live engine would have computed.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"

	"solana-activity-engine/internal/aggregate"
	"solana-activity-engine/internal/domain"
	"solana-activity-engine/internal/feed"
	"solana-activity-engine/internal/logging"
)

const maxFrameSize = 16 << 20

// replayClock only moves forward.
type replayClock struct {
	ms atomic.Int64
}

func (c *replayClock) advance(ms int64) {
	for {
		cur := c.ms.Load()
		if ms <= cur || c.ms.CompareAndSwap(cur, ms) {
			return
		}
	}
}

func (c *replayClock) Now() time.Time {
	return time.UnixMilli(c.ms.Load())
}

type report struct {
	Frames     int         `json:"frames"`
	Status     feed.Status `json:"status"`
	Ranking    []rankRow   `json:"ranking"`
	New        []string    `json:"newly_minted"`
	Graduating []string    `json:"about_to_graduate"`
	Graduated  []string    `json:"recently_graduated"`
}

type rankRow struct {
	Mint    string  `json:"mint"`
	TPS     float64 `json:"tps"`
	Buy     uint64  `json:"total_buy_volume"`
	Sell    uint64  `json:"total_sell_volume"`
	Traders int     `json:"unique_traders"`
	Bonding float64 `json:"bonding_progress"`
}

func main() {
	input := flag.String("input", "", "Capture file, one feed frame per line (default stdin)")
	top := flag.Int("top", 20, "Number of ranked mints to print")
	outputJSON := flag.Bool("json", false, "Output as JSON")
	logLevel := flag.String("log-level", "warn", "Log level")
	flag.Parse()

	logger, err := logging.New(logging.Options{Level: *logLevel, Output: os.Stderr})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	var in io.Reader = os.Stdin
	if *input != "" {
		f, err := os.Open(*input)
		if err != nil {
			logger.WithError(err).Fatal("open capture")
		}
		defer f.Close()
		in = f
	}

	rep, err := replay(in, *top, logger)
	if err != nil {
		logger.WithError(err).Fatal("replay failed")
	}

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			logger.WithError(err).Fatal("encode report")
		}
		return
	}
	printReport(os.Stdout, rep)
}

func replay(in io.Reader, top int, logger logrus.FieldLogger) (*report, error) {
	clock := &replayClock{}
	store := aggregate.NewStore(aggregate.Options{Now: clock.Now, Logger: logger})
	adapter := feed.NewAdapter(store, feed.AdapterOptions{Logger: logger, Now: clock.Now})
	adapter.OnConnect()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	frames := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		frames++
		if msg, err := feed.ParseMessage(line); err == nil {
			clock.advance(frameTime(msg))
		}
		if err := adapter.Handle(line); err != nil {
			logger.WithError(err).WithField("frame", frames).Debug("frame not applied")
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read capture: %w", err)
	}
	adapter.OnDisconnect(io.EOF)

	view := adapter.View()
	rep := &report{Frames: frames, Status: adapter.Status()}
	for i, mint := range view.RankedByActivity() {
		if i == top {
			break
		}
		agg, ok := view.GetAggregate(mint)
		if !ok {
			continue
		}
		rep.Ranking = append(rep.Ranking, rankRow{
			Mint:    mint,
			TPS:     agg.TPS,
			Buy:     agg.TotalBuyVolume,
			Sell:    agg.TotalSellVolume,
			Traders: agg.UniqueTraderCount(),
			Bonding: agg.BondingProgress,
		})
	}
	rep.New = mintsOf(view.NewlyMinted())
	rep.Graduating = mintsOf(view.AboutToGraduate())
	rep.Graduated = mintsOf(view.RecentlyGraduated())
	return rep, nil
}

// frameTime returns the newest timestamp carried by a frame, or 0.
func frameTime(msg *feed.Message) int64 {
	switch msg.Type {
	case feed.MessageTrade:
		return msg.Trade.Timestamp
	case feed.MessageUpdate:
		return max(msg.Update.LastTradeAt, msg.Update.UpdatedAt)
	case feed.MessageSnapshot:
		var newest int64
		for _, a := range msg.Snapshot {
			newest = max(newest, a.LastTradeAt, a.UpdatedAt)
		}
		return newest
	}
	return 0
}

func mintsOf(list []domain.MintAggregate) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = list[i].Mint
	}
	return out
}

func printReport(w io.Writer, rep *report) {
	st := rep.Status
	fmt.Fprintf(w, "Frames: %d  snapshots: %d  updates: %d  trades: %d  duplicates: %d  malformed: %d  dropped: %d\n",
		rep.Frames, st.Snapshots, st.Updates, st.Trades, st.Duplicates, st.Malformed, st.Dropped)
	fmt.Fprintf(w, "Mints tracked: %d\n\n", st.Mints)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tMINT\tTPS\tBUY (SOL)\tSELL (SOL)\tTRADERS\tBONDING")
	for i, r := range rep.Ranking {
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%.3f\t%.3f\t%d\t%.1f%%\n",
			i+1, r.Mint, r.TPS,
			float64(r.Buy)/float64(domain.LamportsPerSOL),
			float64(r.Sell)/float64(domain.LamportsPerSOL),
			r.Traders, r.Bonding*100)
	}
	tw.Flush()

	fmt.Fprintf(w, "\nNewly minted (%d): %v\n", len(rep.New), rep.New)
	fmt.Fprintf(w, "About to graduate (%d): %v\n", len(rep.Graduating), rep.Graduating)
	fmt.Fprintf(w, "Recently graduated (%d): %v\n", len(rep.Graduated), rep.Graduated)
}
