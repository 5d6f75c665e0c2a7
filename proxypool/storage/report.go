package storage

import (
	"encoding/csv"
	"io"
	"strconv"

	"proxyrank/proxypool/ranking"
)

var reportHeader = []string{
	"Proxy", "Protocol", "Latency (s)", "Speed (MB/s)",
	"Current Score", "Long-Term Score", "Response Rate (%)", "Response AVG",
}

// WriteReport writes the detailed per-endpoint report in ranked order.
// Latency and speed are left empty for endpoints that failed this run.
func WriteReport(path string, ranked []ranking.Scored) error {
	return writeFileAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(reportHeader); err != nil {
			return err
		}
		for _, s := range ranked {
			o := s.Outcome
			latency, speed := "", ""
			if o.HasMeasurements() {
				latency = formatFloat(o.LatencySeconds(), 3)
				speed = formatFloat(o.Throughput, 3)
			}
			if err := cw.Write([]string{
				o.Endpoint.Address,
				string(o.Endpoint.Protocol),
				latency,
				speed,
				formatFloat(s.Record.CurrentScore, 4),
				formatFloat(s.Record.LongTermScore, 4),
				formatFloat(s.Record.ResponseRate*100, 1),
				formatFloat(s.Record.ResponseAvg, 4),
			}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

func formatFloat(f float64, prec int) string {
	return strconv.FormatFloat(f, 'f', prec, 64)
}
