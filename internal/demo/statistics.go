package demo

import "github.com/pumped-fn/playerx"

// DefaultHistoryLength is the number of downloads the statistics average over
const DefaultHistoryLength = 25

// DownloadStatistics averages over the most recent downloads. The averages
// are -1 until the first download was added.
type DownloadStatistics struct {
	DownloadInfos          []DownloadInfo
	HistoryLength          int
	AverageBytesPerSecond  float64
	AverageTimeToFirstByte float64
}

func newDownloadStatistics(historyLength int) DownloadStatistics {
	return DownloadStatistics{
		HistoryLength:          historyLength,
		AverageBytesPerSecond:  -1,
		AverageTimeToFirstByte: -1,
	}
}

// AddDownloadInfo is the reducer appending a download to the history
func AddDownloadInfo(s *DownloadStatistics, args ...any) bool {
	info, ok := arg[DownloadInfo](args)
	if !ok {
		return false
	}

	infos := make([]DownloadInfo, 0, len(s.DownloadInfos)+1)
	infos = append(infos, s.DownloadInfos...)
	infos = append(infos, info)
	if over := len(infos) - s.HistoryLength; s.HistoryLength > 0 && over > 0 {
		infos = infos[over:]
	}
	s.DownloadInfos = infos

	var bytes, downloadTime, firstByte float64
	for _, d := range infos {
		bytes += float64(d.Size)
		downloadTime += d.DownloadDuration
		firstByte += d.TimeToFirstByte
	}
	if downloadTime > 0 {
		s.AverageBytesPerSecond = bytes / downloadTime
	}
	s.AverageTimeToFirstByte = firstByte / float64(len(infos))
	return true
}

// DownloadStatisticsPackage aggregates every tracked download into a
// DownloadStatistics atom exported as DownloadStatisticsKey.
func DownloadStatisticsPackage(historyLength int) *playerx.Package {
	return &playerx.Package{
		Name:         "download-statistics",
		Dependencies: []string{DownloadInfoKey.Name()},
		Install: func(base *playerx.ExecutionCtx) error {
			ctx := base.Using(playerx.StateEffect)

			info, err := playerx.Get(ctx.Registry(), DownloadInfoKey)
			if err != nil {
				return err
			}

			stats, err := playerx.NewAtom(ctx, newDownloadStatistics(historyLength), playerx.Reducers[DownloadStatistics]{
				"addDownloadInfo": AddDownloadInfo,
			}, playerx.WithAtomName("download-statistics"))
			if err != nil {
				return err
			}
			if err := playerx.Set(ctx.Registry(), DownloadStatisticsKey, stats); err != nil {
				return err
			}

			_, err = playerx.Subscribe(ctx, info, playerx.NewStep("download-info-subscriber",
				func(ctx *playerx.ExecutionCtx, info DownloadInfo) error {
					_, err := stats.Dispatch("addDownloadInfo", info)
					return err
				}))
			return err
		},
	}
}
