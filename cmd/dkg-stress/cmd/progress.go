package cmd

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"

	"github.com/onflow/flow-dkg-stress/model/stress"
	"github.com/onflow/flow-dkg-stress/module/driver"
)

// progressObserver advances a progress bar for every recorded round.
type progressObserver struct {
	driver.NoopObserver
	bar    *progressbar.ProgressBar
	failed int
}

var _ driver.Observer = (*progressObserver)(nil)

func newProgressObserver(w io.Writer, rounds uint) *progressObserver {
	return &progressObserver{
		bar: progressbar.NewOptions(int(rounds),
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription("rounds"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionClearOnFinish(),
		),
	}
}

func (p *progressObserver) OnRoundRecorded(result stress.RoundResult) {
	if !result.Succeeded() {
		p.failed++
	}
	p.bar.Describe(fmt.Sprintf("rounds (%d failed)", p.failed))
	_ = p.bar.Add(1)
}

func (p *progressObserver) finish() {
	_ = p.bar.Finish()
}
