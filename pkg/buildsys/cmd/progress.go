package cmd

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// progressObserver shows a spinner with the number of finished steps and the step that started last
type progressObserver struct {
	lock sync.Mutex
	bar  *progressbar.ProgressBar
}

func newProgressObserver(out io.Writer) *progressObserver {
	visible := isTerminal(out) && os.Getenv("CI") != "true"

	return &progressObserver{
		bar: progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetVisibility(visible),
			progressbar.OptionSetItsString("steps"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionThrottle(100*time.Millisecond),
		),
	}
}

func (o *progressObserver) TaskStarted(name string) {
	o.lock.Lock()
	defer o.lock.Unlock()

	o.bar.Describe(name)
}

func (o *progressObserver) TaskFinished(name string, err error, duration time.Duration) {
	o.lock.Lock()
	defer o.lock.Unlock()

	// the bar only draws to the terminal, failing to do so isn't worth reporting
	_ = o.bar.Add(1)
}

func (o *progressObserver) Finish() {
	o.lock.Lock()
	defer o.lock.Unlock()

	_ = o.bar.Finish()
}
