package main

import (
	"io"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/naihe2010/fdupves/matcher"
)

// progress renders matcher steps as one bar per activity. Steps of a
// finished bar, or with a different total, start a new bar; a late step
// with a smaller count is dropped.
type progress struct {
	p    *mpb.Progress
	bars map[string]*bar
}

type bar struct {
	b     *mpb.Bar
	total int
	now   int
	last  time.Time
}

func newProgress(w io.Writer) *progress {
	return &progress{
		p:    mpb.New(mpb.WithWidth(64), mpb.WithOutput(w)),
		bars: make(map[string]*bar),
	}
}

func (pr *progress) update(s matcher.Step) {
	if s.Total <= 0 {
		return
	}
	cur := pr.bars[s.Doing]
	if cur == nil || cur.total != s.Total || cur.now >= cur.total {
		if cur != nil {
			cur.stop()
		}
		cur = &bar{
			b: pr.p.AddBar(int64(s.Total),
				mpb.PrependDecorators(
					decor.Name(s.Doing+": "),
					decor.CountersNoUnit("%d / %d"),
				),
				mpb.AppendDecorators(
					decor.Percentage(),
					decor.EwmaETA(decor.ET_STYLE_GO, 60),
				),
			),
			total: s.Total,
			last:  time.Now(),
		}
		pr.bars[s.Doing] = cur
	}
	if s.Now <= cur.now {
		return
	}
	now := time.Now()
	cur.b.EwmaSetCurrent(int64(min(s.Now, cur.total)), now.Sub(cur.last))
	cur.now, cur.last = s.Now, now
}

// stop aborts a bar that never reached its total, keeping it on screen.
func (b *bar) stop() {
	if !b.b.Completed() && !b.b.Aborted() {
		b.b.Abort(false)
	}
}

// wait stops every open bar and flushes the output.
func (pr *progress) wait() {
	for _, b := range pr.bars {
		b.stop()
	}
	pr.p.Wait()
}
