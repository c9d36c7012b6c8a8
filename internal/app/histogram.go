package app

import (
	"fmt"
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"yashubustudio/reviewlens/sentiment"
)

var chartColors = map[string]color.NRGBA{
	"red":   {R: 0xdc, G: 0x35, B: 0x45, A: 0xff},
	"gray":  {R: 0x8a, G: 0x8f, B: 0x94, A: 0xff},
	"green": {R: 0x28, G: 0xa7, B: 0x45, A: 0xff},
}

func labelColor(l sentiment.Label) color.NRGBA {
	return chartColors[l.Color()]
}

// barHeights scales counts into [0,1] relative to the tallest bar.
func barHeights(counts [sentiment.NumLabels]int) [sentiment.NumLabels]float32 {
	var out [sentiment.NumLabels]float32
	maxv := 0
	for _, c := range counts {
		if c > maxv {
			maxv = c
		}
	}
	if maxv == 0 {
		return out
	}
	for i, c := range counts {
		out[i] = float32(c) / float32(maxv)
	}
	return out
}

// histogram draws one colored bar per label.
type histogram struct {
	bars    [sentiment.NumLabels]*canvas.Rectangle
	counts  [sentiment.NumLabels]*widget.Label
	heights [sentiment.NumLabels]float32
	plot    *fyne.Container
	root    fyne.CanvasObject
}

func newHistogram() *histogram {
	h := &histogram{}
	objs := make([]fyne.CanvasObject, 0, sentiment.NumLabels)
	captions := make([]fyne.CanvasObject, 0, sentiment.NumLabels)
	for _, l := range sentiment.Labels {
		rect := canvas.NewRectangle(labelColor(l))
		h.bars[l] = rect
		objs = append(objs, rect)
		h.counts[l] = widget.NewLabelWithStyle("0", fyne.TextAlignCenter, fyne.TextStyle{Bold: true})
		captions = append(captions, container.NewVBox(
			h.counts[l],
			widget.NewLabelWithStyle(l.String(), fyne.TextAlignCenter, fyne.TextStyle{}),
		))
	}
	h.plot = container.New(&barLayout{h: h}, objs...)
	h.root = container.NewBorder(nil, container.NewGridWithColumns(sentiment.NumLabels, captions...), nil, nil, h.plot)
	return h
}

func (h *histogram) update(counts [sentiment.NumLabels]int) {
	h.heights = barHeights(counts)
	for i, c := range counts {
		h.counts[i].SetText(fmt.Sprintf("%d", c))
	}
	h.plot.Refresh()
}

type barLayout struct {
	h *histogram
}

func (l *barLayout) Layout(objs []fyne.CanvasObject, size fyne.Size) {
	if len(objs) == 0 {
		return
	}
	slot := size.Width / float32(len(objs))
	gap := slot * 0.2
	for i, o := range objs {
		bh := size.Height * l.h.heights[i]
		o.Resize(fyne.NewSize(slot-gap, bh))
		o.Move(fyne.NewPos(float32(i)*slot+gap/2, size.Height-bh))
	}
}

func (l *barLayout) MinSize([]fyne.CanvasObject) fyne.Size {
	return fyne.NewSize(240, 140)
}
