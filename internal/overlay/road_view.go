package overlay

import (
	"math"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/lowaak/smart-trainer/notch-rider/internal/animation"
	"github.com/lowaak/smart-trainer/notch-rider/internal/ride"
)

const (
	riderGlyph = "🚴"
	// driftRows is how far the rider leaves the road at full drift
	driftRows = 2
)

// roadGeometry maps the road profile onto a grid of cells. The notch sits
// in the middle quarter of the width; the ramps take a tenth each.
type roadGeometry struct {
	width   int
	height  int
	profile animation.RoadProfile
	notchX  float64
	notchW  float64
}

func newRoadGeometry(width, height int) roadGeometry {
	lower := math.Max(float64(height-1), 0)
	return roadGeometry{
		width:  width,
		height: height,
		profile: animation.RoadProfile{
			UpperY:          math.Min(float64(driftRows+1), lower),
			LowerY:          lower,
			TransitionWidth: float64(width) / 10,
		},
		notchX: float64(width) / 2,
		notchW: float64(width) / 4,
	}
}

func (g roadGeometry) roadRow(col int) int {
	return int(math.Round(g.profile.Y(float64(col), g.notchX, g.notchW)))
}

// riderColumn places a track position on the grid.
func (g roadGeometry) riderColumn(positionX, trackWidth float64) int {
	if trackWidth <= 0 || g.width <= 0 {
		return 0
	}
	col := int(positionX / trackWidth * float64(g.width))
	return min(max(col, 0), g.width-1)
}

// riderRow lifts the rider above the road for positive drift and sinks it for negative.
func (g roadGeometry) riderRow(col int, drift ride.DriftResult) int {
	shift := int(math.Round(drift.Offset / ride.MaxDrift * driftRows))
	row := g.roadRow(col) - 1 - shift
	return min(max(row, 0), g.height-1)
}

func (g roadGeometry) roadGlyph(col int) rune {
	prev, next := g.roadRow(col-1), g.roadRow(col+1)
	switch {
	case next > prev:
		return '╲'
	case next < prev:
		return '╱'
	default:
		return '─'
	}
}

// roadView draws the road and rider. It is also the window positioner: the
// scheduler's vertical offset pushes the whole road down by that many rows.
type roadView struct {
	*tview.Box

	mu         sync.Mutex
	frame      Frame
	trackWidth float64
	offsetRows int
	hidden     bool
}

var _ animation.WindowPositioner = (*roadView)(nil)

func newRoadView(trackWidth float64) *roadView {
	r := &roadView{
		Box:        tview.NewBox(),
		trackWidth: trackWidth,
	}
	r.SetBorder(true).SetTitle(" Road ")
	return r
}

func (r *roadView) SetVerticalOffset(rows int) {
	r.mu.Lock()
	r.offsetRows = max(rows, 0)
	r.mu.Unlock()
}

func (r *roadView) setFrame(frame Frame) {
	r.mu.Lock()
	r.frame = frame
	r.mu.Unlock()
}

func (r *roadView) setHidden(hidden bool) {
	r.mu.Lock()
	r.hidden = hidden
	r.mu.Unlock()
}

func (r *roadView) Draw(screen tcell.Screen) {
	r.Box.DrawForSubclass(screen, r)
	x, y, width, height := r.GetInnerRect()
	if width <= 0 || height <= 0 {
		return
	}

	r.mu.Lock()
	frame, trackWidth, offset, hidden := r.frame, r.trackWidth, r.offsetRows, r.hidden
	r.mu.Unlock()

	if hidden {
		tview.Print(screen, "[gray]road hidden, press z to show", x, y, width, tview.AlignCenter, tcell.ColorGray)
		return
	}

	offset = min(offset, height-1)
	top := y + offset
	g := newRoadGeometry(width, height-offset)

	roadStyle := tcell.StyleDefault.Foreground(tcell.ColorDarkGray)
	for col := 0; col < width; col++ {
		screen.SetContent(x+col, top+g.roadRow(col), g.roadGlyph(col), nil, roadStyle)
	}

	col := g.riderColumn(frame.Animation.PositionX, trackWidth)
	row := g.riderRow(col, frame.Readout.Drift)
	color := tcell.GetColor(driftColor(frame.Readout.Drift.State))
	tview.Print(screen, riderGlyph, x+col, top+row, width-col, tview.AlignLeft, color)
}
