package lens

import (
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
)

// Point is a viewport coordinate in CSS pixels
type Point struct {
	X float64
	Y float64
}

// Box is an element's bounding rectangle as reported by getBoundingClientRect
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the midpoint of the box
func (b Box) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// DragPath returns the drag origin (box center) and the intermediate pointer
// positions towards origin+offset. The last position is the drop point.
func DragPath(box Box, offset float64, steps int) (Point, []Point) {
	if steps < 1 {
		steps = 1
	}

	start := box.Center()
	end := Point{X: start.X + offset, Y: start.Y + offset}

	moves := make([]Point, steps)
	for i := 1; i <= steps; i++ {
		f := float64(i) / float64(steps)
		moves[i-1] = Point{
			X: start.X + (end.X-start.X)*f,
			Y: start.Y + (end.Y-start.Y)*f,
		}
	}
	return start, moves
}

// dragActions synthesizes move, press, interpolated moves and release
func dragActions(start Point, moves []Point) []chromedp.Action {
	actions := make([]chromedp.Action, 0, len(moves)+3)

	actions = append(actions,
		input.DispatchMouseEvent(input.MouseMoved, start.X, start.Y),
		input.DispatchMouseEvent(input.MousePressed, start.X, start.Y).
			WithButton(input.Left).
			WithButtons(1).
			WithClickCount(1),
	)

	for _, p := range moves {
		actions = append(actions,
			input.DispatchMouseEvent(input.MouseMoved, p.X, p.Y).
				WithButton(input.Left).
				WithButtons(1))
	}

	end := start
	if len(moves) > 0 {
		end = moves[len(moves)-1]
	}
	actions = append(actions,
		input.DispatchMouseEvent(input.MouseReleased, end.X, end.Y).
			WithButton(input.Left).
			WithClickCount(1))

	return actions
}
