package lens

import (
	"testing"

	"github.com/chromedp/cdproto/input"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDragPath(t *testing.T) {
	box := Box{X: 0, Y: 0, Width: 1920, Height: 1080}

	start, moves := DragPath(box, 100, 20)

	assert.Equal(t, Point{X: 960, Y: 540}, start)
	require.Len(t, moves, 20)
	assert.Equal(t, Point{X: 965, Y: 545}, moves[0])
	assert.Equal(t, Point{X: 1060, Y: 640}, moves[19])

	for i := 1; i < len(moves); i++ {
		assert.Greater(t, moves[i].X, moves[i-1].X)
		assert.Greater(t, moves[i].Y, moves[i-1].Y)
	}
}

func TestDragPath_OffsetBox(t *testing.T) {
	start, moves := DragPath(Box{X: 10, Y: 20, Width: 100, Height: 50}, 0, 3)

	assert.Equal(t, Point{X: 60, Y: 45}, start)
	for _, m := range moves {
		assert.Equal(t, start, m)
	}
}

func TestDragPath_ClampsSteps(t *testing.T) {
	_, moves := DragPath(Box{Width: 10, Height: 10}, 10, 0)
	require.Len(t, moves, 1)
	assert.Equal(t, Point{X: 15, Y: 15}, moves[0])
}

func TestDragActions(t *testing.T) {
	start, moves := DragPath(Box{Width: 200, Height: 100}, 100, 4)
	actions := dragActions(start, moves)

	require.Len(t, actions, 4+3)

	events := make([]*input.DispatchMouseEventParams, len(actions))
	for i, a := range actions {
		ev, ok := a.(*input.DispatchMouseEventParams)
		require.True(t, ok, "action %d is %T", i, a)
		events[i] = ev
	}

	assert.Equal(t, input.MouseMoved, events[0].Type)
	assert.Equal(t, input.MouseButton(""), events[0].Button)
	assert.Equal(t, 100.0, events[0].X)
	assert.Equal(t, 50.0, events[0].Y)

	assert.Equal(t, input.MousePressed, events[1].Type)
	assert.Equal(t, input.Left, events[1].Button)
	assert.Equal(t, int64(1), events[1].ClickCount)

	for _, ev := range events[2 : len(events)-1] {
		assert.Equal(t, input.MouseMoved, ev.Type)
		assert.Equal(t, input.Left, ev.Button)
		assert.Equal(t, int64(1), ev.Buttons)
	}

	last := events[len(events)-1]
	assert.Equal(t, input.MouseReleased, last.Type)
	assert.Equal(t, 200.0, last.X)
	assert.Equal(t, 150.0, last.Y)
}
