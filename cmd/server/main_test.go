package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/lensshot/internal/session"
	"github.com/shehryarbajwa/lensshot/pkg/models"
)

type fakeShutdowner struct {
	err    error
	called int
	order  *[]string
	name   string
}

func (f *fakeShutdowner) Shutdown(ctx context.Context) error {
	f.called++
	if f.order != nil {
		*f.order = append(*f.order, f.name)
	}
	return f.err
}

func TestGracefulShutdown_Clean(t *testing.T) {
	var order []string
	srv := &fakeShutdowner{name: "server", order: &order}
	browser := &fakeShutdowner{name: "browser", order: &order}

	code := gracefulShutdown(context.Background(), zap.NewNop(), srv, browser)

	assert.Equal(t, 0, code)
	assert.Equal(t, []string{"server", "browser"}, order)
}

func TestGracefulShutdown_BrowserError(t *testing.T) {
	srv := &fakeShutdowner{}
	browser := &fakeShutdowner{err: errors.New("browser hung")}

	assert.Equal(t, 1, gracefulShutdown(context.Background(), zap.NewNop(), srv, browser))
	assert.Equal(t, 1, browser.called)
}

func TestGracefulShutdown_ServerErrorStillClosesBrowser(t *testing.T) {
	srv := &fakeShutdowner{err: context.DeadlineExceeded}
	browser := &fakeShutdowner{}

	assert.Equal(t, 1, gracefulShutdown(context.Background(), zap.NewNop(), srv, browser))
	assert.Equal(t, 1, browser.called)
}

func TestGracefulShutdown_UnstartedSession(t *testing.T) {
	mgr := session.NewManager(session.Options{Mode: models.ModeLocal, UserDataDir: t.TempDir()}, nil, nil)

	assert.Equal(t, 0, gracefulShutdown(context.Background(), zap.NewNop(), &fakeShutdowner{}, mgr))
}
