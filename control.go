package tuncap

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/slackhq/tuncap/overlay"
	"github.com/slackhq/tuncap/util"
	"golang.org/x/sync/errgroup"
)

// Control is the handle returned by Main. Start runs the capture loop, Stop or a fatal capture error ends it.
type Control struct {
	l          *logrus.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	capture    *Capture
	activate   bool
	statsStart func(context.Context) error

	eg       *errgroup.Group
	waitOnce sync.Once
	waitErr  error
}

// Start activates the device if configured and starts the capture loop, this is a nonblocking call.
// To block use Control.ShutdownBlock() or Control.Wait()
func (c *Control) Start() error {
	if c.activate {
		if err := c.capture.dev.Activate(); err != nil {
			_ = c.capture.Close()
			return util.NewContextualError("Failed to activate the device", map[string]any{"device": c.capture.dev.Name()}, err)
		}
	}

	eg, ctx := errgroup.WithContext(c.ctx)
	c.eg = eg

	// Closing the device is the only way to interrupt a blocked read
	eg.Go(func() error {
		<-ctx.Done()
		return c.capture.Close()
	})

	// The loop can also end through Capture.Close, the helpers must not outlive it
	eg.Go(func() error {
		defer c.cancel()
		return c.capture.Run()
	})

	if c.statsStart != nil {
		eg.Go(func() error {
			return c.statsStart(ctx)
		})
	}

	return nil
}

// Wait blocks until the capture loop and every helper have exited and returns the first fatal error.
func (c *Control) Wait() error {
	c.waitOnce.Do(func() {
		if c.eg != nil {
			c.waitErr = c.eg.Wait()
		}

		if c.capture == nil {
			return
		}

		if cl, ok := c.capture.sink.(io.Closer); ok {
			if err := cl.Close(); err != nil {
				c.l.WithError(err).Error("Failed to close datagram consumers")
			}
		}
	})
	return c.waitErr
}

// Stop releases the device, which ends the capture loop, and returns after everything has exited
func (c *Control) Stop() error {
	c.cancel()
	err := c.Wait()
	c.l.Info("Goodbye")
	return err
}

// ShutdownBlock blocks until a term or interrupt signal arrives or the capture loop fails.
// It returns nil when stopped by a signal.
func (c *Control) ShutdownBlock() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	done := make(chan error, 1)
	go func() {
		done <- c.Wait()
	}()

	select {
	case rawSig := <-sigChan:
		c.l.WithField("signal", rawSig.String()).Info("Caught signal, shutting down")
		return c.Stop()
	case err := <-done:
		c.cancel()
		c.l.Info("Goodbye")
		return err
	}
}

func (c *Control) Device() overlay.Device {
	return c.capture.dev
}

func (c *Control) Capture() *Capture {
	return c.capture
}

func (c *Control) GetLogger() *logrus.Logger {
	return c.l
}

func (c *Control) Context() context.Context {
	return c.ctx
}
