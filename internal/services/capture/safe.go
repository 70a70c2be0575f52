package capture

import (
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/cmabridge/internal/common"
	"github.com/ternarybob/cmabridge/internal/interfaces"
)

// Safe wraps a capture so that it runs off the request path and its result,
// error or panic included, never reaches the caller
type Safe struct {
	inner  interfaces.ResponseCapture
	logger arbor.ILogger
	wg     sync.WaitGroup
}

// NewSafe wraps inner; a nil inner discards everything
func NewSafe(inner interfaces.ResponseCapture, logger arbor.ILogger) *Safe {
	if inner == nil {
		inner = NoopStore{}
	}
	return &Safe{inner: inner, logger: logger}
}

// Record hands payload to the wrapped capture on a panic-protected goroutine
func (s *Safe) Record(name string, payload interface{}) {
	s.wg.Add(1)
	common.SafeGo(s.logger, "captureResponse", func() {
		defer s.wg.Done()

		err := common.RecoverPanic(func() error {
			location, err := s.inner.Capture(name, payload)
			if err == nil && location != "" {
				s.logger.Debug().Str("name", name).Str("path", location).Msg("Response captured")
			}
			return err
		})
		if err != nil {
			s.logger.Debug().Err(err).Str("name", name).Msg("Response capture failed")
		}
	})
}

// Wait blocks until pending captures have finished
func (s *Safe) Wait() {
	s.wg.Wait()
}
