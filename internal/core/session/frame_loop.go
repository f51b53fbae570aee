package session

import (
	"context"
	"io"
	"time"

	"camwatch/internal/core/domain"
	"camwatch/internal/core/ports"
)

// frameLoop relays frames from r.decoder until the decoder ends, the client
// stops accepting data, or the run is cancelled.
func (s *StreamSession) frameLoop(ctx context.Context, r *run) {
	reason := "stopped"
	stderrDone := make(chan struct{})
	go s.drainErrors(r.decoder, stderrDone)

	defer func() {
		if p := recover(); p != nil {
			s.logger.Errorw("Frame loop panicked", "panic", p)
			reason = "panic"
		}
		s.finishRun(r, stderrDone, reason)
	}()

	encoder := newFrameEncoder(s.cfg.JPEGQuality, s.buffers)
	buf := make([]byte, r.decoder.FrameSize())
	var pausedSince time.Time
	frames := 0

	for {
		if ctx.Err() != nil {
			return
		}

		if s.paused.Load() {
			if pausedSince.IsZero() {
				pausedSince = s.now()
			}
			if s.cfg.MaxPause > 0 && s.now().Sub(pausedSince) > s.cfg.MaxPause {
				reason = "max_pause"
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.IdleInterval):
			}
			continue
		}
		pausedSince = time.Time{}

		n, err := s.readFrame(r.decoder, buf)
		if err != nil {
			if ctx.Err() == nil {
				reason = "end_of_stream"
				s.logger.Warnw("Decoder stream ended",
					"rtsp_url", r.url,
					"bytes", n,
					"expected", len(buf),
					"error", err,
				)
			}
			return
		}

		start := s.now()
		frame := domain.Frame{
			Data:       buf,
			Width:      s.cfg.FrameWidth,
			Height:     s.cfg.FrameHeight,
			CapturedAt: start,
		}

		var detection *time.Duration
		if detector := s.detectionDue(start); detector != nil {
			d := s.detect(ctx, detector, frame)
			detection = &d
		}

		encoded, encErr := encoder.encode(frame)
		processing := s.now().Sub(start)
		s.perf.Record(processing, detection)

		frames++
		if s.cfg.StatsEveryFrames > 0 && frames%s.cfg.StatsEveryFrames == 0 {
			msg := statsMessage{Type: "performance_stats", Stats: s.perf.Snapshot()}
			if err := s.transport.SendJSON(ctx, msg); err != nil {
				if encoded != nil {
					encoder.release(encoded)
				}
				reason = "transport"
				s.logger.Warnw("Failed to send performance stats", "error", err)
				return
			}
		}

		if encErr != nil {
			s.metrics.FrameSkipped("encode")
			s.logger.Warnw("Frame encoding failed", "error", encErr)
			continue
		}

		size := encoded.Len()
		err = s.transport.SendBinary(ctx, encoded.Bytes())
		encoder.release(encoded)
		if err != nil {
			reason = "transport"
			s.logger.Warnw("Failed to send frame", "error", err)
			return
		}
		s.metrics.FrameRelayed(size, processing)
	}
}

// readFrame reads one frame, killing the decoder when a read outlasts the
// configured timeout.
func (s *StreamSession) readFrame(dec ports.FrameDecoder, buf []byte) (int, error) {
	if s.cfg.ReadTimeout <= 0 {
		return dec.ReadFrame(buf)
	}

	watchdog := time.AfterFunc(s.cfg.ReadTimeout, func() {
		s.logger.Warnw("Frame read timed out, stopping decoder", "timeout", s.cfg.ReadTimeout)
		_ = dec.Stop()
	})
	defer watchdog.Stop()
	return dec.ReadFrame(buf)
}

// detectionDue returns the detector when a detection pass is due at now.
func (s *StreamSession) detectionDue(now time.Time) *FaceDetector {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.detector == nil {
		return nil
	}
	if !s.lastDetection.IsZero() && now.Sub(s.lastDetection) < s.cfg.DetectionInterval {
		return nil
	}
	s.lastDetection = now
	return s.detector
}

// detect runs one detection pass and the alert pipeline. It returns the time
// spent in the model.
func (s *StreamSession) detect(ctx context.Context, detector *FaceDetector, frame domain.Frame) time.Duration {
	start := s.now()
	candidates, err := detector.Detect(ctx, frame)
	elapsed := s.now().Sub(start)
	s.metrics.DetectionObserved(elapsed, len(candidates), err)
	if err != nil {
		return elapsed
	}

	decision := s.policy.Evaluate(candidates, s.now())
	if decision.ShouldAlert {
		s.raiseAlert(ctx, frame, decision.Chosen)
	}
	return elapsed
}

// drainErrors logs decoder diagnostics until the error stream closes.
func (s *StreamSession) drainErrors(dec ports.FrameDecoder, done chan<- struct{}) {
	defer close(done)
	for {
		line, err := dec.ReadErrorLine()
		if err != nil {
			if err != io.EOF {
				s.logger.Debugw("Decoder error stream failed", "error", err)
			}
			return
		}
		if line != "" {
			s.logger.Debugw("Decoder output", "decoder_line", line)
		}
	}
}
