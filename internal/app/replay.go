package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ayusman/facecue/internal/landmark"
	"github.com/ayusman/facecue/internal/metrics"
	"github.com/ayusman/facecue/internal/session"
)

// Replay runs a newline-delimited JSON landmark stream through one session.
func (a *App) Replay(ctx context.Context, r io.Reader, onResult session.ResultFunc) (session.Summary, error) {
	return a.Run(ctx, "replay", landmark.NewStreamSource(r), onResult)
}

// Run feeds every frame of src through one session, in order and without
// dropping, until src is exhausted. Malformed frames and frame errors are
// reported to onResult when set and never stop the run. src is closed on
// return, and the returned summary is that of the ended session.
func (a *App) Run(ctx context.Context, source string, src landmark.Source, onResult session.ResultFunc) (session.Summary, error) {
	defer src.Close()

	s, err := a.manager.Start(ctx, source)
	if err != nil {
		return session.Summary{}, err
	}
	log := a.log.With().Str("session", s.ID()).Logger()

	var runErr error
	for {
		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if !landmark.IsDecodeError(err) {
				runErr = err
				break
			}
			metrics.FramesSkipped.WithLabelValues(metrics.ReasonDecode).Inc()
			log.Warn().Err(err).Msg("skipping malformed frame")
			if onResult != nil {
				onResult(session.Result{Session: s.ID()}, err)
			}
			continue
		}

		res, err := s.Tick(frame, a.runtime.Snapshot())
		if err != nil && !session.IsFrameError(err) {
			runErr = fmt.Errorf("%s: %w", source, err)
			break
		}
		if onResult != nil {
			onResult(res, err)
		}
	}

	sum, err := a.manager.End(context.WithoutCancel(ctx), s.ID())
	if err != nil && runErr == nil {
		runErr = err
	}
	return sum, runErr
}
