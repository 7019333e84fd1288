package follower

import (
	"bytes"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/laik/harvest/pkg/container"
	"github.com/laik/harvest/pkg/log"
	"github.com/laik/harvest/pkg/metrics"
	"github.com/laik/harvest/pkg/output"
)

const readChunkSize = 64 * 1024

// run owns one log file for its entire lifetime: it opens the file, seeks
// to the entry's recorded offset, and then drains newline-terminated lines
// on every Tick until a Close arrives.
func (p *Pool) run(entry container.Entry, ctrl chan controlMsg) {
	flog := log.WithPath(entry.Path)

	f, err := os.Open(entry.Path)
	if err != nil {
		flog.Warn().Err(err).Msg("follower: open failed")
		p.closeQuiet(entry.Path)
		return
	}
	defer f.Close()

	if _, err := f.Seek(entry.Offset, io.SeekStart); err != nil {
		flog.Warn().Err(err).Msg("follower: seek failed")
		p.closeQuiet(entry.Path)
		return
	}

	// carry holds bytes read past the last confirmed newline; it persists
	// across ticks so a line split across two reads isn't lost.
	var carry bytes.Buffer
	chunk := make([]byte, readChunkSize)

	for msg := range ctrl {
		if msg == msgClose {
			return
		}
		p.drain(&entry, f, chunk, &carry, flog)
	}
}

// drain reads from f until it catches up with EOF, emitting every complete
// line to the output multiplexer and advancing the registry offset by
// exactly the bytes confirmed. A trailing partial line is kept in carry for
// the next tick.
func (p *Pool) drain(entry *container.Entry, f *os.File, chunk []byte, carry *bytes.Buffer, flog zerolog.Logger) {
	for {
		n, err := f.Read(chunk)
		if n > 0 {
			carry.Write(chunk[:n])
			for {
				data := carry.Bytes()
				idx := bytes.IndexByte(data, '\n')
				if idx < 0 {
					break
				}
				line := make([]byte, idx+1)
				copy(line, data[:idx+1])
				carry.Next(idx + 1)

				p.emit(entry, line, flog)
			}
		}
		if err == io.EOF || n == 0 {
			return
		}
		if err != nil {
			flog.Warn().Err(err).Msg("follower: read failed")
			return
		}
	}
}

func (p *Pool) emit(entry *container.Entry, line []byte, flog zerolog.Logger) {
	// An empty line (just the newline) is not forwarded, but its byte still
	// advances the offset.
	if len(line) > 1 {
		envelope, err := output.BuildEnvelope(*entry, string(line))
		if err != nil {
			flog.Warn().Err(err).Msg("follower: envelope build failed")
			return
		}

		if err := p.mux.Write(entry.Output, output.Item{Value: envelope}); err != nil {
			flog.Warn().Err(err).Str("uri", entry.Output).Msg("follower: write failed")
			return
		}

		metrics.LinesEmittedTotal.Inc()
	}
	metrics.BytesReadTotal.Add(float64(len(line)))

	entry.Offset += int64(len(line))
	p.registry.IncrOffset(entry.Path, int64(len(line)))
}

func (p *Pool) closeQuiet(path string) {
	s := p.shardFor(path)
	s.mu.Lock()
	delete(s.followers, path)
	s.mu.Unlock()
	metrics.FollowersActive.Dec()
}
