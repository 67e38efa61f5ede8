/*
NAME
  decoder.go

DESCRIPTION
  decoder.go wires together ingest, NAL extraction, presentation-order
  reordering, and the task pool that schedules per-access-unit decode
  work, owning and sequencing the pipeline stages end to end.

AUTHOR
  AusOcean

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package decoder orchestrates an LCEVC decoding session: it ingests
// access units (from a file or an MPEG-TS stream), extracts enhancement
// payloads, reorders them into presentation order, and schedules a
// caller-supplied ChunkDecoder across the task pool. Deserialising the
// enhancement bitstream itself belongs to a separate wire-format
// specification and is not implemented here; ChunkDecoder is where a
// caller plugs that in.
package decoder

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/ausocean/lcevc/container/binfmt"
	"github.com/ausocean/lcevc/container/tsenhancement"
	"github.com/ausocean/lcevc/lcevccfg"
	"github.com/ausocean/lcevc/memory"
	"github.com/ausocean/lcevc/nal"
	"github.com/ausocean/lcevc/reorder"
	"github.com/ausocean/lcevc/taskpool"
	"github.com/ausocean/utils/logging"
)

// ChunkDecoder is invoked once per reordered enhancement payload. The
// arena is shared across an entire session; work functions should not
// retain allocations from it past the call.
type ChunkDecoder func(ctx context.Context, arena *memory.RollingArena, ts reorder.Timestamp, payload []byte) error

// Decoder owns the resources and pipeline stages of one decoding
// session.
type Decoder struct {
	cfg    *lcevccfg.Config
	log    logging.Logger
	pool   *taskpool.Pool
	arena  *memory.RollingArena
	reord  *reorder.Container
	decode ChunkDecoder

	archive *binfmt.Writer
	archF   *os.File
}

// New validates cfg and builds a Decoder ready to Ingest from it.
func New(cfg *lcevccfg.Config, decode ChunkDecoder) (*Decoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Decoder{
		cfg:    cfg,
		log:    cfg.Logger,
		pool:   taskpool.New(cfg.PoolWorkers),
		arena:  memory.NewRollingArena(cfg.ArenaInitialSize),
		reord:  reorder.NewContainer(0),
		decode: decode,
	}
	if cfg.OutputPath != "" {
		f, err := os.Create(cfg.OutputPath)
		if err != nil {
			d.pool.Close()
			return nil, errors.Wrap(err, "decoder: create archive file")
		}
		d.archF = f
		d.archive = binfmt.NewWriter(f)
	}
	return d, nil
}

// Close releases the decoder's task pool, flushing any archive output.
func (d *Decoder) Close() error {
	d.pool.WaitAll()
	d.pool.Close()
	if d.archive != nil {
		if err := d.archive.Flush(); err != nil {
			d.archF.Close()
			return err
		}
		return d.archF.Close()
	}
	return nil
}

// accessUnitSource abstracts over the two ingest paths this decoder
// supports: a raw NAL bytestream file, and an MPEG-TS demuxer.
type accessUnitSource interface {
	// next returns the next access unit's bytes and presentation
	// timestamp, or io.EOF when exhausted.
	next() ([]byte, reorder.Timestamp, error)
	// format and codec describe how to scan the bytes next returns
	// for an embedded enhancement payload.
	format() nal.Format
	codec() nal.Codec
}

type fileSource struct {
	r   io.Reader
	fmt nal.Format
	cdc nal.Codec
	pts uint64
}

func (s *fileSource) format() nal.Format { return s.fmt }
func (s *fileSource) codec() nal.Codec   { return s.cdc }

func (s *fileSource) next() ([]byte, reorder.Timestamp, error) {
	// A bare file source has no access-unit framing of its own; the
	// whole remaining file is treated as one bytestream to scan, and
	// EOF is signalled by returning it once.
	data, err := io.ReadAll(s.r)
	if err != nil {
		return nil, 0, errors.Wrap(err, "decoder: read input file")
	}
	if len(data) == 0 {
		return nil, 0, io.EOF
	}
	s.r = io.MultiReader() // exhaust on the next call.
	ts := reorder.Timestamp(s.pts)
	s.pts++
	return data, ts, nil
}

type tsSource struct {
	d *tsenhancement.Demuxer
}

func (s *tsSource) format() nal.Format { return nal.AnnexB }
func (s *tsSource) codec() nal.Codec   { return nal.H264 }

func (s *tsSource) next() ([]byte, reorder.Timestamp, error) {
	au, err := s.d.Next()
	if err != nil {
		return nil, 0, err
	}
	return au.Data, reorder.Timestamp(au.PTS), nil
}

func (d *Decoder) openSource(f *os.File) (accessUnitSource, error) {
	switch d.cfg.Ingest {
	case lcevccfg.IngestMPEGTS:
		return &tsSource{d: tsenhancement.NewDemuxer(f, d.cfg.EnhancementPID, d.log)}, nil
	default:
		return &fileSource{r: f, fmt: nal.AnnexB, cdc: nal.H264}, nil
	}
}

// Ingest reads access units from cfg.InputPath until the source is
// exhausted or ctx is cancelled, extracting, reordering, archiving, and
// scheduling each enhancement payload for decode.
func (d *Decoder) Ingest(ctx context.Context) error {
	f, err := os.Open(d.cfg.InputPath)
	if err != nil {
		return errors.Wrap(err, "decoder: open input")
	}
	defer f.Close()

	src, err := d.openSource(f)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		au, ts, err := src.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		result, err := nal.Extract(au, src.format(), src.codec(), make([]byte, 0, len(au)))
		if err != nil {
			d.log.Warning("decoder: NAL extraction failed", "error", err.Error())
			continue
		}
		if result.Count == 0 {
			continue
		}

		if !d.reord.Insert(ts, result.Out) {
			d.log.Warning("decoder: reorder container full, dropping access unit", "ts", uint64(ts))
			continue
		}

		if d.archive != nil {
			if err := d.archive.WriteAccessUnit(binfmt.AccessUnit{
				DecodeIndex:       int64(ts),
				PresentationIndex: int64(ts),
				Opaque:            result.Out,
			}); err != nil {
				return errors.Wrap(err, "decoder: archive access unit")
			}
		}

		d.drainReady(ctx)
	}

	// Force-drain whatever remains once ingest is exhausted.
	for d.reord.Size() > 0 {
		buf, _ := d.reord.ExtractNextInOrder(true)
		if buf == nil {
			break
		}
		d.scheduleDecode(ctx, buf.Timestamp, buf.Data)
	}
	return nil
}

// drainReady schedules every access unit the reorder container is
// willing to release without forcing (i.e. that the predictor judges
// safe to emit in order).
func (d *Decoder) drainReady(ctx context.Context) {
	for {
		buf, _ := d.reord.ExtractNextInOrder(false)
		if buf == nil {
			return
		}
		d.scheduleDecode(ctx, buf.Timestamp, buf.Data)
	}
}

func (d *Decoder) scheduleDecode(ctx context.Context, ts reorder.Timestamp, payload []byte) {
	if d.decode == nil {
		return
	}
	_, err := d.pool.Submit("decode-chunk", func(taskCtx context.Context, data interface{}) {
		if err := d.decode(taskCtx, d.arena, ts, payload); err != nil {
			d.log.Error("decoder: chunk decode failed", "ts", uint64(ts), "error", err.Error())
		}
	}, nil)
	if err != nil {
		d.log.Error("decoder: submit decode task failed", "error", err.Error())
	}
}
