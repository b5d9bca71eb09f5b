package proc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/leeineian/jukebox/sys"
)

const (
	sampleRate  = 48000
	frameLength = 960 // 20ms at 48kHz
)

// Transcoder decodes any input ffmpeg understands and encodes 20ms Opus
// frames. Volume is read live from a pointer in percent.
type Transcoder struct {
	inputCtx               *astiav.FormatContext
	decoderCtx, encoderCtx *astiav.CodecContext
	audioStreamIndex       int
	packet                 *astiav.Packet
	frame                  *astiav.Frame
	resampleCtx            *astiav.SoftwareResampleContext
	resampleFrame          *astiav.Frame
	fifo                   *astiav.AudioFifo
	reader                 io.Reader
	onFrame                func([]byte)
	pts                    int64
	volume                 *atomic.Int32
}

func NewTranscoder(volume *atomic.Int32) *Transcoder {
	return &Transcoder{
		packet:        astiav.AllocPacket(),
		frame:         astiav.AllocFrame(),
		resampleFrame: astiav.AllocFrame(),
		volume:        volume,
	}
}

// Position is the amount of audio encoded so far.
func (t *Transcoder) Position() time.Duration {
	return time.Duration(atomic.LoadInt64(&t.pts)) * time.Second / sampleRate
}

// OpenInput opens r when non-nil, or in as a file or URL otherwise.
func (t *Transcoder) OpenInput(in string, r io.Reader, proxy string) error {
	t.inputCtx = astiav.AllocFormatContext()
	if t.inputCtx == nil {
		return errors.New("failed to alloc ctx")
	}
	if r != nil {
		t.reader = r
		ioCtx, err := astiav.AllocIOContext(16*1024, false, func(b []byte) (int, error) {
			return t.reader.Read(b)
		}, nil, nil)
		if err != nil {
			return err
		}
		t.inputCtx.SetPb(ioCtx)
		t.inputCtx.SetFlags(t.inputCtx.Flags().Add(astiav.FormatContextFlagCustomIo))

		opts := astiav.NewDictionary()
		defer opts.Free()
		opts.Set("probesize", "10000000", 0)
		opts.Set("analyzeduration", "10000000", 0)
		opts.Set("fflags", "nobuffer", 0)

		if err := t.inputCtx.OpenInput("", nil, opts); err != nil {
			return err
		}
	} else {
		var opts *astiav.Dictionary
		if strings.HasPrefix(in, "http") {
			opts = astiav.NewDictionary()
			defer opts.Free()
			opts.Set("reconnect", "1", 0)
			opts.Set("reconnect_streamed", "1", 0)
			opts.Set("reconnect_delay_max", "30", 0)
			opts.Set("timeout", "30000000", 0)
			opts.Set("probesize", "10000000", 0)
			opts.Set("analyzeduration", "10000000", 0)
			if proxy != "" {
				opts.Set("http_proxy", proxy, 0)
			}
		}
		if err := t.inputCtx.OpenInput(in, nil, opts); err != nil {
			return err
		}
	}
	if err := t.inputCtx.FindStreamInfo(nil); err != nil {
		return err
	}
	t.audioStreamIndex = -1
	for _, s := range t.inputCtx.Streams() {
		if s.CodecParameters().MediaType() == astiav.MediaTypeAudio {
			t.audioStreamIndex = s.Index()
			break
		}
	}
	if t.audioStreamIndex == -1 {
		return errors.New("no audio")
	}
	return nil
}

func (t *Transcoder) SetupDecoder() error {
	p := t.inputCtx.Streams()[t.audioStreamIndex].CodecParameters()
	d := astiav.FindDecoder(p.CodecID())
	if d == nil {
		return errors.New("no decoder")
	}
	t.decoderCtx = astiav.AllocCodecContext(d)
	_ = p.ToCodecContext(t.decoderCtx)
	return t.decoderCtx.Open(d, nil)
}

func (t *Transcoder) SetupEncoder() error {
	e := astiav.FindEncoderByName("libopus")
	if e == nil {
		e = astiav.FindEncoder(astiav.CodecIDOpus)
	}
	if e == nil {
		return errors.New("no encoder")
	}
	t.encoderCtx = astiav.AllocCodecContext(e)
	t.encoderCtx.SetBitRate(128000)
	t.encoderCtx.SetSampleRate(sampleRate)
	t.encoderCtx.SetChannelLayout(astiav.ChannelLayoutStereo)
	t.encoderCtx.SetSampleFormat(astiav.SampleFormatS16)
	t.encoderCtx.SetTimeBase(astiav.NewRational(1, sampleRate))
	o := astiav.NewDictionary()
	defer o.Free()
	o.Set("vbr", "on", 0)
	o.Set("compression_level", "10", 0)
	o.Set("frame_size", "20", 0)
	if err := t.encoderCtx.Open(e, o); err != nil {
		return err
	}
	t.resampleCtx = astiav.AllocSoftwareResampleContext()
	if t.resampleCtx == nil {
		return errors.New("failed to allocate resampler")
	}
	return nil
}

// SeekTo positions the input at offset before transcoding starts.
func (t *Transcoder) SeekTo(offset time.Duration) error {
	if offset <= 0 {
		return nil
	}
	ts := int64(offset.Seconds() * sampleRate)
	streamTb := t.inputCtx.Streams()[t.audioStreamIndex].TimeBase()
	streamTs := astiav.RescaleQ(ts, astiav.NewRational(1, sampleRate), streamTb)
	if err := t.inputCtx.SeekFrame(t.audioStreamIndex, streamTs, astiav.SeekFlags(astiav.SeekFlagBackward)); err != nil {
		return fmt.Errorf("seek to %s: %w", offset, err)
	}
	t.decoderCtx.Free()
	if err := t.SetupDecoder(); err != nil {
		return err
	}
	atomic.StoreInt64(&t.pts, ts)
	return nil
}

// Transcode pumps frames into on until the input ends or ctx is done. on
// receives nil once at the end.
func (t *Transcoder) Transcode(ctx context.Context, on func([]byte)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transcoder panic: %v", r)
			sys.LogVoice("CRITICAL: Transcoder panic recovered: %v", r)
		}
	}()

	defer t.packet.Unref()
	t.onFrame = on
	defer func() {
		if t.onFrame != nil {
			t.onFrame(nil)
		}
	}()

	t.fifo = astiav.AllocAudioFifo(t.encoderCtx.SampleFormat(), t.encoderCtx.ChannelLayout().Channels(), frameLength*2)
	if t.fifo == nil {
		return errors.New("failed to alloc fifo")
	}
	defer func() {
		if t.fifo != nil {
			t.fifo.Free()
			t.fifo = nil
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		t.packet.Unref()
		if err := t.inputCtx.ReadFrame(t.packet); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				break
			}
			return err
		}
		if t.packet.StreamIndex() != t.audioStreamIndex {
			continue
		}
		if err := t.decoderCtx.SendPacket(t.packet); err != nil {
			return err
		}
		if err := t.drainDecoder(); err != nil {
			return err
		}
	}

	_ = t.decoderCtx.SendPacket(nil)
	if err := t.drainDecoder(); err != nil {
		return err
	}
	if err := t.processFifo(true); err != nil {
		return err
	}

	_ = t.encoderCtx.SendFrame(nil)
	t.receivePackets()
	return nil
}

func (t *Transcoder) drainDecoder() error {
	for {
		if err := t.decoderCtx.ReceiveFrame(t.frame); err != nil {
			return nil
		}
		err := t.pushToFifo()
		t.frame.Unref()
		if err != nil {
			return err
		}
	}
}

func (t *Transcoder) pushToFifo() error {
	t.resampleFrame.Unref()
	t.resampleFrame.SetChannelLayout(t.encoderCtx.ChannelLayout())
	t.resampleFrame.SetSampleFormat(t.encoderCtx.SampleFormat())
	t.resampleFrame.SetSampleRate(t.encoderCtx.SampleRate())
	nb := int(astiav.RescaleQ(int64(t.frame.NbSamples()), astiav.NewRational(1, t.frame.SampleRate()), astiav.NewRational(1, t.encoderCtx.SampleRate())))
	if nb <= 0 {
		return nil
	}
	t.resampleFrame.SetNbSamples(nb)
	_ = t.resampleFrame.AllocBuffer(0)
	if t.resampleCtx.ConvertFrame(t.frame, t.resampleFrame) != nil {
		return nil
	}
	_, _ = t.fifo.Write(t.resampleFrame)
	return t.processFifo(false)
}

func (t *Transcoder) processFifo(drain bool) error {
	for {
		sz := frameLength
		if t.fifo.Size() < sz {
			if !drain || t.fifo.Size() == 0 {
				return nil
			}
			sz = t.fifo.Size()
		}
		t.resampleFrame.Unref()
		t.resampleFrame.SetNbSamples(sz)
		t.resampleFrame.SetChannelLayout(t.encoderCtx.ChannelLayout())
		t.resampleFrame.SetSampleFormat(t.encoderCtx.SampleFormat())
		t.resampleFrame.SetSampleRate(t.encoderCtx.SampleRate())
		_ = t.resampleFrame.AllocBuffer(0)
		_, _ = t.fifo.Read(t.resampleFrame)

		if t.volume != nil {
			if vol := t.volume.Load(); vol != 100 {
				data, _ := t.resampleFrame.Data().Bytes(1)
				limit := min(sz*4, len(data))
				scalePCM(data[:limit], vol)
				_ = t.resampleFrame.Data().SetBytes(data, 1)
			}
		}

		t.resampleFrame.SetPts(atomic.LoadInt64(&t.pts))
		atomic.AddInt64(&t.pts, int64(sz))
		if err := t.encoderCtx.SendFrame(t.resampleFrame); err != nil {
			return err
		}
		t.receivePackets()
	}
}

func (t *Transcoder) receivePackets() {
	for {
		t.packet.Unref()
		if t.encoderCtx.ReceivePacket(t.packet) != nil {
			return
		}
		if t.onFrame != nil {
			d := t.packet.Data()
			fd := make([]byte, len(d))
			copy(fd, d)
			t.onFrame(fd)
		}
	}
}

// scalePCM scales interleaved little-endian s16 samples by vol percent,
// clamping at the sample range.
func scalePCM(data []byte, vol int32) {
	for i := 0; i+1 < len(data); i += 2 {
		sample := int16(data[i]) | int16(data[i+1])<<8
		scaled := int64(sample) * int64(vol) / 100
		if scaled > 32767 {
			scaled = 32767
		} else if scaled < -32768 {
			scaled = -32768
		}
		data[i] = byte(scaled)
		data[i+1] = byte(scaled >> 8)
	}
}

func (t *Transcoder) Close() {
	if t.resampleCtx != nil {
		t.resampleCtx.Free()
	}
	if t.resampleFrame != nil {
		t.resampleFrame.Free()
	}
	if t.packet != nil {
		t.packet.Free()
	}
	if t.frame != nil {
		t.frame.Free()
	}
	if t.decoderCtx != nil {
		t.decoderCtx.Free()
	}
	if t.encoderCtx != nil {
		t.encoderCtx.Free()
	}
	if t.inputCtx != nil {
		t.inputCtx.CloseInput()
		t.inputCtx.Free()
	}
}
