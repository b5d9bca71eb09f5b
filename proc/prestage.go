package proc

import (
	"context"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/leeineian/jukebox/music"
	"github.com/leeineian/jukebox/sys"
)

// filterChains maps named filters to ffmpeg audio filter expressions.
var filterChains = map[string]string{
	"bassboost": "bass=g=10",
	"nightcore": "atempo=1.06,asetrate=48000*1.25,aresample=48000",
	"vaporwave": "asetrate=48000*0.8,aresample=48000,atempo=0.8",
	"8d":        "apulsator=hz=0.08",
	"vibrato":   "vibrato=f=6.5",
	"tremolo":   "tremolo",
	"earrape":   "acrusher=1:1:64:0:log",
}

// needsPrestage reports whether p requires ffmpeg filtering in front of the
// transcoder.
func needsPrestage(p music.Pipeline) bool {
	return (p.Speed != 0 && p.Speed != 1) || (p.Filter != "" && p.Filter != music.FilterNone)
}

// audioFilter joins the speed and filter expressions for -af.
func audioFilter(p music.Pipeline) string {
	var chain []string
	if p.Speed != 0 && p.Speed != 1 {
		chain = append(chain, "atempo="+strconv.FormatFloat(p.Speed, 'f', -1, 64))
	}
	if f, ok := filterChains[p.Filter]; ok {
		chain = append(chain, f)
	}
	return strings.Join(chain, ",")
}

// ffmpegArgs builds the pre-stage command line. Output is 48kHz stereo s16
// in a matroska container on stdout.
func ffmpegArgs(stream string, p music.Pipeline, proxy string) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	if strings.HasPrefix(stream, "http") {
		args = append(args, "-reconnect", "1", "-reconnect_streamed", "1", "-reconnect_delay_max", "5")
		if proxy != "" {
			args = append(args, "-http_proxy", proxy)
		}
	}
	if p.Offset > 0 {
		args = append(args, "-ss", strconv.FormatFloat(p.Offset.Seconds(), 'f', 3, 64))
	}
	args = append(args, "-i", stream, "-vn")
	if af := audioFilter(p); af != "" {
		args = append(args, "-af", af)
	}
	return append(args, "-ar", "48000", "-ac", "2", "-c:a", "pcm_s16le", "-f", "matroska", "pipe:1")
}

// prestage is a running ffmpeg process whose stdout feeds the transcoder.
type prestage struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

func startPrestage(ctx context.Context, stream string, p music.Pipeline, proxy string) (*prestage, error) {
	af := audioFilter(p)
	sys.LogVoice(sys.MsgVoicePrestageStart, af)

	cmd := exec.CommandContext(ctx, "ffmpeg", ffmpegArgs(stream, p, proxy)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &prestage{cmd: cmd, stdout: stdout}, nil
}

func (p *prestage) Read(b []byte) (int, error) {
	return p.stdout.Read(b)
}

func (p *prestage) Close() {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	_ = p.cmd.Wait()
}
