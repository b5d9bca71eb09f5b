package sys

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
)

// ============================================================================
// V2 Components
// ============================================================================

// NewV2Message builds a ComponentsV2 message with one container holding the
// given text blocks, separated by dividers, followed by optional rows.
func NewV2Message(blocks []string, rows ...discord.ActionRowComponent) discord.MessageCreate {
	return discord.NewMessageCreateV2(v2Container(blocks, rows))
}

// NewV2Update is NewV2Message for editing a deferred response.
func NewV2Update(blocks []string, rows ...discord.ActionRowComponent) discord.MessageUpdate {
	return discord.NewMessageUpdateV2([]discord.LayoutComponent{v2Container(blocks, rows)})
}

func v2Container(blocks []string, rows []discord.ActionRowComponent) discord.ContainerComponent {
	var parts []discord.ContainerSubComponent
	for i, b := range blocks {
		if i > 0 {
			parts = append(parts, discord.NewSeparator(discord.SeparatorSpacingSizeSmall).WithDivider(true))
		}
		parts = append(parts, discord.NewTextDisplay(b))
	}
	for _, r := range rows {
		parts = append(parts, r)
	}
	return discord.NewContainer(parts...)
}

// ============================================================================
// String Utilities
// ============================================================================

// Truncate truncates a string to the specified length with ellipsis at the end.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// TruncateCenter truncates a string keeping both the start and end.
func TruncateCenter(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	k := (maxLen - 3) / 2
	return string(r[:k]) + "..." + string(r[len(r)-k:])
}

// TruncateWithPreserve truncates text while preserving a prefix and suffix.
func TruncateWithPreserve(text string, maxLen int, prefix, suffix string) string {
	rp, rs := []rune(prefix), []rune(suffix)
	fixedLen := len(rp) + len(rs)
	if fixedLen >= maxLen-10 {
		return TruncateCenter(prefix+text+suffix, maxLen)
	}
	return prefix + TruncateCenter(text, maxLen-fixedLen) + suffix
}

// EscapeMarkdown keeps titles from breaking bold and code spans.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

var markdownEscaper = strings.NewReplacer("*", "\\*", "_", "\\_", "`", "'", "~", "\\~", "|", "\\|")

// ============================================================================
// Time Utilities
// ============================================================================

// FormatClock renders d as m:ss, or h:mm:ss past the hour.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	h, m, s := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func FormatDuration(d time.Duration) string {
	h, m, s := int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

var clockPattern = regexp.MustCompile(`^(?:(\d+):)?(\d+):(\d{1,2})$`)
var unitPattern = regexp.MustCompile(`^(\d+)(s|m|h)?$`)

// ParseDuration accepts "90", "90s", "2m", "1:30", "1:02:03" and Go
// durations like "1m30s".
func ParseDuration(duration string) (time.Duration, error) {
	duration = strings.ToLower(strings.TrimSpace(duration))
	if duration == "" || duration == "0" {
		return 0, nil
	}
	if m := clockPattern.FindStringSubmatch(duration); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		sec, _ := strconv.Atoi(m[3])
		if sec >= 60 {
			return 0, fmt.Errorf("invalid format")
		}
		return time.Duration(h)*time.Hour + time.Duration(min)*time.Minute + time.Duration(sec)*time.Second, nil
	}
	if m := unitPattern.FindStringSubmatch(duration); m != nil {
		v, _ := strconv.Atoi(m[1])
		switch m[2] {
		case "m":
			return time.Duration(v) * time.Minute, nil
		case "h":
			return time.Duration(v) * time.Hour, nil
		default:
			return time.Duration(v) * time.Second, nil
		}
	}
	d, err := time.ParseDuration(duration)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid format")
	}
	return d, nil
}

// ProgressBar draws a fixed width bar for elapsed out of total.
func ProgressBar(elapsed, total time.Duration, width int) string {
	if width <= 0 {
		width = 12
	}
	pos := 0
	if total > 0 {
		pos = int(float64(elapsed) / float64(total) * float64(width))
	}
	pos = min(max(pos, 0), width-1)
	return strings.Repeat("▬", pos) + "🔘" + strings.Repeat("▬", width-pos-1)
}
