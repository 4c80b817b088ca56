package progress

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

const (
	barWidth = 100
	barBlock = "█"
	// Byte counts are always scaled by 1024, whatever the platform's own file
	// size display uses.
	sizeUnit = 1024
)

var sizePrefixes = []string{"", "K", "M", "G"}

// Snapshot is a point-in-time view of one transfer.
type Snapshot struct {
	Percent    int
	Downloaded int64
	Total      int64
	// Speed is in bytes per second.
	Speed float64
}

// Format renders the snapshot, see Format.
func (s Snapshot) Format(showBar bool) string {
	return Format(s.Percent, s.Downloaded, s.Total, s.Speed, showBar)
}

func (s Snapshot) String() string {
	return s.Format(false)
}

// Percent returns the integer completion percentage, clamped to 0..100. An
// empty artifact is complete by definition.
func Percent(downloaded, total int64) int {
	if total <= 0 {
		return 100
	}
	percent := int(100 * downloaded / total)
	return clampPercent(percent)
}

// Format renders a compact progress line such as
//
//	 42%:  1.21GB / 2.88GB @ 10.5MBps
//
// prefixed by a 100 character bar when showBar is set. It has no side effects.
func Format(percent int, downloaded, total int64, speed float64, showBar bool) string {
	percent = clampPercent(percent)
	sTotal := HumanSize(float64(total))
	sDownloaded := HumanSize(float64(downloaded))
	sSpeed := HumanSize(speed)

	snippet := fmt.Sprintf("%3d%%: %*sB / %sB @ %sBps", percent, len(sTotal), sDownloaded, sTotal, sSpeed)
	if !showBar {
		return snippet
	}

	bar := strings.Repeat(barBlock, percent) + strings.Repeat(" ", barWidth-percent)
	return fmt.Sprintf("[%s] %s", bar, snippet)
}

// HumanSize scales size by 1024 up to G and rounds to two decimals.
func HumanSize(size float64) string {
	i := 0
	for size > sizeUnit && i < len(sizePrefixes)-1 {
		i++
		size /= sizeUnit
	}
	return humanize.FtoaWithDigits(size, 2) + sizePrefixes[i]
}

func clampPercent(percent int) int {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}
