package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"
)

// RateMeter keeps a smoothed transfer rate.
type RateMeter struct {
	mu             sync.Mutex
	pending        int64
	lastUpdateTime time.Time
	lastSpeed      float64
}

// NewRateMeter creates a meter starting now.
func NewRateMeter() *RateMeter {
	return &RateMeter{lastUpdateTime: time.Now()}
}

// Record adds n bytes and refreshes the estimate every 500ms.
func (m *RateMeter) Record(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending += n
	elapsed := time.Since(m.lastUpdateTime)
	if elapsed < 500*time.Millisecond {
		return
	}
	m.update(elapsed)
}

func (m *RateMeter) update(elapsed time.Duration) {
	if elapsed <= 0 {
		return
	}
	current := float64(m.pending) / elapsed.Seconds()

	// Exponential moving average to keep the display steady.
	if m.lastSpeed > 0 {
		m.lastSpeed = m.lastSpeed*0.7 + current*0.3
	} else {
		m.lastSpeed = current
	}

	m.pending = 0
	m.lastUpdateTime = time.Now()
}

// Speed returns the current estimate in bytes per second.
func (m *RateMeter) Speed() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSpeed
}

// FormatSize formats bytes to human readable string
func FormatSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// FormatSpeed formats speed to human readable string
func FormatSpeed(bytesPerSecond float64) string {
	const (
		KB = 1024.0
		MB = KB * 1024
	)

	switch {
	case bytesPerSecond >= MB:
		return fmt.Sprintf("%.2f MB/s", bytesPerSecond/MB)
	case bytesPerSecond >= KB:
		return fmt.Sprintf("%.2f KB/s", bytesPerSecond/KB)
	default:
		return fmt.Sprintf("%.0f B/s", bytesPerSecond)
	}
}

// FormatTimeDuration formats duration to human readable string
func FormatTimeDuration(d time.Duration) string {
	seconds := int(d.Seconds()) % 60
	minutes := int(d.Minutes()) % 60
	hours := int(d.Hours())

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// TruncateString shortens s to at most limit runes, marking the cut with "...".
func TruncateString(s string, limit int) string {
	if limit <= 3 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-3]) + "..."
}

// GetUniqueFilename returns filename, or the first "name (n).ext" that does
// not exist yet.
func GetUniqueFilename(filename string) string {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return filename
	}

	ext := filepath.Ext(filename)
	base := filename[:len(filename)-len(ext)]

	for counter := 1; ; counter++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, counter, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
