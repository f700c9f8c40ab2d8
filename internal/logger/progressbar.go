package logger

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// ProgressBar tracks settled flavors out of the flavors queued so far
type ProgressBar struct {
	total       int
	succeeded   int
	failed      int
	width       int
	enableColor bool
	mu          sync.RWMutex
}

// NewProgressBar creates a new progress bar
func NewProgressBar(total, width int, enableColor bool) *ProgressBar {
	if width < 1 {
		width = 10
	}
	return &ProgressBar{
		total:       total,
		width:       width,
		enableColor: enableColor,
	}
}

// AddTotal grows the number of flavors expected to settle
func (pb *ProgressBar) AddTotal(n int) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.total += n
}

// Record counts one settled flavor
func (pb *ProgressBar) Record(succeeded bool) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if succeeded {
		pb.succeeded++
	} else {
		pb.failed++
	}
}

// Current returns the number of settled flavors
func (pb *ProgressBar) Current() int {
	pb.mu.RLock()
	defer pb.mu.RUnlock()
	return pb.succeeded + pb.failed
}

// Total returns the number of flavors expected to settle
func (pb *ProgressBar) Total() int {
	pb.mu.RLock()
	defer pb.mu.RUnlock()
	return pb.total
}

// Percentage returns the progress percentage (0-100)
func (pb *ProgressBar) Percentage() int {
	pb.mu.RLock()
	defer pb.mu.RUnlock()
	return pb.percentage()
}

func (pb *ProgressBar) percentage() int {
	if pb.total == 0 {
		return 0
	}
	perc := ((pb.succeeded + pb.failed) * 100) / pb.total
	if perc > 100 {
		perc = 100
	}
	if perc < 0 {
		perc = 0
	}
	return perc
}

// Render generates the ASCII progress bar string
// Format: "[==========          ] 2/4 (50%)", with ", 1 failed" when any flavor failed
func (pb *ProgressBar) Render() string {
	pb.mu.RLock()
	defer pb.mu.RUnlock()

	perc := pb.percentage()
	filled := (perc * pb.width) / 100

	bar := "[" + strings.Repeat("=", filled) + strings.Repeat(" ", pb.width-filled) + "]"
	result := fmt.Sprintf("%s %d/%d (%d%%)", bar, pb.succeeded+pb.failed, pb.total, perc)
	if pb.failed > 0 {
		result += fmt.Sprintf(", %d failed", pb.failed)
	}

	if !pb.enableColor {
		return result
	}
	switch {
	case pb.failed > 0:
		return color.New(color.FgYellow).Sprint(result)
	case perc < 100:
		return color.New(color.FgCyan).Sprint(result)
	default:
		return color.New(color.FgGreen).Sprint(result)
	}
}
