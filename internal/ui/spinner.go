package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// Spinner draws a single animated status line until stopped.
type Spinner struct {
	spinner  spinner.Spinner
	interval time.Duration

	mu      sync.Mutex
	message string
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func newSpinner(s spinner.Spinner, interval time.Duration, message string) *Spinner {
	return &Spinner{
		spinner:  s,
		interval: interval,
		message:  message,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// NewSpinner is for local work such as validating or zipping input.
func NewSpinner(message string) *Spinner {
	return newSpinner(spinner.Dot, 80*time.Millisecond, message)
}

// NewConnectionSpinner is for reaching the signaling server.
func NewConnectionSpinner(message string) *Spinner {
	return newSpinner(spinner.Globe, 180*time.Millisecond, message)
}

// NewWaitingSpinner is for waiting on the other peer.
func NewWaitingSpinner(message string) *Spinner {
	return newSpinner(spinner.Points, 100*time.Millisecond, message)
}

func (s *Spinner) Start() {
	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		frames := s.spinner.Frames
		for i := 0; ; i++ {
			s.mu.Lock()
			msg := s.message
			s.mu.Unlock()
			fmt.Fprintf(Out, "\r\033[K%s %s", SpinnerStyle.Render(frames[i%len(frames)]), msg)

			select {
			case <-s.done:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop halts the animation and clears its line. It must follow Start and is
// safe to call more than once.
func (s *Spinner) Stop() {
	s.once.Do(func() {
		close(s.done)
		<-s.stopped
		fmt.Fprint(Out, "\r\033[K")
	})
}

func (s *Spinner) Success(message string) {
	s.Stop()
	PrintSuccess(message)
}

func (s *Spinner) Error(message string) {
	s.Stop()
	PrintError(message)
}

func (s *Spinner) SetMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// RunSpinner starts a spinner and returns its stop function.
func RunSpinner(message string) func() {
	sp := NewSpinner(message)
	sp.Start()
	return sp.Stop
}

func RunConnectionSpinner(message string) func() {
	sp := NewConnectionSpinner(message)
	sp.Start()
	return sp.Stop
}

func RunWaitingSpinner(message string) func() {
	sp := NewWaitingSpinner(message)
	sp.Start()
	return sp.Stop
}
