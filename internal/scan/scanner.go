// Package scan captures voucher codes from a camera feed, an uploaded image or
// manual entry. A Scanner delivers at most one code and must be closed.
package scan

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// ManualCode is delivered when the user chooses manual entry.
const ManualCode = "MANUAL-VOUCHER-ENTRY"

// NoCodeMessage is the inline error shown after an upload without a QR code.
const NoCodeMessage = "No QR code found in this image."

// VibrateDuration is the haptic pulse on detection.
const VibrateDuration = 200 * time.Millisecond

// ErrClosed is returned by operations on a closed Scanner.
var ErrClosed = errors.New("scanner closed")

// State is the scanner lifecycle position.
type State int

const (
	Idle State = iota
	PermissionPending
	Scanning
	// Fallback means no camera: upload and manual entry only.
	Fallback
	ImageProcessing
	Detected
	Closed
)

var stateNames = [...]string{"idle", "permission-pending", "scanning", "fallback", "image-processing", "detected", "closed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Options configures a Scanner. Zero values take the defaults noted.
type Options struct {
	// Camera may be nil, which behaves like a denied permission.
	Camera  Camera
	Decoder Decoder // NewQRDecoder()
	Haptics Haptics // NopHaptics
	Clock   clockwork.Clock
	Logger  *zap.Logger

	Constraints     Constraints   // RearCamera()
	FrameRate       int           // 60
	ConfirmDelay    time.Duration // 800ms
	ErrorClearDelay time.Duration // 3s

	// NewPacer overrides the frame pacer, mostly for tests.
	NewPacer func(clock clockwork.Clock, fps int) Pacer
}

// Scanner runs one capture session.
type Scanner struct {
	opts   Options
	raster *Raster

	mu         sync.Mutex
	state      State
	fallback   bool
	detected   bool
	processing bool
	errMsg     string
	attempts   int
	stream     Stream
	pacer      Pacer
	cancel     context.CancelFunc
	done       chan struct{}
	confirm    clockwork.Timer
	errClear   clockwork.Timer

	result    chan string
	closeOnce sync.Once
}

// New creates an idle Scanner.
func New(opts Options) *Scanner {
	if opts.Decoder == nil {
		opts.Decoder = NewQRDecoder()
	}
	if opts.Haptics == nil {
		opts.Haptics = NopHaptics{}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Constraints == (Constraints{}) {
		opts.Constraints = RearCamera()
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = 60
	}
	if opts.ConfirmDelay <= 0 {
		opts.ConfirmDelay = 800 * time.Millisecond
	}
	if opts.ErrorClearDelay <= 0 {
		opts.ErrorClearDelay = 3 * time.Second
	}
	if opts.NewPacer == nil {
		opts.NewPacer = NewClockPacer
	}
	return &Scanner{
		opts:   opts,
		raster: NewRaster(opts.Constraints.Width, opts.Constraints.Height),
		result: make(chan string, 1),
	}
}

// Start requests the camera and, if granted, begins the detection loop.
// A denied or missing camera is not an error: the scanner moves to Fallback.
func (s *Scanner) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Idle {
		st := s.state
		s.mu.Unlock()
		if st == Closed {
			return ErrClosed
		}
		return fmt.Errorf("scanner already started (%s)", st)
	}
	s.state = PermissionPending
	s.mu.Unlock()

	var stream Stream
	err := ErrPermissionDenied
	if s.opts.Camera != nil {
		stream, err = s.opts.Camera.Open(ctx, s.opts.Constraints)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		// Closed while the permission prompt was up.
		if stream != nil {
			stream.Stop()
		}
		return ErrClosed
	}
	if err != nil {
		s.opts.Logger.Info("camera unavailable, falling back", zap.Error(err))
		s.fallback = true
		if !s.detected && !s.processing {
			s.state = Fallback
		}
		return nil
	}

	s.stream = stream
	if s.detected {
		// A code arrived while the prompt was up; hold the stream until Close.
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	s.pacer = s.opts.NewPacer(s.opts.Clock, s.opts.FrameRate)
	s.cancel = cancel
	s.done = make(chan struct{})
	if !s.processing {
		s.state = Scanning
	}
	go s.loop(loopCtx, s.pacer, stream, s.done)
	return nil
}

func (s *Scanner) loop(ctx context.Context, pacer Pacer, stream Stream, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-pacer.Ticks():
			s.tick(stream)
		}
	}
}

func (s *Scanner) tick(stream Stream) {
	s.mu.Lock()
	idle := s.detected || s.processing || s.state != Scanning
	s.mu.Unlock()
	if idle || !stream.Ready() {
		return
	}
	frame, err := stream.Frame()
	if err != nil {
		s.opts.Logger.Debug("frame unavailable", zap.Error(err))
		return
	}
	img := s.raster.Draw(frame)

	s.mu.Lock()
	s.attempts++
	s.mu.Unlock()

	code, err := s.opts.Decoder.Decode(img)
	if err != nil {
		return
	}
	s.detect(code)
}

// detect freezes detection, pulses haptics and schedules delivery after the
// confirmation hold.
func (s *Scanner) detect(code string) {
	s.mu.Lock()
	if s.detected || s.state == Closed {
		s.mu.Unlock()
		return
	}
	s.detected = true
	s.state = Detected
	s.freeze()
	s.confirm = s.opts.Clock.AfterFunc(s.opts.ConfirmDelay, func() { s.deliver(code) })
	s.mu.Unlock()

	s.opts.Logger.Info("voucher code detected")
	s.opts.Haptics.Vibrate(VibrateDuration)
}

// freeze stops scheduling frames. The stream stays open until Close. Caller
// holds s.mu.
func (s *Scanner) freeze() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.pacer != nil {
		s.pacer.Stop()
		s.pacer = nil
	}
}

func (s *Scanner) deliver(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return
	}
	select {
	case s.result <- code:
	default:
	}
}

// Result delivers the captured code, once.
func (s *Scanner) Result() <-chan string {
	return s.result
}

// DecodeImage decodes an uploaded image with the same decoder the camera loop
// uses. On a miss it sets a transient inline error and returns to the previous
// state so scanning can continue.
func (s *Scanner) DecodeImage(r io.Reader) error {
	s.mu.Lock()
	switch {
	case s.state == Closed:
		s.mu.Unlock()
		return ErrClosed
	case s.detected:
		s.mu.Unlock()
		return nil
	case s.processing:
		s.mu.Unlock()
		return errors.New("an image is already being processed")
	}
	prev := s.state
	s.processing = true
	s.state = ImageProcessing
	s.mu.Unlock()

	code, err := s.decodeUpload(r)

	s.mu.Lock()
	s.processing = false
	if s.state == Closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if err != nil {
		switch {
		case s.stream != nil:
			s.state = Scanning
		case s.fallback:
			s.state = Fallback
		default:
			s.state = prev
		}
		s.setError(NoCodeMessage)
		s.mu.Unlock()
		s.opts.Logger.Debug("gallery image has no code", zap.Error(err))
		return err
	}
	s.mu.Unlock()

	s.detect(code)
	return nil
}

func (s *Scanner) decodeUpload(r io.Reader) (string, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoCode, err)
	}
	return s.opts.Decoder.Decode(img)
}

// setError shows msg and schedules it to clear. Caller holds s.mu.
func (s *Scanner) setError(msg string) {
	s.errMsg = msg
	if s.errClear != nil {
		s.errClear.Stop()
	}
	s.errClear = s.opts.Clock.AfterFunc(s.opts.ErrorClearDelay, func() {
		s.mu.Lock()
		if s.errMsg == msg {
			s.errMsg = ""
		}
		s.mu.Unlock()
	})
}

// Manual skips capture and delivers ManualCode immediately.
func (s *Scanner) Manual() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return ErrClosed
	}
	if s.detected {
		return nil
	}
	s.detected = true
	s.state = Detected
	s.freeze()
	select {
	case s.result <- ManualCode:
	default:
	}
	return nil
}

// Close stops the loop, releases the camera and cancels any pending
// confirmation. It is safe to call more than once.
func (s *Scanner) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = Closed
		cancel, done := s.cancel, s.done
		pacer, stream := s.pacer, s.stream
		if s.confirm != nil {
			s.confirm.Stop()
		}
		if s.errClear != nil {
			s.errClear.Stop()
		}
		s.mu.Unlock()

		if cancel != nil {
			cancel()
			<-done
		}
		if pacer != nil {
			pacer.Stop()
		}
		if stream != nil {
			stream.Stop()
		}
		s.opts.Logger.Debug("scanner closed")
	})
}

// State returns the current lifecycle state.
func (s *Scanner) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the inline error message, or "".
func (s *Scanner) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// Attempts returns how many camera frames were handed to the decoder.
func (s *Scanner) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}
