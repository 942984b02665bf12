package scan

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

type fakeStream struct {
	mu      sync.Mutex
	stopped int
}

func (f *fakeStream) Ready() bool { return true }

func (f *fakeStream) Frame() (image.Image, error) {
	return image.NewGray(image.Rect(0, 0, 64, 48)), nil
}

func (f *fakeStream) Stop() {
	f.mu.Lock()
	f.stopped++
	f.mu.Unlock()
}

func (f *fakeStream) stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

type fakeCamera struct {
	stream *fakeStream
	got    *Constraints
}

func (c fakeCamera) Open(ctx context.Context, cons Constraints) (Stream, error) {
	if c.got != nil {
		*c.got = cons
	}
	if c.stream == nil {
		return nil, ErrPermissionDenied
	}
	return c.stream, nil
}

// fakeDecoder reports each call on calls and succeeds on the hitOn-th call.
type fakeDecoder struct {
	mu    sync.Mutex
	n     int
	hitOn int
	code  string
	calls chan int
}

func (d *fakeDecoder) Decode(img image.Image) (string, error) {
	d.mu.Lock()
	d.n++
	n := d.n
	d.mu.Unlock()
	if d.calls != nil {
		d.calls <- n
	}
	if d.hitOn > 0 && n == d.hitOn {
		return d.code, nil
	}
	return "", ErrNoCode
}

func (d *fakeDecoder) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.n
}

type recordHaptics struct {
	pulses []time.Duration
}

func (h *recordHaptics) Vibrate(d time.Duration) { h.pulses = append(h.pulses, d) }

const frame = 100 * time.Millisecond

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func pngOf(t *testing.T, img image.Image) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return &buf
}

func qrImage(t *testing.T, text string) image.Image {
	t.Helper()
	bm, err := qrcode.NewQRCodeWriter().Encode(text, gozxing.BarcodeFormat_QR_CODE, 240, 240, nil)
	if err != nil {
		t.Fatalf("encoding QR: %v", err)
	}
	img := image.NewGray(image.Rect(0, 0, bm.GetWidth(), bm.GetHeight()))
	for y := 0; y < bm.GetHeight(); y++ {
		for x := 0; x < bm.GetWidth(); x++ {
			c := color.Gray{Y: 255}
			if bm.Get(x, y) {
				c = color.Gray{Y: 0}
			}
			img.SetGray(x, y, c)
		}
	}
	return img
}

func blankImage() image.Image {
	img := image.NewGray(image.Rect(0, 0, 200, 200))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}

func TestDetectionFiresOnceAndStopsStream(t *testing.T) {
	ctx := testContext(t)
	clock := clockwork.NewFakeClock()
	stream := &fakeStream{}
	var cons Constraints
	dec := &fakeDecoder{hitOn: 3, code: "8f14e45f-ceea-467a-9af0-fd2b0e4c1a6b", calls: make(chan int, 16)}
	hap := &recordHaptics{}
	s := New(Options{Camera: fakeCamera{stream: stream, got: &cons}, Decoder: dec, Haptics: hap, Clock: clock, FrameRate: 10})

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.State() != Scanning {
		t.Fatalf("state = %v, want scanning", s.State())
	}
	if cons != RearCamera() {
		t.Errorf("constraints = %+v, want rear camera", cons)
	}

	for i := 1; i <= 3; i++ {
		if err := clock.BlockUntilContext(ctx, 1); err != nil {
			t.Fatal(err)
		}
		clock.Advance(frame)
		select {
		case <-dec.calls:
		case <-ctx.Done():
			t.Fatalf("decoder not called on frame %d", i)
		}
	}

	waitFor(t, "detection", func() bool { return s.State() == Detected })
	if s.State() != Detected {
		t.Errorf("state = %v, want detected", s.State())
	}
	select {
	case code := <-s.Result():
		t.Fatalf("code %q delivered before the hold elapsed", code)
	default:
	}

	clock.Advance(800 * time.Millisecond)
	select {
	case code := <-s.Result():
		if code != dec.code {
			t.Errorf("code = %q", code)
		}
	case <-ctx.Done():
		t.Fatal("code not delivered after the hold")
	}

	s.Close()
	s.Close()
	if dec.count() != 3 {
		t.Errorf("decoder called %d times, want 3", dec.count())
	}
	if s.Attempts() != 3 {
		t.Errorf("Attempts = %d, want 3", s.Attempts())
	}
	if stream.stops() != 1 {
		t.Errorf("stream stopped %d times, want 1", stream.stops())
	}
	if len(hap.pulses) != 1 || hap.pulses[0] != VibrateDuration {
		t.Errorf("haptics = %v", hap.pulses)
	}
	if s.State() != Closed {
		t.Errorf("state = %v, want closed", s.State())
	}
}

type countingPacer struct {
	Pacer
	mu      sync.Mutex
	stopped int
}

func (p *countingPacer) Stop() {
	p.mu.Lock()
	p.stopped++
	p.mu.Unlock()
	p.Pacer.Stop()
}

func (p *countingPacer) stops() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

func TestDetectionStopsPacerBeforeClose(t *testing.T) {
	ctx := testContext(t)
	clock := clockwork.NewFakeClock()
	stream := &fakeStream{}
	dec := &fakeDecoder{hitOn: 1, code: "V-7", calls: make(chan int, 16)}
	var pacer *countingPacer
	s := New(Options{
		Camera:    fakeCamera{stream: stream},
		Decoder:   dec,
		Clock:     clock,
		FrameRate: 10,
		NewPacer: func(c clockwork.Clock, fps int) Pacer {
			pacer = &countingPacer{Pacer: NewClockPacer(c, fps)}
			return pacer
		},
	})
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	clock.BlockUntilContext(ctx, 1)
	clock.Advance(frame)
	<-dec.calls
	waitFor(t, "detection", func() bool { return s.State() == Detected })

	if pacer.stops() != 1 {
		t.Errorf("pacer stopped %d times after detection, want 1", pacer.stops())
	}
	if stream.stops() != 0 {
		t.Errorf("stream released during the hold (%d stops)", stream.stops())
	}

	// No frames are scheduled while the confirmation is pending.
	clock.Advance(500 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	if n := dec.count(); n != 1 {
		t.Errorf("decoder called %d times, want 1", n)
	}

	clock.Advance(300 * time.Millisecond)
	select {
	case <-s.Result():
	case <-ctx.Done():
		t.Fatal("code not delivered")
	}
	if stream.stops() != 0 {
		t.Errorf("stream stopped before Close")
	}

	s.Close()
	if pacer.stops() != 1 {
		t.Errorf("pacer stopped %d times in total, want 1", pacer.stops())
	}
	if stream.stops() != 1 {
		t.Errorf("stream stopped %d times, want 1", stream.stops())
	}
}

func TestManualStopsPacer(t *testing.T) {
	ctx := testContext(t)
	clock := clockwork.NewFakeClock()
	var pacer *countingPacer
	s := New(Options{
		Camera:  fakeCamera{stream: &fakeStream{}},
		Decoder: &fakeDecoder{},
		Clock:   clock,
		NewPacer: func(c clockwork.Clock, fps int) Pacer {
			pacer = &countingPacer{Pacer: NewClockPacer(c, fps)}
			return pacer
		},
	})
	defer s.Close()
	s.Start(ctx)

	if err := s.Manual(); err != nil {
		t.Fatal(err)
	}
	if pacer.stops() != 1 {
		t.Errorf("pacer stopped %d times, want 1", pacer.stops())
	}
}

func TestCloseCancelsPendingConfirmation(t *testing.T) {
	ctx := testContext(t)
	clock := clockwork.NewFakeClock()
	stream := &fakeStream{}
	dec := &fakeDecoder{hitOn: 1, code: "V-1", calls: make(chan int, 16)}
	s := New(Options{Camera: fakeCamera{stream: stream}, Decoder: dec, Clock: clock, FrameRate: 10})
	s.Start(ctx)

	clock.BlockUntilContext(ctx, 1)
	clock.Advance(frame)
	<-dec.calls
	waitFor(t, "detection", func() bool { return s.State() == Detected })

	s.Close()
	clock.Advance(time.Second)
	time.Sleep(20 * time.Millisecond)
	select {
	case code := <-s.Result():
		t.Fatalf("code %q delivered after Close", code)
	default:
	}
	if stream.stops() != 1 {
		t.Errorf("stream stopped %d times, want 1", stream.stops())
	}
}

func TestPermissionDeniedFallsBack(t *testing.T) {
	ctx := testContext(t)
	s := New(Options{Camera: fakeCamera{}, Clock: clockwork.NewFakeClock()})
	defer s.Close()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.State() != Fallback {
		t.Fatalf("state = %v, want fallback", s.State())
	}
	if err := s.Start(ctx); err == nil {
		t.Error("second Start should fail")
	}
}

func TestManualEntry(t *testing.T) {
	s := New(Options{Clock: clockwork.NewFakeClock()})
	defer s.Close()
	s.Start(testContext(t))

	if err := s.Manual(); err != nil {
		t.Fatal(err)
	}
	select {
	case code := <-s.Result():
		if code != ManualCode {
			t.Errorf("code = %q, want %q", code, ManualCode)
		}
	default:
		t.Fatal("manual code not delivered immediately")
	}
	if s.State() != Detected {
		t.Errorf("state = %v, want detected", s.State())
	}
}

func TestGalleryMissClearsAndRetries(t *testing.T) {
	ctx := testContext(t)
	clock := clockwork.NewFakeClock()
	s := New(Options{Clock: clock})
	defer s.Close()
	s.Start(ctx)

	err := s.DecodeImage(pngOf(t, blankImage()))
	if !errors.Is(err, ErrNoCode) {
		t.Fatalf("err = %v, want ErrNoCode", err)
	}
	if s.Err() != NoCodeMessage {
		t.Errorf("Err = %q", s.Err())
	}
	if s.State() != Fallback {
		t.Errorf("state = %v, want fallback", s.State())
	}

	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatal(err)
	}
	clock.Advance(3 * time.Second)
	waitFor(t, "inline error to clear", func() bool { return s.Err() == "" })

	if err := s.DecodeImage(pngOf(t, qrImage(t, "LUCKY-VOUCHER-42"))); err != nil {
		t.Fatalf("DecodeImage: %v", err)
	}
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatal(err)
	}
	clock.Advance(800 * time.Millisecond)
	select {
	case code := <-s.Result():
		if code != "LUCKY-VOUCHER-42" {
			t.Errorf("code = %q", code)
		}
	case <-ctx.Done():
		t.Fatal("uploaded code not delivered")
	}
}

func TestGalleryMissReturnsToScanning(t *testing.T) {
	ctx := testContext(t)
	stream := &fakeStream{}
	s := New(Options{Camera: fakeCamera{stream: stream}, Decoder: &fakeDecoder{}, Clock: clockwork.NewFakeClock()})
	defer s.Close()
	s.Start(ctx)

	if err := s.DecodeImage(bytes.NewReader([]byte("not an image"))); err == nil {
		t.Fatal("expected error")
	}
	if s.State() != Scanning {
		t.Errorf("state = %v, want scanning", s.State())
	}
}

func TestDirCameraEndToEnd(t *testing.T) {
	ctx := testContext(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "frame01.png"), pngOf(t, qrImage(t, "abc-123")).Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	clock := clockwork.NewFakeClock()
	s := New(Options{Camera: DirCamera{Dir: dir}, Clock: clock, FrameRate: 10})
	defer s.Close()
	s.Start(ctx)
	if s.State() != Scanning {
		t.Fatalf("state = %v, want scanning", s.State())
	}

	clock.BlockUntilContext(ctx, 1)
	clock.Advance(frame)
	waitFor(t, "detection", func() bool { return s.State() == Detected })
	clock.Advance(800 * time.Millisecond)
	select {
	case code := <-s.Result():
		if code != "abc-123" {
			t.Errorf("code = %q", code)
		}
	case <-ctx.Done():
		t.Fatal("code not delivered")
	}
}

func TestDirCameraEmptyIsDenied(t *testing.T) {
	_, err := DirCamera{Dir: t.TempDir()}.Open(context.Background(), RearCamera())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("err = %v, want ErrPermissionDenied", err)
	}
}

// boundsDecoder records the size of the image it was handed.
type boundsDecoder struct {
	got image.Rectangle
}

func (d *boundsDecoder) Decode(img image.Image) (string, error) {
	d.got = img.Bounds()
	return "PHOTO-1", nil
}

func TestUploadDecodedAtFullResolution(t *testing.T) {
	ctx := testContext(t)
	clock := clockwork.NewFakeClock()
	dec := &boundsDecoder{}
	s := New(Options{Decoder: dec, Clock: clock})
	defer s.Close()
	s.Start(ctx)

	photo := image.NewGray(image.Rect(0, 0, 3000, 4000))
	if err := s.DecodeImage(pngOf(t, photo)); err != nil {
		t.Fatalf("DecodeImage: %v", err)
	}
	if dec.got.Dx() != 3000 || dec.got.Dy() != 4000 {
		t.Errorf("decoder saw %v, want 3000x4000", dec.got)
	}
}

func TestRasterBounds(t *testing.T) {
	r := NewRaster(1280, 720)
	big := r.Draw(image.NewRGBA(image.Rect(0, 0, 2560, 1440)))
	if b := big.Bounds(); b.Dx() != 1280 || b.Dy() != 720 {
		t.Errorf("scaled to %v, want 1280x720", b)
	}
	again := r.Draw(image.NewRGBA(image.Rect(0, 0, 2560, 1440)))
	if again != big {
		t.Error("raster buffer not reused for same-size frames")
	}
	small := r.Draw(image.NewRGBA(image.Rect(0, 0, 300, 200)))
	if b := small.Bounds(); b.Dx() != 300 || b.Dy() != 200 {
		t.Errorf("small frame resized to %v", b)
	}
	tall := r.Draw(image.NewRGBA(image.Rect(0, 0, 720, 1440)))
	if b := tall.Bounds(); b.Dx() != 360 || b.Dy() != 720 {
		t.Errorf("portrait frame = %v, want 360x720", b)
	}
}
