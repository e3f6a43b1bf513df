// Package bell rings the physical school bell through a relay on a GPIO pin.
package bell

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"bellboard/internal/config"
	appLog "bellboard/internal/log"
)

// Ringer rings the bell for a period boundary. label is the period that just
// became current.
type Ringer interface {
	Ring(ctx context.Context, label string) error
}

// outPin is the part of gpio.PinOut the relay needs.
type outPin interface {
	Out(l gpio.Level) error
}

// gpioRinger closes the relay for pulse, then opens it again.
type gpioRinger struct {
	pin   outPin
	pulse time.Duration

	mu sync.Mutex
}

// logRinger only logs. Used off-device and when the relay is disabled.
type logRinger struct{}

func NewLogRinger() Ringer { return logRinger{} }

func (logRinger) Ring(_ context.Context, label string) error {
	appLog.Info("bell", "period", label, "relay", false)
	return nil
}

// NewGPIORinger opens the named pin through periph. It fails off Linux, when
// the host drivers cannot load, or when the pin does not exist.
func NewGPIORinger(pinName string, pulse time.Duration) (Ringer, error) {
	if runtime.GOOS != "linux" {
		return nil, errors.New("bell: gpio unavailable on this platform")
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("bell: host init: %w", err)
	}
	p := gpioreg.ByName(pinName)
	if p == nil {
		return nil, fmt.Errorf("bell: no gpio pin %q", pinName)
	}
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("bell: pin %s: %w", pinName, err)
	}
	return newPinRinger(p, pulse), nil
}

func newPinRinger(p outPin, pulse time.Duration) *gpioRinger {
	return &gpioRinger{pin: p, pulse: pulse}
}

func (r *gpioRinger) Ring(ctx context.Context, label string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.pin.Out(gpio.High); err != nil {
		return fmt.Errorf("bell: relay on: %w", err)
	}

	t := time.NewTimer(r.pulse)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}

	// Always release the relay, even when cancelled.
	if err := r.pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("bell: relay off: %w", err)
	}
	appLog.Info("bell", "period", label, "relay", true, "pulse_ms", r.pulse.Milliseconds())
	return ctx.Err()
}

// DefaultRinger returns the relay ringer when it is enabled and the pin opens,
// otherwise the logging one.
func DefaultRinger(cfg config.BellRelay) Ringer {
	if !cfg.Enabled {
		return NewLogRinger()
	}
	r, err := NewGPIORinger(cfg.Pin, time.Duration(cfg.PulseMillis)*time.Millisecond)
	if err != nil {
		appLog.Error("bell relay unavailable, logging bells instead", err, "pin", cfg.Pin)
		return NewLogRinger()
	}
	return r
}
