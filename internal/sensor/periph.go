package sensor

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/devices/v3/ds18b20"
)

// ds18b20Family is the 1-Wire family code in the low byte of a DS18B20 ROM id.
const ds18b20Family = 0x28

var adsChannels = [...]ads1x15.Channel{
	ads1x15.Channel0,
	ads1x15.Channel1,
	ads1x15.Channel2,
	ads1x15.Channel3,
}

// ADS1115 is the 16-bit ADC the ECG front end (AD8232) and the pulse sensor
// are wired to, one single-ended input each.
type ADS1115 struct {
	dev  *ads1x15.Dev
	pins []ads1x15.PinADC
}

func OpenADS1115(bus i2c.Bus, addr uint16) (*ADS1115, error) {
	dev, err := ads1x15.NewADS1115(bus, &ads1x15.Opts{I2cAddress: addr})
	if err != nil {
		return nil, fmt.Errorf("ads1115 at 0x%02X: %w", addr, err)
	}
	return &ADS1115{dev: dev}, nil
}

// Input returns the single-ended input on channel 0-3.
func (a *ADS1115) Input(channel int) (AnalogInput, error) {
	if channel < 0 || channel >= len(adsChannels) {
		return nil, fmt.Errorf("ads1115: channel %d out of range", channel)
	}
	// 3.3V full scale, sampled well above the tick rate.
	pin, err := a.dev.PinForChannel(adsChannels[channel], 3300*physic.MilliVolt, 100*physic.Hertz, ads1x15.BestQuality)
	if err != nil {
		return nil, fmt.Errorf("ads1115 channel %d: %w", channel, err)
	}
	a.pins = append(a.pins, pin)
	return adcInput{pin: pin}, nil
}

// Halt stops every pin handed out by Input, then the device.
func (a *ADS1115) Halt() error {
	var errs []error
	for _, p := range a.pins {
		errs = append(errs, p.Halt())
	}
	errs = append(errs, a.dev.Halt())
	return errors.Join(errs...)
}

type adcInput struct {
	pin ads1x15.PinADC
}

func (in adcInput) Sample() (int, error) {
	s, err := in.pin.Read()
	if err != nil {
		return 0, err
	}
	return int(s.Raw), nil
}

// DS18B20 is the 1-Wire body temperature probe.
type DS18B20 struct {
	dev *ds18b20.Dev
}

// OpenDS18B20 binds to the probe at addr, or to the first DS18B20 found on the
// bus when addr is zero.
func OpenDS18B20(bus onewire.Bus, addr uint64) (*DS18B20, error) {
	a := onewire.Address(addr)
	if addr == 0 {
		found, err := firstDS18B20(bus)
		if err != nil {
			return nil, err
		}
		a = found
	}
	dev, err := ds18b20.New(bus, a, 12)
	if err != nil {
		return nil, fmt.Errorf("ds18b20 %#016x: %w", uint64(a), err)
	}
	return &DS18B20{dev: dev}, nil
}

func firstDS18B20(bus onewire.Bus) (onewire.Address, error) {
	addrs, err := bus.Search(false)
	if err != nil {
		return 0, fmt.Errorf("onewire search: %w", err)
	}
	for _, a := range addrs {
		if byte(a) == ds18b20Family {
			return a, nil
		}
	}
	return 0, fmt.Errorf("no ds18b20 on %s (%d devices found)", bus, len(addrs))
}

// Celsius starts a conversion and waits for it; LastTemp would be stale.
func (d *DS18B20) Celsius() (float64, error) {
	var e physic.Env
	if err := d.dev.Sense(&e); err != nil {
		return 0, err
	}
	return e.Temperature.Celsius(), nil
}

func (d *DS18B20) Halt() error {
	return d.dev.Halt()
}
