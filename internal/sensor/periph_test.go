package sensor

import (
	"encoding/binary"
	"strings"
	"sync"
	"testing"

	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/physic"
)

// adsRegisters answers ADS1115 register reads: the pointer byte of the last
// write selects the register. The config register reports a finished
// conversion.
type adsRegisters struct {
	mu         sync.Mutex
	pointer    byte
	conversion uint16
}

func (a *adsRegisters) String() string { return "ads-fake" }

func (a *adsRegisters) SetSpeed(physic.Frequency) error { return nil }

func (a *adsRegisters) Tx(addr uint16, w, r []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(w) > 0 {
		a.pointer = w[0]
	}
	if len(r) >= 2 {
		v := a.conversion
		if a.pointer == 0x01 {
			v = 0x8583
		}
		binary.BigEndian.PutUint16(r, v)
	}
	return nil
}

func TestADS1115_Sample(t *testing.T) {
	tests := []struct {
		name       string
		channel    int
		conversion uint16
		wantRaw    int
		wantMux    byte
	}{
		{name: "pulse on AIN0", channel: 0, conversion: 0x1234, wantRaw: 0x1234, wantMux: 0x40},
		{name: "ecg on AIN1", channel: 1, conversion: 0x0800, wantRaw: 0x0800, wantMux: 0x50},
		{name: "AIN3 zero", channel: 3, conversion: 0, wantRaw: 0, wantMux: 0x70},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &i2ctest.Record{Bus: &adsRegisters{conversion: tt.conversion}}

			ads, err := OpenADS1115(rec, 0x48)
			if err != nil {
				t.Fatalf("OpenADS1115() error = %v", err)
			}
			in, err := ads.Input(tt.channel)
			if err != nil {
				t.Fatalf("Input(%d) error = %v", tt.channel, err)
			}

			got, err := in.Sample()
			if err != nil {
				t.Fatalf("Sample() error = %v", err)
			}
			if got != tt.wantRaw {
				t.Errorf("Sample() = %#x, want %#x", got, tt.wantRaw)
			}

			var configWrite *i2ctest.IO
			for i := range rec.Ops {
				if op := &rec.Ops[i]; len(op.W) == 3 && op.W[0] == 0x01 {
					configWrite = op
				}
			}
			if configWrite == nil {
				t.Fatalf("no config register write in %+v", rec.Ops)
			}
			if configWrite.Addr != 0x48 {
				t.Errorf("config write addr = %#x, want 0x48", configWrite.Addr)
			}
			if mux := configWrite.W[1] & 0x70; mux != tt.wantMux {
				t.Errorf("mux bits = %#x, want %#x", mux, tt.wantMux)
			}
		})
	}
}

func TestADS1115_InputOutOfRange(t *testing.T) {
	for _, ch := range []int{-1, 4} {
		rec := &i2ctest.Record{Bus: &adsRegisters{}}
		ads, err := OpenADS1115(rec, 0x48)
		if err != nil {
			t.Fatalf("OpenADS1115() error = %v", err)
		}
		if _, err := ads.Input(ch); err == nil {
			t.Errorf("Input(%d) error = nil, want non-nil", ch)
		}
		if len(ads.pins) != 0 {
			t.Errorf("Input(%d) kept %d pins, want 0", ch, len(ads.pins))
		}
	}
}

// dallasCRC is the 1-Wire CRC8 (x^8 + x^5 + x^4 + 1, reflected).
func dallasCRC(b []byte) byte {
	var crc byte
	for _, x := range b {
		for i := 0; i < 8; i++ {
			mix := (crc ^ x) & 1
			crc >>= 1
			if mix != 0 {
				crc ^= 0x8C
			}
			x >>= 1
		}
	}
	return crc
}

// scratchpad builds a DS18B20 scratchpad at 12-bit resolution holding c.
func scratchpad(c float64) [9]byte {
	raw := int16(c * 16)
	var sp [9]byte
	binary.LittleEndian.PutUint16(sp[0:2], uint16(raw))
	sp[2], sp[3] = 0x4B, 0x46
	sp[4] = 0x7F
	sp[5], sp[6], sp[7] = 0xFF, 0x0C, 0x10
	sp[8] = dallasCRC(sp[:8])
	return sp
}

// w1Bus is a 1-Wire bus with DS18B20s that all hold the same scratchpad.
type w1Bus struct {
	mu         sync.Mutex
	devices    []onewire.Address
	scratchpad [9]byte
	matched    []onewire.Address
}

func (p *w1Bus) String() string { return "w1-fake" }

func (p *w1Bus) Tx(w, r []byte, power onewire.Pullup) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(w) >= 9 && w[0] == 0x55 {
		p.matched = append(p.matched, onewire.Address(binary.LittleEndian.Uint64(w[1:9])))
	}
	if len(w) > 0 && w[len(w)-1] == 0xBE {
		copy(r, p.scratchpad[:])
	}
	return nil
}

func (p *w1Bus) Search(alarmOnly bool) ([]onewire.Address, error) {
	return p.devices, nil
}

const (
	sensorA    onewire.Address = 0x5A0000000A1B2C28
	sensorB    onewire.Address = 0x330000000D0E0F28
	otherChip  onewire.Address = 0x7100000001020310 // DS18S20 family
	otherChip2 onewire.Address = 0x420000000405063B // DS1825 family
)

func TestOpenDS18B20(t *testing.T) {
	tests := []struct {
		name    string
		devices []onewire.Address
		addr    uint64
		want    onewire.Address
		wantErr string
	}{
		{name: "first ds18b20 found", devices: []onewire.Address{otherChip, sensorA, sensorB}, want: sensorA},
		{name: "explicit address", devices: []onewire.Address{sensorA, sensorB}, addr: uint64(sensorB), want: sensorB},
		{name: "no ds18b20 on bus", devices: []onewire.Address{otherChip, otherChip2}, wantErr: "no ds18b20"},
		{name: "empty bus", devices: nil, wantErr: "no ds18b20"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := &w1Bus{devices: tt.devices, scratchpad: scratchpad(36.5)}

			dev, err := OpenDS18B20(bus, tt.addr)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("OpenDS18B20() error = %v, want %q", err, tt.wantErr)
				}
				if len(bus.matched) != 0 {
					t.Errorf("addressed %v without a ds18b20", bus.matched)
				}
				return
			}
			if err != nil {
				t.Fatalf("OpenDS18B20() error = %v", err)
			}
			if dev == nil {
				t.Fatal("OpenDS18B20() returned nil device")
			}
			if len(bus.matched) == 0 || bus.matched[0] != tt.want {
				t.Errorf("matched ROMs = %v, want %v first", bus.matched, tt.want)
			}
		})
	}
}

func TestDS18B20_Celsius(t *testing.T) {
	tests := []struct {
		name string
		c    float64
	}{
		{name: "body temperature", c: 36.5},
		{name: "below freezing", c: -10.125},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := &w1Bus{devices: []onewire.Address{sensorA}, scratchpad: scratchpad(tt.c)}
			dev, err := OpenDS18B20(bus, 0)
			if err != nil {
				t.Fatalf("OpenDS18B20() error = %v", err)
			}

			got, err := dev.Celsius()
			if err != nil {
				t.Fatalf("Celsius() error = %v", err)
			}
			if diff := got - tt.c; diff < -0.001 || diff > 0.001 {
				t.Errorf("Celsius() = %v, want %v", got, tt.c)
			}
		})
	}
}
