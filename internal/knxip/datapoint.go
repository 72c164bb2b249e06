package knxip

// Datapoint is an encoded value ready to be sent in a telegram.
//
// Compact values (1, 2 and 4 bit types) travel in the low 6 bits of the APCI
// byte instead of as separate payload bytes.
type Datapoint struct {
	Data    []byte
	Compact bool
}

// Bool returns a DPT1 datapoint.
func Bool(v bool) Datapoint {
	return Datapoint{Data: EncodeDPT1(v), Compact: true}
}

// TwoBit returns a DPT2 datapoint.
func TwoBit(v uint8) Datapoint {
	return Datapoint{Data: EncodeDPT2(v), Compact: true}
}

// FourBit returns a DPT3 datapoint from a raw 4-bit value.
func FourBit(v uint8) Datapoint {
	return Datapoint{Data: EncodeDPT3Raw(v), Compact: true}
}

// Uint8 returns a DPT5 datapoint.
func Uint8(v uint8) Datapoint {
	return Datapoint{Data: EncodeDPT5(v)}
}

// Int8 returns a DPT6 datapoint.
func Int8(v int8) Datapoint {
	return Datapoint{Data: EncodeDPT6(v)}
}

// Uint16 returns a DPT7 datapoint.
func Uint16(v uint16) Datapoint {
	return Datapoint{Data: EncodeDPT7(v)}
}

// Int16 returns a DPT8 datapoint.
func Int16(v int16) Datapoint {
	return Datapoint{Data: EncodeDPT8(v)}
}

// Float16 returns a DPT9 datapoint.
func Float16(v float64) (Datapoint, error) {
	data, err := EncodeDPT9(v)
	if err != nil {
		return Datapoint{}, err
	}
	return Datapoint{Data: data}, nil
}

// Time returns a DPT10 datapoint.
func Time(t TimeOfDay) Datapoint {
	return Datapoint{Data: EncodeDPT10(t)}
}

// CalendarDate returns a DPT11 datapoint.
func CalendarDate(d Date) (Datapoint, error) {
	data, err := EncodeDPT11(d)
	if err != nil {
		return Datapoint{}, err
	}
	return Datapoint{Data: data}, nil
}

// Color returns a DPT232 datapoint.
func Color(c RGB) Datapoint {
	return Datapoint{Data: EncodeDPT232(c)}
}

// Uint32 returns a DPT12 datapoint.
func Uint32(v uint32) Datapoint {
	return Datapoint{Data: EncodeDPT12(v)}
}

// Int32 returns a DPT13 datapoint.
func Int32(v int32) Datapoint {
	return Datapoint{Data: EncodeDPT13(v)}
}

// Float32 returns a DPT14 datapoint.
func Float32(v float32) Datapoint {
	return Datapoint{Data: EncodeDPT14(v)}
}

// String14 returns a DPT16 datapoint.
func String14(s string) Datapoint {
	return Datapoint{Data: EncodeDPT16(s)}
}
