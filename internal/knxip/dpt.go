package knxip

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// KNX Datapoint Type encoding constants.
const (
	// dpt5MaxValue is the maximum raw value for DPT5 (1-byte unsigned).
	dpt5MaxValue = 255

	// dpt5AngleMax is the maximum angle in degrees for DPT5.003.
	dpt5AngleMax = 360

	// dpt9MaxExponent is the maximum exponent for DPT9 2-byte float.
	dpt9MaxExponent = 15

	// dpt9MantissaMask is the mask for the 11 mantissa bits of DPT9.
	dpt9MantissaMask = 0x07FF

	// dpt9MinMantissa and dpt9MaxMantissa bound the signed 12-bit mantissa.
	dpt9MinMantissa = -2048
	dpt9MaxMantissa = 2047

	// dpt9Invalid is the reserved "invalid data" pattern of DPT9.
	dpt9Invalid = 0x7FFF

	// dpt9Min and dpt9Max are the representable range of DPT9.
	dpt9Min = -671088.64
	dpt9Max = 670760.96

	// dpt11CenturyPivot splits the 2-digit year: below is 20xx, above 19xx.
	dpt11CenturyPivot = 90

	// dpt16Length is the fixed length of a DPT16 string.
	dpt16Length = 14

	// dpt17MaxScene is the maximum scene number for DPT17/18.
	dpt17MaxScene = 63

	// dpt17SceneMask is the mask for extracting scene number.
	dpt17SceneMask = 0x3F

	// dptRGBBytes is the number of bytes for DPT232 RGB colour.
	dptRGBBytes = 3

	// byteShift is the bit shift for byte extraction.
	byteShift = 8
)

// DPT represents a KNX Datapoint Type identifier.
//
// Format: "major.minor" (e.g., "1.001", "9.001")
type DPT string

// Common DPT identifiers.
const (
	DPTSwitch         DPT = "1.001"
	DPTBool           DPT = "1.002"
	DPTSwitchControl  DPT = "2.001"
	DPTDimmingControl DPT = "3.007"
	DPTBlindControl   DPT = "3.008"
	DPTPercentage     DPT = "5.001"
	DPTAngle          DPT = "5.003"
	DPTValue1Ucount   DPT = "5.010"
	DPTValue1Count    DPT = "6.010"
	DPTValue2Ucount   DPT = "7.001"
	DPTValue2Count    DPT = "8.001"
	DPTTemperature    DPT = "9.001"
	DPTLux            DPT = "9.004"
	DPTHumidity       DPT = "9.007"
	DPTTimeOfDay      DPT = "10.001"
	DPTDate           DPT = "11.001"
	DPTValue4Ucount   DPT = "12.001"
	DPTValue4Count    DPT = "13.001"
	DPTFloat4         DPT = "14.000"
	DPTString         DPT = "16.001"
	DPTSceneNumber    DPT = "17.001"
	DPTSceneControl   DPT = "18.001"
	DPTColourRGB      DPT = "232.600"
)

func needBytes(name string, data []byte, n int) error {
	if len(data) < n {
		return fmt.Errorf("%w: %s requires %d bytes, got %d", ErrMalformedPayload, name, n, len(data))
	}
	return nil
}

// =============================================================================
// 1-byte and smaller
// =============================================================================

// EncodeDPT1 encodes a boolean value to 1-bit KNX format.
func EncodeDPT1(value bool) []byte {
	if value {
		return []byte{0x01}
	}
	return []byte{0x00}
}

// DecodeDPT1 decodes a 1-bit KNX value to boolean.
func DecodeDPT1(data []byte) (bool, error) {
	if err := needBytes("DPT1", data, 1); err != nil {
		return false, err
	}
	return (data[0] & 0x01) != 0, nil
}

// EncodeDPT2 encodes a 2-bit control value (control bit + value bit).
//
// Only the low 2 bits of v are used.
func EncodeDPT2(v uint8) []byte {
	return []byte{v & 0x03}
}

// DecodeDPT2 decodes a 2-bit control value.
func DecodeDPT2(data []byte) (uint8, error) {
	if err := needBytes("DPT2", data, 1); err != nil {
		return 0, err
	}
	return data[0] & 0x03, nil
}

// EncodeDPT3Raw encodes a raw 4-bit value. Only the low 4 bits of v are used.
func EncodeDPT3Raw(v uint8) []byte {
	return []byte{v & 0x0F}
}

// DecodeDPT3Raw decodes a raw 4-bit value.
func DecodeDPT3Raw(data []byte) (uint8, error) {
	if err := needBytes("DPT3", data, 1); err != nil {
		return 0, err
	}
	return data[0] & 0x0F, nil
}

// EncodeDPT3 encodes a dimming/blind control value.
//
// Parameters:
//   - increase: True for increase/up, false for decrease/down
//   - steps: Number of steps (0-7, where 0 means stop)
func EncodeDPT3(increase bool, steps uint8) []byte {
	var value byte
	if increase {
		value = 0x08 // Bit 3 = direction (1=increase)
	}
	value |= (steps & 0x07)
	return []byte{value}
}

// DecodeDPT3 decodes a dimming/blind control value.
func DecodeDPT3(data []byte) (increase bool, steps uint8, err error) {
	if err := needBytes("DPT3", data, 1); err != nil {
		return false, 0, err
	}
	increase = (data[0] & 0x08) != 0
	steps = data[0] & 0x07
	return increase, steps, nil
}

// EncodeDPT5 encodes an unsigned 8-bit value.
func EncodeDPT5(v uint8) []byte {
	return []byte{v}
}

// DecodeDPT5 decodes an unsigned 8-bit value.
func DecodeDPT5(data []byte) (uint8, error) {
	if err := needBytes("DPT5", data, 1); err != nil {
		return 0, err
	}
	return data[0], nil
}

// EncodeDPT5Percent encodes a percentage (0-100) scaled to 0-255.
//
// Values outside 0-100 are clamped.
func EncodeDPT5Percent(percent float64) []byte {
	if percent < 0 {
		percent = 0
	} else if percent > 100 {
		percent = 100
	}
	return []byte{uint8(math.Round(percent * dpt5MaxValue / 100))}
}

// DecodeDPT5Percent decodes a 1-byte value scaled 0-255 to a percentage.
func DecodeDPT5Percent(data []byte) (float64, error) {
	if err := needBytes("DPT5", data, 1); err != nil {
		return 0, err
	}
	return float64(data[0]) * 100 / dpt5MaxValue, nil
}

// EncodeDPT5Angle encodes an angle (0-360) scaled to 0-255.
func EncodeDPT5Angle(angle float64) []byte {
	if angle < 0 {
		angle = 0
	} else if angle > dpt5AngleMax {
		angle = dpt5AngleMax
	}
	return []byte{uint8(math.Round(angle * dpt5MaxValue / dpt5AngleMax))}
}

// DecodeDPT5Angle decodes a 1-byte value scaled 0-255 to an angle.
func DecodeDPT5Angle(data []byte) (float64, error) {
	if err := needBytes("DPT5 angle", data, 1); err != nil {
		return 0, err
	}
	return float64(data[0]) * dpt5AngleMax / dpt5MaxValue, nil
}

// EncodeDPT6 encodes a signed 8-bit value (two's complement).
func EncodeDPT6(v int8) []byte {
	return []byte{byte(v)}
}

// DecodeDPT6 decodes a signed 8-bit value.
func DecodeDPT6(data []byte) (int8, error) {
	if err := needBytes("DPT6", data, 1); err != nil {
		return 0, err
	}
	return int8(data[0]), nil //nolint:gosec // two's complement reinterpretation
}

// EncodeDPT17 encodes a scene number (0-63).
func EncodeDPT17(scene uint8) ([]byte, error) {
	if scene > dpt17MaxScene {
		return nil, fmt.Errorf("%w: DPT17 scene must be 0-%d, got %d", ErrEncodingFailed, dpt17MaxScene, scene)
	}
	return []byte{scene & dpt17SceneMask}, nil
}

// DecodeDPT17 decodes a scene number.
func DecodeDPT17(data []byte) (uint8, error) {
	if err := needBytes("DPT17", data, 1); err != nil {
		return 0, err
	}
	return data[0] & dpt17SceneMask, nil
}

// EncodeDPT18 encodes a scene control value (scene + learn bit).
func EncodeDPT18(scene uint8, learn bool) ([]byte, error) {
	if scene > dpt17MaxScene {
		return nil, fmt.Errorf("%w: DPT18 scene must be 0-%d, got %d", ErrEncodingFailed, dpt17MaxScene, scene)
	}
	value := scene & dpt17SceneMask
	if learn {
		value |= 0x80
	}
	return []byte{value}, nil
}

// DecodeDPT18 decodes a scene control value.
func DecodeDPT18(data []byte) (scene uint8, learn bool, err error) {
	if err := needBytes("DPT18", data, 1); err != nil {
		return 0, false, err
	}
	return data[0] & dpt17SceneMask, (data[0] & 0x80) != 0, nil
}

// =============================================================================
// 2-byte
// =============================================================================

// EncodeDPT7 encodes an unsigned 16-bit value, big-endian.
func EncodeDPT7(v uint16) []byte {
	return binary.BigEndian.AppendUint16(nil, v)
}

// DecodeDPT7 decodes an unsigned 16-bit value.
func DecodeDPT7(data []byte) (uint16, error) {
	if err := needBytes("DPT7", data, 2); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(data[:2]), nil
}

// EncodeDPT8 encodes a signed 16-bit value, big-endian two's complement.
func EncodeDPT8(v int16) []byte {
	return binary.BigEndian.AppendUint16(nil, uint16(v)) //nolint:gosec // two's complement reinterpretation
}

// DecodeDPT8 decodes a signed 16-bit value.
func DecodeDPT8(data []byte) (int16, error) {
	if err := needBytes("DPT8", data, 2); err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(data[:2])), nil //nolint:gosec // two's complement reinterpretation
}

// EncodeDPT9 encodes a value to KNX 2-byte floating point.
//
// KNX 2-byte float format:
//
//	Byte 0: MEEE EMMM (Mantissa sign, Exponent, Mantissa high)
//	Byte 1: MMMM MMMM (Mantissa low)
//
// Value = 0.01 × Mantissa × 2^Exponent, Mantissa a signed 12-bit integer.
//
// Rounding: the mantissa for exponent e is round(value×100 / 2^e), half away
// from zero, and the smallest exponent whose mantissa lies in [-2048, 2047]
// is chosen. The result is within half an encoding step (0.005 × 2^e) of the
// input. Values that would produce the reserved pattern 0x7FFF are rejected.
func EncodeDPT9(value float64) ([]byte, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < dpt9Min || value > dpt9Max {
		return nil, fmt.Errorf("%w: DPT9 value out of range: %v (valid: %.2f to %.2f)", ErrEncodingFailed, value, dpt9Min, dpt9Max)
	}

	scaled := value * 100
	for exp := 0; exp <= dpt9MaxExponent; exp++ {
		m := math.Round(scaled / float64(int(1)<<exp))
		if m < dpt9MinMantissa || m > dpt9MaxMantissa {
			continue
		}

		mantissa := int16(m)
		var raw uint16
		if mantissa < 0 {
			raw = 0x8000
		}
		raw |= uint16(exp)<<11 | uint16(mantissa)&dpt9MantissaMask //nolint:gosec // exp ≤ 15, mantissa masked
		if raw == dpt9Invalid {
			return nil, fmt.Errorf("%w: DPT9 value %v encodes to the reserved invalid pattern", ErrEncodingFailed, value)
		}
		return []byte{byte(raw >> byteShift), byte(raw)}, nil
	}

	return nil, fmt.Errorf("%w: DPT9 exponent overflow for value %v", ErrEncodingFailed, value)
}

// DecodeDPT9 decodes a KNX 2-byte floating point value.
func DecodeDPT9(data []byte) (float64, error) {
	if err := needBytes("DPT9", data, 2); err != nil {
		return 0, err
	}

	raw := binary.BigEndian.Uint16(data[:2])
	if raw == dpt9Invalid {
		return 0, fmt.Errorf("%w: DPT9 invalid value 0x7FFF (sensor error or not available)", ErrMalformedPayload)
	}

	exp := (raw >> 11) & 0x0F
	mantissa := int16(raw & dpt9MantissaMask) //nolint:gosec // 11-bit value fits in int16
	if raw&0x8000 != 0 {
		mantissa |= -0x800 // sign extend
	}

	return float64(mantissa) * 0.01 * float64(int(1)<<exp), nil
}

// DPT9Step returns the encoding step (resolution) DPT9 uses around value.
func DPT9Step(value float64) float64 {
	scaled := value * 100
	for exp := 0; exp <= dpt9MaxExponent; exp++ {
		m := math.Round(scaled / float64(int(1)<<exp))
		if m >= dpt9MinMantissa && m <= dpt9MaxMantissa {
			return 0.01 * float64(int(1)<<exp)
		}
	}
	return 0.01 * float64(int(1)<<dpt9MaxExponent)
}

// =============================================================================
// 3-byte
// =============================================================================

// TimeOfDay is a DPT10 time of day. Weekday is 0 (no day) or 1 (Monday)
// through 7 (Sunday).
type TimeOfDay struct {
	Weekday uint8
	Hours   uint8
	Minutes uint8
	Seconds uint8
}

// EncodeDPT10 encodes a time of day.
//
//	Byte 0: DDDH HHHH (weekday 3 bits, hours 5 bits)
//	Byte 1: 00MM MMMM (minutes)
//	Byte 2: 00SS SSSS (seconds)
func EncodeDPT10(t TimeOfDay) []byte {
	return []byte{
		(t.Weekday&0x07)<<5 | t.Hours&0x1F,
		t.Minutes & 0x3F,
		t.Seconds & 0x3F,
	}
}

// DecodeDPT10 decodes a time of day.
func DecodeDPT10(data []byte) (TimeOfDay, error) {
	if err := needBytes("DPT10", data, 3); err != nil {
		return TimeOfDay{}, err
	}
	return TimeOfDay{
		Weekday: data[0] >> 5,
		Hours:   data[0] & 0x1F,
		Minutes: data[1] & 0x3F,
		Seconds: data[2] & 0x3F,
	}, nil
}

// Date is a DPT11 calendar date with a full year (1990-2089).
type Date struct {
	Day   uint8
	Month uint8
	Year  uint16
}

// EncodeDPT11 encodes a date.
//
//	Byte 0: 000D DDDD (day)
//	Byte 1: 0000 MMMM (month)
//	Byte 2: 0YYY YYYY (year 0-99)
//
// Years 2000-2089 are stored as year-2000, years 1990-1999 as year-1900.
// Devices on the bus decode 0-89 as 20xx and 90-99 as 19xx.
func EncodeDPT11(d Date) ([]byte, error) {
	var y uint16
	switch {
	case d.Year >= 2000 && d.Year < 2000+dpt11CenturyPivot:
		y = d.Year - 2000
	case d.Year >= 1900+dpt11CenturyPivot && d.Year < 2000:
		y = d.Year - 1900
	default:
		return nil, fmt.Errorf("%w: DPT11 year must be 1990-2089, got %d", ErrEncodingFailed, d.Year)
	}
	return []byte{d.Day & 0x1F, d.Month & 0x0F, byte(y)}, nil
}

// DecodeDPT11 decodes a date.
func DecodeDPT11(data []byte) (Date, error) {
	if err := needBytes("DPT11", data, 3); err != nil {
		return Date{}, err
	}
	y := uint16(data[2] & 0x7F)
	if y < dpt11CenturyPivot {
		y += 2000
	} else {
		y += 1900
	}
	return Date{Day: data[0] & 0x1F, Month: data[1] & 0x0F, Year: y}, nil
}

// RGB represents an RGB colour value.
type RGB struct {
	R uint8
	G uint8
	B uint8
}

// EncodeDPT232 encodes an RGB colour to 3-byte format.
func EncodeDPT232(rgb RGB) []byte {
	return []byte{rgb.R, rgb.G, rgb.B}
}

// DecodeDPT232 decodes a 3-byte RGB colour value.
func DecodeDPT232(data []byte) (RGB, error) {
	if err := needBytes("DPT232", data, dptRGBBytes); err != nil {
		return RGB{}, err
	}
	return RGB{R: data[0], G: data[1], B: data[2]}, nil
}

// =============================================================================
// 4-byte
// =============================================================================

// EncodeDPT12 encodes an unsigned 32-bit value, big-endian.
func EncodeDPT12(v uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, v)
}

// DecodeDPT12 decodes an unsigned 32-bit value.
func DecodeDPT12(data []byte) (uint32, error) {
	if err := needBytes("DPT12", data, 4); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(data[:4]), nil
}

// EncodeDPT13 encodes a signed 32-bit value, big-endian two's complement.
func EncodeDPT13(v int32) []byte {
	return binary.BigEndian.AppendUint32(nil, uint32(v)) //nolint:gosec // two's complement reinterpretation
}

// DecodeDPT13 decodes a signed 32-bit value.
func DecodeDPT13(data []byte) (int32, error) {
	if err := needBytes("DPT13", data, 4); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(data[:4])), nil //nolint:gosec // two's complement reinterpretation
}

// EncodeDPT14 encodes an IEEE 754 single precision float, big-endian.
func EncodeDPT14(v float32) []byte {
	return binary.BigEndian.AppendUint32(nil, math.Float32bits(v))
}

// DecodeDPT14 decodes an IEEE 754 single precision float.
func DecodeDPT14(data []byte) (float32, error) {
	if err := needBytes("DPT14", data, 4); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.BigEndian.Uint32(data[:4])), nil
}

// =============================================================================
// 14-byte string
// =============================================================================

// EncodeDPT16 encodes a string as 14 ISO-8859-1 bytes.
//
// Characters outside Latin-1 are replaced with the ASCII substitute 0x1A. Shorter strings are zero
// padded, longer ones truncated.
func EncodeDPT16(s string) []byte {
	out := make([]byte, dpt16Length)
	enc := encoding.ReplaceUnsupported(charmap.ISO8859_1.NewEncoder())
	latin1, err := enc.Bytes([]byte(s))
	if err != nil {
		latin1 = []byte(s)
	}
	copy(out, latin1)
	return out
}

// DecodeDPT16 decodes a 14-byte ISO-8859-1 string, stopping at the first NUL.
func DecodeDPT16(data []byte) (string, error) {
	if err := needBytes("DPT16", data, dpt16Length); err != nil {
		return "", err
	}
	raw := data[:dpt16Length]
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	utf, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("%w: DPT16: %w", ErrMalformedPayload, err)
	}
	return string(utf), nil
}
