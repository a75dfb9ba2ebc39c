package domain

import "fmt"

// Canonical units stored by every sink: Celsius, millimeters, meters per
// second and meters.

// TemperatureUnit is the unit of the temperature-like hourly series.
type TemperatureUnit string

// SpeedUnit is the unit of the wind speed series.
type SpeedUnit string

// LengthUnit is the unit of the precipitation series.
type LengthUnit string

// DistanceUnit is the unit of the visibility series.
type DistanceUnit string

const (
	Fahrenheit TemperatureUnit = "fahrenheit"
	Celsius    TemperatureUnit = "celsius"

	Knots           SpeedUnit = "kn"
	KilometersPerHr SpeedUnit = "km/h"
	MetersPerSecond SpeedUnit = "m/s"
	MilesPerHour    SpeedUnit = "mph"

	Inches      LengthUnit = "inch"
	Millimeters LengthUnit = "mm"

	Feet   DistanceUnit = "ft"
	Meters DistanceUnit = "m"
)

// SourceUnits records the units the source document was produced in.
type SourceUnits struct {
	Temperature   TemperatureUnit
	WindSpeed     SpeedUnit
	Precipitation LengthUnit
	Visibility    DistanceUnit
}

// DefaultSourceUnits is the imperial set requested from the upstream API.
// Empty fields of a SourceUnits fall back to these.
var DefaultSourceUnits = SourceUnits{
	Temperature:   Fahrenheit,
	WindSpeed:     Knots,
	Precipitation: Inches,
	Visibility:    Feet,
}

func (u SourceUnits) withDefaults() SourceUnits {
	if u.Temperature == "" {
		u.Temperature = DefaultSourceUnits.Temperature
	}
	if u.WindSpeed == "" {
		u.WindSpeed = DefaultSourceUnits.WindSpeed
	}
	if u.Precipitation == "" {
		u.Precipitation = DefaultSourceUnits.Precipitation
	}
	if u.Visibility == "" {
		u.Visibility = DefaultSourceUnits.Visibility
	}
	return u
}

func (u SourceUnits) validate() error {
	u = u.withDefaults()
	switch u.Temperature {
	case Fahrenheit, Celsius:
	default:
		return &ValidationError{Series: "units.temperature", Reason: fmt.Sprintf("unsupported unit %q", u.Temperature)}
	}
	switch u.WindSpeed {
	case Knots, KilometersPerHr, MetersPerSecond, MilesPerHour:
	default:
		return &ValidationError{Series: "units.wind_speed", Reason: fmt.Sprintf("unsupported unit %q", u.WindSpeed)}
	}
	switch u.Precipitation {
	case Inches, Millimeters:
	default:
		return &ValidationError{Series: "units.precipitation", Reason: fmt.Sprintf("unsupported unit %q", u.Precipitation)}
	}
	switch u.Visibility {
	case Feet, Meters:
	default:
		return &ValidationError{Series: "units.visibility", Reason: fmt.Sprintf("unsupported unit %q", u.Visibility)}
	}
	return nil
}

// FahrenheitToCelsius converts a temperature from °F to °C.
func FahrenheitToCelsius(f float64) float64 {
	return (f - 32) * 5.0 / 9.0
}

// InchesToMillimeters converts a precipitation length from inches to mm.
func InchesToMillimeters(in float64) float64 {
	return in * 25.4
}

// KnotsToMetersPerSecond converts a wind speed from knots to m/s.
func KnotsToMetersPerSecond(kn float64) float64 {
	return kn * 0.514444
}

// FeetToMeters converts a distance from feet to meters.
func FeetToMeters(ft float64) float64 {
	return ft * 0.3048
}

// converter maps a source value into the canonical unit.
type converter func(float64) float64

func identity(v float64) float64 { return v }

func (u SourceUnits) temperature() converter {
	if u.withDefaults().Temperature == Fahrenheit {
		return FahrenheitToCelsius
	}
	return identity
}

func (u SourceUnits) windSpeed() converter {
	switch u.withDefaults().WindSpeed {
	case Knots:
		return KnotsToMetersPerSecond
	case KilometersPerHr:
		return func(v float64) float64 { return v / 3.6 }
	case MilesPerHour:
		return func(v float64) float64 { return v * 0.44704 }
	default:
		return identity
	}
}

func (u SourceUnits) precipitation() converter {
	if u.withDefaults().Precipitation == Inches {
		return InchesToMillimeters
	}
	return identity
}

func (u SourceUnits) visibility() converter {
	if u.withDefaults().Visibility == Feet {
		return FeetToMeters
	}
	return identity
}
