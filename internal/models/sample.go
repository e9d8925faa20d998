package models

import "time"

// Modality identifies one of the four logger streams
type Modality string

// Modality constants
const (
	ModalityStability Modality = "stability"
	ModalityGPS       Modality = "gps"
	ModalityCAN       Modality = "can"
	ModalityBeacon    Modality = "beacon"
)

// Modalities lists every modality in a stable order
var Modalities = []Modality{ModalityStability, ModalityGPS, ModalityCAN, ModalityBeacon}

// RawSample is the closed set of parsed records. Only the four sample types
// in this file implement it.
type RawSample interface {
	Time() time.Time
	Modality() Modality
	sample()
}

// StabilitySample is one inertial record from the stability logger
type StabilitySample struct {
	Timestamp time.Time `json:"timestamp"`

	// Acceleration (m/s²) and angular rate (°/s) per axis
	AX float64 `json:"ax"`
	AY float64 `json:"ay"`
	AZ float64 `json:"az"`
	GX float64 `json:"gx"`
	GY float64 `json:"gy"`
	GZ float64 `json:"gz"`

	// Orientation angles in degrees
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`

	SI     float64 `json:"si"`      // Stability index 0~1, lower is worse
	AccMag float64 `json:"acc_mag"` // Acceleration magnitude
}

func (s StabilitySample) Time() time.Time { return s.Timestamp }
func (StabilitySample) Modality() Modality { return ModalityStability }
func (StabilitySample) sample() {}

// GPSSample is one fix from the GPS receiver
type GPSSample struct {
	Timestamp  time.Time `json:"timestamp"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Altitude   float64   `json:"altitude"`
	HDOP       float64   `json:"hdop"`
	FixQuality int       `json:"fix_quality"` // 0=invalid, 1=GPS, 2=DGPS
	Satellites int       `json:"satellites"`
	SpeedKmh   float64   `json:"speed_kmh"`
}

func (g GPSSample) Time() time.Time { return g.Timestamp }
func (GPSSample) Modality() Modality { return ModalityGPS }
func (GPSSample) sample() {}

// HasFix reports whether the receiver claimed a fix with usable coordinates
func (g GPSSample) HasFix() bool {
	if g.FixQuality <= 0 {
		return false
	}
	return g.Latitude >= -90 && g.Latitude <= 90 && g.Longitude >= -180 && g.Longitude <= 180
}

// Point returns the fix position
func (g GPSSample) Point() GeoPoint {
	return GeoPoint{Lat: g.Latitude, Lon: g.Longitude}
}

// CANSample is one decoded CAN bus frame
type CANSample struct {
	Timestamp       time.Time `json:"timestamp"`
	EngineRPM       float64   `json:"engine_rpm"`
	VehicleSpeedKmh float64   `json:"vehicle_speed_kmh"`
	FuelRate        float64   `json:"fuel_rate"`
	PedalPosition   float64   `json:"pedal_position"`
}

func (c CANSample) Time() time.Time { return c.Timestamp }
func (CANSample) Modality() Modality { return ModalityCAN }
func (CANSample) sample() {}

// EngineRunning reports whether the engine was turning
func (c CANSample) EngineRunning() bool {
	return c.EngineRPM > 300
}

// BeaconCode is the rotating-beacon state reported by the vehicle
type BeaconCode int

// BeaconCode constants
const (
	BeaconOff        BeaconCode = 0
	BeaconOn         BeaconCode = 1
	BeaconDeparture  BeaconCode = 2
	BeaconArrival    BeaconCode = 3
	BeaconConcluding BeaconCode = 4
	BeaconReturning  BeaconCode = 5
)

// Informative reports whether the code carries operational meaning beyond lights on/off
func (c BeaconCode) Informative() bool {
	return c >= BeaconDeparture && c <= BeaconReturning
}

// BeaconSample is one beacon state record
type BeaconSample struct {
	Timestamp time.Time  `json:"timestamp"`
	Code      BeaconCode `json:"code"`
}

func (b BeaconSample) Time() time.Time { return b.Timestamp }
func (BeaconSample) Modality() Modality { return ModalityBeacon }
func (BeaconSample) sample() {}

// GeoPoint is a WGS-84 coordinate
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}
