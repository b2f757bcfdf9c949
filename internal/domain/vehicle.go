package domain

// VehicleType is the vehicle classification required by the upstream fee APIs.
type VehicleType int

const (
	VehicleUnknown VehicleType = iota
	VehicleCar
	VehicleMotorcycle
)

// Code returns the upstream path code ("C" or "M").
func (v VehicleType) Code() string {
	switch v {
	case VehicleCar:
		return "C"
	case VehicleMotorcycle:
		return "M"
	default:
		return ""
	}
}

func (v VehicleType) String() string {
	switch v {
	case VehicleCar:
		return "car"
	case VehicleMotorcycle:
		return "motorcycle"
	default:
		return "unknown"
	}
}

// ParseVehicleCode maps an upstream code back to a VehicleType.
func ParseVehicleCode(code string) (VehicleType, bool) {
	switch code {
	case "C":
		return VehicleCar, true
	case "M":
		return VehicleMotorcycle, true
	default:
		return VehicleUnknown, false
	}
}
