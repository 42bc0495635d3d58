package shipping

import "strings"

// Courier is the aggregator's (company, type) pair for a shipping method.
type Courier struct {
	Company string
	Type    string
}

var (
	CourierJNT = Courier{Company: "jnt", Type: "ez"}
	CourierJNE = Courier{Company: "jne", Type: "reg"}
)

// ResolveCourier maps a checkout shipping method label to a courier. Only
// J&T and JNE support automatic shipment creation; for any other label ok is
// false.
func ResolveCourier(method string) (Courier, bool) {
	label := strings.ToLower(method)
	switch {
	case strings.Contains(label, "j&t"):
		return CourierJNT, true
	case strings.Contains(label, "jne"):
		return CourierJNE, true
	}
	return Courier{}, false
}
