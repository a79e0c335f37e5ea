// Package transport carries envelopes between this module and the local
// communicator over UDP.
package transport

// Module classes, features and hardware types announced at registration.
const (
	ClassFCB = "fcb"

	FeatureSendingTelemetry   = "T"
	FeatureReceivingTelemetry = "R"

	HardwareTypeUndefined = 0
	HardwareTypeCPU       = 1
)

// Module describes this process to the communicator.
type Module struct {
	Class             string   `json:"class"`
	ID                string   `json:"id"`
	Key               string   `json:"key"`
	Version           string   `json:"version"`
	Filter            []int    `json:"filter"`
	Features          []string `json:"features"`
	HardwareSerial    string   `json:"hardwareSerial"`
	HardwareType      int      `json:"hardwareType"`
	InstanceTimestamp int64    `json:"instanceTimestamp"`
}

// AddFeature appends f unless already present.
func (m *Module) AddFeature(f string) {
	for _, have := range m.Features {
		if have == f {
			return
		}
	}
	m.Features = append(m.Features, f)
}

// Command is the module ID command body. resend asks the communicator to
// answer with its own module ID message.
func (m Module) Command(resend bool) map[string]any {
	filter := make([]any, len(m.Filter))
	for i, t := range m.Filter {
		filter[i] = t
	}
	features := make([]any, len(m.Features))
	for i, f := range m.Features {
		features[i] = f
	}
	return map[string]any{
		"a": m.ID,
		"b": m.Class,
		"c": filter,
		"d": features,
		"e": m.Key,
		"f": m.HardwareSerial,
		"g": m.HardwareType,
		"v": m.Version,
		"t": m.InstanceTimestamp,
		"z": resend,
	}
}
