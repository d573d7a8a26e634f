// OpenHardwareMonitor Sensor class: temperature sensors in the layout the
// OpenHardwareMonitor helper publishes on Windows.
// Uses gopsutil host sensors; readings outside a plausible range are dropped.
package collector

import (
	"context"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/sectionagent/internal/wmi"
)

// minValidTemp is the minimum temperature (°C) considered valid.
const minValidTemp = 0.0

// maxValidTemp is the maximum temperature (°C) considered valid.
// Readings above this are likely sensor errors.
const maxValidTemp = 150.0

// SensorCollector serves Root\OpenHardwareMonitor Sensor.
type SensorCollector struct {
	logger *zap.Logger
}

// NewSensorCollector creates a new sensor class.
func NewSensorCollector(logger *zap.Logger) *SensorCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SensorCollector{logger: logger}
}

func (c *SensorCollector) Namespace() string { return NamespaceOHM }

func (c *SensorCollector) Name() string { return "Sensor" }

// Collect returns one instance per valid temperature reading with the columns
// Index, Name, Parent, SensorType, Value. gopsutil may return partial results
// together with warnings; those are used as long as anything was read.
func (c *SensorCollector) Collect(ctx context.Context) ([]wmi.Instance, error) {
	temps, err := host.SensorsTemperaturesWithContext(ctx)
	if err != nil {
		if len(temps) == 0 {
			return nil, err
		}
		c.logger.Debug("Partial sensor read", zap.Error(err))
	}

	var instances []wmi.Instance
	for _, t := range temps {
		if !isValidTemperature(t.Temperature) {
			continue
		}
		instances = append(instances, wmi.Instance{
			prop("Index", i64(int64(len(instances)))),
			prop("Name", t.SensorKey),
			prop("Parent", sensorParent(t.SensorKey)),
			prop("SensorType", "Temperature"),
			prop("Value", f64(t.Temperature)),
		})
	}
	return instances, nil
}

// IsAvailable returns true: always registered; enumerates nothing when the
// host exposes no sensors.
func (c *SensorCollector) IsAvailable() bool { return true }

// sensorParent derives a hardware path from a sensor key such as
// "coretemp_core_0_input" → "/coretemp".
func sensorParent(sensorKey string) string {
	chip := sensorKey
	if i := strings.IndexByte(sensorKey, '_'); i > 0 {
		chip = sensorKey[:i]
	}
	return "/" + strings.ToLower(chip)
}

// isValidTemperature returns true if the temperature is within a plausible range.
func isValidTemperature(temp float64) bool {
	return temp > minValidTemp && temp <= maxValidTemp
}
