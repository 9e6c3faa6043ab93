package processors

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/square-key-labs/strawpipe/src/frames"
	"github.com/square-key-labs/strawpipe/src/telemetry"
)

// FrameLogger intercepts every frame passing through it and logs a
// one-line summary, useful as a pipeline tap during development.
type FrameLogger struct {
	*BaseProcessor
	logger            *telemetry.Logger
	ignoredFrameTypes map[reflect.Type]bool
	logDirection      bool
	logFrameDetails   bool
}

// FrameLoggerConfig configures the frame logger.
type FrameLoggerConfig struct {
	// Prefix names the logger's component field, e.g. "Pipeline", "STT".
	Prefix string

	// IgnoredFrameTypes are frame types to skip logging (e.g. high-frequency
	// audio frames).
	IgnoredFrameTypes []frames.Frame

	// LogDirection includes frame direction (upstream/downstream) in logs.
	LogDirection bool

	// LogFrameDetails includes each frame's exported fields in logs.
	LogFrameDetails bool
}

func NewFrameLogger(config FrameLoggerConfig) *FrameLogger {
	if config.Prefix == "" {
		config.Prefix = "Frame"
	}

	fl := &FrameLogger{
		logger:            telemetry.NewLogger(config.Prefix),
		ignoredFrameTypes: make(map[reflect.Type]bool),
		logDirection:      config.LogDirection,
		logFrameDetails:   config.LogFrameDetails,
	}

	for _, frameType := range config.IgnoredFrameTypes {
		fl.ignoredFrameTypes[reflect.TypeOf(frameType)] = true
	}

	fl.BaseProcessor = NewBaseProcessor("FrameLogger:"+config.Prefix, fl)
	return fl
}

func (fl *FrameLogger) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	if frame == nil || reflect.ValueOf(frame).IsNil() {
		fl.logger.Warnf("received nil frame, skipping")
		return nil
	}

	if fl.ignoredFrameTypes[reflect.TypeOf(frame)] {
		return fl.PushFrame(frame, direction)
	}

	fl.logger.Debugf("%s", fl.formatFrameLog(frame, direction))
	return fl.PushFrame(frame, direction)
}

func (fl *FrameLogger) formatFrameLog(frame frames.Frame, direction frames.FrameDirection) string {
	dirSymbol := ""
	if fl.logDirection {
		if direction == frames.Downstream {
			dirSymbol = "-> "
		} else {
			dirSymbol = "<- "
		}
	}

	frameName := frame.Name()
	if !fl.logFrameDetails {
		return fmt.Sprintf("%s%s", dirSymbol, frameName)
	}

	details := fl.extractFrameDetails(frame)
	if details != "" {
		return fmt.Sprintf("%s%s | %s", dirSymbol, frameName, details)
	}
	return fmt.Sprintf("%s%s", dirSymbol, frameName)
}

func (fl *FrameLogger) extractFrameDetails(frame frames.Frame) string {
	v := reflect.ValueOf(frame)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return ""
	}

	t := v.Type()
	skipFields := map[string]bool{
		"Audio": true,
		"Data":  true,
	}

	var details []string
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanInterface() || skipFields[fieldType.Name] {
			continue
		}

		var valueStr string
		switch field.Kind() {
		case reflect.String:
			str := field.String()
			if len(str) > 50 {
				str = str[:50] + "..."
			}
			valueStr = fmt.Sprintf("%s: %q", fieldType.Name, str)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			valueStr = fmt.Sprintf("%s: %d", fieldType.Name, field.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			valueStr = fmt.Sprintf("%s: %d", fieldType.Name, field.Uint())
		case reflect.Float32, reflect.Float64:
			valueStr = fmt.Sprintf("%s: %.2f", fieldType.Name, field.Float())
		case reflect.Bool:
			valueStr = fmt.Sprintf("%s: %t", fieldType.Name, field.Bool())
		case reflect.Slice, reflect.Array:
			valueStr = fmt.Sprintf("%s: [%d items]", fieldType.Name, field.Len())
		default:
			valueStr = fmt.Sprintf("%s: (%s)", fieldType.Name, field.Type().Name())
		}
		details = append(details, valueStr)
	}

	if len(details) == 0 {
		return ""
	}
	return strings.Join(details, ", ")
}
