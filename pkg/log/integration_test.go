package log

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/climakit/eofkit/pkg/errors"
)

// TestLoggerInterface tests the Logger interface implementation
func TestLoggerInterface(t *testing.T) {
	testLogger, buffer := NewTestLogger(LevelDebug)

	testLogger.Debug("debug message", "key1", "value1", "number", 42)
	testLogger.Info("info message", "operation", "test")
	testLogger.Warn("warning message", "warning_code", "TEST_WARNING")

	testErr := fmt.Errorf("test error")
	testLogger.Error("error message", testErr, "error_code", "TEST_ERROR")

	output := buffer.String()
	if output == "" {
		t.Fatal("Expected log output, got empty string")
	}

	for _, msg := range []string{"debug message", "info message", "warning message", "error message"} {
		if !testLogger.ContainsMessage(msg) {
			t.Errorf("%q not found in output", msg)
		}
	}

	if !testLogger.ContainsField("key1", "value1") {
		t.Error("Expected field key1=value1 not found")
	}

	if !testLogger.ContainsField("number", 42.0) { // JSON unmarshaling converts numbers to float64
		t.Error("Expected field number=42 not found")
	}
}

// TestLoggerWith tests the With method for context-aware logging
func TestLoggerWith(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelDebug)

	contextLogger := testLogger.With(
		ModelNameKey, "EOF",
		ComponentKey, "models",
		EstimatorIDKey, "eof-001",
	)

	contextLogger.Info("contextual message", OperationKey, OperationFit)

	if !testLogger.ContainsField(ModelNameKey, "EOF") {
		t.Error("Model name context not found")
	}

	if !testLogger.ContainsField(ComponentKey, "models") {
		t.Error("Component context not found")
	}

	if !testLogger.ContainsField(OperationKey, OperationFit) {
		t.Error("Operation field not found")
	}
}

// TestLoggerEnabled tests the Enabled method
func TestLoggerEnabled(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelInfo)
	ctx := context.Background()

	if !testLogger.Enabled(ctx, LevelInfo) {
		t.Error("Logger should be enabled for Info level")
	}

	if !testLogger.Enabled(ctx, LevelError) {
		t.Error("Logger should be enabled for Error level")
	}

	if testLogger.Enabled(ctx, LevelDebug) {
		t.Error("Logger should not be enabled for Debug level")
	}

	testLogger.Debug("this should not appear")
	testLogger.Info("this should appear")

	if testLogger.ContainsMessage("this should not appear") {
		t.Error("Debug message should not appear when level is Info")
	}

	if !testLogger.ContainsMessage("this should appear") {
		t.Error("Info message should appear when level is Info")
	}
}

// TestDecompositionAttributeKeys tests domain-specific attribute keys
func TestDecompositionAttributeKeys(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelInfo)

	testLogger.Info("Fit completed",
		OperationKey, OperationFit,
		PhaseKey, PhaseDecomposition,
		SamplesKey, 1200,
		FeaturesKey, 4050,
		ValidFeaturesKey, 3978,
		ModesKey, 10,
		RetainedModesKey, 10,
		ModelNameKey, "EOF",
		DurationMsKey, 250,
	)

	entries, err := testLogger.GetLogEntries()
	if err != nil {
		t.Fatalf("Failed to parse log entries: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("Expected 1 log entry, got %d", len(entries))
	}

	entry := entries[0]

	expectedFields := map[string]interface{}{
		OperationKey:     OperationFit,
		PhaseKey:         PhaseDecomposition,
		SamplesKey:       1200.0, // JSON numbers are float64
		FeaturesKey:      4050.0,
		ValidFeaturesKey: 3978.0,
		ModesKey:         10.0,
		ModelNameKey:     "EOF",
		DurationMsKey:    250.0,
	}

	for key, expectedValue := range expectedFields {
		if actualValue, exists := entry[key]; !exists {
			t.Errorf("Expected field %s not found", key)
		} else if actualValue != expectedValue {
			t.Errorf("Field %s: expected %v, got %v", key, expectedValue, actualValue)
		}
	}
}

// TestLoggerProviderIntegration tests the LoggerProvider interface
func TestLoggerProviderIntegration(t *testing.T) {
	provider, buffer := NewTestLoggerProvider(LevelDebug)

	logger := provider.GetLogger()
	logger.Info("provider test message")

	namedLogger := provider.GetLoggerWithName("decomposer")
	namedLogger.Info("named logger message")

	if buffer.String() == "" {
		t.Fatal("Expected log output from provider")
	}

	lines := buffer.String()
	if !strings.Contains(lines, "provider test message") {
		t.Error("Provider test message not found")
	}

	if !strings.Contains(lines, "named logger message") {
		t.Error("Named logger message not found")
	}

	if !strings.Contains(lines, "decomposer") {
		t.Error("Component name not found in named logger output")
	}
}

// TestZerologLogger tests the zerolog-backed Logger implementation
func TestZerologLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, LevelDebug)

	logger.Info("fit started",
		ModelNameKey, "ComplexEOF",
		SamplesKey, 300,
	)

	out := buf.String()
	if !strings.Contains(out, "fit started") {
		t.Errorf("message not found in zerolog output: %s", out)
	}
	if !strings.Contains(out, "ComplexEOF") {
		t.Errorf("model name not found in zerolog output: %s", out)
	}

	buf.Reset()
	child := logger.With(ComponentKey, "hilbert")
	child.Debug("padding applied", PadWidthKey, 150)
	out = buf.String()
	if !strings.Contains(out, "hilbert") || !strings.Contains(out, "padding applied") {
		t.Errorf("contextual fields missing from zerolog output: %s", out)
	}

	if !logger.Enabled(context.Background(), LevelInfo) {
		t.Error("debug-level logger should be enabled for info")
	}

	quiet := NewZerologLogger(&buf, LevelError)
	if quiet.Enabled(context.Background(), LevelDebug) {
		t.Error("error-level logger should not be enabled for debug")
	}
}

// TestZerologWarnSink verifies that library warnings arrive as structured
// zerolog events
func TestZerologWarnSink(t *testing.T) {
	var buf bytes.Buffer
	zl := NewZerologLogger(&buf, LevelDebug)
	InstallZerologWarnSink(zl.zl)
	defer errors.SetZerologWarnFunc(nil)

	errors.Warn(errors.NewTruncatedModesWarning("Decompose", 10, 4))

	out := buf.String()
	if !strings.Contains(out, "TruncatedModesWarning") {
		t.Errorf("warning type not found in sink output: %s", out)
	}
	if !strings.Contains(out, `"requested":10`) {
		t.Errorf("structured warning field not found in sink output: %s", out)
	}

	buf.Reset()
	errors.Warn(errors.NewConvergenceWarning("varimax", 1000, 1e-8, ""))
	out = buf.String()
	if !strings.Contains(out, "varimax") {
		t.Errorf("algorithm field not found in sink output: %s", out)
	}
}

// TestErrorLoggingIntegration tests error logging integration
func TestErrorLoggingIntegration(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelError)

	testErr := fmt.Errorf("decomposition failed")

	testLogger.Error("Fit failed",
		"error", testErr,
		OperationKey, OperationFit,
		ErrorCodeKey, ErrorNonFinite,
		SamplesKey, 100,
		SuggestionKey, "Resolve missing samples before fitting",
	)

	entries, err := testLogger.GetLogEntries()
	if err != nil {
		t.Fatalf("Failed to parse log entries: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("Expected 1 error entry, got %d", len(entries))
	}

	if entries[0]["level"] != "ERROR" {
		t.Error("Expected ERROR level")
	}

	if !testLogger.ContainsField(ErrorCodeKey, ErrorNonFinite) {
		t.Error("Error code not found")
	}

	if !testLogger.ContainsField(SuggestionKey, "Resolve missing samples before fitting") {
		t.Error("Error suggestion not found")
	}
}

// BenchmarkLogging benchmarks logging performance
func BenchmarkLogging(b *testing.B) {
	testLogger, _ := NewTestLogger(LevelInfo)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		testLogger.Info("benchmark message",
			"iteration", i,
			OperationKey, OperationTransform,
			SamplesKey, 1000,
		)
	}
}

// TestSlogLogger tests the slog-backed Logger implementation
func TestSlogLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(&buf, LevelDebug)

	logger.Info("fit started",
		ModelNameKey, "EOF",
		SamplesKey, 120,
	)

	out := buf.String()
	if !strings.Contains(out, "fit started") {
		t.Errorf("message not found in slog output: %s", out)
	}
	if !strings.Contains(out, "EOF") {
		t.Errorf("model name not found in slog output: %s", out)
	}

	buf.Reset()
	child := logger.With(ComponentKey, "decomposer")
	child.Debug("rank check", ModesKey, 4)
	out = buf.String()
	if !strings.Contains(out, "decomposer") || !strings.Contains(out, "rank check") {
		t.Errorf("contextual fields missing from slog output: %s", out)
	}

	quiet := NewSlogLogger(&buf, LevelWarn)
	buf.Reset()
	quiet.Info("suppressed")
	if buf.String() != "" {
		t.Errorf("info message should be suppressed at warn level: %s", buf.String())
	}
	if quiet.Enabled(context.Background(), LevelDebug) {
		t.Error("warn-level logger should not be enabled for debug")
	}
	if !quiet.Enabled(context.Background(), LevelError) {
		t.Error("warn-level logger should be enabled for error")
	}
}

// TestSlogLoggerStacktrace verifies that errors wrapped with stack
// information surface it as a structured attribute
func TestSlogLoggerStacktrace(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(&buf, LevelInfo)

	logger.Error("fit failed",
		errors.New("decomposition failed"),
		OperationKey, OperationFit,
	)

	out := buf.String()
	if !strings.Contains(out, "fit failed") {
		t.Fatalf("message not found in slog output: %s", out)
	}
	if !strings.Contains(out, ErrAttrKey) {
		t.Errorf("error attribute not found in slog output: %s", out)
	}
	if !strings.Contains(out, StacktraceAttrKey) {
		t.Errorf("stacktrace attribute not found in slog output: %s", out)
	}
}

// TestParseLevel tests level-name parsing
func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"info":    LevelInfo,
		"warn":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"ERROR":   LevelError,
	}
	for name, want := range cases {
		got, err := ParseLevel(name)
		if err != nil {
			t.Errorf("ParseLevel(%q) returned error: %v", name, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}

	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("ParseLevel should reject unknown level names")
	}
}
