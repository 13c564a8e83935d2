package logger

import (
	"bytes"
	"sort"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dwarvesf/zenz-bridge/internal/types/environments"
)

type customWriteHook struct {
	called bool
}

func (h *customWriteHook) OnWrite(_ *zapcore.CheckedEntry, _ []zapcore.Field) {
	h.called = true
}

var _ = Describe("Logger", func() {
	var logger *Logger

	Describe("#New", func() {
		It("should create a new logger with production config when environment is production", func() {
			logger = New(environments.Production)
			Expect(logger).NotTo(BeNil())
			Expect(logger.wrappedLogger).NotTo(BeNil())
		})

		It("should create a new logger with development config when environment is development", func() {
			logger = New(environments.Development)
			Expect(logger).NotTo(BeNil())
			Expect(logger.wrappedLogger).NotTo(BeNil())
		})

		It("should create a new logger with staging config when environment is staging", func() {
			logger = New(environments.Staging)
			Expect(logger).NotTo(BeNil())
			Expect(logger.wrappedLogger).NotTo(BeNil())
		})

		It("should create a new logger with test config when environment is test", func() {
			logger = New(environments.Test)
			Expect(logger).NotTo(BeNil())
			Expect(logger.wrappedLogger).NotTo(BeNil())
		})

		It("should create a new logger with production config when environment is unknown", func() {
			unknownEnv := environments.Environment("unknown")
			logger = New(unknownEnv)
			Expect(logger).NotTo(BeNil())
			Expect(logger.wrappedLogger).NotTo(BeNil())

			// Verify that the logger is configured with production settings
			zapLogger := logger.wrappedLogger.WithOptions(zap.AddCaller())
			core := zapLogger.Core()
			Expect(core.Enabled(zapcore.InfoLevel)).To(BeTrue())
			Expect(core.Enabled(zapcore.DebugLevel)).To(BeFalse())
		})
	})

	Describe("leveled output", func() {
		var (
			buf  *bytes.Buffer
			core zapcore.Core
		)

		BeforeEach(func() {
			buf = &bytes.Buffer{}
			core = zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(buf),
				zap.DebugLevel,
			)
			logger = &Logger{wrappedLogger: zap.New(core)}
		})

		It("should write debug, info, warn and error entries with fields", func() {
			logger.Debug("[Relayer][Debug]", map[string]string{"key": "btc_abc"})
			logger.Info("[Relayer][Info]", map[string]string{"status": "processed"})
			logger.Warn("[Relayer][Warn]")
			logger.Error("[Relayer][Error]", map[string]string{"error": "boom"})

			out := buf.String()
			Expect(out).To(ContainSubstring(`"level":"debug"`))
			Expect(out).To(ContainSubstring(`"key":"btc_abc"`))
			Expect(out).To(ContainSubstring(`"status":"processed"`))
			Expect(out).To(ContainSubstring(`"level":"warn"`))
			Expect(out).To(ContainSubstring(`"error":"boom"`))
		})

		It("should merge multiple field maps", func() {
			logger.Info("[Relayer][Merge]", map[string]string{"a": "1"}, map[string]string{"b": "2"})
			Expect(buf.String()).To(ContainSubstring(`"a":"1"`))
			Expect(buf.String()).To(ContainSubstring(`"b":"2"`))
		})

		It("should attach With fields to every entry of the child logger", func() {
			child := logger.With(map[string]string{"chain": "BTC"})
			child.Info("first")
			child.Info("second")
			Expect(strings.Count(buf.String(), `"chain":"BTC"`)).To(Equal(2))
		})
	})

	Describe("#New with test environment", func() {
		It("should not panic when logging", func() {
			logger = New(environments.Test)
			Expect(func() {
				logger.Info("info message", map[string]string{"key": "value"})
				logger.Sync()
			}).NotTo(Panic())
		})
	})

	Describe("#Fatal", func() {
		BeforeEach(func() {
			logger = New(environments.Test)
		})

		It("should log fatal messages", func() {
			hook := &customWriteHook{}
			originalLogger := logger.wrappedLogger
			defer func() { logger.wrappedLogger = originalLogger }()

			testLogger := zap.New(
				zapcore.NewCore(
					zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
					zapcore.AddSync(&bytes.Buffer{}),
					zap.FatalLevel,
				),
				zap.WithFatalHook(hook),
			)
			logger.wrappedLogger = testLogger

			logger.Fatal("fatal message", map[string]string{"key": "value"})
			Expect(hook.called).To(BeTrue())
		})
	})

	Describe("#transformStrMapToFields", func() {
		It("should transform a string map to zap fields", func() {
			inputMap := map[string]string{
				"key1": "value1",
				"key2": "value2",
			}
			fields := transformStrMapToFields(inputMap)

			// sort fields by key
			sort.Slice(fields, func(i, j int) bool {
				return fields[i].Key < fields[j].Key
			})

			Expect(fields).To(HaveLen(2))
			Expect(fields[0]).To(Equal(zap.String("key1", "value1")))
			Expect(fields[1]).To(Equal(zap.String("key2", "value2")))
		})

		It("should return an empty slice for an empty input map", func() {
			inputMap := map[string]string{}
			fields := transformStrMapToFields(inputMap)
			Expect(fields).To(BeEmpty())
		})
	})
})
