package logger

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dwarvesf/zenz-bridge/internal/types/environments"
)

var _ = Describe("Logger Environment", func() {
	DescribeTable("per-environment zap config",
		func(build func() zap.Config, level zapcore.Level, encoding string, quiet bool) {
			cfg := build()

			Expect(cfg.Level.Level()).To(Equal(level))
			Expect(cfg.Encoding).To(Equal(encoding))
			Expect(cfg.DisableCaller).To(Equal(quiet))
			Expect(cfg.DisableStacktrace).To(Equal(quiet))
			Expect(cfg.OutputPaths).To(Equal([]string{"stdout"}))
			Expect(cfg.ErrorOutputPaths).To(Equal([]string{"stderr"}))
		},
		Entry("production keeps callers and stacktraces", newProductionLoggerConfig, zap.InfoLevel, "json", false),
		Entry("staging drops them", newStagingLoggerConfig, zap.InfoLevel, "json", true),
		Entry("development logs debug to the console", newDevelopmentLoggerConfig, zap.DebugLevel, "console", true),
	)

	Describe("#newTestLoggerConfig", func() {
		It("writes nowhere", func() {
			cfg := newTestLoggerConfig()

			Expect(cfg.Level.Level()).To(Equal(zap.InfoLevel))
			Expect(cfg.Development).To(BeFalse())
			Expect(cfg.OutputPaths).To(BeEmpty())
			Expect(cfg.ErrorOutputPaths).To(BeEmpty())
		})
	})

	Describe("JSON encoder", func() {
		It("uses ts with ISO8601 times", func() {
			cfg := newProductionLoggerConfig()

			Expect(cfg.EncoderConfig.TimeKey).To(Equal("ts"))
			Expect(cfg.EncoderConfig.EncodeTime).NotTo(BeNil())
		})
	})

	Describe("environments.Parse", func() {
		DescribeTable("maps APP_ENV values",
			func(in string, want environments.Environment) {
				Expect(environments.Parse(in)).To(Equal(want))
			},
			Entry("prod alias", "prod", environments.Production),
			Entry("mixed case", " Staging ", environments.Staging),
			Entry("test", "test", environments.Test),
			Entry("unknown falls back to development", "qa", environments.Development),
		)
	})
})
