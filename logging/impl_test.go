package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
	"go.viam.com/test"
)

func TestSubloggerNamesAndLevels(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	sub := logger.Sublogger("sampler")

	sub.Debugw("constrained sample failed", "attempts", 3)
	test.That(t, logs.FilterMessage("constrained sample failed").Len(), test.ShouldEqual, 1)
	entry := logs.FilterMessage("constrained sample failed").All()[0]
	test.That(t, entry.LoggerName, test.ShouldEqual, "sampler")
	test.That(t, entry.ContextMap()["attempts"], test.ShouldEqual, int64(3))

	logger.SetLevel(zapcore.WarnLevel)
	sub.Infof("dropped %d", 1)
	test.That(t, logs.FilterMessage("dropped 1").Len(), test.ShouldEqual, 0)
	sub.Warnf("kept %d", 2)
	test.That(t, logs.FilterMessage("kept 2").Len(), test.ShouldEqual, 1)
}

func TestBlankLogger(t *testing.T) {
	logger := NewBlankLogger("blank")
	logger.Errorw("nothing happens", "k", "v")
	test.That(t, logger.Level(), test.ShouldEqual, zapcore.DebugLevel)
}
