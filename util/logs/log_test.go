package logs

import (
	"bytes"
	"os"
	"testing"

	"github.com/pion/logging"
	"github.com/stretchr/testify/assert"

	"github.com/telehash/gotelehash/hashname"
)

func TestNilLogger(t *testing.T) {
	var l *Logger

	assert.NotPanics(t, func() {
		l.From(hashname.Zero).To(hashname.Zero).Debugf("x %d", 1)
		l.Infof("y")
		l.Error("z")
	})
	assert.Nil(t, New(nil, "x"))
	assert.Nil(t, Wrap(nil))
}

func TestScopedOutput(t *testing.T) {
	assert := assert.New(t)

	var buf bytes.Buffer
	SetOutput(&buf)
	defer ResetLogger()

	SetLevel("line", logging.LogLevelDebug)

	from, _ := hashname.FromString("1700b2d3081151021b4338294c9cec4bf84a2c8bdf651ebaa976df8cff18075c")
	to, _ := hashname.FromString("181042800434dd49c45299c6c3fc69ab427ec49862739b6449e1fcd77b27d3a6")

	Module("line").From(from).To(to).Debugf("opened %s", "now")
	assert.Contains(buf.String(), "1700 1810 | opened now")

	buf.Reset()
	DisableModule("line")
	Module("line").Errorf("dropped")
	assert.Empty(buf.String())
}

func TestLevelFor(t *testing.T) {
	assert := assert.New(t)

	os.Setenv("TH_LOG_SWITCH", "debug")
	defer os.Unsetenv("TH_LOG_SWITCH")

	assert.Equal(logging.LogLevelDebug, levelFor("switch", logging.LogLevelWarn))
	assert.Equal(logging.LogLevelWarn, levelFor("other", logging.LogLevelWarn))
}
