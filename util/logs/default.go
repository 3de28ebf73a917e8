package logs

import (
	"io"
	"io/ioutil"
	"os"
	"sync"

	"github.com/pion/logging"
)

var (
	mtx            sync.Mutex
	defaultFactory = newFactory(os.Stderr)
)

func newFactory(out io.Writer) *logging.DefaultLoggerFactory {
	f := logging.NewDefaultLoggerFactory()
	f.Writer = out
	f.DefaultLogLevel = levelFor("ALL", logging.LogLevelWarn)
	if f.ScopeLevels == nil {
		f.ScopeLevels = make(map[string]logging.LogLevel)
	}
	return f
}

// Factory returns the default logger factory.
func Factory() logging.LoggerFactory {
	mtx.Lock()
	defer mtx.Unlock()
	return defaultFactory
}

// Module returns a logger scoped to name from the default factory.
func Module(name string) *Logger {
	mtx.Lock()
	defer mtx.Unlock()

	if _, set := defaultFactory.ScopeLevels[name]; !set {
		if lvl := levelFor(name, -1); lvl != -1 {
			defaultFactory.ScopeLevels[name] = lvl
		}
	}

	return New(defaultFactory, name)
}

// SetOutput redirects the default factory. Loggers made before the call keep
// their old writer.
func SetOutput(out io.Writer) {
	mtx.Lock()
	defaultFactory = newFactory(out)
	mtx.Unlock()
}

func ResetLogger() {
	SetOutput(os.Stderr)
}

func DisableLogger() {
	mtx.Lock()
	defaultFactory = newFactory(ioutil.Discard)
	defaultFactory.DefaultLogLevel = logging.LogLevelDisabled
	mtx.Unlock()
}

func DisableModule(name string) {
	mtx.Lock()
	defaultFactory.ScopeLevels[name] = logging.LogLevelDisabled
	mtx.Unlock()
}

// SetLevel sets the level of one scope on the default factory.
func SetLevel(name string, lvl logging.LogLevel) {
	mtx.Lock()
	defaultFactory.ScopeLevels[name] = lvl
	mtx.Unlock()
}
