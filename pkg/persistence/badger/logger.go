package badger

import (
	"fmt"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// storeLog forwards badger's internal log lines to the event store logger.
// Badger's info output (compactions, flushes, replays) is logged at debug.
type storeLog struct {
	sugar *zap.SugaredLogger
}

var _ badgerdb.Logger = (*storeLog)(nil)

func newStoreLog(logger *zap.Logger) *storeLog {
	return &storeLog{sugar: logger.Named("badger").WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

// badger terminates most messages with a newline
func trimLine(format string, args []interface{}) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}

func (l *storeLog) Errorf(format string, args ...interface{}) {
	l.sugar.Errorw(trimLine(format, args), "store", "badger")
}

func (l *storeLog) Warningf(format string, args ...interface{}) {
	l.sugar.Warnw(trimLine(format, args), "store", "badger")
}

func (l *storeLog) Infof(format string, args ...interface{}) {
	l.sugar.Debugw(trimLine(format, args), "store", "badger")
}

func (l *storeLog) Debugf(format string, args ...interface{}) {
	l.sugar.Debugw(trimLine(format, args), "store", "badger")
}
