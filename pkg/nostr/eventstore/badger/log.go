package badger

import (
	"fmt"
	"strings"

	"github.com/Hubmakerlabs/bridgr/pkg/slog"
)

// badgerLog hands badger's messages to our printers. All but errors go one
// level lower than badger rates them, it reports every compaction.
type badgerLog struct{ prefix string }

func (b badgerLog) out(p slog.LevelPrinter, format string, a []any) {
	p.Ln(b.prefix, strings.TrimSpace(fmt.Sprintf(format, a...)))
}

func (b badgerLog) Errorf(f string, a ...any)   { b.out(log.E, f, a) }
func (b badgerLog) Warningf(f string, a ...any) { b.out(log.I, f, a) }
func (b badgerLog) Infof(f string, a ...any)    { b.out(log.D, f, a) }
func (b badgerLog) Debugf(f string, a ...any)   { b.out(log.T, f, a) }
