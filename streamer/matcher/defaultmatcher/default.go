package defaultmatcher

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/tsywkGo/go-mysql-binlog/streamer/event"
	"github.com/tsywkGo/go-mysql-binlog/streamer/matcher/common"
)

type Matcher struct {
	// IncludeEvents nil means every kind passes.
	IncludeEvents map[string]struct{}
	ExcludeEvents map[string]struct{}

	// IncludeSchema nil and IncludeRegex empty means every table passes.
	// eg, IncludeSchema: {"db1": ["t1"]}, ExcludeRegex: ["mysql\\..*"]
	IncludeSchema SchemaSet
	ExcludeSchema SchemaSet
	IncludeRegex  []*regexp.Regexp
	ExcludeRegex  []*regexp.Regexp

	matchedSetMu sync.RWMutex
	matchedSet   map[string]common.StateType

	errs []error
}

func New(opts ...Option) (*Matcher, error) {
	matcher := new(Matcher)
	for _, opt := range opts {
		opt(matcher)
	}
	// a dropped pattern would widen the filter
	if len(matcher.errs) > 0 {
		return nil, matcher.errs[0]
	}
	matcher.matchedSet = make(map[string]common.StateType, 0)
	return matcher, nil
}

// 如果同时存在匹配与过滤，则过滤优先
func (m *Matcher) MatchEvent(kind string) common.StateType {
	kind = event.NormalizeKind(kind)
	if _, ok := m.ExcludeEvents[kind]; ok {
		return common.StateTypes.Filter
	}
	if m.IncludeEvents == nil {
		return common.StateTypes.Matched
	}
	if _, ok := m.IncludeEvents[kind]; ok {
		return common.StateTypes.Matched
	}
	return common.StateTypes.Filter
}

func (m *Matcher) MatchTable(dbName, tbName string) common.StateType {
	// NUL never appears in identifiers, dots may
	key := dbName + "\x00" + tbName
	state := m.matchState(key)
	if state != common.StateTypes.Default {
		return state
	}

	schemaName := m.encodeSchemaName(dbName, tbName)

	// 过滤优先
	if m.ExcludeSchema.Contains(dbName, tbName) || m.matchRegex(m.ExcludeRegex, schemaName) {
		m.updateMatchedSet(key, common.StateTypes.Filter)
		return common.StateTypes.Filter
	}

	state = common.StateTypes.Matched
	if m.IncludeSchema != nil || len(m.IncludeRegex) > 0 {
		if !m.IncludeSchema.Contains(dbName, tbName) && !m.matchRegex(m.IncludeRegex, schemaName) {
			// 未匹配上，则认为需要被过滤
			state = common.StateTypes.Filter
		}
	}
	m.updateMatchedSet(key, state)
	return state
}

func (m *Matcher) matchRegex(regs []*regexp.Regexp, schemaName string) bool {
	for _, reg := range regs {
		if reg.MatchString(schemaName) {
			return true
		}
	}
	return false
}

func (m *Matcher) encodeSchemaName(dbName, tbName string) string {
	return fmt.Sprintf("%s.%s", dbName, tbName)
}

func (m *Matcher) matchState(key string) common.StateType {
	m.matchedSetMu.RLock()
	defer m.matchedSetMu.RUnlock()

	return m.matchedSet[key]
}

func (m *Matcher) updateMatchedSet(key string, state common.StateType) {
	m.matchedSetMu.Lock()
	defer m.matchedSetMu.Unlock()

	m.matchedSet[key] = state
}
