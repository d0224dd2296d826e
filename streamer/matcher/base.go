package matcher

import "github.com/tsywkGo/go-mysql-binlog/streamer/matcher/common"

// IMatcher decides which events reach the consumer. It never returns
// StateTypes.Default.
type IMatcher interface {
	// MatchEvent checks an event kind name such as "tablemap" or "rotate".
	MatchEvent(kind string) common.StateType
	// MatchTable checks the table a table map or rows event refers to.
	MatchTable(dbName, tbName string) common.StateType
}
