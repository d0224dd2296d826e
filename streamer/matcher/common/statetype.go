package common

type StateType int8

var StateTypes = struct {
	Default StateType
	Matched StateType
	Filter  StateType
}{
	Default: 0,
	Matched: 1,
	Filter:  2,
}

func (s StateType) String() string {
	switch s {
	case StateTypes.Matched:
		return "matched"
	case StateTypes.Filter:
		return "filter"
	default:
		return "default"
	}
}
