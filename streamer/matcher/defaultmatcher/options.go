package defaultmatcher

import (
	"regexp"
	"strings"

	"github.com/pingcap/errors"
	"github.com/tsywkGo/go-mysql-binlog/streamer/event"
)

type Option func(matcher *Matcher)

// WithFilterSpec applies every part of spec.
func WithFilterSpec(spec FilterSpec) Option {
	return func(matcher *Matcher) {
		spec = spec.Clone()
		if spec.IncludeEvents != nil {
			WithIncludeEvents(spec.IncludeEvents...)(matcher)
		}
		if spec.ExcludeEvents != nil {
			WithExcludeEvents(spec.ExcludeEvents...)(matcher)
		}
		if spec.IncludeSchema != nil {
			WithIncludeSchema(spec.IncludeSchema)(matcher)
		}
		if spec.ExcludeSchema != nil {
			WithExcludeSchema(spec.ExcludeSchema)(matcher)
		}
		for _, expr := range spec.IncludeRegex {
			WithIncludeRegex(expr)(matcher)
		}
		for _, expr := range spec.ExcludeRegex {
			WithExcludeRegex(expr)(matcher)
		}
	}
}

func WithIncludeEvents(kinds ...string) Option {
	return func(matcher *Matcher) {
		matcher.IncludeEvents = kindSet(matcher.IncludeEvents, kinds)
	}
}

func WithExcludeEvents(kinds ...string) Option {
	return func(matcher *Matcher) {
		matcher.ExcludeEvents = kindSet(matcher.ExcludeEvents, kinds)
	}
}

func WithIncludeSchema(schemas SchemaSet) Option {
	return func(matcher *Matcher) {
		matcher.IncludeSchema = mergeSchemaSet(matcher.IncludeSchema, schemas)
	}
}

func WithExcludeSchema(schemas SchemaSet) Option {
	return func(matcher *Matcher) {
		matcher.ExcludeSchema = mergeSchemaSet(matcher.ExcludeSchema, schemas)
	}
}

func WithIncludeRegex(expr string) Option {
	return func(matcher *Matcher) {
		ss := strings.Split(expr, ",")
		for _, val := range ss {
			reg, err := regexp.Compile(val)
			if err != nil {
				matcher.errs = append(matcher.errs, errors.Annotatef(err, "bad include regexp %s", val))
				continue
			}
			matcher.IncludeRegex = append(matcher.IncludeRegex, reg)
		}
	}
}

func WithExcludeRegex(expr string) Option {
	return func(matcher *Matcher) {
		ss := strings.Split(expr, ",")
		for _, val := range ss {
			reg, err := regexp.Compile(val)
			if err != nil {
				matcher.errs = append(matcher.errs, errors.Annotatef(err, "bad exclude regexp %s", val))
				continue
			}
			matcher.ExcludeRegex = append(matcher.ExcludeRegex, reg)
		}
	}
}

func kindSet(set map[string]struct{}, kinds []string) map[string]struct{} {
	if set == nil {
		set = make(map[string]struct{}, len(kinds))
	}
	for _, kind := range kinds {
		set[event.NormalizeKind(kind)] = struct{}{}
	}
	return set
}

func mergeSchemaSet(dst, src SchemaSet) SchemaSet {
	if dst == nil {
		dst = make(SchemaSet, len(src))
	}
	for db, tables := range src {
		dst[db] = tables
	}
	return dst
}
