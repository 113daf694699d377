package collection

import (
	"github.com/vecstore/vecstore/cmn"
	"github.com/vecstore/vecstore/payload"
	"github.com/vecstore/vecstore/query"
)

// filterFields collects every field name a filter touches, one level
// deep (the only depth payload.Filter's condition set supports today).
func filterFields(f *payload.Filter) []string {
	if f == nil {
		return nil
	}
	var out []string
	collect := func(conds []payload.Condition) {
		for _, c := range conds {
			if fc, ok := c.(payload.FieldCondition); ok {
				out = append(out, fc.Field)
			}
		}
	}
	collect(f.Must)
	collect(f.Should)
	collect(f.MustNot)
	return out
}

func unindexedFields(f *payload.Filter, schema payload.Schema) []string {
	var out []string
	for _, name := range filterFields(f) {
		if _, ok := schema[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}

// ValidateQuery enforces strict-mode admission control on an incoming
// ShardQueryRequest (spec.md §6 strict_mode table), given the field
// index schema the request's filter will run against.
func ValidateQuery(sm cmn.StrictMode, req query.ShardQueryRequest, schema payload.Schema) error {
	if sm.MaxQueryLimit > 0 && req.Offset+req.Limit > sm.MaxQueryLimit {
		return cmn.NewBadRequest("strict mode: offset+limit %d exceeds max_query_limit %d", req.Offset+req.Limit, sm.MaxQueryLimit)
	}
	if sm.MaxHNSWef > 0 && req.Ef > sm.MaxHNSWef {
		return cmn.NewBadRequest("strict mode: ef %d exceeds max_hnsw_ef %d", req.Ef, sm.MaxHNSWef)
	}
	if !sm.UnindexedFilteringRetrieve {
		if bad := unindexedFields(req.Filter, schema); len(bad) > 0 {
			return cmn.NewBadRequest("strict mode: unindexed_filtering_retrieve disallowed, fields %v are not indexed", bad)
		}
	}
	for _, pf := range req.Prefetches {
		if err := ValidateQuery(sm, pf, schema); err != nil {
			return err
		}
	}
	return nil
}

// ValidateUpdate enforces the update-path half of strict mode: an
// unindexed filter is only relevant to updates that carry one (none of
// the current UpdateOp variants do), so this exists for symmetry with
// spec.md §6's table and to gate future filtered-update ops.
func ValidateUpdate(sm cmn.StrictMode, filter *payload.Filter, schema payload.Schema) error {
	if !sm.UnindexedFilteringUpdate {
		if bad := unindexedFields(filter, schema); len(bad) > 0 {
			return cmn.NewBadRequest("strict mode: unindexed_filtering_update disallowed, fields %v are not indexed", bad)
		}
	}
	return nil
}
