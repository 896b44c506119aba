package sqlexec

import (
	"github.com/viant/sqlmapper/cachekey"
)

// BuildCacheKey folds a query's identity (statement id, paging, rendered
// SQL, bound parameter values in order, and the resolved database id when
// vendor-specific statement variants are in play) into an order-sensitive
// composite key, per the accumulation rule package cachekey implements.
func BuildCacheKey(statementID string, offset, limit int, renderedSQL string, args []interface{}, databaseID string) *cachekey.Key {
	k := cachekey.New()
	k.Update(statementID)
	k.Update(offset)
	k.Update(limit)
	k.Update(renderedSQL)
	for _, a := range args {
		k.Update(a)
	}
	if databaseID != "" {
		k.Update(databaseID)
	}
	return k
}
